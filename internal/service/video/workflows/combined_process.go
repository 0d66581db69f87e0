package workflows

import (
	"context"
	"encoding/json"
	"fmt"

	wfmodels "meridian/internal/domain/models/workflow"
	domainwf "meridian/internal/domain/services/workflow"
	wfsvc "meridian/internal/service/workflow"
)

// CombinedProcessName is the catalog identifier for the combined-process
// workflow (spec.md §4.6.6).
const CombinedProcessName = "combined_process"

type CombinedProcessArgs struct {
	VideoID                string `json:"video_id"`
	AdditionalInstructions string `json:"additional_instructions,omitempty"`
}

// CombinedProcessWorkflow implements spec.md §4.6.6: fetch-transcript and
// dynamic-analysis run sequentially as in-line steps of this run, while
// slide-extraction is dispatched as its own sub-run in parallel. The two
// in-line workflows emit straight into this run's log; the slide-extraction
// sub-run's stream is tailed through wfsvc.Merge and forwarded into the
// same log.
func (d *Deps) CombinedProcessWorkflow(r domainwf.Runner, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args CombinedProcessArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("unmarshal combined_process args: %w", err)
	}
	if err := validateVideoID(args.VideoID); err != nil {
		return nil, domainwf.AsValidation(err)
	}

	slideArgsJSON, err := json.Marshal(SlideExtractionArgs{VideoID: args.VideoID})
	if err != nil {
		return nil, fmt.Errorf("marshal slide_extraction args: %w", err)
	}

	slidesRunID, err := domainwf.StepT(r, "dispatch_slide_extraction", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (string, error) {
		return d.Runtime.Start(ctx, SlideExtractionName, slideArgsJSON)
	})
	if err != nil {
		return nil, err
	}

	_ = r.Emit("", wfsvc.MetaPayload(map[string]interface{}{"slidesRunId": slidesRunID}))

	forwardCtx, cancelForward := context.WithCancel(r.Context())
	defer cancelForward()
	sources := map[string]<-chan wfmodels.Event{"slides": d.Tailer.Tail(forwardCtx, slidesRunID, 0, "")}
	merged := wfsvc.Merge(forwardCtx, sources)

	done := make(chan struct{})
	go func() {
		defer close(done)
		forwardMergedEvents(r, merged)
	}()

	transcriptArgsJSON, err := json.Marshal(FetchTranscriptArgs{VideoID: args.VideoID})
	if err != nil {
		return nil, fmt.Errorf("marshal fetch_transcript args: %w", err)
	}
	if _, err := d.FetchTranscript(r, transcriptArgsJSON); err != nil {
		return nil, err
	}

	analysisArgsJSON, err := json.Marshal(DynamicAnalysisArgs{VideoID: args.VideoID, AdditionalInstructions: args.AdditionalInstructions})
	if err != nil {
		return nil, fmt.Errorf("marshal dynamic_analysis args: %w", err)
	}
	analysisResult, err := d.DynamicAnalysis(r, analysisArgsJSON)
	if err != nil {
		return nil, err
	}

	<-done

	_ = r.Emit("", wfsvc.CompletePayload(map[string]interface{}{"videoId": args.VideoID, "slidesRunId": slidesRunID}))
	return analysisResult, nil
}

// forwardMergedEvents re-emits each emit-kind event from a merged sub-run
// stream under this run's own log, preserving the sub-run's namespace so
// clients can still key off slide_number/frame_position. Non-emit events
// (step bookkeeping, the sub-run's own terminal marker) are not
// client-visible and are dropped.
func forwardMergedEvents(r domainwf.Runner, merged <-chan wfsvc.TaggedEvent) {
	for tagged := range merged {
		if tagged.Event.Kind != wfmodels.EventEmit {
			continue
		}
		var p wfmodels.EmitPayload
		if err := json.Unmarshal(tagged.Event.Payload, &p); err != nil {
			continue
		}
		_ = r.Emit(p.Namespace, p.Data)
	}
}
