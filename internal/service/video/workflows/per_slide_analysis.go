package workflows

import (
	"context"
	"encoding/json"
	"fmt"

	vm "meridian/internal/domain/models/video"
	domainwf "meridian/internal/domain/services/workflow"
)

// PerSlideAnalysisName is the catalog identifier for the per-slide-analysis
// workflow (spec.md §4.6.4).
const PerSlideAnalysisName = "per_slide_analysis"

type PerSlideAnalysisArgs struct {
	VideoID string      `json:"video_id"`
	Targets []vm.Target `json:"targets,omitempty"`
}

// PerSlideAnalysisWorkflow implements spec.md §4.6.4: analyze every
// requested (or, absent a request, every picked) slide target, each as its
// own memoized child step streaming a namespaced slide_markdown event.
func (d *Deps) PerSlideAnalysisWorkflow(r domainwf.Runner, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args PerSlideAnalysisArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("unmarshal per_slide_analysis args: %w", err)
	}
	if err := validateVideoID(args.VideoID); err != nil {
		return nil, domainwf.AsValidation(err)
	}

	targets := args.Targets
	if len(targets) == 0 {
		picked, err := domainwf.StepT(r, "load_targets", domainwf.DefaultRetryPolicy(), func(ctx context.Context) ([]vm.Target, error) {
			feedback, err := d.SlideFeedback.List(ctx, args.VideoID)
			if err != nil {
				return nil, err
			}
			return vm.PickedTargets(feedback), nil
		})
		if err != nil {
			return nil, err
		}
		targets = picked
	}

	for _, target := range targets {
		stepID := fmt.Sprintf("analyze_slide_%d_%s", target.SlideNumber, target.FramePosition)
		if err := analyzeSlideTarget(r, d, stepID, args.VideoID, target); err != nil {
			return nil, err
		}
	}

	return json.Marshal(map[string]interface{}{"analyzed": len(targets)})
}
