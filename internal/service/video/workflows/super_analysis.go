package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	vm "meridian/internal/domain/models/video"
	domainwf "meridian/internal/domain/services/workflow"
	"meridian/internal/service/video/llmgen"
	wfsvc "meridian/internal/service/workflow"
)

// SuperAnalysisName is the catalog identifier for the super-analysis
// workflow (spec.md §4.6.5).
const SuperAnalysisName = "super_analysis"

type SuperAnalysisArgs struct {
	VideoID string `json:"video_id"`
}

const synthesisSystemPrompt = `You write a unified markdown report synthesizing a video's transcript-derived
dynamic analysis with its per-slide visual analyses. Reference slide timing where relevant.`

// SuperAnalysisWorkflow implements spec.md §4.6.5: check cache, resolve
// picks, ensure every pick has a slide analysis (fanning out in parallel,
// tolerating partial failure), load context, synthesize, and persist.
func (d *Deps) SuperAnalysisWorkflow(r domainwf.Runner, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args SuperAnalysisArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("unmarshal super_analysis args: %w", err)
	}
	if err := validateVideoID(args.VideoID); err != nil {
		return nil, domainwf.AsValidation(err)
	}

	version, err := domainwf.StepT(r, "create_super_analysis_run", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (int, error) {
		existing, err := d.VersionedRuns.GetStreaming(ctx, args.VideoID, vm.ResourceKindSuperAnalysis)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			return existing.Version, nil
		}
		row := &vm.VersionedRun{ResourceID: args.VideoID, ResourceKind: vm.ResourceKindSuperAnalysis, Status: vm.VersionedRunStreaming}
		if err := d.VersionedRuns.Create(ctx, row); err != nil {
			return 0, err
		}
		return row.Version, nil
	})
	if err != nil {
		return nil, err
	}

	targets, err := domainwf.StepT(r, "load_picks", domainwf.DefaultRetryPolicy(), func(ctx context.Context) ([]vm.Target, error) {
		feedback, err := d.SlideFeedback.List(ctx, args.VideoID)
		if err != nil {
			return nil, err
		}
		picked := vm.PickedTargets(feedback)
		if len(picked) == 0 {
			return nil, domainwf.AsFatal(fmt.Errorf("no slides picked for %s", args.VideoID))
		}
		return picked, nil
	})
	if err != nil {
		return nil, err
	}

	existingAnalyses, err := domainwf.StepT(r, "load_existing_analyses", domainwf.DefaultRetryPolicy(), func(ctx context.Context) ([]*vm.SlideAnalysisResult, error) {
		return d.SlideAnalysis.List(ctx, args.VideoID)
	})
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(existingAnalyses))
	for _, a := range existingAnalyses {
		have[analysisKey(a.SlideNumber, a.FramePosition)] = true
	}

	var missing []vm.Target
	for _, t := range targets {
		if !have[analysisKey(t.SlideNumber, t.FramePosition)] {
			missing = append(missing, t)
		}
	}

	if len(missing) > 0 {
		var mu sync.Mutex
		var g errgroup.Group
		completed := 0

		for _, t := range missing {
			target := t
			g.Go(func() error {
				stepID := fmt.Sprintf("ensure_slide_analysis_%d_%s", target.SlideNumber, target.FramePosition)
				err := analyzeSlideTarget(r, d, stepID, args.VideoID, target)

				mu.Lock()
				completed++
				n := completed
				mu.Unlock()
				_ = r.Emit("", wfsvc.SlideAnalysisProgressPayload(nil, n, len(missing)))
				return err
			})
		}
		// Plain errgroup.Group (not WithContext) is deliberate: a ctx
		// cancellation on the first failure would abort sibling LLM calls
		// still in flight, which would violate "tolerate partial failure,
		// proceed if at least one succeeded". Wait still collects the
		// first error for the all-failed check below.
		firstErr := g.Wait()

		if firstErr != nil && completed == len(missing) {
			allFailed := true
			for _, t := range missing {
				if have[analysisKey(t.SlideNumber, t.FramePosition)] {
					allFailed = false
					break
				}
			}
			if allFailed {
				analyses, _ := d.SlideAnalysis.List(r.Context(), args.VideoID)
				if len(analyses) == 0 {
					return nil, domainwf.AsFatal(fmt.Errorf("all slide analyses failed: %w", firstErr))
				}
			}
		}
	}

	analyses, err := domainwf.StepT(r, "load_context", domainwf.DefaultRetryPolicy(), func(ctx context.Context) ([]*vm.SlideAnalysisResult, error) {
		return d.SlideAnalysis.List(ctx, args.VideoID)
	})
	if err != nil {
		return nil, err
	}
	if len(analyses) == 0 {
		return nil, domainwf.AsFatal(fmt.Errorf("all slide analyses failed for %s", args.VideoID))
	}

	dynamicAnalysis, err := domainwf.StepT(r, "load_dynamic_analysis", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (json.RawMessage, error) {
		run, err := d.VersionedRuns.GetLatestCompleted(ctx, args.VideoID, vm.ResourceKindDynamicAnalysis)
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, nil
		}
		return run.ResultJSON, nil
	})
	if err != nil {
		return nil, err
	}

	prompt := buildSynthesisPrompt(dynamicAnalysis, analyses)

	markdown, err := domainwf.StepT(r, "synthesize", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (string, error) {
		chunks, err := d.LLM.Stream(ctx, llmgen.Request{
			Model:     d.DefaultModel,
			System:    synthesisSystemPrompt,
			Prompt:    prompt,
			MaxTokens: 8192,
		})
		if err != nil {
			return "", domainwf.AsTransient(err)
		}

		var text strings.Builder
		for chunk := range chunks {
			if chunk.Err != nil {
				return "", domainwf.AsTransient(chunk.Err)
			}
			if chunk.Done {
				break
			}
			text.WriteString(chunk.TextDelta)
			_ = r.Emit("", wfsvc.PartialPayload(map[string]interface{}{"markdown": text.String()}))
		}
		return text.String(), nil
	})
	if err != nil {
		return nil, err
	}

	_ = r.Emit("", wfsvc.ResultPayload(map[string]interface{}{"markdown": markdown}))

	resultJSON, err := json.Marshal(map[string]interface{}{"markdown": markdown})
	if err != nil {
		return nil, fmt.Errorf("marshal super analysis result: %w", err)
	}

	_, err = domainwf.StepT(r, "persist", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (bool, error) {
		if err := d.VersionedRuns.Complete(ctx, args.VideoID, vm.ResourceKindSuperAnalysis, version, resultJSON); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	_ = r.Emit("", wfsvc.CompletePayload(map[string]interface{}{"runId": args.VideoID, "version": version}))
	return resultJSON, nil
}

func analysisKey(slideNumber int, pos vm.FramePosition) string {
	return fmt.Sprintf("%d-%s", slideNumber, pos)
}

func buildSynthesisPrompt(dynamicAnalysisJSON json.RawMessage, analyses []*vm.SlideAnalysisResult) string {
	var b strings.Builder
	if len(dynamicAnalysisJSON) > 0 {
		b.WriteString("Dynamic analysis (JSON):\n")
		b.Write(dynamicAnalysisJSON)
		b.WriteString("\n\n")
	}
	b.WriteString("Slide analyses:\n")
	for _, a := range analyses {
		fmt.Fprintf(&b, "Slide %d (%s):\n%s\n\n", a.SlideNumber, a.FramePosition, a.Markdown)
	}
	return b.String()
}
