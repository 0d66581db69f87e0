package workflows

import (
	"context"
	"encoding/json"
	"fmt"

	vm "meridian/internal/domain/models/video"
	domainwf "meridian/internal/domain/services/workflow"
	"meridian/internal/service/video/llmgen"
	"meridian/internal/service/video/llmgen/jsonaccum"
	wfsvc "meridian/internal/service/workflow"
)

// DynamicAnalysisName is the catalog identifier for the dynamic-analysis
// workflow (spec.md §4.6.2).
const DynamicAnalysisName = "dynamic_analysis"

type DynamicAnalysisArgs struct {
	VideoID                string `json:"video_id"`
	AdditionalInstructions string `json:"additional_instructions,omitempty"`
}

const analysisSystemPrompt = `You analyze a video transcript. Respond with a single JSON object with keys:
"reasoning" (string), "schema" (array of {"key","description","type"} where type is one of
"string","string[],"object"), and "analysis" (object with required keys "tldr",
"detailed_summary","transcript_corrections", plus one key per declared schema field).
Emit the JSON object only, with no surrounding prose.`

// DynamicAnalysis implements spec.md §4.6.2: load the cached transcript,
// resolve the versioned_run row, stream an LLM schema-and-content
// generation, validate it, and persist.
func (d *Deps) DynamicAnalysis(r domainwf.Runner, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args DynamicAnalysisArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("unmarshal dynamic_analysis args: %w", err)
	}
	if err := validateVideoID(args.VideoID); err != nil {
		return nil, domainwf.AsValidation(err)
	}

	transcriptText, err := domainwf.StepT(r, "load_transcript", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (string, error) {
		t, err := d.Transcripts.Get(ctx, args.VideoID)
		if err != nil {
			return "", domainwf.AsFatal(fmt.Errorf("load transcript for dynamic analysis: %w", err))
		}
		return formatTranscriptForLLM(t), nil
	})
	if err != nil {
		return nil, err
	}

	version, err := domainwf.StepT(r, "create_analysis_run", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (int, error) {
		existing, err := d.VersionedRuns.GetStreaming(ctx, args.VideoID, vm.ResourceKindDynamicAnalysis)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			return existing.Version, nil
		}
		row := &vm.VersionedRun{
			ResourceID:             args.VideoID,
			ResourceKind:           vm.ResourceKindDynamicAnalysis,
			Status:                 vm.VersionedRunStreaming,
			AdditionalInstructions: args.AdditionalInstructions,
		}
		if err := d.VersionedRuns.Create(ctx, row); err != nil {
			return 0, err
		}
		return row.Version, nil
	})
	if err != nil {
		return nil, err
	}

	prompt := transcriptText
	if args.AdditionalInstructions != "" {
		prompt = prompt + "\n\nAdditional instructions: " + args.AdditionalInstructions
	}

	analysisJSON, err := domainwf.StepT(r, "run_llm", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (json.RawMessage, error) {
		chunks, err := d.LLM.Stream(ctx, llmgen.Request{
			Model:     d.DefaultModel,
			System:    analysisSystemPrompt,
			Prompt:    prompt,
			MaxTokens: 8192,
		})
		if err != nil {
			return nil, domainwf.AsTransient(err)
		}

		accum := jsonaccum.New()
		for chunk := range chunks {
			if chunk.Err != nil {
				return nil, domainwf.AsTransient(chunk.Err)
			}
			if chunk.Done {
				break
			}
			accum.Feed(chunk.TextDelta)
			if partial, ok := accum.TryParse(); ok {
				_ = r.Emit("", wfsvc.PartialPayload(partial))
			}
		}

		final, err := accum.Final()
		if err != nil {
			return nil, domainwf.AsFatal(fmt.Errorf("LLM produced invalid JSON: %w", err))
		}
		return json.Marshal(final)
	})
	if err != nil {
		return nil, err
	}

	result, err := parseAndValidateAnalysis(analysisJSON)
	if err != nil {
		return nil, domainwf.AsFatal(err)
	}

	_ = r.Emit("", wfsvc.ResultPayload(result))

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal dynamic analysis result: %w", err)
	}

	_, err = domainwf.StepT(r, "persist_result", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (bool, error) {
		if err := d.VersionedRuns.Complete(ctx, args.VideoID, vm.ResourceKindDynamicAnalysis, version, resultJSON); err != nil {
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

// parseAndValidateAnalysis reconstructs a vm.DynamicAnalysisResult from the
// LLM's raw JSON object and validates its analysis document against a
// schema compiled from the LLM's own declared schema fields.
func parseAndValidateAnalysis(raw json.RawMessage) (*vm.DynamicAnalysisResult, error) {
	var wire struct {
		Reasoning string             `json:"reasoning"`
		Schema    []vm.SchemaField   `json:"schema"`
		Analysis  map[string]interface{} `json:"analysis"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal LLM analysis output: %w", err)
	}

	schema, err := buildAnalysisSchema(wire.Schema)
	if err != nil {
		return nil, err
	}
	if err := validateAnalysis(schema, wire.Analysis); err != nil {
		return nil, fmt.Errorf("analysis failed schema validation: %w", err)
	}

	result := &vm.DynamicAnalysisResult{
		Reasoning: wire.Reasoning,
		Schema:    wire.Schema,
	}
	if s, ok := wire.Analysis["tldr"].(string); ok {
		result.TLDR = s
	}
	if s, ok := wire.Analysis["detailed_summary"].(string); ok {
		result.DetailedSummary = s
	}
	if s, ok := wire.Analysis["transcript_corrections"].(string); ok {
		result.TranscriptCorrections = s
	}

	for _, f := range wire.Schema {
		v, ok := wire.Analysis[f.Key]
		if !ok {
			continue
		}
		valueJSON, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal analysis section %q: %w", f.Key, err)
		}
		result.Sections = append(result.Sections, vm.Section{Key: f.Key, Kind: f.Type, Value: valueJSON})
	}

	return result, nil
}
