package workflows

import (
	"context"
	"encoding/json"
	"testing"

	vm "meridian/internal/domain/models/video"
)

func TestDynamicAnalysis_PersistsValidatedResult(t *testing.T) {
	transcripts := newFakeTranscriptRepo()
	versioned := newFakeVersionedRunRepo()
	videoID := "dQw4w9WgXcQ"
	_ = transcripts.Upsert(context.Background(), &vm.Transcript{
		VideoID: videoID,
		Title:   "a video",
		Segments: []vm.TranscriptSegment{
			{Text: "hello world", Start: 0},
		},
	})

	llm := &fakeLLMProvider{reply: `{"reasoning":"because","schema":[{"key":"topics","description":"d","type":"string"}],` +
		`"analysis":{"tldr":"t","detailed_summary":"d","transcript_corrections":"","topics":"go"}}`}

	d := &Deps{
		Transcripts:   transcripts,
		VersionedRuns: versioned,
		LLM:           llm,
		DefaultModel:  "test-model",
		Logger:        discardLogger(),
	}

	args, _ := json.Marshal(DynamicAnalysisArgs{VideoID: videoID})
	runner := &inlineRunner{ctx: context.Background()}
	out, err := d.DynamicAnalysis(runner, args)
	if err != nil {
		t.Fatalf("DynamicAnalysis: %v", err)
	}

	var result vm.DynamicAnalysisResult
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result.TLDR != "t" {
		t.Errorf("expected tldr %q, got %q", "t", result.TLDR)
	}
	if len(result.Sections) != 1 || result.Sections[0].Key != "topics" {
		t.Errorf("expected one declared schema section, got %+v", result.Sections)
	}

	completed, err := versioned.GetLatestCompleted(context.Background(), videoID, vm.ResourceKindDynamicAnalysis)
	if err != nil || completed == nil {
		t.Fatalf("expected a completed versioned run, got %v / err %v", completed, err)
	}
	if completed.Version != 1 {
		t.Errorf("expected first version to be 1, got %d", completed.Version)
	}
}

func TestDynamicAnalysis_RejectsInvalidVideoID(t *testing.T) {
	d := &Deps{Logger: discardLogger()}
	args, _ := json.Marshal(DynamicAnalysisArgs{VideoID: "too-short"})
	runner := &inlineRunner{ctx: context.Background()}
	if _, err := d.DynamicAnalysis(runner, args); err == nil {
		t.Fatal("expected an error for an invalid video id")
	}
}
