package workflows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"meridian/internal/domain"
	vm "meridian/internal/domain/models/video"
	domainwf "meridian/internal/domain/services/workflow"
	wfsvc "meridian/internal/service/workflow"
)

// FetchTranscriptName is the catalog identifier for the fetch-transcript
// workflow (spec.md §4.6.1).
const FetchTranscriptName = "fetch_transcript"

// FetchTranscriptArgs is the workflow's JSON argument shape.
type FetchTranscriptArgs struct {
	VideoID string `json:"video_id"`
}

// FetchTranscriptResult is both the workflow's return value and the
// `complete` event payload.
type FetchTranscriptResult struct {
	Title       string `json:"title"`
	ChannelName string `json:"channelName"`
}

func intp(v int) *int { return &v }

// FetchTranscript implements spec.md §4.6.1: check cache, fetch remote on
// a miss, persist, emit progress milestones (10/20/50/80%) then complete.
func (d *Deps) FetchTranscript(r domainwf.Runner, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args FetchTranscriptArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("unmarshal fetch_transcript args: %w", err)
	}
	if err := validateVideoID(args.VideoID); err != nil {
		return nil, domainwf.AsValidation(err)
	}

	_ = r.Emit("", wfsvc.ProgressPayload("check_cache", "checking cache", intp(10)))

	cached, err := domainwf.StepT(r, "check_cache", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (*vm.Transcript, error) {
		t, err := d.Transcripts.Get(ctx, args.VideoID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}

	var t *vm.Transcript
	if cached != nil {
		_ = r.Emit("", wfsvc.ProgressPayload("check_cache", "Transcript found in database, skipping API call...", intp(50)))
		t = cached
	} else {
		_ = r.Emit("", wfsvc.ProgressPayload("fetch_remote", "fetching transcript", intp(20)))

		fetched, err := domainwf.StepT(r, "fetch_remote", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (*vm.Transcript, error) {
			result, err := d.TranscriptClient.Fetch(ctx, args.VideoID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					return nil, domainwf.AsNotFound(err)
				}
				return nil, err
			}
			segments := make([]vm.TranscriptSegment, len(result.Transcript))
			for i, s := range result.Transcript {
				segments[i] = vm.TranscriptSegment{Start: s.Start, End: s.End, Text: s.Text}
			}
			return &vm.Transcript{
				VideoID:     args.VideoID,
				Title:       result.Title,
				ChannelName: result.ChannelName,
				Description: result.Description,
				Segments:    segments,
			}, nil
		})
		if err != nil {
			return nil, err
		}
		t = fetched

		_ = r.Emit("", wfsvc.ProgressPayload("fetch_remote", "fetched transcript", intp(50)))

		_, err = domainwf.StepT(r, "persist", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (bool, error) {
			if err := d.Transcripts.Upsert(ctx, t); err != nil {
				return false, err
			}
			return true, nil
		})
		if err != nil {
			return nil, err
		}

		_ = r.Emit("", wfsvc.ProgressPayload("persist", "transcript persisted", intp(80)))
	}

	result := FetchTranscriptResult{Title: t.Title, ChannelName: t.ChannelName}
	_ = r.Emit("", wfsvc.CompletePayload(result))

	return json.Marshal(result)
}
