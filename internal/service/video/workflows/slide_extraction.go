package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	vm "meridian/internal/domain/models/video"
	domainwf "meridian/internal/domain/services/workflow"
	"meridian/internal/service/video/blobstore"
	"meridian/internal/service/video/slideclient"
	wfsvc "meridian/internal/service/workflow"
)

// SlideExtractionName is the catalog identifier for the slide-extraction
// workflow (spec.md §4.6.3).
const SlideExtractionName = "slide_extraction"

type SlideExtractionArgs struct {
	VideoID string `json:"video_id"`
}

var defaultMonitorJobRetryPolicy = domainwf.RetryPolicy{MaxRetries: 1, BaseDelay: time.Second, MaxDelay: 5 * time.Second}

// monitorJobRetryPolicy lets an operator-supplied YAML override (see
// config.LoadRetryPolicies) tune the monitor step's backoff without a
// redeploy; absent an override it keeps the conservative default above.
func (d *Deps) monitorJobRetryPolicy() domainwf.RetryPolicy {
	if d.RetryPolicies == nil {
		return defaultMonitorJobRetryPolicy
	}
	if policy, ok := d.RetryPolicies["monitor_job"]; ok {
		return policy
	}
	return defaultMonitorJobRetryPolicy
}

// SlideExtractionWorkflow implements spec.md §4.6.3: trigger the external
// job, monitor its progress stream, fetch the completed manifest, download
// and republish each frame, and finalize the extraction record.
func (d *Deps) SlideExtractionWorkflow(r domainwf.Runner, rawArgs json.RawMessage) (json.RawMessage, error) {
	var args SlideExtractionArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return nil, fmt.Errorf("unmarshal slide_extraction args: %w", err)
	}
	if err := validateVideoID(args.VideoID); err != nil {
		return nil, domainwf.AsValidation(err)
	}

	jobID, err := domainwf.StepT(r, "trigger_job", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (string, error) {
		return d.SlideClient.TriggerJob(ctx, args.VideoID)
	})
	if err != nil {
		return nil, err
	}

	metadataURI, err := domainwf.StepT(r, "monitor_job", d.monitorJobRetryPolicy(), func(ctx context.Context) (string, error) {
		updates, err := d.SlideClient.MonitorJob(ctx, jobID)
		if err != nil {
			return "", err
		}

		for update := range updates {
			progress := update.Progress
			_ = r.Emit("", wfsvc.ProgressPayload(string(update.Status), update.Message, &progress))

			switch update.Status {
			case slideclient.JobCompleted:
				if update.MetadataURI == "" {
					return "", domainwf.AsFatal(fmt.Errorf("job %s completed without a metadata_uri", jobID))
				}
				return update.MetadataURI, nil
			case slideclient.JobFailed:
				return "", fmt.Errorf("slide extraction job %s failed: %s", jobID, update.Message)
			}
		}
		return "", fmt.Errorf("slide extraction job %s: monitor stream ended without a terminal status", jobID)
	})
	if err != nil {
		return nil, err
	}

	manifest, err := domainwf.StepT(r, "fetch_manifest", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (*slideclient.Manifest, error) {
		return d.SlideClient.FetchManifest(ctx, metadataURI)
	})
	if err != nil {
		return nil, err
	}

	for i, seg := range manifest.Segments {
		slideNumber := i
		segment := seg
		stepID := fmt.Sprintf("process_slide_%d", slideNumber)

		_, err := domainwf.StepT(r, stepID, domainwf.DefaultRetryPolicy(), func(ctx context.Context) (bool, error) {
			slide := buildSlide(args.VideoID, slideNumber, segment)
			d.republishFrame(ctx, args.VideoID, slideNumber, vm.FramePositionFirst, segment.FirstFrame, &slide.First)
			d.republishFrame(ctx, args.VideoID, slideNumber, vm.FramePositionLast, segment.LastFrame, &slide.Last)

			if err := d.Slides.Insert(ctx, slide); err != nil {
				return false, err
			}
			_ = r.Emit("", wfsvc.SlidePayload(slide))
			return true, nil
		})
		if err != nil {
			return nil, err
		}
	}

	_, err = domainwf.StepT(r, "finalize", domainwf.DefaultRetryPolicy(), func(ctx context.Context) (bool, error) {
		if err := d.SlideExtraction.SetCompleted(ctx, args.VideoID, len(manifest.Segments)); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	result := map[string]interface{}{"totalSlides": len(manifest.Segments)}
	_ = r.Emit("", wfsvc.CompletePayload(result))
	return json.Marshal(result)
}

// buildSlide seeds a Slide row's static metadata (source URIs, text
// detection, validated duplicate-of pointers) ahead of frame republishing.
// spec.md §9 requires a duplicate_of slide_number be strictly less than
// the current one; a violation is dropped rather than trusted blindly.
func buildSlide(videoID string, slideNumber int, seg slideclient.StaticSegment) *vm.Slide {
	slide := &vm.Slide{ResourceID: videoID, SlideNumber: slideNumber}
	slide.First = frameFromManifest(seg.FirstFrame, slideNumber)
	slide.Last = frameFromManifest(seg.LastFrame, slideNumber)
	return slide
}

func frameFromManifest(mf slideclient.ManifestFrame, slideNumber int) vm.Frame {
	frame := vm.Frame{SourceURI: mf.SourceURI, HasText: mf.HasText}
	if mf.DuplicateOf != nil && mf.DuplicateOf.SlideNumber < slideNumber {
		dupSlide := mf.DuplicateOf.SlideNumber
		dupPos := vm.FramePosition(mf.DuplicateOf.FramePosition)
		frame.DuplicateOfSlideNumber = &dupSlide
		frame.DuplicateOfFramePosition = &dupPos
	}
	return frame
}

// republishFrame downloads a source frame and republishes it to public
// blob storage. Failures are recorded on the frame, not propagated, since
// spec.md §4.6.3 treats per-frame failure as non-fatal.
func (d *Deps) republishFrame(ctx context.Context, videoID string, slideNumber int, pos vm.FramePosition, mf slideclient.ManifestFrame, frame *vm.Frame) {
	if mf.SourceURI == "" {
		return
	}
	data, contentType, err := d.ObjectStore.Download(ctx, mf.SourceURI)
	if err != nil {
		d.Logger.Warn("slide frame download failed", "video_id", videoID, "slide_number", slideNumber, "position", pos, "error", err)
		return
	}
	path := blobstore.FramePath(videoID, slideNumber, string(pos))
	publicURL, err := d.BlobStore.Upload(ctx, path, data, contentType)
	if err != nil {
		d.Logger.Warn("slide frame upload failed", "video_id", videoID, "slide_number", slideNumber, "position", pos, "error", err)
		return
	}
	frame.PublicURL = publicURL
}
