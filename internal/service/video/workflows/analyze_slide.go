package workflows

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	vm "meridian/internal/domain/models/video"
	domainwf "meridian/internal/domain/services/workflow"
	"meridian/internal/service/video/llmgen"
	wfsvc "meridian/internal/service/workflow"
)

const perSlideAnalysisSystemPrompt = `You analyze one frame of a presentation video. Write a concise markdown
analysis of what the slide shows: its main point, any visible text, and notable visual structure.`

// analyzeSlideTarget runs the analyze_slide contract (spec.md §4.6.4) for
// one (slide_number, frame_position) target under the given step id and
// namespace, shared by the standalone per-slide-analysis workflow and
// super-analysis's ensure_slide_analyses fan-out.
func analyzeSlideTarget(r domainwf.Runner, d *Deps, stepID, videoID string, target vm.Target) error {
	namespace := wfsvc.Namespace(target.SlideNumber, string(target.FramePosition))

	markdown, err := domainwf.StepT(r, stepID, domainwf.DefaultRetryPolicy(), func(ctx context.Context) (string, error) {
		slides, err := d.Slides.List(ctx, videoID)
		if err != nil {
			return "", err
		}
		var frame *vm.Frame
		for i := range slides {
			if slides[i].SlideNumber != target.SlideNumber {
				continue
			}
			if target.FramePosition == vm.FramePositionFirst {
				frame = &slides[i].First
			} else {
				frame = &slides[i].Last
			}
			break
		}
		if frame == nil || frame.PublicURL == "" {
			return "", domainwf.AsFatal(fmt.Errorf("no republished frame for slide %d (%s)", target.SlideNumber, target.FramePosition))
		}

		imageData, contentType, err := fetchPublicImage(ctx, frame.PublicURL)
		if err != nil {
			return "", domainwf.AsTransient(fmt.Errorf("fetch slide image: %w", err))
		}

		chunks, err := d.LLM.Stream(ctx, llmgen.Request{
			Model:          d.DefaultModel,
			System:         perSlideAnalysisSystemPrompt,
			Prompt:         fmt.Sprintf("Analyze slide %d (%s frame).", target.SlideNumber, target.FramePosition),
			ImageData:      imageData,
			ImageMediaType: contentType,
			MaxTokens:      2048,
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
		}

		if err := d.SlideAnalysis.Upsert(ctx, &vm.SlideAnalysisResult{
			ResourceID:    videoID,
			SlideNumber:   target.SlideNumber,
			FramePosition: target.FramePosition,
			Markdown:      text.String(),
		}); err != nil {
			return "", err
		}

		return text.String(), nil
	})
	if err != nil {
		return err
	}

	return r.Emit(namespace, wfsvc.SlideMarkdownPayload(target.SlideNumber, string(target.FramePosition), markdown))
}

func fetchPublicImage(ctx context.Context, url string) ([]byte, string, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", domainwf.HTTPStatusError(resp.StatusCode, "fetch public image error (status %d) for %s", resp.StatusCode, url)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/webp"
	}
	return data, contentType, nil
}
