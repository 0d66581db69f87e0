package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"

	"meridian/internal/config"
	vm "meridian/internal/domain/models/video"
	"meridian/internal/service/video/workflows"
)

type startBody struct {
	AdditionalInstructions string `json:"additional_instructions"`
}

func (b startBody) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.AdditionalInstructions, validation.Length(0, config.MaxAdditionalInstructionsLength)),
	)
}

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

func validateVideoID(videoID string) error {
	if !videoIDPattern.MatchString(videoID) {
		return fmt.Errorf("invalid video id %q: must be 11 characters of [A-Za-z0-9_-]", videoID)
	}
	return nil
}

var errUnknownKind = errors.New("unknown resource kind")

// resourceKind maps the path's {kind} segment to the internal
// vm.ResourceKind and workflow name pair it dispatches (spec.md §6).
// "combined_process" intentionally shares dynamic_analysis's resource
// kind: the combined workflow's persisted artifact IS the dynamic
// analysis result, so the same cache/attach semantics apply to re-entry.
func resourceKind(kind string) (vm.ResourceKind, string, error) {
	switch kind {
	case "dynamic_analysis":
		return vm.ResourceKindDynamicAnalysis, workflows.DynamicAnalysisName, nil
	case "super_analysis":
		return vm.ResourceKindSuperAnalysis, workflows.SuperAnalysisName, nil
	case "combined_process":
		return vm.ResourceKindDynamicAnalysis, workflows.CombinedProcessName, nil
	default:
		return "", "", fmt.Errorf("%w: %q", errUnknownKind, kind)
	}
}

// Start handles POST /resource/:kind/:id/start (spec.md §4.5, §6).
// slide_extraction uses its own two-phase claim and is routed separately
// by StartSlideExtraction.
func (h *Handler) Start(c *fiber.Ctx) error {
	videoID := c.Params("id")
	if err := validateVideoID(videoID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	kind, workflowName, err := resourceKind(c.Params("kind"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	var body startBody
	_ = c.BodyParser(&body)
	if err := body.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	args, err := startArgs(kind, workflowName, videoID, body.AdditionalInstructions)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	outcome, err := h.Coordinator.Dispatch(c.Context(), videoID, kind, workflowName, args, body.AdditionalInstructions)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	if outcome.Cached != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"completed": true,
			"version":   outcome.Cached.Version,
			"result":    json.RawMessage(outcome.Cached.ResultJSON),
		})
	}

	c.Set("X-Workflow-Run-Id", outcome.RunID)
	return h.streamRun(c, outcome.RunID, 0, "")
}

// startArgs builds the JSON-encoded workflow args for a resource kind's
// start request.
func startArgs(kind vm.ResourceKind, workflowName, videoID, additionalInstructions string) (json.RawMessage, error) {
	switch workflowName {
	case workflows.DynamicAnalysisName:
		return json.Marshal(workflows.DynamicAnalysisArgs{VideoID: videoID, AdditionalInstructions: additionalInstructions})
	case workflows.SuperAnalysisName:
		return json.Marshal(workflows.SuperAnalysisArgs{VideoID: videoID})
	case workflows.CombinedProcessName:
		return json.Marshal(workflows.CombinedProcessArgs{VideoID: videoID, AdditionalInstructions: additionalInstructions})
	default:
		return nil, fmt.Errorf("no arg builder for workflow %q", workflowName)
	}
}

// StartSlideExtraction handles POST /resource/slide_extraction/:id/start,
// routed separately from Start because it dispatches via the two-phase
// claim (spec.md §4.4) rather than the versioned-run Dispatch algorithm.
func (h *Handler) StartSlideExtraction(c *fiber.Ctx) error {
	videoID := c.Params("id")
	if err := validateVideoID(videoID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	args, err := json.Marshal(workflows.SlideExtractionArgs{VideoID: videoID})
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	outcome, err := h.Coordinator.DispatchSlideExtraction(c.Context(), videoID, workflows.SlideExtractionName, args)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	if outcome.Cached != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"completed": true})
	}

	if !outcome.Started {
		// spec.md §8 Scenario D: a second start while extraction is already
		// in flight is a conflict, not a silent attach.
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Extraction already in progress",
			"runId": outcome.RunID,
		})
	}

	c.Set("X-Workflow-Run-Id", outcome.RunID)
	return h.streamRun(c, outcome.RunID, 0, "")
}

// Resume handles GET /resource/:kind/:id/resume?startIndex=N.
func (h *Handler) Resume(c *fiber.Ctx) error {
	videoID := c.Params("id")
	if err := validateVideoID(videoID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	kindParam := c.Params("kind")
	startIndex := int64(c.QueryInt("startIndex", 0))
	namespace := c.Query("namespace", "")

	if kindParam == "slide_extraction" {
		row, err := h.SlideExtr.Get(c.Context(), videoID)
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, "no streaming run for resource")
		}
		if row.Status == vm.SlideExtractionCompleted {
			return c.Status(fiber.StatusGone).JSON(fiber.Map{"completed": true})
		}
		if row.RunID == "" {
			return fiber.NewError(fiber.StatusNotFound, "no streaming run for resource")
		}
		return h.streamRun(c, row.RunID, startIndex, namespace)
	}

	kind, _, err := resourceKind(kindParam)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	streaming, err := h.Versioned.GetStreaming(c.Context(), videoID, kind)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if streaming == nil || streaming.WorkflowRunID == "" {
		completed, err := h.Versioned.GetLatestCompleted(c.Context(), videoID, kind)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		if completed != nil {
			return c.Status(fiber.StatusGone).JSON(fiber.Map{"completed": true})
		}
		return fiber.NewError(fiber.StatusNotFound, "no streaming run for resource")
	}

	return h.streamRun(c, streaming.WorkflowRunID, startIndex, namespace)
}

// Status handles GET /resource/:kind/:id/status.
func (h *Handler) Status(c *fiber.Ctx) error {
	videoID := c.Params("id")
	if err := validateVideoID(videoID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	kindParam := c.Params("kind")
	if kindParam == "slide_extraction" {
		row, err := h.SlideExtr.Get(c.Context(), videoID)
		if err != nil {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return c.JSON(row)
	}

	kind, _, err := resourceKind(kindParam)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if completed, err := h.Versioned.GetLatestCompleted(c.Context(), videoID, kind); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	} else if completed != nil {
		return c.JSON(completed)
	}
	if streaming, err := h.Versioned.GetStreaming(c.Context(), videoID, kind); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	} else if streaming != nil {
		return c.JSON(streaming)
	}
	return fiber.NewError(fiber.StatusNotFound, "no versioned run for resource")
}

// Versions handles GET /resource/:kind/:id/versions, returning all
// versions descending (spec.md §4.7).
func (h *Handler) Versions(c *fiber.Ctx) error {
	videoID := c.Params("id")
	if err := validateVideoID(videoID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	kind, _, err := resourceKind(c.Params("kind"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	versions, err := h.Versioned.List(c.Context(), videoID, kind)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	out := make([]fiber.Map, 0, len(versions))
	for _, v := range versions {
		out = append(out, fiber.Map{
			"version":                 v.Version,
			"status":                  v.Status,
			"created_at":              v.CreatedAt,
			"additional_instructions": v.AdditionalInstructions,
		})
	}
	return c.JSON(out)
}
