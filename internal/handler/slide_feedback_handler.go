package handler

import (
	"errors"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gofiber/fiber/v2"

	"meridian/internal/domain"
	vm "meridian/internal/domain/models/video"
)

// slideFeedbackBody uses OptionalString-style tri-state semantics for PATCH
// would be overkill here: picks are plain booleans, so a direct struct with
// pointer fields (update only what's present) is enough.
type slideFeedbackBody struct {
	IsFirstFramePicked *bool `json:"is_first_frame_picked"`
	IsLastFramePicked  *bool `json:"is_last_frame_picked"`
}

func (b slideFeedbackBody) Validate() error {
	if b.IsFirstFramePicked == nil && b.IsLastFramePicked == nil {
		return validation.NewError("validation_required", "at least one of is_first_frame_picked or is_last_frame_picked must be present")
	}
	return nil
}

// PutSlideFeedback handles PUT /resource/slide_feedback/:id/:slideNumber, a
// supplemented feature (not in spec.md's core but implied by the Pick
// glossary entry and consumed by per_slide_analysis/super_analysis's
// load_picks steps).
func (h *Handler) PutSlideFeedback(c *fiber.Ctx) error {
	videoID := c.Params("id")
	if err := validateVideoID(videoID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	slideNumber, err := strconv.Atoi(c.Params("slideNumber"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid slide number")
	}

	var body slideFeedbackBody
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if err := body.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	existing, err := h.SlideFeed.Get(c.Context(), videoID, slideNumber)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		existing = &vm.SlideFeedback{ResourceID: videoID, SlideNumber: slideNumber}
	}
	if body.IsFirstFramePicked != nil {
		existing.IsFirstFramePicked = *body.IsFirstFramePicked
	}
	if body.IsLastFramePicked != nil {
		existing.IsLastFramePicked = *body.IsLastFramePicked
	}

	if err := h.SlideFeed.Upsert(c.Context(), existing); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(existing)
}

// ListSlides handles GET /resource/slides/:id, returning every extracted
// slide for a video (supplemented feature: UIs need this to render pick
// checkboxes before any analysis has run).
func (h *Handler) ListSlides(c *fiber.Ctx) error {
	videoID := c.Params("id")
	if err := validateVideoID(videoID); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	slides, err := h.Deps.Slides.List(c.Context(), videoID)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(slides)
}
