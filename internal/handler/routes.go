package handler

import "github.com/gofiber/fiber/v2"

// RegisterRoutes wires the SSE Gateway and resource/run HTTP surface
// (spec.md §6) onto a Fiber app.
func (h *Handler) RegisterRoutes(app *fiber.App) {
	app.Get("/health", h.health)

	api := app.Group("/api")

	resource := api.Group("/resource/:kind/:id")
	resource.Post("/start", h.startDispatch)
	resource.Get("/resume", h.Resume)
	resource.Get("/status", h.Status)
	resource.Get("/versions", h.Versions)

	api.Get("/resource/slides/:id", h.ListSlides)
	api.Put("/resource/slide_feedback/:id/:slideNumber", h.PutSlideFeedback)

	api.Get("/run/:runID/stream", h.StreamRun)
	api.Post("/run/:runID/cancel", h.CancelRun)
}

// startDispatch routes /start to the slide_extraction claim path or the
// generic versioned-resource Dispatch path depending on {kind}.
func (h *Handler) startDispatch(c *fiber.Ctx) error {
	if c.Params("kind") == "slide_extraction" {
		return h.StartSlideExtraction(c)
	}
	return h.Start(c)
}
