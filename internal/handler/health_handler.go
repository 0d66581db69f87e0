package handler

import "github.com/gofiber/fiber/v2"

// health reports process liveness and, when HealthCheck is wired, database
// reachability (SUPPLEMENTED FEATURES, SPEC_FULL.md §3).
func (h *Handler) health(c *fiber.Ctx) error {
	if h.HealthCheck != nil {
		if err := h.HealthCheck(c.Context()); err != nil {
			h.Logger.Error("health check failed", "error", err)
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
