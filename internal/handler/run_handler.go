package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	wfmodels "meridian/internal/domain/models/workflow"
)

// StreamRun handles GET /run/:runID/stream?startIndex=N&namespace=K, the
// low-level handle spec.md §4.5 describes directly alongside the
// resource-level start/resume endpoints.
func (h *Handler) StreamRun(c *fiber.Ctx) error {
	runID := c.Params("runID")
	startIndex := int64(c.QueryInt("startIndex", 0))
	namespace := c.Query("namespace", "")
	return h.streamRun(c, runID, startIndex, namespace)
}

// CancelRun handles POST /run/:runID/cancel (spec.md §4.5, §5: sets a
// cooperative cancel flag the runtime checks between steps).
func (h *Handler) CancelRun(c *fiber.Ctx) error {
	runID := c.Params("runID")
	h.Runtime.Cancel(runID)
	return c.JSON(fiber.Map{"cancelled": true})
}

// streamRun tails runID from startIndex, framing each client-visible event
// as an SSE `data: {...}\n\n` line, grounded on the teacher's
// SetBodyStreamWriter pattern (internal/handler/sse_handler.go).
func (h *Handler) streamRun(c *fiber.Ctx, runID string, startIndex int64, namespace string) error {
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no")
	c.Set("X-Workflow-Run-Id", runID)

	logger := h.Logger
	ctx := context.Background()

	c.Status(fiber.StatusOK).Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		if err := w.Flush(); err != nil {
			logger.Error("sse initial flush failed", "run_id", runID, "error", err)
			return
		}

		events := h.Tailer.Tail(ctx, runID, startIndex, namespace)

		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := writeEvent(w, ev); err != nil {
					logger.Info("sse client disconnected", "run_id", runID, "error", err)
					return
				}
				if ev.Kind == wfmodels.EventRunTerminal {
					return
				}
			case <-ticker.C:
				if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}

// writeEvent frames one engine event as the client-visible SSE payload,
// translating run_terminal into the complete/error wire type per spec.md
// §4.5 "Completion signaling".
func writeEvent(w *bufio.Writer, ev wfmodels.Event) error {
	var frame json.RawMessage

	switch ev.Kind {
	case wfmodels.EventEmit:
		var p wfmodels.EmitPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return nil
		}
		frame = p.Data
	case wfmodels.EventRunTerminal:
		var p wfmodels.RunTerminalPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return nil
		}
		if p.State == wfmodels.RunStateCompleted {
			frame, _ = json.Marshal(map[string]interface{}{"type": "complete"})
		} else {
			frame, _ = json.Marshal(map[string]interface{}{"type": "error", "message": p.Message})
		}
	default:
		return nil
	}

	if _, err := fmt.Fprintf(w, "data: %s\n\n", frame); err != nil {
		return err
	}
	return w.Flush()
}
