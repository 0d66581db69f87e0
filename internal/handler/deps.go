// Package handler implements the SSE Gateway and resource/run HTTP surface
// (spec.md §4.5, §6) on top of the Coordinator and Workflow Runtime.
package handler

import (
	"context"
	"log/slog"

	videorepo "meridian/internal/domain/repositories/video"
	workflowrepo "meridian/internal/domain/repositories/workflow"
	"meridian/internal/service/coordinator"
	"meridian/internal/service/video/workflows"
	wfsvc "meridian/internal/service/workflow"
)

// Handler bundles the services the HTTP surface dispatches into.
type Handler struct {
	Coordinator *coordinator.Coordinator
	Runtime     *wfsvc.Runtime
	Tailer      *wfsvc.Tailer
	Runs        workflowrepo.RunStore
	Versioned   videorepo.VersionedRunRepository
	SlideExtr   videorepo.SlideExtractionRepository
	SlideFeed   videorepo.SlideFeedbackRepository
	Deps        *workflows.Deps
	Logger      *slog.Logger

	// HealthCheck, if set, is consulted by GET /health to confirm the
	// database is reachable. Left nil (always healthy) in tests that have
	// no real pool to ping.
	HealthCheck func(ctx context.Context) error
}

func New(
	coord *coordinator.Coordinator,
	runtime *wfsvc.Runtime,
	tailer *wfsvc.Tailer,
	runs workflowrepo.RunStore,
	versioned videorepo.VersionedRunRepository,
	slideExtr videorepo.SlideExtractionRepository,
	slideFeed videorepo.SlideFeedbackRepository,
	deps *workflows.Deps,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		Coordinator: coord,
		Runtime:     runtime,
		Tailer:      tailer,
		Runs:        runs,
		Versioned:   versioned,
		SlideExtr:   slideExtr,
		SlideFeed:   slideFeed,
		Deps:        deps,
		Logger:      logger,
	}
}
