package handler

import (
	"log/slog"
	"time"

	"github.com/papertrap/papertrap/internal/api/recent"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Recent    *recent.Log
	Version   string
	StartedAt time.Time
}

// JobHandler serves the read-only job status endpoints
type JobHandler struct {
	logger    *slog.Logger
	recent    *recent.Log
	version   string
	startedAt time.Time
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		recent:    deps.Recent,
		version:   deps.Version,
		startedAt: deps.StartedAt,
	}
}
