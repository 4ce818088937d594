package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/papertrap/papertrap/internal/api/dto"
	"github.com/papertrap/papertrap/internal/api/recent"
)

const defaultListLimit = 20

// ListJobs handles GET /api/v1/jobs
// Returns recently observed jobs, newest first
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	status := strings.ToUpper(req.Status)

	entries := h.recent.Snapshot()
	jobs := make([]dto.JobDTO, 0, req.Limit)
	for _, e := range entries {
		if status != "" && e.Status != status {
			continue
		}
		jobs = append(jobs, toJobDTO(e))
		if len(jobs) == req.Limit {
			break
		}
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs:  jobs,
		Count: len(jobs),
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
// Returns a single job's outcome
func (h *JobHandler) GetJob(c *gin.Context) {
	raw := c.Param("job_id")

	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		h.logger.Error("Invalid job_id format",
			slog.String("job_id", raw),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a positive integer",
		})
		return
	}

	entry, ok := h.recent.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "job not found",
		})
		return
	}

	c.JSON(http.StatusOK, toJobDTO(entry))
}

// GetStatus handles GET /api/v1/status
// Reports service uptime and how many jobs are retained in memory
func (h *JobHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, dto.StatusResponse{
		Service:       "papertrap",
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		JobsSeen:      len(h.recent.Snapshot()),
	})
}

func toJobDTO(e recent.Entry) dto.JobDTO {
	d := dto.JobDTO{
		JobID:        e.JobID,
		DocumentName: e.DocumentName,
		UserName:     e.UserName,
		MachineName:  e.MachineName,
		Origin:       e.Origin,
		OutputFormat: e.OutputFormat,
		OutputFiles:  e.OutputFiles,
		PageCount:    e.PageCount,
		DataSize:     e.DataSize,
		Status:       e.Status,
		Failure:      e.Failure,
		CapturedAt:   e.CapturedAt.Format(time.RFC3339),
	}
	if !e.CompletedAt.IsZero() {
		d.CompletedAt = e.CompletedAt.Format(time.RFC3339)
	}
	return d
}
