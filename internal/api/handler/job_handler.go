package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/chat-relay/internal/api/dto"
	"github.com/cuongbtq/chat-relay/internal/domain"
	"github.com/cuongbtq/chat-relay/internal/storage"
)

// CreateJob handles POST /api/v1/jobs
// Enqueues an outbound send job; processing happens asynchronously.
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		respondFail(c, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	job, err := h.queue.Enqueue(c.Request.Context(), req.ToSpec())
	if err != nil {
		respondError(c, h.logger, "Failed to enqueue job", err)
		return
	}

	h.logger.Info("Job enqueued",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.String("priority", string(job.Priority)),
		slog.String("caller", c.GetString(CallerKey)),
	)

	respondOK(c, http.StatusCreated, dto.CreateJobResponse{
		JobID:       job.ID,
		Status:      string(job.Status),
		Priority:    string(job.Priority),
		ScheduledAt: job.ScheduledAt,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	job, err := h.queue.GetJob(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, "Failed to get job", err)
		return
	}

	respondOK(c, http.StatusOK, job)
}

// ListJobs handles GET /api/v1/jobs
// Lists persisted jobs with optional filtering and page/limit pagination.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		respondFail(c, http.StatusBadRequest, "Invalid query parameters", err.Error())
		return
	}

	if req.Status != "" {
		if _, err := domain.ParseJobStatus(req.Status); err != nil {
			respondFail(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}
	if req.Type != "" {
		if _, err := domain.ParseJobType(req.Type); err != nil {
			respondFail(c, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	filter := storage.JobFilter{
		Status:    req.Status,
		JobType:   req.Type,
		Recipient: req.Recipient,
	}

	page, err := h.jobs.ListJobs(c.Request.Context(), filter, req.Page, req.Limit)
	if err != nil {
		respondError(c, h.logger, "Failed to list jobs", err)
		return
	}

	respondOK(c, http.StatusOK, dto.ListJobsResponse{
		Items:      page.Items,
		Pagination: page.Pagination,
	})
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
// Only pending jobs can be cancelled; anything else reports succeeded=false.
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	cancelled, err := h.queue.Cancel(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, "Failed to cancel job", err)
		return
	}

	h.logger.Info("CancelJob handled",
		slog.String("job_id", jobID),
		slog.Bool("cancelled", cancelled),
		slog.String("caller", c.GetString(CallerKey)),
	)

	resp := dto.JobActionResponse{JobID: jobID, Succeeded: cancelled}
	if cancelled {
		resp.Status = string(domain.JobStatusCancelled)
	}
	respondOK(c, http.StatusOK, resp)
}

// RetryJob handles POST /api/v1/jobs/:job_id/retry
// Re-queues a failed job; other statuses are a conflict.
func (h *JobHandler) RetryJob(c *gin.Context) {
	jobID, ok := jobIDParam(c)
	if !ok {
		return
	}

	retried, err := h.queue.Retry(c.Request.Context(), jobID)
	if err != nil {
		respondError(c, h.logger, "Failed to retry job", err)
		return
	}

	h.logger.Info("RetryJob handled",
		slog.String("job_id", jobID),
		slog.Bool("retried", retried),
		slog.String("caller", c.GetString(CallerKey)),
	)

	resp := dto.JobActionResponse{JobID: jobID, Succeeded: retried}
	if retried {
		resp.Status = string(domain.JobStatusPending)
	}
	respondOK(c, http.StatusOK, resp)
}

func jobIDParam(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		respondFail(c, http.StatusBadRequest, "job_id must be a valid UUID", nil)
		return "", false
	}
	return jobID, true
}
