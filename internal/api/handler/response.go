package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/chat-relay/internal/domain"
	"github.com/cuongbtq/chat-relay/shared/errs"
)

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func respondOK(c *gin.Context, status int, data any) {
	c.JSON(status, successResponse{Success: true, Data: data})
}

func respondFail(c *gin.Context, status int, message string, details any) {
	c.AbortWithStatusJSON(status, errorResponse{Success: false, Error: message, Details: details})
}

// statusFor maps domain error kinds onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errs.Is(err, domain.ErrInvalidJobSpec):
		return http.StatusBadRequest
	case errs.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errs.Is(err, domain.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError classifies err. Internal errors are logged and their text is
// not returned to the caller.
func respondError(c *gin.Context, logger *slog.Logger, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error(msg,
			slog.String("path", c.Request.URL.Path),
			slog.String("caller", c.GetString(CallerKey)),
			slog.Any("error", err),
		)
		respondFail(c, status, msg, nil)
		return
	}

	var details any
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		details = gin.H{"field": verr.Field, "reason": verr.Reason}
	}
	respondFail(c, status, err.Error(), details)
}
