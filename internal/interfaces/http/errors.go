package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-engine/internal/domain/workflow"
)

// statusFor maps the engine's error taxonomy to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, workflow.ErrStateViolation), errors.Is(err, workflow.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrPrerequisiteViolation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Internal errors are logged
// and their detail withheld from the caller.
func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", op, "path", c.Request.URL.Path, "error", err)
		msg = "internal error"
	}
	c.JSON(status, Response{Success: false, Error: msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}
