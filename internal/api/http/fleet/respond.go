package fleet

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleetbay/drydock/internal/domain/fleet"
	"github.com/fleetbay/drydock/internal/logger"
)

// errorBody is the JSON shape of every failure response.
type errorBody struct {
	// Error is the machine-readable failure kind.
	Error string `json:"error"`
	// Message is a human-readable detail line.
	Message string `json:"message"`
}

// respondError maps a domain error onto an HTTP status and JSON body and
// aborts the request. Unauthorized responses carry a fixed message so the
// body reveals nothing about which check failed.
func respondError(c *gin.Context, err error) {
	status, code := classifyError(err)

	message := err.Error()

	switch status {
	case http.StatusUnauthorized:
		message = "unauthorized"
	case http.StatusInternalServerError:
		logger.ErrorKV(c.Request.Context(), "request failed", "error", err)

		message = "internal error"
	}

	c.AbortWithStatusJSON(status, errorBody{Error: code, Message: message})
}

// classifyError picks the response status and machine code for an error.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, fleet.ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, fleet.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, fleet.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, fleet.ErrConflict):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
