package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/ingestkeeper/internal/common"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps service sentinels to HTTP statuses and stable codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, common.ErrorValidation):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, common.ErrInvalidStateTransition):
		return http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, common.ErrTransientConflict):
		return http.StatusServiceUnavailable, "conflict_retry"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(c *gin.Context, err error) {
	status, code := statusFor(err)
	_ = c.Error(err)

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, APIError{Code: code, Message: msg})
}
