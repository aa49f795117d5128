package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fredpottier/factgov/internal/platform/apierr"

	pkgerrors "github.com/fredpottier/factgov/internal/pkg/errors"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondCreated(c *gin.Context, payload any) {
	c.JSON(http.StatusCreated, payload)
}

// RespondDomainError maps the governance error taxonomy onto HTTP status
// codes: validation 400, tenant mismatch 403, not found 404, optimistic-lock
// conflict 409, state machine violation 422, detection outage 503.
func RespondDomainError(c *gin.Context, err error) {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		RespondError(c, apiErr.Status, apiErr.Code, err)
		return
	}

	switch {
	case errors.Is(err, pkgerrors.ErrValidation):
		RespondError(c, http.StatusBadRequest, "validation_error", err)
	case errors.Is(err, pkgerrors.ErrTenantMismatch):
		RespondError(c, http.StatusForbidden, "tenant_mismatch", err)
	case errors.Is(err, pkgerrors.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, pkgerrors.ErrConcurrentModification):
		RespondError(c, http.StatusConflict, "concurrent_modification", err)
	case errors.Is(err, pkgerrors.ErrInvalidTransition):
		RespondError(c, http.StatusUnprocessableEntity, "invalid_transition", err)
	case errors.Is(err, pkgerrors.ErrDetectionUnavailable):
		RespondError(c, http.StatusServiceUnavailable, "detection_unavailable", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
