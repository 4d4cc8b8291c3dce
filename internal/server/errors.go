package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	auditdomain "github.com/smallbiznis/clinova/internal/audit/domain"
	clinicdomain "github.com/smallbiznis/clinova/internal/clinic/domain"
	holddomain "github.com/smallbiznis/clinova/internal/hold/domain"
	payoutdomain "github.com/smallbiznis/clinova/internal/payout/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, holddomain.ErrInvalidHoldWindow) ||
		errors.Is(err, holddomain.ErrHoldTooSoon) ||
		errors.Is(err, holddomain.ErrHoldTooFarAhead) ||
		errors.Is(err, payoutdomain.ErrInvalidPayoutRequest) ||
		errors.Is(err, payoutdomain.ErrInvalidPageToken) ||
		errors.Is(err, auditdomain.ErrInvalidPageToken) ||
		errors.Is(err, auditdomain.ErrInvalidTimeRange)
}

func isConflictError(err error) bool {
	return errors.Is(err, holddomain.ErrHoldConflict) ||
		errors.Is(err, holddomain.ErrResourceConflict)
}

func isNotFoundError(err error) bool {
	return errors.Is(err, holddomain.ErrHoldNotFound) ||
		errors.Is(err, clinicdomain.ErrClinicNotFound) ||
		errors.Is(err, clinicdomain.ErrServiceTypeNotFound) ||
		errors.Is(err, payoutdomain.ErrPayoutNotFound)
}

// classifyErrorForLog keeps request logs grouped by error family.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "internal_error", payload.Type
	case status == http.StatusTooManyRequests:
		return "rate_limited", payload.Type
	case status >= http.StatusBadRequest:
		return payload.Type, payload.Type
	default:
		return "", ""
	}
}
