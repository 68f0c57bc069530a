package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kojjob/property-marketplace-sub000/internal/domain"
)

const (
	codeMethodNotAllowed   = "method_not_allowed"
	codeNotFound           = "not_found"
	codeInvalidRequestBody = "invalid_request_body"
	codeMissingField       = "missing_required_field"
	codeInvalidDate        = "invalid_date"
	codeUnauthorized       = "unauthorized"
	codeRateLimited        = "rate_limited"
	codeInternalError      = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Code: code})
}

func writeFieldError(c *gin.Context, status int, code, field, msg string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: msg, Code: code, Field: field})
}

// writeDomainError maps err onto a status by its Kind. Anything that is not a
// domain error is recorded on the context for the request logger and
// reported as internal_error.
func writeDomainError(c *gin.Context, err error) {
	var de *domain.Error
	if !errors.As(err, &de) {
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, codeInternalError, "internal error")
		return
	}
	status := statusFor(de)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	writeFieldError(c, status, de.Code, de.Field, de.Msg)
}

func statusFor(de *domain.Error) int {
	switch de.Kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindState:
		if de.Code == domain.ErrNotAuthorized.Code {
			return http.StatusForbidden
		}
		return http.StatusConflict
	case domain.KindGateway:
		if de.Code == domain.ErrGatewayUnavailable.Code {
			return http.StatusServiceUnavailable
		}
		return http.StatusPaymentRequired
	case domain.KindNotFound:
		if de.Code == domain.ErrInvalidID.Code {
			return http.StatusBadRequest
		}
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
