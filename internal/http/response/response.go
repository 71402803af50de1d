package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/bulkflow/internal/domain/aggregates"
	"github.com/yungbote/bulkflow/internal/domain/bulk"
)

type APIError struct {
	Message    string           `json:"message"`
	Code       string           `json:"code,omitempty"`
	Violations []bulk.Violation `json:"violations,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Error: APIError{
			Message:    msg,
			Code:       code,
			Violations: bulk.Violations(err),
		},
	})
}

// RespondDomainError maps a coded error onto its HTTP status.
func RespondDomainError(c *gin.Context, err error) {
	code := domainagg.CodeOf(err)
	RespondError(c, StatusFor(err), string(code), err)
}

func StatusFor(err error) int {
	var aggErr *domainagg.Error
	if !errors.As(err, &aggErr) {
		return http.StatusInternalServerError
	}
	switch aggErr.Code {
	case domainagg.CodeValidation, domainagg.CodeSchemaValidation, domainagg.CodeSchemaMismatch:
		return http.StatusBadRequest
	case domainagg.CodeNotFound, domainagg.CodeAggregateNotFound:
		return http.StatusNotFound
	case domainagg.CodeConflict, domainagg.CodeInvariantViolation:
		return http.StatusConflict
	case domainagg.CodeRepositoryUnavailable, domainagg.CodeRetryable:
		return http.StatusServiceUnavailable
	case domainagg.CodeRequestTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}
