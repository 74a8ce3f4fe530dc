package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "genieops-engine/internal/common/errors"
)

type Envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Envelope{Success: true, Data: data, RequestID: c.GetString(requestIDKey)})
}

// respondError writes the error envelope with the status mapped from err's code.
func respondError(c *gin.Context, err error) {
	code := apperrors.CodeOf(err)
	message := "unexpected error"
	if stdErr, ok := apperrors.AsStandard(err); ok {
		message = stdErr.Message
		if stdErr.Details != "" && code != apperrors.ErrCodeInternal && code != apperrors.ErrCodeDatabase {
			message += ": " + stdErr.Details
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(StatusFor(code), Envelope{
		Success:   false,
		Error:     &ErrorBody{Code: string(code), Message: message},
		RequestID: c.GetString(requestIDKey),
	})
}

// StatusFor maps an error code to its HTTP status.
func StatusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeValidationFailed:
		return http.StatusBadRequest
	case apperrors.ErrCodeContractViolation:
		return http.StatusUnprocessableEntity
	case apperrors.ErrCodeTransport, apperrors.ErrCodeParse:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
