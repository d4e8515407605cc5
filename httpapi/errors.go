package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-integrations/core"
	"github.com/goliatone/go-integrations/identity"
)

var errUnauthenticated = &identity.UnauthenticatedError{}

type errorBody struct {
	Success    bool                      `json:"success"`
	Error      string                    `json:"error"`
	Code       string                    `json:"code,omitempty"`
	Validation goerrors.ValidationErrors `json:"validation,omitempty"`
}

func (s *Server) writeError(c *gin.Context, err error) {
	rich := toServiceError(err)
	status := statusFor(rich)
	if status >= http.StatusInternalServerError {
		s.logger.Error("integration request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"error", err.Error(),
		)
	}
	c.JSON(status, errorBody{
		Success:    false,
		Error:      rich.Message,
		Code:       rich.TextCode,
		Validation: rich.AllValidationErrors(),
	})
}

func toServiceError(err error) *goerrors.Error {
	var unauthenticated *identity.UnauthenticatedError
	if errors.As(err, &unauthenticated) {
		return unauthenticated.ToServiceError()
	}
	if rich := core.MapError(err); rich != nil {
		return rich
	}
	return goerrors.New("internal error", goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ServiceErrorInternal)
}

func statusFor(err *goerrors.Error) int {
	if err.Code >= http.StatusBadRequest && err.Code < 600 {
		return err.Code
	}
	switch err.Category {
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput)
}
