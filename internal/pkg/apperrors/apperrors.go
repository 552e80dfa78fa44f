package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	domainerrors "posyandu-logistics/internal/errors"
)

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Business-rule conflicts surface as 400; only lost optimistic races are 409.
var codeToStatus = map[string]int{
	domainerrors.ErrNotFound:            http.StatusNotFound,
	domainerrors.ErrInvalidTransition:   http.StatusBadRequest,
	domainerrors.ErrUnauthorized:        http.StatusUnauthorized,
	domainerrors.ErrForbidden:           http.StatusForbidden,
	domainerrors.ErrConflict:            http.StatusBadRequest,
	domainerrors.ErrConcurrencyConflict: http.StatusConflict,
	domainerrors.ErrValidation:          http.StatusBadRequest,
	domainerrors.ErrUpstreamUnavailable: http.StatusBadGateway,
	domainerrors.ErrInternal:            http.StatusInternalServerError,
}

// StatusFor returns the HTTP status a domain error code maps to.
func StatusFor(code string) int {
	status, ok := codeToStatus[code]
	if !ok {
		return http.StatusInternalServerError
	}
	return status
}

func ToHTTPError(c *gin.Context, err error) {
	var domainErr *domainerrors.DomainError
	if errors.As(err, &domainErr) {
		if domainErr.Code == domainerrors.ErrInternal {
			_ = c.Error(err)
		}
		c.JSON(StatusFor(domainErr.Code), ErrorResponse{
			Error: ErrorBody{
				Code:    domainErr.Code,
				Message: domainErr.Message,
			},
		})
		return
	}

	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error: ErrorBody{
			Code:    domainerrors.ErrInternal,
			Message: "an unexpected error occurred",
		},
	})
}

// BindJSON decodes the request body into req and writes a VALIDATION
// response on failure. It reports whether the handler should continue.
func BindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorBody{
				Code:    domainerrors.ErrValidation,
				Message: describeBindError(err),
			},
		})
		return false
	}
	return true
}

func describeBindError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", fe.Field()))
		case "gt":
			msgs = append(msgs, fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param()))
		case "gte", "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param()))
		case "uuid":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid UUID", fe.Field()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
