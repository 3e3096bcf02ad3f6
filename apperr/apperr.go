package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Error is an error with an HTTP status attached.
type Error struct {
	Status  int
	Message string
	Details interface{}
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation reports malformed or missing input.
func Validation(msg string, details interface{}) *Error {
	return &Error{Status: http.StatusBadRequest, Message: msg, Details: details}
}

func Unauthenticated(msg string) *Error {
	return &Error{Status: http.StatusUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Status: http.StatusForbidden, Message: msg}
}

// NotFound reports a missing resource, e.g. NotFound("transaction").
func NotFound(resource string) *Error {
	return &Error{Status: http.StatusNotFound, Message: resource + " not found"}
}

func Conflict(msg string) *Error {
	return &Error{Status: http.StatusConflict, Message: msg}
}

// ExternalAPI wraps a failure of an upstream service.
func ExternalAPI(service string, err error) *Error {
	return &Error{Status: http.StatusBadGateway, Message: service + " request failed", Err: err}
}

// Unavailable reports a feature whose backing service is not configured.
func Unavailable(msg string) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Message: msg}
}

// StatusOf maps err to the HTTP status the API answers with.
func StatusOf(err error) int {
	var ae *Error
	var fe *fiber.Error
	switch {
	case errors.As(err, &ae):
		return ae.Status
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Handler is the fiber ErrorHandler. Internal error text is only exposed outside production.
func Handler(log zerolog.Logger, production bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := StatusOf(err)
		body := fiber.Map{"status": status}

		var ae *Error
		var fe *fiber.Error
		switch {
		case errors.As(err, &ae):
			body["message"] = ae.Message
			if ae.Details != nil {
				body["errors"] = ae.Details
			}
		case errors.As(err, &fe):
			body["message"] = fe.Message
		case status == http.StatusNotFound:
			body["message"] = "resource not found"
		case status == http.StatusConflict:
			body["message"] = "resource already exists"
		default:
			body["message"] = "internal server error"
		}
		if !production && status >= http.StatusInternalServerError {
			body["errors"] = err.Error()
		}

		ev := log.Warn()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Err(err).Int("status", status).Str("path", c.Path()).Msg("request failed")

		return c.Status(status).JSON(body)
	}
}
