package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"money-tracker-go-be/apperr"
	"money-tracker-go-be/logger"
)

const userIDKey = "userID"

// RequestLogger puts a request scoped logger in the user context and logs
// one line per request.
func RequestLogger(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		reqID := c.Get(fiber.HeaderXRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Set(fiber.HeaderXRequestID, reqID)

		l := log.With().Str("request_id", reqID).Logger()
		c.SetUserContext(logger.WithContext(c.UserContext(), l))

		err := c.Next()
		status := c.Response().StatusCode()
		if err != nil {
			status = apperr.StatusOf(err)
		}

		ev := l.Info()
		if status >= fiber.StatusInternalServerError {
			ev = l.Error()
		}
		ev.Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("ip", c.IP()).
			Msg("request")
		return err
	}
}

// RequireUser reads the caller from the X-User-ID header.
// TODO: replace with JWT verification once the auth service issues tokens.
func RequireUser() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := uuid.Parse(c.Get("X-User-ID"))
		if err != nil || id == uuid.Nil {
			return apperr.Unauthenticated("User ID required in X-User-ID header")
		}
		c.Locals(userIDKey, id)
		l := logger.FromContext(c.UserContext()).With().Str("user_id", id.String()).Logger()
		c.SetUserContext(logger.WithContext(c.UserContext(), l))
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) uuid.UUID {
	id, _ := c.Locals(userIDKey).(uuid.UUID)
	return id
}
