package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit emits one structured log line per request. Successful requests to
// quietPaths (health checks, scrapes) are logged at debug level.
func Audit(logger *slog.Logger, quietPaths ...string) fiber.Handler {
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = struct{}{}
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.Int("bytes", len(c.Response().Body())),
		}
		if route := c.Route().Path; route != "" && route != c.Path() {
			attrs = append(attrs, slog.String("route", route))
		}
		if requestID, _ := c.Locals(requestIDHeader).(string); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if userID, _ := c.Locals(localUserID).(string); userID != "" {
			attrs = append(attrs, slog.String("user_id", userID))
		}
		if IsInternal(c) {
			attrs = append(attrs, slog.Bool("internal", true))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("request completed", attrs...)
		case status >= fiber.StatusBadRequest:
			logger.Warn("request completed", attrs...)
		default:
			if _, ok := quiet[c.Path()]; ok {
				logger.Debug("request completed", attrs...)
			} else {
				logger.Info("request completed", attrs...)
			}
		}
		return err
	}
}
