package mockapi

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"github.com/pubflow/pubflow-go/internal/telemetry"
)

// SetupMiddleware configures all middleware for the application
func SetupMiddleware(app *fiber.App, cfg *Config, provider *telemetry.Provider) {
	// Request ID middleware; keeps the id the client sent
	app.Use(requestid.New(requestid.Config{Header: fiber.HeaderXRequestID}))

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Scheduled-Task-Secret",
		AllowCredentials: false,
	}))

	// Tracing, metrics and request logging
	app.Use(telemetryMiddleware(provider))

	if cfg.RateLimit > 0 {
		app.Use(limiter.New(limiter.Config{
			Max:        cfg.RateLimit,
			Expiration: time.Minute,
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(Failure("Rate limit exceeded"))
			},
		}))
	}

	if cfg.TaskSecret != "" {
		app.Use(ValidateTaskSecret(cfg.TaskSecret))
	}

	app.Use(timingMiddleware())
}

// timingMiddleware adds request timing headers
func timingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		c.Set("X-Response-Time", fmt.Sprintf("%d ms", time.Since(start).Milliseconds()))
		return err
	}
}

// ValidateTaskSecret rejects requests whose X-Scheduled-Task-Secret header
// is present but does not match secret.
func ValidateTaskSecret(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		got := c.Get("X-Scheduled-Task-Secret")
		if got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return c.Status(fiber.StatusForbidden).JSON(Failure("Invalid scheduled task secret"))
		}
		return c.Next()
	}
}

// telemetryMiddleware traces, measures and logs every request.
func telemetryMiddleware(p *telemetry.Provider) fiber.Handler {
	tracer := p.Tracer()
	served, err := p.MeterProvider.Meter(telemetry.InstrumentationName).Int64Counter(
		"pubflow.server.requests",
		metric.WithDescription("Requests served by the mock backend"),
	)
	if err != nil {
		p.Logger.WithError(err).Warn("Request counter unavailable")
		served = noop.Int64Counter{}
	}

	return func(c *fiber.Ctx) error {
		start := time.Now()

		ctx, span := telemetry.StartSpan(c.UserContext(), tracer, fmt.Sprintf("%s %s", c.Method(), c.Path()),
			semconv.HTTPMethodKey.String(c.Method()),
			semconv.HTTPTargetKey.String(c.OriginalURL()),
		)
		defer span.End()
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		duration := time.Since(start)

		p.Metrics.RecordHTTPRequest(c.Method(), c.Route().Path, status, duration)
		served.Add(ctx, 1, metric.WithAttributes(
			attribute.String("method", c.Method()),
			attribute.Int("status", status),
		))
		span.SetAttributes(semconv.HTTPStatusCodeKey.Int(status))

		entry := telemetry.WithContext(ctx, p.Logger).WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     status,
			"duration":   duration.Milliseconds(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
			"request_id": c.Get("X-Request-ID"),
		})

		switch {
		case err != nil:
			telemetry.RecordError(ctx, err)
			entry.WithError(err).Error("Request failed")
		case status >= 400:
			telemetry.SetErrorStatus(ctx, fmt.Sprintf("HTTP %d", status))
			entry.Warn("Request completed with error status")
		default:
			telemetry.SetOKStatus(ctx)
			entry.Info("Request completed")
		}
		return err
	}
}
