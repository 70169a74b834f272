package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/deppfellow/graphile-starter/internal/config"
	"github.com/deppfellow/graphile-starter/internal/middleware"
	"github.com/deppfellow/graphile-starter/internal/server"
)

// Dependency pings keyed by check name.
type pinger func(ctx context.Context) error

type HealthHandler struct {
	Handler
	checks map[string]pinger
}

func NewHealthHandler(s *server.Server) *HealthHandler {
	checks := map[string]pinger{}
	if s.DB != nil {
		checks["database"] = func(ctx context.Context) error { return s.DB.Pool.Ping(ctx) }
	}
	if s.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return s.Redis.Ping(ctx).Err() }
	}
	return &HealthHandler{
		Handler: NewHandler(s),
		checks:  checks,
	}
}

func (h *HealthHandler) observability() *config.ObservabilityConfig {
	if h.server.Config.Observability != nil {
		return h.server.Config.Observability
	}
	return config.DefaultObservabilityConfig()
}

func (h *HealthHandler) recordError(checkType, errorType string, attrs map[string]any) {
	if h.server.LoggerService == nil || h.server.LoggerService.GetApplication() == nil {
		return
	}
	event := map[string]any{
		"check_type": checkType,
		"operation":  "health_check",
		"error_type": errorType,
	}
	for k, v := range attrs {
		event[k] = v
	}
	h.server.LoggerService.GetApplication().RecordCustomEvent("HealthCheckError", event)
}

// CheckHealth pings every configured dependency. Any failure turns the
// answer into a 503.
func (h *HealthHandler) CheckHealth(c echo.Context) error {
	start := time.Now()
	obs := h.observability()

	logger := middleware.GetLogger(c).With().
		Str("operation", "health_check").
		Logger()

	checks := map[string]any{}
	response := map[string]any{
		"status":      "healthy",
		"timestamp":   time.Now().UTC(),
		"environment": h.server.Config.Primary.Env,
		"checks":      checks,
	}
	isHealthy := true

	for _, name := range obs.HealthChecks.Checks {
		ping, ok := h.checks[name]
		if !ok || !obs.HasCheck(name) {
			continue
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), obs.HealthChecks.Timeout)
		checkStart := time.Now()
		err := ping(ctx)
		cancel()
		elapsed := time.Since(checkStart)

		if err != nil {
			isHealthy = false
			checks[name] = map[string]any{
				"status":        "unhealthy",
				"response_time": elapsed.String(),
				"error":         err.Error(),
			}

			logger.Error().
				Err(err).
				Str("check", name).
				Dur("response_time", elapsed).
				Msg("health check failed")

			h.recordError(name, name+"_unhealthy", map[string]any{
				"response_time_ms": elapsed.Milliseconds(),
				"error_message":    err.Error(),
			})
			continue
		}

		checks[name] = map[string]any{
			"status":        "healthy",
			"response_time": elapsed.String(),
		}
		logger.Debug().
			Str("check", name).
			Dur("response_time", elapsed).
			Msg("health check passed")
	}

	if !isHealthy {
		response["status"] = "unhealthy"

		logger.Warn().
			Dur("total_duration", time.Since(start)).
			Msg("health check failed")

		h.recordError("overall", "overall_unhealthy", map[string]any{
			"total_duration_ms": time.Since(start).Milliseconds(),
		})

		return c.JSON(http.StatusServiceUnavailable, response)
	}

	if err := c.JSON(http.StatusOK, response); err != nil {
		logger.Error().Err(err).Msg("failed to write JSON response")
		h.recordError("response", "json_response_error", map[string]any{
			"error_message": err.Error(),
		})
		return fmt.Errorf("failed to write JSON response: %w", err)
	}

	return nil
}
