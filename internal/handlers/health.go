package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"
)

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ConnectionChecker reports a long-lived connection's state.
type ConnectionChecker interface {
	IsConnected() bool
}

// BreakerState reports a channel's circuit breaker.
type BreakerState interface {
	State() gobreaker.State
}

// HealthHandler reports the state of the database, redis, the mail queue and
// the channel breakers. redis, queue and breakers are optional.
type HealthHandler struct {
	db       Pinger
	redis    Pinger
	queue    ConnectionChecker
	breakers map[string]BreakerState
}

func NewHealthHandler(db Pinger, redis Pinger, queue ConnectionChecker, breakers map[string]BreakerState) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, queue: queue, breakers: breakers}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)

	if err := h.db.Ping(ctx); err == nil {
		checks["database"] = "healthy"
	} else {
		checks["database"] = "unhealthy"
	}

	switch {
	case h.redis == nil:
		checks["redis"] = "disabled"
	case h.redis.Ping(ctx) == nil:
		checks["redis"] = "healthy"
	default:
		// the scheduler skips ticks while the run lock is unreachable
		checks["redis"] = "unhealthy"
	}

	switch {
	case h.queue == nil:
		checks["rabbitmq"] = "disabled"
	case h.queue.IsConnected():
		checks["rabbitmq"] = "healthy"
	default:
		checks["rabbitmq"] = "degraded"
	}

	channels := make(map[string]string, len(h.breakers))
	for name, b := range h.breakers {
		state := b.State()
		channels[name] = state.String()
		if state != gobreaker.StateClosed {
			checks["channel_"+name] = "degraded"
		}
	}

	overallStatus := "healthy"
	for _, status := range checks {
		if status == "unhealthy" {
			overallStatus = "unhealthy"
			break
		} else if status == "degraded" {
			overallStatus = "degraded"
		}
	}

	statusCode := http.StatusOK
	if overallStatus == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
		"channels":  channels,
	})
}
