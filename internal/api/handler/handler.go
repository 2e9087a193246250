// Package handler provides HTTP handlers for the trigger, health and
// metadata endpoints. Handlers call the notification drivers directly; there
// is no service layer.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/albapepper/hifz-notify/internal/api/respond"
	"github.com/albapepper/hifz-notify/internal/jobs"
)

// EventHandler processes one database-change payload.
type EventHandler interface {
	Handle(ctx context.Context, p jobs.EventPayload) (jobs.EventResult, error)
}

// HomeworkRunner runs the homework reminder driver once.
type HomeworkRunner interface {
	Run(ctx context.Context) (jobs.HomeworkReminderResult, error)
}

// SummaryRunner runs the teacher summary driver once.
type SummaryRunner interface {
	Run(ctx context.Context) (jobs.TeacherSummaryResult, error)
}

// Pinger reports backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Deps are the handler's collaborators. Redis is optional.
type Deps struct {
	Events    EventHandler
	Homework  HomeworkRunner
	Summaries SummaryRunner
	DB        Pinger
	Redis     Pinger
	Logger    *slog.Logger
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	events    EventHandler
	homework  HomeworkRunner
	summaries SummaryRunner
	db        Pinger
	redis     Pinger
	logger    *slog.Logger
}

// New creates a Handler.
func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{
		events:    d.Events,
		homework:  d.Homework,
		summaries: d.Summaries,
		db:        d.DB,
		redis:     d.Redis,
		logger:    d.Logger,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, map[string]any{
		"name":    "Hifz Notification Service",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies Postgres connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	h.backendHealth(w, r, "database", h.db)
}

// HealthCheckRedis verifies Redis connectivity when Redis is configured.
// @Summary Redis health check
// @Description Verifies Redis connectivity. Reports "disabled" when REDIS_URL is unset.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/redis [get]
func (h *Handler) HealthCheckRedis(w http.ResponseWriter, r *http.Request) {
	if h.redis == nil {
		respond.WriteJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"redis":     "disabled",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	h.backendHealth(w, r, "redis", h.redis)
}

func (h *Handler) backendHealth(w http.ResponseWriter, r *http.Request, name string, p Pinger) {
	if p == nil || p.Ping(r.Context()) != nil {
		respond.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "unhealthy",
			name:        "disconnected",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		name:        "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
