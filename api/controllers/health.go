package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/parcel-intake-backend/api/responses"
	"github.com/angelmondragon/parcel-intake-backend/internal/scans"
	"github.com/angelmondragon/parcel-intake-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
)

const (
	envHeader          = "X-Intake-Env"
	readyCheckTimeout  = 2 * time.Second
	healthCountTimeout = 3 * time.Second
)

// Pinger is satisfied by the database and Redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

type activeSessionCounter interface {
	ActiveCount(ctx context.Context) (int, error)
}

type activityReader interface {
	RecentActivity(ctx context.Context, stream string, now time.Time) (int64, error)
}

type pendingTaskCounter interface {
	PendingCount(ctx context.Context) (int, error)
}

// HealthDeps are the optional counters reported by GET /health.
type HealthDeps struct {
	Sessions activeSessionCounter
	Activity activityReader
	Tasks    pendingTaskCounter
}

type healthResponse struct {
	Status                  string    `json:"status"`
	Env                     string    `json:"env"`
	Timestamp               time.Time `json:"timestamp"`
	ActiveSessions          *int      `json:"activeSessions"`
	RecentScans             *int64    `json:"recentScans"`
	PendingPropagationTasks *int      `json:"pendingPropagationTasks"`
}

// Health reports liveness plus operational counters. A failing counter is
// reported as null and marks the service degraded without failing the probe.
func Health(cfg *config.Config, deps HealthDeps, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), healthCountTimeout)
		defer cancel()

		now := time.Now().UTC()
		resp := healthResponse{Status: "ok", Env: cfg.App.Env, Timestamp: now}
		degrade := func(check string, err error) {
			resp.Status = "degraded"
			if logg != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{"check": check, "error": err.Error()}), "health.check_failed")
			}
		}

		if deps.Sessions != nil {
			if count, err := deps.Sessions.ActiveCount(ctx); err != nil {
				degrade("active_sessions", err)
			} else {
				resp.ActiveSessions = &count
			}
		}
		if deps.Activity != nil {
			if count, err := deps.Activity.RecentActivity(ctx, scans.ActivityStream, now); err != nil {
				degrade("recent_scans", err)
			} else {
				resp.RecentScans = &count
			}
		}
		if deps.Tasks != nil {
			if count, err := deps.Tasks.PendingCount(ctx); err != nil {
				degrade("pending_propagation_tasks", err)
			} else {
				resp.PendingPropagationTasks = &count
			}
		}

		responses.WriteSuccess(w, resp)
	}
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every named dependency and fails with 503 on the first
// unreachable one.
func HealthReady(cfg *config.Config, logg *logger.Logger, checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		for name, pinger := range checks {
			if pinger == nil {
				continue
			}
			if err := pinger.Ping(ctx); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable").
					WithDetails(map[string]any{"dependency": name}))
				return
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
