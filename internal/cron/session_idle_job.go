package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
)

const defaultSessionIdleTimeout = 12 * time.Hour

type SessionIdleJobParams struct {
	Logger      *logger.Logger
	Sessions    idleSessionCloser
	IdleTimeout time.Duration
}

type idleSessionCloser interface {
	CloseIdle(ctx context.Context, idleFor time.Duration) (int, error)
}

// NewSessionIdleJob closes scan sessions whose operator stopped scanning
// without ending the session.
func NewSessionIdleJob(params SessionIdleJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sessions == nil {
		return nil, fmt.Errorf("sessions service required")
	}
	idle := params.IdleTimeout
	if idle <= 0 {
		idle = defaultSessionIdleTimeout
	}
	return &sessionIdleJob{
		logg:     params.Logger,
		sessions: params.Sessions,
		idle:     idle,
	}, nil
}

type sessionIdleJob struct {
	logg     *logger.Logger
	sessions idleSessionCloser
	idle     time.Duration
}

func (j *sessionIdleJob) Name() string { return "session-idle-close" }

func (j *sessionIdleJob) Run(ctx context.Context) error {
	closed, err := j.sessions.CloseIdle(ctx, j.idle)
	if err != nil {
		return fmt.Errorf("close idle sessions: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"idle_timeout":    j.idle.String(),
		"sessions_closed": closed,
	})
	j.logg.Info(logCtx, "idle session close complete")
	return nil
}
