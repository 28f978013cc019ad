package instance

import (
	"os"

	"github.com/angelmondragon/parcel-intake-backend/pkg/env"
)

const defaultID = "worker-0"

// GetID names this process in logs: INTAKE_INSTANCE_ID, WORKER_ID or the
// platform dyno name, falling back to the hostname.
func GetID() string {
	if id := env.First("", "INTAKE_INSTANCE_ID", "WORKER_ID", "DYNO"); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return defaultID
}
