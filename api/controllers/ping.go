package controllers

import (
	"net/http"

	"github.com/angelmondragon/parcel-intake-backend/api/middleware"
	"github.com/angelmondragon/parcel-intake-backend/api/responses"
)

// Ping lets scanning stations check reachability before flushing queued scans.
func Ping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload := map[string]string{"status": "ok"}
		if operator := middleware.OperatorIDFromContext(r.Context()); operator != "" {
			payload["operatorId"] = operator
		}
		responses.WriteSuccess(w, payload)
	}
}
