package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/parcel-intake-backend/api/responses"
	"github.com/angelmondragon/parcel-intake-backend/api/validators"
	"github.com/angelmondragon/parcel-intake-backend/internal/propagation"
	"github.com/angelmondragon/parcel-intake-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
)

func taskIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "taskId")))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid task id")
	}
	return id, nil
}

func schedulerUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "propagation scheduler unavailable"))
}

// ListPropagationTasks filters deferred stage tasks by tracking number and status.
func ListPropagationTasks(svc propagation.Scheduler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			schedulerUnavailable(w, r, logg)
			return
		}

		filter := propagation.TaskFilter{
			TrackingNumber: validators.QueryString(r, "trackingNumber"),
		}
		if raw := validators.QueryString(r, "status"); raw != "" {
			status, err := enums.ParsePropagationTaskStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status").
					WithDetails(map[string]any{"field": "status"}))
				return
			}
			filter.Status = status
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter.Limit = limit

		tasks, err := svc.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if tasks == nil {
			tasks = []propagation.TaskDTO{}
		}
		responses.WriteSuccess(w, tasks)
	}
}

func PropagationTaskDetail(svc propagation.Scheduler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			schedulerUnavailable(w, r, logg)
			return
		}
		id, err := taskIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		task, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, task)
	}
}

// CancelPropagationTask stops a pending stage before it runs. Canceling a
// stage-two task also prevents its stage-three follow-up.
func CancelPropagationTask(svc propagation.Scheduler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			schedulerUnavailable(w, r, logg)
			return
		}
		id, err := taskIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		task, err := svc.Cancel(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, task)
	}
}
