package controllers

import (
	"net/http"

	"github.com/angelmondragon/parcel-intake-backend/api/responses"
	"github.com/angelmondragon/parcel-intake-backend/api/validators"
	"github.com/angelmondragon/parcel-intake-backend/internal/sessions"
	"github.com/angelmondragon/parcel-intake-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
)

type sessionRequest struct {
	UserID   string `json:"userId" validate:"required,notblank,max=128"`
	UserName string `json:"userName" validate:"max=256"`
	Action   string `json:"action" validate:"required"`
}

type sessionStopResponse struct {
	Closed []sessions.SessionDTO `json:"closed"`
}

// ScanSession starts or stops an operator's scan session.
func ScanSession(svc sessions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "session service unavailable"))
			return
		}

		var req sessionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		action, err := enums.ParseSessionAction(req.Action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "action must be start or stop"))
			return
		}

		operatorID := validators.SanitizeString(req.UserID, 128)
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOperatorID(ctx, operatorID)
		}

		switch action {
		case enums.SessionActionStart:
			session, err := svc.Start(ctx, operatorID, validators.SanitizeString(req.UserName, 256))
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			responses.WriteSuccessStatus(w, http.StatusCreated, session)
		default:
			closed, err := svc.Stop(ctx, operatorID)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			if closed == nil {
				closed = []sessions.SessionDTO{}
			}
			responses.WriteSuccess(w, sessionStopResponse{Closed: closed})
		}
	}
}
