package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/parcel-intake-backend/api/middleware"
	"github.com/angelmondragon/parcel-intake-backend/api/responses"
	"github.com/angelmondragon/parcel-intake-backend/api/validators"
	"github.com/angelmondragon/parcel-intake-backend/internal/scans"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
)

type scanRequest struct {
	TrackingNumber string     `json:"trackingNumber" validate:"required,max=128"`
	UserID         string     `json:"userId" validate:"max=128"`
	UserName       string     `json:"userName" validate:"max=256"`
	Timestamp      *time.Time `json:"timestamp"`
	ManifestNumber string     `json:"manifestNumber" validate:"max=128"`

	// Sent by scanning stations for operator context; not used for matching.
	CustomManifestName *string `json:"customManifestName" validate:"omitempty,max=256"`
	Product            string  `json:"product" validate:"max=128"`
}

func (r scanRequest) stationFields() map[string]any {
	fields := map[string]any{}
	if r.CustomManifestName != nil {
		if name := validators.SanitizeString(*r.CustomManifestName, 256); name != "" {
			fields["custom_manifest_name"] = name
		}
	}
	if product := validators.SanitizeString(r.Product, 128); product != "" {
		fields["product"] = product
	}
	return fields
}

func (r scanRequest) toInput(headerOperator string) scans.ScanInput {
	operatorID := validators.SanitizeString(r.UserID, 128)
	if operatorID == "" {
		operatorID = headerOperator
	}
	return scans.ScanInput{
		TrackingNumber: strings.TrimSpace(r.TrackingNumber),
		OperatorID:     operatorID,
		OperatorName:   validators.SanitizeString(r.UserName, 256),
		Timestamp:      r.Timestamp,
		ManifestNumber: strings.TrimSpace(r.ManifestNumber),
	}
}

// SubmitScan reconciles one barcode scan. Unknown parcels answer 404, repeat
// scans 409 with the original receiver in details.
func SubmitScan(svc scans.Submitter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scan service unavailable"))
			return
		}

		var req scanRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := req.toInput(middleware.OperatorIDFromContext(r.Context()))
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithTrackingNumber(ctx, input.TrackingNumber)
			if fields := req.stationFields(); len(fields) > 0 {
				logg.Debug(logg.WithFields(ctx, fields), "scan station context")
			}
		}

		result, err := svc.SubmitScan(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
