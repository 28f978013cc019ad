package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/parcel-intake-backend/api/middleware"
	"github.com/angelmondragon/parcel-intake-backend/api/responses"
	"github.com/angelmondragon/parcel-intake-backend/api/validators"
	"github.com/angelmondragon/parcel-intake-backend/internal/manifests"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
)

type ingestRequest struct {
	ManifestNumber string                  `json:"manifestNumber" validate:"max=128"`
	Date           *time.Time              `json:"date"`
	UploadedBy     string                  `json:"uploadedBy" validate:"max=128"`
	UploadedByName string                  `json:"uploadedByName" validate:"max=256"`
	Parcels        []manifests.ParcelInput `json:"parcels" validate:"required,min=1"`
}

func (r ingestRequest) toInput(headerOperator string) manifests.IngestInput {
	uploadedBy := validators.SanitizeString(r.UploadedBy, 128)
	if uploadedBy == "" {
		uploadedBy = headerOperator
	}
	return manifests.IngestInput{
		ManifestNumber: strings.TrimSpace(r.ManifestNumber),
		Date:           r.Date,
		UploadedBy:     uploadedBy,
		UploadedByName: validators.SanitizeString(r.UploadedByName, 256),
		Parcels:        r.Parcels,
	}
}

// IngestManifest upserts a manifest from already-mapped spreadsheet rows.
// Row failures are reported in the body; the batch itself still succeeds.
func IngestManifest(svc manifests.Service, maxBodyBytes int64, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "manifest service unavailable"))
			return
		}
		if maxBodyBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}

		var req ingestRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := req.toInput(middleware.OperatorIDFromContext(r.Context()))
		ctx := r.Context()
		if logg != nil && input.ManifestNumber != "" {
			ctx = logg.WithManifestNumber(ctx, input.ManifestNumber)
		}

		result, err := svc.Ingest(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
