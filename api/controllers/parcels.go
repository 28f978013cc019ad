package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/parcel-intake-backend/api/responses"
	"github.com/angelmondragon/parcel-intake-backend/internal/manifests"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
)

type parcelLookupResponse struct {
	Parcel         manifests.ParcelDTO `json:"parcel"`
	ManifestNumber string              `json:"manifestNumber"`
	ParcelIndex    int                 `json:"parcelIndex"`
}

// ParcelLookup resolves a tracking number without side effects.
func ParcelLookup(finder manifests.ParcelFinder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if finder == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "parcel matcher unavailable"))
			return
		}
		trackingNumber := strings.TrimSpace(chi.URLParam(r, "trackingNumber"))
		if trackingNumber == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required"))
			return
		}

		match, err := finder.FindParcel(r.Context(), trackingNumber)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, parcelLookupResponse{
			Parcel:         manifests.NewParcelDTO(match.Parcel),
			ManifestNumber: match.Manifest.ManifestNumber,
			ParcelIndex:    match.Index,
		})
	}
}
