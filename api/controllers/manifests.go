package controllers

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/parcel-intake-backend/api/responses"
	"github.com/angelmondragon/parcel-intake-backend/api/validators"
	"github.com/angelmondragon/parcel-intake-backend/internal/manifests"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
	"github.com/angelmondragon/parcel-intake-backend/pkg/pagination"
)

func manifestNumberParam(r *http.Request) (string, error) {
	number := strings.TrimSpace(chi.URLParam(r, "manifestNumber"))
	if number == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "manifest number is required")
	}
	return number, nil
}

func manifestsUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "manifest service unavailable"))
}

// ListManifests returns manifest summaries newest first.
func ListManifests(svc manifests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			manifestsUnavailable(w, r, logg)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: validators.QueryString(r, "cursor"),
		}

		list, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// ManifestScanStats returns per-manifest completion figures.
func ManifestScanStats(svc manifests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			manifestsUnavailable(w, r, logg)
			return
		}
		stats, err := svc.ScanStats(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if stats == nil {
			stats = []manifests.ManifestScanStats{}
		}
		responses.WriteSuccess(w, stats)
	}
}

func ManifestDetail(svc manifests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			manifestsUnavailable(w, r, logg)
			return
		}
		number, err := manifestNumberParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		detail, err := svc.Get(r.Context(), number)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// ManifestScanActivity returns the flattened scan history of one manifest.
func ManifestScanActivity(svc manifests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			manifestsUnavailable(w, r, logg)
			return
		}
		number, err := manifestNumberParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.ScanActivity(r.Context(), number)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if entries == nil {
			entries = []manifests.ScanActivityEntry{}
		}
		responses.WriteSuccess(w, entries)
	}
}

// ManifestReport renders the CSV scan report. The report is buffered so a
// failure still produces a JSON error envelope.
func ManifestReport(svc manifests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			manifestsUnavailable(w, r, logg)
			return
		}
		number, err := manifestNumberParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var buf bytes.Buffer
		if err := svc.Report(r.Context(), number, &buf); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteAttachment(w, "text/csv; charset=utf-8", number+"-scan-report.csv", buf.Bytes())
	}
}

func DeleteManifest(svc manifests.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			manifestsUnavailable(w, r, logg)
			return
		}
		number, err := manifestNumberParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithManifestNumber(ctx, number)
		}
		if err := svc.Delete(ctx, number); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"manifestNumber": number, "deleted": true})
	}
}
