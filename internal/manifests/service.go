package manifests

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
	"github.com/angelmondragon/parcel-intake-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
	"github.com/angelmondragon/parcel-intake-backend/pkg/pagination"
	"github.com/angelmondragon/parcel-intake-backend/pkg/types"
)

const maxUpdateAttempts = 3

var (
	manifestNumberConstraint = db.UniqueConstraint{Name: "ux_manifests_manifest_number", Columns: "manifests.manifest_number"}
	trackingNumberConstraint = db.UniqueConstraint{Name: "ux_parcels_tracking_number", Columns: "parcels.tracking_number"}
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes manifest ingestion and read models.
type Service interface {
	Ingest(ctx context.Context, input IngestInput) (*IngestResult, error)
	List(ctx context.Context, params pagination.Params) (*ManifestList, error)
	Get(ctx context.Context, manifestNumber string) (*ManifestDetail, error)
	ScanActivity(ctx context.Context, manifestNumber string) ([]ScanActivityEntry, error)
	ScanStats(ctx context.Context) ([]ManifestScanStats, error)
	Delete(ctx context.Context, manifestNumber string) error
	Report(ctx context.Context, manifestNumber string, w io.Writer) error
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

// NewService builds the manifest service with the required dependencies.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("manifests repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo: repo,
		tx:   tx,
		logg: logg,
		now:  time.Now,
	}, nil
}

// Ingest upserts a manifest and its rows. Row problems are collected and the
// remaining rows still land; storage failures abort the whole batch.
func (s *service) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	if len(input.Parcels) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one parcel row is required")
	}

	now := s.now().UTC()
	number := strings.TrimSpace(input.ManifestNumber)
	if number == "" {
		number = GenerateManifestNumber(now)
	}

	result := &IngestResult{
		ManifestNumber: number,
		Total:          len(input.Parcels),
		Errors:         []RowError{},
		Warnings:       []string{},
	}

	rows := make([]ingestRow, 0, len(input.Parcels))
	for i, raw := range input.Parcels {
		row, warnings, rowErr := normalizeRow(i+1, raw)
		if rowErr != nil {
			result.Errors = append(result.Errors, *rowErr)
			continue
		}
		result.Warnings = append(result.Warnings, warnings...)
		rows = append(rows, row)
	}

	actor := types.ScanHistoryEntry{
		UserID:    input.UploadedBy,
		UserName:  input.UploadedByName,
		Timestamp: now,
		Action:    enums.ScanActionUpdated,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		manifest, err := s.ensureManifest(ctx, repo, number, input, now)
		if err != nil {
			return err
		}

		trackingNumbers := make([]string, 0, len(rows))
		for _, row := range rows {
			trackingNumbers = append(trackingNumbers, row.TrackingNumber)
		}
		existing, err := repo.FindParcelsByTrackingNumbers(ctx, trackingNumbers)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load existing parcels")
		}
		byTracking := make(map[string]*models.Parcel, len(existing)+len(rows))
		for i := range existing {
			byTracking[existing[i].TrackingNumber] = &existing[i]
		}

		maxPosition, err := repo.MaxPosition(ctx, manifest.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve next parcel position")
		}
		nextPosition := maxPosition + 1
		owners := map[uuid.UUID]string{manifest.ID: manifest.ManifestNumber}

		for _, row := range rows {
			current, ok := byTracking[row.TrackingNumber]
			switch {
			case !ok:
				parcel := &models.Parcel{
					ID:          uuid.New(),
					ManifestID:  manifest.ID,
					Position:    nextPosition,
					ScanHistory: types.ScanHistory{},
					Version:     1,
					CreatedAt:   now,
					UpdatedAt:   now,
				}
				applyRow(parcel, row)
				if err := repo.CreateParcel(ctx, parcel); err != nil {
					if trackingNumberConstraint.Violated(err) {
						return pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("tracking number %s was ingested concurrently; retry the upload", row.TrackingNumber))
					}
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create parcel")
				}
				nextPosition++
				byTracking[row.TrackingNumber] = parcel
				result.Created++

			case current.ManifestID != manifest.ID:
				owner, err := s.ownerNumber(ctx, repo, owners, current.ManifestID)
				if err != nil {
					return err
				}
				result.Errors = append(result.Errors, RowError{
					Row:            row.Row,
					TrackingNumber: row.TrackingNumber,
					Message:        fmt.Sprintf("tracking number already belongs to manifest %s", owner),
				})

			default:
				if err := s.updateParcel(ctx, repo, current, row, actor); err != nil {
					return err
				}
				result.Updated++
			}
		}
		return nil
	})
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "ingest manifest")
	}

	sort.SliceStable(result.Errors, func(i, j int) bool { return result.Errors[i].Row < result.Errors[j].Row })
	result.Message = fmt.Sprintf("manifest %s: %d created, %d updated, %d rejected", number, result.Created, result.Updated, len(result.Errors))

	logCtx := s.logg.WithManifestNumber(ctx, number)
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"created":  result.Created,
		"updated":  result.Updated,
		"rejected": len(result.Errors),
		"warnings": len(result.Warnings),
	})
	s.logg.Info(logCtx, "manifest ingested")

	return result, nil
}

func (s *service) ensureManifest(ctx context.Context, repo Repository, number string, input IngestInput, now time.Time) (*models.Manifest, error) {
	manifest, err := repo.FindManifestByNumber(ctx, number)
	if err == nil {
		return manifest, nil
	}
	if !isNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load manifest")
	}

	date := now
	if input.Date != nil && !input.Date.IsZero() {
		date = input.Date.UTC()
	}
	manifest = &models.Manifest{
		ID:             uuid.New(),
		ManifestNumber: number,
		Date:           date,
		UploadedBy:     input.UploadedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := repo.CreateManifest(ctx, manifest); err != nil {
		if manifestNumberConstraint.Violated(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("manifest %s was created concurrently; retry the upload", number))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create manifest")
	}
	return manifest, nil
}

func (s *service) ownerNumber(ctx context.Context, repo Repository, cache map[uuid.UUID]string, manifestID uuid.UUID) (string, error) {
	if number, ok := cache[manifestID]; ok {
		return number, nil
	}
	owner, err := repo.FindManifestByID(ctx, manifestID)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load owning manifest")
	}
	cache[manifestID] = owner.ManifestNumber
	return owner.ManifestNumber, nil
}

// updateParcel rewrites a parcel in place under its version token, reloading
// when a concurrent scan bumped the version first.
func (s *service) updateParcel(ctx context.Context, repo Repository, parcel *models.Parcel, row ingestRow, actor types.ScanHistoryEntry) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		expected := parcel.Version
		applyRow(parcel, row)
		parcel.ScanHistory = parcel.ScanHistory.Append(actor)

		ok, err := repo.UpdateParcelDetails(ctx, parcel, expected)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update parcel")
		}
		if ok {
			return nil
		}

		fresh, err := repo.FindParcelByID(ctx, parcel.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload parcel")
		}
		*parcel = *fresh
	}
	return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("parcel %s changed during ingestion; retry the upload", row.TrackingNumber))
}

func (s *service) List(ctx context.Context, params pagination.Params) (*ManifestList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	list, err := s.repo.ListManifests(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list manifests")
	}
	return list, nil
}

func (s *service) Get(ctx context.Context, manifestNumber string) (*ManifestDetail, error) {
	manifest, err := s.loadManifest(ctx, manifestNumber)
	if err != nil {
		return nil, err
	}
	parcels, err := s.repo.ListParcels(ctx, manifest.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list parcels")
	}

	detail := &ManifestDetail{
		ManifestSummary: newManifestSummary(*manifest, countParcels(parcels)),
		Parcels:         make([]ParcelDTO, 0, len(parcels)),
	}
	for _, p := range parcels {
		detail.Parcels = append(detail.Parcels, NewParcelDTO(p))
	}
	return detail, nil
}

// ScanActivity lists every history entry of the manifest's parcels, newest first.
func (s *service) ScanActivity(ctx context.Context, manifestNumber string) ([]ScanActivityEntry, error) {
	manifest, err := s.loadManifest(ctx, manifestNumber)
	if err != nil {
		return nil, err
	}
	parcels, err := s.repo.ListParcels(ctx, manifest.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list parcels")
	}

	entries := make([]ScanActivityEntry, 0)
	for _, p := range parcels {
		for _, h := range p.ScanHistory {
			entries = append(entries, ScanActivityEntry{
				TrackingNumber: p.TrackingNumber,
				ConsigneeName:  p.ConsigneeName,
				UserID:         h.UserID,
				UserName:       h.UserName,
				Timestamp:      h.Timestamp,
				Action:         h.Action,
			})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

func (s *service) ScanStats(ctx context.Context) ([]ManifestScanStats, error) {
	stats, err := s.repo.ScanStats(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load scan stats")
	}
	return stats, nil
}

func (s *service) Delete(ctx context.Context, manifestNumber string) error {
	manifest, err := s.loadManifest(ctx, manifestNumber)
	if err != nil {
		return err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).DeleteManifest(ctx, manifest.ID)
	})
	if err != nil {
		if isNotFound(err) {
			return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("manifest %s not found", manifestNumber))
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "delete manifest")
	}
	s.logg.Info(s.logg.WithManifestNumber(ctx, manifestNumber), "manifest deleted")
	return nil
}

func (s *service) Report(ctx context.Context, manifestNumber string, w io.Writer) error {
	detail, err := s.Get(ctx, manifestNumber)
	if err != nil {
		return err
	}
	if err := writeReport(w, detail, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "write report")
	}
	return nil
}

func (s *service) loadManifest(ctx context.Context, manifestNumber string) (*models.Manifest, error) {
	number := strings.TrimSpace(manifestNumber)
	if number == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "manifest number is required")
	}
	manifest, err := s.repo.FindManifestByNumber(ctx, number)
	if err != nil {
		if isNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("manifest %s not found", number))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load manifest")
	}
	return manifest, nil
}

func countParcels(parcels []models.Parcel) ParcelCounts {
	counts := ParcelCounts{Total: len(parcels)}
	for _, p := range parcels {
		if p.Received {
			counts.Received++
		}
	}
	return counts
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(int(float64(part)*10000/float64(total)+0.5)) / 100
}
