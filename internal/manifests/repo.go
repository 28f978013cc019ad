package manifests

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
	"github.com/angelmondragon/parcel-intake-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a manifests repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateManifest(ctx context.Context, manifest *models.Manifest) error {
	if manifest.ID == uuid.Nil {
		manifest.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit("Parcels").Create(manifest).Error
}

func (r *repository) FindManifestByNumber(ctx context.Context, manifestNumber string) (*models.Manifest, error) {
	var manifest models.Manifest
	err := r.db.WithContext(ctx).
		Where("manifest_number = ?", manifestNumber).
		Take(&manifest).Error
	if err != nil {
		return nil, err
	}
	return &manifest, nil
}

func (r *repository) FindManifestByID(ctx context.Context, id uuid.UUID) (*models.Manifest, error) {
	var manifest models.Manifest
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&manifest).Error
	if err != nil {
		return nil, err
	}
	return &manifest, nil
}

func (r *repository) ListManifests(ctx context.Context, params pagination.Params) (*ManifestList, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).Model(&models.Manifest{})
	if cursor != nil {
		query = query.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Manifest
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(limit)).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	rows, nextCursor := pagination.Trim(rows, limit, func(m models.Manifest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: m.CreatedAt, ID: m.ID}
	})

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	counts, err := r.CountParcelsByManifest(ctx, ids)
	if err != nil {
		return nil, err
	}

	summaries := make([]ManifestSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, newManifestSummary(row, counts[row.ID]))
	}
	return &ManifestList{Manifests: summaries, NextCursor: nextCursor}, nil
}

func (r *repository) CountParcelsByManifest(ctx context.Context, manifestIDs []uuid.UUID) (map[uuid.UUID]ParcelCounts, error) {
	out := make(map[uuid.UUID]ParcelCounts, len(manifestIDs))
	if len(manifestIDs) == 0 {
		return out, nil
	}

	var rows []struct {
		ManifestID    uuid.UUID
		ParcelCount   int
		ReceivedCount int
	}
	err := r.db.WithContext(ctx).
		Model(&models.Parcel{}).
		Select("manifest_id, COUNT(*) AS parcel_count, COALESCE(SUM(CASE WHEN received THEN 1 ELSE 0 END), 0) AS received_count").
		Where("manifest_id IN ?", manifestIDs).
		Group("manifest_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ManifestID] = ParcelCounts{Total: row.ParcelCount, Received: row.ReceivedCount}
	}
	return out, nil
}

func (r *repository) DeleteManifest(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Where("manifest_id = ?", id).Delete(&models.Parcel{}).Error; err != nil {
		return err
	}
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Manifest{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) ScanStats(ctx context.Context) ([]ManifestScanStats, error) {
	var manifests []models.Manifest
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Order("id DESC").
		Find(&manifests).Error; err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(manifests))
	for _, m := range manifests {
		ids = append(ids, m.ID)
	}
	counts, err := r.CountParcelsByManifest(ctx, ids)
	if err != nil {
		return nil, err
	}

	stats := make([]ManifestScanStats, 0, len(manifests))
	for _, m := range manifests {
		stats = append(stats, newManifestScanStats(m, counts[m.ID]))
	}
	return stats, nil
}

func (r *repository) ListParcels(ctx context.Context, manifestID uuid.UUID) ([]models.Parcel, error) {
	var parcels []models.Parcel
	err := r.db.WithContext(ctx).
		Where("manifest_id = ?", manifestID).
		Order("position ASC").
		Find(&parcels).Error
	if err != nil {
		return nil, err
	}
	return parcels, nil
}

func (r *repository) FindParcelByID(ctx context.Context, id uuid.UUID) (*models.Parcel, error) {
	var parcel models.Parcel
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&parcel).Error
	if err != nil {
		return nil, err
	}
	return &parcel, nil
}

func (r *repository) FindParcelsByTrackingNumbers(ctx context.Context, trackingNumbers []string) ([]models.Parcel, error) {
	if len(trackingNumbers) == 0 {
		return nil, nil
	}
	var parcels []models.Parcel
	err := r.db.WithContext(ctx).
		Where("tracking_number IN ?", trackingNumbers).
		Find(&parcels).Error
	if err != nil {
		return nil, err
	}
	return parcels, nil
}

// FindFirstParcelByTrackingNumber returns the earliest manifest's parcel when
// several rows share a tracking number.
func (r *repository) FindFirstParcelByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Parcel, error) {
	var parcels []models.Parcel
	err := r.db.WithContext(ctx).
		Model(&models.Parcel{}).
		Select("parcels.*").
		Joins("JOIN manifests ON manifests.id = parcels.manifest_id").
		Where("parcels.tracking_number = ?", trackingNumber).
		Order("manifests.created_at ASC").
		Order("parcels.position ASC").
		Limit(1).
		Find(&parcels).Error
	if err != nil {
		return nil, err
	}
	if len(parcels) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &parcels[0], nil
}

func (r *repository) CountParcelsBefore(ctx context.Context, manifestID uuid.UUID, position int) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Parcel{}).
		Where("manifest_id = ? AND position < ?", manifestID, position).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// MaxPosition returns -1 for an empty manifest.
func (r *repository) MaxPosition(ctx context.Context, manifestID uuid.UUID) (int, error) {
	var max sql.NullInt64
	err := r.db.WithContext(ctx).
		Model(&models.Parcel{}).
		Select("MAX(position)").
		Where("manifest_id = ?", manifestID).
		Row().
		Scan(&max)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return -1, nil
	}
	return int(max.Int64), nil
}

func (r *repository) CreateParcel(ctx context.Context, parcel *models.Parcel) error {
	if parcel.ID == uuid.Nil {
		parcel.ID = uuid.New()
	}
	if parcel.Version == 0 {
		parcel.Version = 1
	}
	return r.db.WithContext(ctx).Create(parcel).Error
}

// UpdateParcelDetails rewrites the manifest-sourced fields and history when the
// row still carries expectedVersion. Received state is never touched here.
func (r *repository) UpdateParcelDetails(ctx context.Context, parcel *models.Parcel, expectedVersion int) (bool, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Model(&models.Parcel{}).
		Where("id = ? AND version = ?", parcel.ID, expectedVersion).
		Updates(map[string]any{
			"consignee_name":    parcel.ConsigneeName,
			"shipment_date":     parcel.ShipmentDate,
			"awb_number":        parcel.AWBNumber,
			"consignee_phone":   parcel.ConsigneePhone,
			"consignee_email":   parcel.ConsigneeEmail,
			"consignee_address": parcel.ConsigneeAddress,
			"zip_code":          parcel.ZipCode,
			"description":       parcel.Description,
			"actual_weight":     parcel.ActualWeight,
			"declared_value":    parcel.DeclaredValue,
			"scan_history":      parcel.ScanHistory,
			"version":           gorm.Expr("version + 1"),
			"updated_at":        now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	parcel.Version = expectedVersion + 1
	parcel.UpdatedAt = now
	return true, nil
}

// MarkReceived flips received in a single conditional write. It reports false
// when the parcel was already received or its version moved.
func (r *repository) MarkReceived(ctx context.Context, parcelID uuid.UUID, expectedVersion int, update ReceiveUpdate) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Parcel{}).
		Where("id = ? AND received = ? AND version = ?", parcelID, false, expectedVersion).
		Updates(map[string]any{
			"received":        true,
			"received_at":     update.ReceivedAt,
			"received_by":     update.ReceivedBy,
			"scanned_by":      update.ScannedBy,
			"scanned_by_user": update.ScannedByUser,
			"scan_history":    update.History,
			"version":         gorm.Expr("version + 1"),
			"updated_at":      update.ReceivedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func newManifestSummary(m models.Manifest, counts ParcelCounts) ManifestSummary {
	return ManifestSummary{
		ID:             m.ID,
		ManifestNumber: m.ManifestNumber,
		Date:           m.Date,
		UploadedBy:     m.UploadedBy,
		CreatedAt:      m.CreatedAt,
		ParcelCount:    counts.Total,
		ReceivedCount:  counts.Received,
	}
}

func newManifestScanStats(m models.Manifest, counts ParcelCounts) ManifestScanStats {
	stats := ManifestScanStats{
		ManifestNumber: m.ManifestNumber,
		Date:           m.Date,
		Total:          counts.Total,
		Scanned:        counts.Received,
		Pending:        counts.Total - counts.Received,
	}
	if counts.Total > 0 {
		stats.Percentage = percentage(counts.Received, counts.Total)
	}
	return stats
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
