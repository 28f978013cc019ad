package stats

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
)

// Repository reads the parcel columns customer statistics are built from.
type Repository interface {
	FindManifestID(ctx context.Context, manifestNumber string) (uuid.UUID, error)
	ListParcels(ctx context.Context, manifestID *uuid.UUID) ([]models.Parcel, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindManifestID(ctx context.Context, manifestNumber string) (uuid.UUID, error) {
	var manifest models.Manifest
	err := r.db.WithContext(ctx).
		Select("id").
		Where("manifest_number = ?", manifestNumber).
		First(&manifest).Error
	if err != nil {
		return uuid.Nil, err
	}
	return manifest.ID, nil
}

func (r *repository) ListParcels(ctx context.Context, manifestID *uuid.UUID) ([]models.Parcel, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Parcel{}).
		Select("id", "manifest_id", "position", "tracking_number", "consignee_name", "received", "received_at", "received_by").
		Order("manifest_id ASC").
		Order("position ASC")
	if manifestID != nil {
		query = query.Where("manifest_id = ?", *manifestID)
	}

	var parcels []models.Parcel
	if err := query.Find(&parcels).Error; err != nil {
		return nil, err
	}
	return parcels, nil
}
