package manifests

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
	"github.com/angelmondragon/parcel-intake-backend/pkg/pagination"
	"github.com/angelmondragon/parcel-intake-backend/pkg/types"
)

// Repository defines persistence operations for manifests and their parcels.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateManifest(ctx context.Context, manifest *models.Manifest) error
	FindManifestByNumber(ctx context.Context, manifestNumber string) (*models.Manifest, error)
	FindManifestByID(ctx context.Context, id uuid.UUID) (*models.Manifest, error)
	ListManifests(ctx context.Context, params pagination.Params) (*ManifestList, error)
	CountParcelsByManifest(ctx context.Context, manifestIDs []uuid.UUID) (map[uuid.UUID]ParcelCounts, error)
	DeleteManifest(ctx context.Context, id uuid.UUID) error
	ScanStats(ctx context.Context) ([]ManifestScanStats, error)

	ListParcels(ctx context.Context, manifestID uuid.UUID) ([]models.Parcel, error)
	FindParcelByID(ctx context.Context, id uuid.UUID) (*models.Parcel, error)
	FindParcelsByTrackingNumbers(ctx context.Context, trackingNumbers []string) ([]models.Parcel, error)
	FindFirstParcelByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Parcel, error)
	CountParcelsBefore(ctx context.Context, manifestID uuid.UUID, position int) (int, error)
	MaxPosition(ctx context.Context, manifestID uuid.UUID) (int, error)
	CreateParcel(ctx context.Context, parcel *models.Parcel) error
	UpdateParcelDetails(ctx context.Context, parcel *models.Parcel, expectedVersion int) (bool, error)
	MarkReceived(ctx context.Context, parcelID uuid.UUID, expectedVersion int, update ReceiveUpdate) (bool, error)
}

// ParcelCounts holds per-manifest totals.
type ParcelCounts struct {
	Total    int
	Received int
}

// ReceiveUpdate carries the fields written when a parcel is received. History
// must already contain the new received entry.
type ReceiveUpdate struct {
	ReceivedAt    time.Time
	ReceivedBy    string
	ScannedBy     string
	ScannedByUser string
	History       types.ScanHistory
}
