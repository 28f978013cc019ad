package models

import (
	"time"

	"github.com/google/uuid"
)

// Manifest is a shipment batch owning an ordered list of parcels.
type Manifest struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ManifestNumber string    `gorm:"column:manifest_number;not null;uniqueIndex:ux_manifests_manifest_number"`
	Date           time.Time `gorm:"column:date;not null"`
	UploadedBy     string    `gorm:"column:uploaded_by;not null;default:''"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Parcels []Parcel `gorm:"foreignKey:ManifestID;references:ID"`
}
