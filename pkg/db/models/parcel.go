package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/parcel-intake-backend/pkg/types"
)

// Parcel is one trackable unit inside a manifest. Received flips to true once
// and is never reset; Version guards concurrent writers.
type Parcel struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ManifestID       uuid.UUID           `gorm:"column:manifest_id;type:uuid;not null"`
	Position         int                 `gorm:"column:position;not null"`
	TrackingNumber   string              `gorm:"column:tracking_number;not null;uniqueIndex:ux_parcels_tracking_number"`
	ConsigneeName    string              `gorm:"column:consignee_name;not null"`
	ShipmentDate     *time.Time          `gorm:"column:shipment_date"`
	AWBNumber        string              `gorm:"column:awb_number;not null;default:''"`
	ConsigneePhone   string              `gorm:"column:consignee_phone;not null;default:''"`
	ConsigneeEmail   string              `gorm:"column:consignee_email;not null;default:''"`
	ConsigneeAddress string              `gorm:"column:consignee_address;not null;default:''"`
	ZipCode          string              `gorm:"column:zip_code;not null;default:''"`
	Description      string              `gorm:"column:description;not null;default:''"`
	ActualWeight     decimal.NullDecimal `gorm:"column:actual_weight;type:numeric(12,3)"`
	DeclaredValue    decimal.NullDecimal `gorm:"column:declared_value;type:numeric(12,2)"`
	Received         bool                `gorm:"column:received;not null;default:false"`
	ReceivedAt       *time.Time          `gorm:"column:received_at"`
	ReceivedBy       string              `gorm:"column:received_by;not null;default:''"`
	ScannedBy        string              `gorm:"column:scanned_by;not null;default:''"`
	ScannedByUser    string              `gorm:"column:scanned_by_user;not null;default:''"`
	ScanHistory      types.ScanHistory   `gorm:"column:scan_history;type:jsonb;not null"`
	Version          int                 `gorm:"column:version;not null;default:1"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
