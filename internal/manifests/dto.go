package manifests

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
	"github.com/angelmondragon/parcel-intake-backend/pkg/enums"
	"github.com/angelmondragon/parcel-intake-backend/pkg/types"
)

// ParcelDTO is the API view of a parcel.
type ParcelDTO struct {
	ID               uuid.UUID         `json:"id"`
	Position         int               `json:"position"`
	TrackingNumber   string            `json:"trackingNumber"`
	ConsigneeName    string            `json:"consigneeName"`
	ShipmentDate     *time.Time        `json:"shipmentDate"`
	AWBNumber        string            `json:"awbNumber,omitempty"`
	ConsigneePhone   string            `json:"consigneePhone,omitempty"`
	ConsigneeEmail   string            `json:"consigneeEmail,omitempty"`
	ConsigneeAddress string            `json:"consigneeAddress,omitempty"`
	ZipCode          string            `json:"zipCode,omitempty"`
	Description      string            `json:"description,omitempty"`
	ActualWeight     *decimal.Decimal  `json:"actualWeight"`
	DeclaredValue    *decimal.Decimal  `json:"declaredValue"`
	Received         bool              `json:"received"`
	ReceivedAt       *time.Time        `json:"receivedAt"`
	ReceivedBy       string            `json:"receivedBy,omitempty"`
	ScannedBy        string            `json:"scannedBy,omitempty"`
	ScannedByUser    string            `json:"scannedByUser,omitempty"`
	ScanHistory      types.ScanHistory `json:"scanHistory"`
}

// NewParcelDTO maps a parcel row to its API view.
func NewParcelDTO(p models.Parcel) ParcelDTO {
	history := p.ScanHistory
	if history == nil {
		history = types.ScanHistory{}
	}
	return ParcelDTO{
		ID:               p.ID,
		Position:         p.Position,
		TrackingNumber:   p.TrackingNumber,
		ConsigneeName:    p.ConsigneeName,
		ShipmentDate:     p.ShipmentDate,
		AWBNumber:        p.AWBNumber,
		ConsigneePhone:   p.ConsigneePhone,
		ConsigneeEmail:   p.ConsigneeEmail,
		ConsigneeAddress: p.ConsigneeAddress,
		ZipCode:          p.ZipCode,
		Description:      p.Description,
		ActualWeight:     nullDecimalPtr(p.ActualWeight),
		DeclaredValue:    nullDecimalPtr(p.DeclaredValue),
		Received:         p.Received,
		ReceivedAt:       p.ReceivedAt,
		ReceivedBy:       p.ReceivedBy,
		ScannedBy:        p.ScannedBy,
		ScannedByUser:    p.ScannedByUser,
		ScanHistory:      history,
	}
}

func nullDecimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// ManifestSummary is a manifest header with its completion counters.
type ManifestSummary struct {
	ID             uuid.UUID `json:"id"`
	ManifestNumber string    `json:"manifestNumber"`
	Date           time.Time `json:"date"`
	UploadedBy     string    `json:"uploadedBy,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ParcelCount    int       `json:"parcelCount"`
	ReceivedCount  int       `json:"receivedCount"`
}

// ManifestList is one page of manifest summaries.
type ManifestList struct {
	Manifests  []ManifestSummary `json:"manifests"`
	NextCursor string            `json:"nextCursor,omitempty"`
}

// ManifestDetail is a manifest with its ordered parcels.
type ManifestDetail struct {
	ManifestSummary
	Parcels []ParcelDTO `json:"parcels"`
}

// ScanActivityEntry is one scan-history entry flattened out of its parcel.
type ScanActivityEntry struct {
	TrackingNumber string           `json:"trackingNumber"`
	ConsigneeName  string           `json:"consigneeName"`
	UserID         string           `json:"userId"`
	UserName       string           `json:"userName"`
	Timestamp      time.Time        `json:"timestamp"`
	Action         enums.ScanAction `json:"action"`
}

// ManifestScanStats summarises scanning progress for one manifest.
type ManifestScanStats struct {
	ManifestNumber string    `json:"manifestNumber"`
	Date           time.Time `json:"date"`
	Total          int       `json:"total"`
	Scanned        int       `json:"scanned"`
	Pending        int       `json:"pending"`
	Percentage     float64   `json:"percentage"`
}

// ParcelInput is one already-mapped manifest row.
type ParcelInput struct {
	TrackingNumber   types.LooseString `json:"trackingNumber"`
	ShipmentDate     types.LooseString `json:"shipmentDate"`
	AWBNumber        types.LooseString `json:"awbNumber"`
	ConsigneeName    string            `json:"consigneeName"`
	ConsigneePhone   types.LooseString `json:"consigneePhone"`
	ConsigneeEmail   string            `json:"consigneeEmail"`
	ConsigneeAddress string            `json:"consigneeAddress"`
	ZipCode          types.LooseString `json:"zipCode"`
	Description      string            `json:"description"`
	ActualWeight     types.LooseString `json:"actualWeight"`
	DeclaredValue    types.LooseString `json:"declaredValue"`
}

// IngestInput describes one manifest upload.
type IngestInput struct {
	ManifestNumber string
	Date           *time.Time
	UploadedBy     string
	UploadedByName string
	Parcels        []ParcelInput
}

// RowError reports a rejected ingestion row. Row is 1-based.
type RowError struct {
	Row            int    `json:"row"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	Message        string `json:"message"`
}

// IngestResult reports the outcome of a best-effort batch.
type IngestResult struct {
	ManifestNumber string     `json:"manifestNumber"`
	Created        int        `json:"created"`
	Updated        int        `json:"updated"`
	Errors         []RowError `json:"errors"`
	Warnings       []string   `json:"warnings"`
	Total          int        `json:"total"`
	Message        string     `json:"message"`
}
