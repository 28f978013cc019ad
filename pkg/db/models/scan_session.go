package models

import (
	"time"

	"github.com/google/uuid"
)

// ScanSession tracks one operator's scanning period. At most one row per
// user_id may be active.
type ScanSession struct {
	ID              uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID          string     `gorm:"column:user_id;not null"`
	UserName        string     `gorm:"column:user_name;not null;default:''"`
	StartTime       time.Time  `gorm:"column:start_time;not null"`
	EndTime         *time.Time `gorm:"column:end_time"`
	TotalScans      int        `gorm:"column:total_scans;not null;default:0"`
	SuccessfulScans int        `gorm:"column:successful_scans;not null;default:0"`
	ErrorScans      int        `gorm:"column:error_scans;not null;default:0"`
	IsActive        bool       `gorm:"column:is_active;not null;default:true"`
	LastScanAt      *time.Time `gorm:"column:last_scan_at"`
	CreatedAt       time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
