package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/parcel-intake-backend/pkg/enums"
)

// PropagationTask is a deferred external status push for one parcel.
type PropagationTask struct {
	ID             uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	TrackingNumber string                      `gorm:"column:tracking_number;not null"`
	Stage          enums.PropagationStage      `gorm:"column:stage;not null"`
	Status         enums.PropagationTaskStatus `gorm:"column:status;not null;default:pending"`
	RunAt          time.Time                   `gorm:"column:run_at;not null"`
	Attempts       int                         `gorm:"column:attempts;not null;default:0"`
	LastError      *string                     `gorm:"column:last_error"`
	ParentID       *uuid.UUID                  `gorm:"column:parent_id;type:uuid"`
	ClaimedAt      *time.Time                  `gorm:"column:claimed_at"`
	CompletedAt    *time.Time                  `gorm:"column:completed_at"`
	CanceledAt     *time.Time                  `gorm:"column:canceled_at"`
	CreatedAt      time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}
