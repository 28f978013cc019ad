package sessions

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/parcel-intake-backend/pkg/db/models"
)

// SessionDTO is the API view of a scan session.
type SessionDTO struct {
	ID              uuid.UUID  `json:"id"`
	UserID          string     `json:"userId"`
	UserName        string     `json:"userName"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime"`
	TotalScans      int        `json:"totalScans"`
	SuccessfulScans int        `json:"successfulScans"`
	ErrorScans      int        `json:"errorScans"`
	IsActive        bool       `json:"isActive"`
	LastScanAt      *time.Time `json:"lastScanAt"`
}

func newSessionDTO(s models.ScanSession) SessionDTO {
	return SessionDTO{
		ID:              s.ID,
		UserID:          s.UserID,
		UserName:        s.UserName,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		TotalScans:      s.TotalScans,
		SuccessfulScans: s.SuccessfulScans,
		ErrorScans:      s.ErrorScans,
		IsActive:        s.IsActive,
		LastScanAt:      s.LastScanAt,
	}
}
