package types

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/angelmondragon/parcel-intake-backend/pkg/enums"
)

// ScanHistoryEntry records one actor touching a parcel.
type ScanHistoryEntry struct {
	UserID    string           `json:"userId"`
	UserName  string           `json:"userName"`
	Timestamp time.Time        `json:"timestamp"`
	Action    enums.ScanAction `json:"action"`
}

// ScanHistory is the ordered history stored inline on the parcel row.
type ScanHistory []ScanHistoryEntry

// Append returns a copy of the history with entry added at the end.
func (h ScanHistory) Append(entry ScanHistoryEntry) ScanHistory {
	out := make(ScanHistory, 0, len(h)+1)
	out = append(out, h...)
	return append(out, entry)
}

// Count returns how many entries carry the given action.
func (h ScanHistory) Count(action enums.ScanAction) int {
	n := 0
	for _, entry := range h {
		if entry.Action == action {
			n++
		}
	}
	return n
}

// Last returns the most recent entry.
func (h ScanHistory) Last() (ScanHistoryEntry, bool) {
	if len(h) == 0 {
		return ScanHistoryEntry{}, false
	}
	return h[len(h)-1], true
}

// Value serializes the history to JSON text.
func (h ScanHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	raw, err := json.Marshal([]ScanHistoryEntry(h))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan decodes JSONB into the history slice.
func (h *ScanHistory) Scan(value interface{}) error {
	if value == nil {
		*h = ScanHistory{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded []ScanHistoryEntry
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return err
	}
	*h = ScanHistory(decoded)
	return nil
}
