package enums

import "fmt"

// ScanAction labels an entry in a parcel's scan history.
type ScanAction string

const (
	ScanActionScanned  ScanAction = "scanned"
	ScanActionReceived ScanAction = "received"
	ScanActionUpdated  ScanAction = "updated"
)

var validScanActions = []ScanAction{
	ScanActionScanned,
	ScanActionReceived,
	ScanActionUpdated,
}

// String implements fmt.Stringer.
func (a ScanAction) String() string {
	return string(a)
}

// IsValid reports whether the value is a known scan action.
func (a ScanAction) IsValid() bool {
	for _, candidate := range validScanActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseScanAction converts raw input into ScanAction.
func ParseScanAction(value string) (ScanAction, error) {
	for _, candidate := range validScanActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid scan action %q", value)
}
