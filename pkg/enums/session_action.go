package enums

import "fmt"

// SessionAction is the verb accepted by POST /scan/session.
type SessionAction string

const (
	SessionActionStart SessionAction = "start"
	SessionActionStop  SessionAction = "stop"
)

var validSessionActions = []SessionAction{
	SessionActionStart,
	SessionActionStop,
}

// IsValid reports whether the value is a known session action.
func (a SessionAction) IsValid() bool {
	for _, candidate := range validSessionActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseSessionAction converts raw input into SessionAction.
func ParseSessionAction(value string) (SessionAction, error) {
	for _, candidate := range validSessionActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid session action %q", value)
}
