package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// LooseString accepts a JSON string, number or null and keeps its text form.
// Spreadsheet-derived payloads send weights and values either way.
type LooseString string

// UnmarshalJSON implements json.Unmarshaler.
func (l *LooseString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = ""
		return nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*l = LooseString(strings.TrimSpace(s))
		return nil
	case '{', '[':
		return fmt.Errorf("expected string or number, got %s", string(trimmed))
	default:
		var n json.Number
		if err := json.Unmarshal(trimmed, &n); err != nil {
			return fmt.Errorf("expected string or number: %w", err)
		}
		*l = LooseString(n.String())
		return nil
	}
}

// String returns the trimmed text.
func (l LooseString) String() string {
	return strings.TrimSpace(string(l))
}
