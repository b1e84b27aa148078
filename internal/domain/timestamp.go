package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// naiveLayout matches ISO-8601 timestamps without a zone designator, with or
// without fractional seconds, e.g. "2024-05-01T10:20:30.123456".
const naiveLayout = "2006-01-02T15:04:05.999999999"

// Timestamp is a UTC point in time as stored in metadata records.
// It is written as RFC 3339 and read from either RFC 3339 or zone-less
// ISO-8601, which is interpreted as UTC.
type Timestamp struct {
	time.Time
}

// NewTimestamp returns t converted to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// ParseTimestamp parses an RFC 3339 or zone-less ISO-8601 value.
func ParseTimestamp(s string) (Timestamp, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return NewTimestamp(t), nil
	}
	t, err := time.ParseInLocation(naiveLayout, s, time.UTC)
	if err != nil {
		return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return Timestamp{Time: t}, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}
