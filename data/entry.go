package data

import (
	"encoding/json"
	"time"
)

// TimestampFormat is the ISO-8601 layout entry timestamps are stored and
// sent in. Timestamps are always UTC.
const TimestampFormat = time.RFC3339Nano

// Entry is one persisted sensor reading. ID is assigned by the store and
// increases with insertion order. Data is the producer's payload, passed
// through untouched.
type Entry struct {
	ID        int64           `json:"id"`
	Type      SensorType      `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// FormatTimestamp renders t the way entry timestamps are stored
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

// ParseTimestamp parses a stored entry timestamp
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(TimestampFormat, s)
}
