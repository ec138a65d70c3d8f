package store

import (
	"fmt"
	"time"

	"github.com/roach88/storekit/internal/value"
)

// timeLayout is used for every timestamp column. Fixed width keeps
// lexical and chronological order equal.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// marshalFields converts a field set to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON for deterministic serialization.
func marshalFields(fields value.Object) (string, error) {
	if fields == nil {
		fields = value.Object{}
	}
	data, err := value.MarshalCanonical(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(data), nil
}

// unmarshalFields parses canonical JSON TEXT into a field set.
// Integers are read through json.Number so values above 2^53 survive.
func unmarshalFields(data string) (value.Object, error) {
	obj, err := value.ParseObject(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	return obj, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
