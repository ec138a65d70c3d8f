package value

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind is the declared type of an entity property.
type Kind string

const (
	KindString  Kind = "string"
	KindInt     Kind = "int"
	KindBool    Kind = "bool"
	KindTime    Kind = "time"    // RFC 3339 timestamp, stored as a UTC string
	KindStrings Kind = "strings" // list of strings
)

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindString, KindInt, KindBool, KindTime, KindStrings:
		return true
	}
	return false
}

// ErrKindMismatch is returned by Decode when a raw value does not fit the
// declared kind.
var ErrKindMismatch = errors.New("value does not match declared kind")

// Decode converts one raw JSON value into a Value of the given kind.
// JSON null is accepted for every kind and yields Null.
func Decode(kind Kind, raw json.RawMessage) (Value, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty value", ErrKindMismatch)
	}
	if bytes.Equal(raw, []byte("null")) {
		return Null{}, nil
	}

	switch kind {
	case KindString:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, mismatch(kind, raw)
		}
		return String(s), nil

	case KindInt:
		if raw[0] == '"' {
			return nil, mismatch(kind, raw)
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return nil, mismatch(kind, raw)
		}
		i, err := n.Int64()
		if err != nil {
			return nil, mismatch(kind, raw)
		}
		return Int(i), nil

	case KindBool:
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, mismatch(kind, raw)
		}
		return Bool(b), nil

	case KindTime:
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, mismatch(kind, raw)
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, mismatch(kind, raw)
		}
		return String(t.UTC().Format(time.RFC3339Nano)), nil

	case KindStrings:
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, mismatch(kind, raw)
		}
		list := make(List, len(items))
		for i, item := range items {
			var s string
			if item[0] != '"' || json.Unmarshal(item, &s) != nil {
				return nil, mismatch(kind, raw)
			}
			list[i] = String(s)
		}
		return list, nil

	default:
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
}

func mismatch(kind Kind, raw json.RawMessage) error {
	text := string(raw)
	if len(text) > 40 {
		text = text[:40] + "..."
	}
	return fmt.Errorf("%w: want %s, got %s", ErrKindMismatch, kind, strings.TrimSpace(text))
}
