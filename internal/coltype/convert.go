package coltype

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// ErrorKind categorizes conversion failures.
type ErrorKind string

const (
	// KindMissingValue indicates a required column had no usable value.
	KindMissingValue ErrorKind = "MISSING_VALUE"

	// KindTimestampFormat indicates a timestamp string that failed to parse.
	KindTimestampFormat ErrorKind = "TIMESTAMP_FORMAT"
)

// ConversionError reports why a column value could not be converted.
type ConversionError struct {
	Kind   ErrorKind
	Column string
	Err    error // underlying parse error, if any
}

func (e *ConversionError) Error() string {
	switch e.Kind {
	case KindMissingValue:
		return fmt.Sprintf("required value %q was omitted", e.Column)
	case KindTimestampFormat:
		return fmt.Sprintf("could not parse timestamp for %q: %v", e.Column, e.Err)
	}
	return fmt.Sprintf("%s: column %q", e.Kind, e.Column)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Timestamp string layouts. RFC 2822 with a two-digit day, plus the
// single-digit-day form the grammar also permits.
var timestampLayouts = []string{
	time.RFC1123Z,
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

// Convert turns a decoded JSON value into a storage value for a column
// of type t. raw must come from a decoder with UseNumber enabled; a nil
// raw means the field was absent or JSON null.
//
// A value of the wrong JSON shape is treated the same as an absent one,
// including integers that overflow the target width. Absent values
// convert to SQL NULL unless the column is required, in which case a
// MissingValue error is returned. Timestamp strings that look like
// timestamps but fail to parse are the one shape error that is reported
// rather than treated as absent.
func (t Type) Convert(column string, raw any, required bool) (any, error) {
	val, err := t.extract(column, raw)
	if err != nil {
		return nil, err
	}
	if val == nil {
		if required {
			return nil, &ConversionError{Kind: KindMissingValue, Column: column}
		}
		return nil, nil
	}
	return val, nil
}

// extract pulls a typed value out of raw, or nil if raw has no usable
// representation for t.
func (t Type) extract(column string, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}
	switch t {
	case Bool:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
	case Int32:
		if n, ok := asInt64(raw); ok && n >= math.MinInt32 && n <= math.MaxInt32 {
			return n, nil
		}
	case Int64:
		if n, ok := asInt64(raw); ok {
			return n, nil
		}
	case Float32:
		if f, ok := asFloat64(raw); ok {
			// Round-trip through float32 to match the stored precision.
			return float64(float32(f)), nil
		}
	case Float64:
		if f, ok := asFloat64(raw); ok {
			return f, nil
		}
	case String:
		if s, ok := raw.(string); ok {
			return s, nil
		}
	case Timestamp:
		return parseTimestamp(column, raw)
	default:
		panic("coltype: unknown type " + t.String())
	}
	return nil, nil
}

func asInt64(raw any) (int64, bool) {
	n, ok := raw.(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil {
		return 0, false
	}
	return v, true
}

func asFloat64(raw any) (float64, bool) {
	n, ok := raw.(json.Number)
	if !ok {
		return 0, false
	}
	v, err := n.Float64()
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseTimestamp accepts a numeric UTC epoch with fractional seconds or
// an RFC 2822 string. Any other shape is treated as absent.
func parseTimestamp(column string, raw any) (any, error) {
	switch v := raw.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, nil
		}
		sec := math.Floor(f)
		nsec := (f - sec) * 1e9
		return time.Unix(int64(sec), int64(nsec)).UTC(), nil
	case string:
		var err error
		for _, layout := range timestampLayouts {
			var ts time.Time
			if ts, err = time.Parse(layout, v); err == nil {
				return ts, nil
			}
		}
		return nil, &ConversionError{Kind: KindTimestampFormat, Column: column, Err: err}
	}
	return nil, nil
}
