package schema

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire and input format of date fields.
const DateLayout = "2006-01-02"

// IsAbsent reports whether v counts as "not filled in": nil or the empty
// string. Whitespace-only strings, zero and false are present.
func IsAbsent(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	}
	return false
}

// ParseNumber converts v to a finite float64. Strings are trimmed and must
// parse in full; NaN and infinities are rejected.
func ParseNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		return ParseNumber(t.String())
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		var err error
		f, err = strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

var leadingNumber = regexp.MustCompile(`^[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)

// ParseLeadingNumber parses the longest numeric prefix of a string, so
// "45m" gives 45 while "m45" and "NaN" fail. Non-strings go through
// ParseNumber. The result is always finite.
func ParseLeadingNumber(v any) (float64, bool) {
	s, ok := v.(string)
	if !ok {
		return ParseNumber(v)
	}
	prefix := leadingNumber.FindString(strings.TrimSpace(s))
	if prefix == "" {
		return 0, false
	}
	return ParseNumber(prefix)
}

// ParseDate parses a YYYY-MM-DD date, or an RFC 3339 timestamp as sent back
// by the backend, in loc.
func ParseDate(v any, loc *time.Location) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		if t, ok := v.(time.Time); ok {
			return t.In(loc), true
		}
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), true
	}
	return time.Time{}, false
}

// TextOf renders a scalar the way it would appear in a form input. ok is
// false for maps, slices and nil.
func TextOf(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	}
	if f, ok := ParseNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}
