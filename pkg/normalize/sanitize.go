package normalize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/tvinspection/tvinspect/pkg/schema"
)

var strict = bluemonday.StrictPolicy()

// maxSanitizePasses bounds the decode loop for deeply nested entity
// encodings. Input still changing after that keeps its entities encoded.
const maxSanitizePasses = 8

// Sanitize strips markup from s and trims surrounding whitespace. Entities
// are decoded so that "R&S" stays "R&S", and the result is sanitized again
// until it no longer changes, so encoded markup cannot come back as tags.
func Sanitize(s string) string {
	out := s
	for i := 0; i < maxSanitizePasses; i++ {
		next := html.UnescapeString(strict.Sanitize(out))
		if next == out {
			return strings.TrimSpace(out)
		}
		out = next
	}
	return strings.TrimSpace(strict.Sanitize(out))
}

// SanitizeRecord returns a deep copy of rec with every string leaf
// sanitized.
func SanitizeRecord(rec schema.Record) schema.Record {
	out := schema.CloneRecord(rec)
	if out == nil {
		return nil
	}
	sanitizeValue(out)
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case string:
		return Sanitize(t)
	case map[string]any:
		for k, e := range t {
			t[k] = sanitizeValue(e)
		}
	case []any:
		for i, e := range t {
			t[i] = sanitizeValue(e)
		}
	}
	return v
}
