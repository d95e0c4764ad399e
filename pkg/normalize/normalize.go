// Package normalize turns a record as typed into form inputs into the
// record submitted to the backend.
package normalize

import (
	"encoding/json"

	"github.com/tvinspection/tvinspect/pkg/schema"
)

// Normalize returns a deep copy of rec with typed leaves. Three passes run
// in order:
//
//  1. fields of kind Bool: "true" and "false" become booleans
//  2. fields of kind Number: values with a finite numeric prefix become
//     float64 ("45m" gives 45); anything else is left as it was
//  3. every remaining "" becomes nil, at any depth
//
// Normalize performs no I/O and never fails. It is idempotent.
func Normalize(rec schema.Record) schema.Record {
	out := schema.CloneRecord(rec)
	if out == nil {
		return nil
	}
	walkFields(out, coerceBool)
	walkFields(out, coerceNumber)
	collapseEmpty(out)
	return out
}

// walkFields calls fn for every field of the flat sections and of every
// personnel entry, replacing the value with fn's result.
func walkFields(rec schema.Record, fn func(k schema.Kind, v any) any) {
	for _, section := range schema.Sections {
		values := schema.SectionOf(rec, section)
		for name, v := range values {
			values[name] = fn(schema.KindOf(section, name), v)
		}
	}
	for _, entry := range schema.PersonnelOf(rec) {
		for name, v := range entry {
			entry[name] = fn(schema.KindOf(schema.Personnel, name), v)
		}
	}
}

func coerceBool(k schema.Kind, v any) any {
	if k != schema.Bool {
		return v
	}
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	return v
}

func coerceNumber(k schema.Kind, v any) any {
	if k != schema.Number {
		return v
	}
	switch v.(type) {
	case string, json.Number, int, int32, int64, uint64, float32, float64:
		if f, ok := schema.ParseLeadingNumber(v); ok {
			return f
		}
	}
	return v
}

func collapseEmpty(v any) any {
	switch t := v.(type) {
	case string:
		if t == "" {
			return nil
		}
	case map[string]any:
		for k, e := range t {
			t[k] = collapseEmpty(e)
		}
	case []any:
		for i, e := range t {
			t[i] = collapseEmpty(e)
		}
	case []map[string]any:
		for _, e := range t {
			collapseEmpty(e)
		}
	}
	return v
}
