// Package schema holds the static description of an inspection record: its
// sections, every field with its label and semantic kind, the per-section
// defaults and the validation rule table.
//
// The field table is the only place where a field is declared numeric,
// boolean, a date or an enumeration. The validator in
// [github.com/tvinspection/tvinspect/pkg/validate] and the normalizer in
// [github.com/tvinspection/tvinspect/pkg/normalize] both read it, so the two
// can never disagree about the type of a field.
//
// Kinds are keyed by path (section and field), not by bare field name:
// stl.frequency is a number while filter_info.frequency is free text.
package schema
