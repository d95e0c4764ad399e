// Package validate applies the inspection rule table to field values and to
// whole records.
//
// Validation failures are data, not errors: every function here returns a
// message or a [Report] and never panics on malformed input. Missing
// sections and fields, and sections of the wrong type, read as absent.
package validate

import (
	"time"
	"unicode/utf8"

	"github.com/tvinspection/tvinspect/pkg/schema"
)

// Evaluate applies rules to value and returns the first failing message, or
// "" when the value passes. Order: required, then (for present values only)
// length, numeric range, pattern and custom predicates.
func Evaluate(value any, rules schema.Rules) string {
	if rules.Required && (schema.IsAbsent(value) || isEmptySequence(value)) {
		return rules.RequiredMessage
	}
	if schema.IsAbsent(value) {
		return ""
	}

	if s, ok := value.(string); ok {
		n := utf8.RuneCountInString(s)
		if rules.MinLength != nil && n < rules.MinLength.Value {
			return rules.MinLength.Message
		}
		if rules.MaxLength != nil && n > rules.MaxLength.Value {
			return rules.MaxLength.Message
		}
	}

	// A value that is not a number skips the range checks.
	if rules.Min != nil || rules.Max != nil {
		if f, ok := schema.ParseNumber(value); ok {
			if rules.Min != nil && f < rules.Min.Value {
				return rules.Min.Message
			}
			if rules.Max != nil && f > rules.Max.Value {
				return rules.Max.Message
			}
		}
	}

	if rules.Pattern != nil {
		s, ok := schema.TextOf(value)
		if !ok || !rules.Pattern.Regexp.MatchString(s) {
			return rules.Pattern.Message
		}
	}

	for _, p := range rules.Validate {
		if msg := p.Check(value); msg != "" {
			return msg
		}
	}
	return ""
}

func isEmptySequence(v any) bool {
	switch t := v.(type) {
	case []any:
		return len(t) == 0
	case []map[string]any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	}
	return false
}

// Validator evaluates records against a rule table built for one clock.
type Validator struct {
	rules *schema.Ruleset
	now   func() time.Time
}

type Option func(*Validator)

// WithClock fixes the time used for the installation year limit and the
// not-in-the-future checks.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		v.now = now
	}
}

func New(opts ...Option) *Validator {
	v := &Validator{now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	v.rules = schema.NewRuleset(v.now)
	return v
}

// Rules exposes the rule table the validator was built with.
func (v *Validator) Rules() *schema.Ruleset {
	return v.rules
}

// Field validates one value of a flat section, or of a personnel entry when
// section is schema.Personnel. Fields without rules always pass.
func (v *Validator) Field(section, field string, value any) string {
	rules, ok := v.rules.Lookup(section, field)
	if !ok {
		return ""
	}
	return Evaluate(value, rules)
}

// Record validates every declared field of rec.
func (v *Validator) Record(rec schema.Record) Report {
	var report Report

	for _, sec := range v.rules.Sections() {
		values := schema.SectionOf(rec, sec.Section)
		for _, fr := range sec.Fields {
			if msg := Evaluate(values[fr.Field], fr.Rules); msg != "" {
				report.add(sec.Section, fr.Field, msg)
			}
		}
	}

	for i, entry := range schema.PersonnelOf(rec) {
		for _, fr := range v.rules.Personnel() {
			if msg := Evaluate(entry[fr.Field], fr.Rules); msg != "" {
				report.addPersonnel(i, fr.Field, msg)
			}
		}
	}
	return report
}

// ValidateRecord validates rec against the rules as of now.
func ValidateRecord(rec schema.Record) Report {
	return New().Record(rec)
}

// ValidateField validates a single value against the rules as of now.
func ValidateField(section, field string, value any) string {
	return New().Field(section, field, value)
}
