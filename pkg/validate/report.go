package validate

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tvinspection/tvinspect/pkg/constants"
	"github.com/tvinspection/tvinspect/pkg/schema"
)

// FieldError is the report entry of one failing field.
type FieldError struct {
	Message string `json:"message"`
}

// FieldErrors maps field name to its error.
type FieldErrors map[string]FieldError

// Report is the outcome of validating a record. Sections holds the errors of
// the flat sections; Personnel is indexed like the personnel list, with nil
// for entries that passed. A field without a key has no error.
type Report struct {
	Sections  map[string]FieldErrors
	Personnel []FieldErrors
}

func (r *Report) add(section, field, msg string) {
	if r.Sections == nil {
		r.Sections = make(map[string]FieldErrors)
	}
	if r.Sections[section] == nil {
		r.Sections[section] = make(FieldErrors)
	}
	r.Sections[section][field] = FieldError{Message: msg}
}

func (r *Report) addPersonnel(index int, field, msg string) {
	for len(r.Personnel) <= index {
		r.Personnel = append(r.Personnel, nil)
	}
	if r.Personnel[index] == nil {
		r.Personnel[index] = make(FieldErrors)
	}
	r.Personnel[index][field] = FieldError{Message: msg}
}

// IsValid reports whether no error was collected.
func (r Report) IsValid() bool {
	return len(r.Sections) == 0 && len(r.Personnel) == 0
}

// Count returns the number of failing fields.
func (r Report) Count() int {
	n := 0
	for _, fe := range r.Sections {
		n += len(fe)
	}
	for _, fe := range r.Personnel {
		n += len(fe)
	}
	return n
}

// Message returns the error of section.field, or of a personnel field when
// section is schema.Personnel and index is set.
func (r Report) Message(section, field string, index ...int) string {
	if section == schema.Personnel {
		if len(index) == 0 || index[0] < 0 || index[0] >= len(r.Personnel) {
			return ""
		}
		return r.Personnel[index[0]][field].Message
	}
	return r.Sections[section][field].Message
}

// Flatten returns path to message, with paths like
// "tower_info.tower_height" and "ca_personnel.0.name".
func (r Report) Flatten() map[string]string {
	out := make(map[string]string, r.Count())
	for section, fe := range r.Sections {
		for field, e := range fe {
			out[section+"."+field] = e.Message
		}
	}
	for i, fe := range r.Personnel {
		for field, e := range fe {
			out[schema.Personnel+"."+strconv.Itoa(i)+"."+field] = e.Message
		}
	}
	return out
}

// MarshalJSON writes the report keyed by section name, personnel as a list.
func (r Report) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(r.Sections)+1)
	for section, fe := range r.Sections {
		out[section] = fe
	}
	if len(r.Personnel) > 0 {
		out[schema.Personnel] = r.Personnel
	}
	return json.Marshal(out)
}

func (r *Report) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = Report{}
	for key, v := range raw {
		if key == schema.Personnel {
			if err := json.Unmarshal(v, &r.Personnel); err != nil {
				return err
			}
			continue
		}
		var fe FieldErrors
		if err := json.Unmarshal(v, &fe); err != nil {
			return err
		}
		if len(fe) > 0 {
			if r.Sections == nil {
				r.Sections = make(map[string]FieldErrors)
			}
			r.Sections[key] = fe
		}
	}
	return nil
}

// Error is returned when a record is submitted while invalid. It matches
// constants.ErrInvalidRecord under errors.Is.
type Error struct {
	Report Report
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %d field(s) failed", constants.ErrInvalidRecord, e.Report.Count())
}

func (e *Error) Unwrap() error {
	return constants.ErrInvalidRecord
}
