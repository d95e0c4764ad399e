package validate

import (
	"math"
	"strings"

	"github.com/tvinspection/tvinspect/pkg/schema"
)

var completionRequired = []string{
	"administrative_info.name_of_broadcaster",
	"administrative_info.station_type",
	"administrative_info.transmitting_site",
	"administrative_info.longitude",
	"administrative_info.latitude",
	"tower_info.tower_owner",
	"tower_info.tower_height",
	"transmitter_info.exciter_manufacturer",
	"transmitter_info.transmit_frequency",
	"antenna_system.height",
	"antenna_system.antenna_type",
}

var completionOptional = []string{
	"administrative_info.po_box",
	"administrative_info.postal_code",
	"administrative_info.town",
	"administrative_info.phone_number",
	"tower_info.tower_type",
	"tower_info.manufacturer",
	"transmitter_info.exciter_model_number",
	"transmitter_info.amplifier_manufacturer",
	"antenna_system.manufacturer",
	"antenna_system.polarization",
	"stl.manufacturer",
	"other_information.observations",
	"other_information.contact_name",
}

// CompletionStatus summarises how much of the tracked form is filled in.
type CompletionStatus struct {
	Percentage        int      `json:"completion_percentage"`
	RequiredCompleted int      `json:"required_fields_completed"`
	RequiredTotal     int      `json:"total_required_fields"`
	OptionalCompleted int      `json:"optional_fields_completed"`
	OptionalTotal     int      `json:"total_optional_fields"`
	IsMinimumComplete bool     `json:"is_minimum_complete"`
	MissingRequired   []string `json:"missing_required_fields"`
}

// Completion counts the tracked required and optional fields of rec that
// are present.
func Completion(rec schema.Record) CompletionStatus {
	st := CompletionStatus{
		RequiredTotal:   len(completionRequired),
		OptionalTotal:   len(completionOptional),
		MissingRequired: []string{},
	}
	for _, path := range completionRequired {
		if filled(rec, path) {
			st.RequiredCompleted++
		} else {
			st.MissingRequired = append(st.MissingRequired, path)
		}
	}
	for _, path := range completionOptional {
		if filled(rec, path) {
			st.OptionalCompleted++
		}
	}
	done := st.RequiredCompleted + st.OptionalCompleted
	total := st.RequiredTotal + st.OptionalTotal
	st.Percentage = int(math.Round(float64(done) / float64(total) * 100))
	st.IsMinimumComplete = st.RequiredCompleted == st.RequiredTotal
	return st
}

func filled(rec schema.Record, path string) bool {
	section, field, _ := strings.Cut(path, ".")
	return !schema.IsAbsent(schema.SectionOf(rec, section)[field])
}
