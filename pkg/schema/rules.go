package schema

import (
	"regexp"
	"strings"
	"time"
)

// Length is a character-count limit with its failure message.
type Length struct {
	Value   int
	Message string
}

// Bound is a numeric limit with its failure message.
type Bound struct {
	Value   float64
	Message string
}

// Pattern is an anchored regular expression with its failure message.
type Pattern struct {
	Regexp  *regexp.Regexp
	Message string
}

// Predicate is a named custom check. Check returns "" when the value passes
// and the failure message otherwise. It is only called with present values.
type Predicate struct {
	Name  string
	Check func(v any) string
}

// Rules is the rule-set of one field. Constraints are evaluated in the order
// of the struct fields.
type Rules struct {
	Required        bool
	RequiredMessage string
	MinLength       *Length
	MaxLength       *Length
	Min             *Bound
	Max             *Bound
	Pattern         *Pattern
	Validate        []Predicate
}

// FieldRules pairs a field name with its rule-set.
type FieldRules struct {
	Field string
	Rules Rules
}

// SectionRules lists the rule-sets of one section in display order.
type SectionRules struct {
	Section string
	Fields  []FieldRules
}

// Ruleset is the complete validation table. Build it with NewRuleset.
type Ruleset struct {
	sections  []SectionRules
	personnel []FieldRules
	index     map[string]Rules
}

// Sections returns the rule-sets of the flat sections.
func (rs *Ruleset) Sections() []SectionRules {
	return rs.sections
}

// Personnel returns the rule-sets applied to each personnel entry.
func (rs *Ruleset) Personnel() []FieldRules {
	return rs.personnel
}

// Lookup returns the rule-set of section.field.
func (rs *Ruleset) Lookup(section, field string) (Rules, bool) {
	r, ok := rs.index[section+"."+field]
	return r, ok
}

const (
	phonePattern     = `^(\+254|0)[0-9]{9}$`
	phoneMessage     = "Phone number must be in format +254XXXXXXXXX or 0XXXXXXXXX"
	longitudePattern = `^[0-9]{1,3}\s[0-9]{1,2}\s[0-9]{1,2}\s[EW]$`
	latitudePattern  = `^[0-9]{1,2}\s[0-9]{1,2}\s[0-9]{1,2}\s[NS]$`
	emailPattern     = `^[^\s@]+@[^\s@]+\.[^\s@]+$`
	stabilityPattern = `^[±]?[0-9]+(\.[0-9]+)?\s?(ppm|PPM)$`
)

func req(msg string) Rules {
	return Rules{Required: true, RequiredMessage: msg}
}

func (r Rules) minLen(n int, msg string) Rules {
	r.MinLength = &Length{Value: n, Message: msg}
	return r
}

func (r Rules) maxLen(n int, msg string) Rules {
	r.MaxLength = &Length{Value: n, Message: msg}
	return r
}

func (r Rules) min(v float64, msg string) Rules {
	r.Min = &Bound{Value: v, Message: msg}
	return r
}

func (r Rules) max(v float64, msg string) Rules {
	r.Max = &Bound{Value: v, Message: msg}
	return r
}

func (r Rules) between(lo, hi float64, loMsg, hiMsg string) Rules {
	return r.min(lo, loMsg).max(hi, hiMsg)
}

func (r Rules) pattern(expr, msg string) Rules {
	r.Pattern = &Pattern{Regexp: regexp.MustCompile(expr), Message: msg}
	return r
}

func (r Rules) check(p Predicate) Rules {
	r.Validate = append(r.Validate, p)
	return r
}

var none Rules

// explicitRules is the hand-written part of the table, keyed by path.
func explicitRules(now func() time.Time) map[string]Rules {
	year := float64(now().Year())
	return map[string]Rules{
		"administrative_info.name_of_broadcaster": req("Broadcaster name is required").
			minLen(2, "Broadcaster name must be at least 2 characters").
			maxLen(100, "Broadcaster name must not exceed 100 characters"),
		"administrative_info.po_box":       none.pattern(`^[0-9]*$`, "P.O. Box must contain only numbers"),
		"administrative_info.postal_code":  none.pattern(`^[0-9]{5}$`, "Postal code must be exactly 5 digits"),
		"administrative_info.phone_number": none.pattern(phonePattern, phoneMessage),
		"administrative_info.station_type": req("Station type is required"),
		"administrative_info.transmitting_site": req("Transmitting site name is required").
			minLen(2, "Transmitting site name must be at least 2 characters"),
		"administrative_info.longitude": req("Longitude is required").
			pattern(longitudePattern, "Longitude format: dd mm ss E/W (e.g., 36 49 12 E)"),
		"administrative_info.latitude": req("Latitude is required").
			pattern(latitudePattern, "Latitude format: dd mm ss N/S (e.g., 01 17 30 S)"),
		"administrative_info.altitude": none.between(-500, 10000,
			"Altitude must be above -500m", "Altitude must be below 10,000m"),

		"tower_info.tower_owner": req("Tower owner name is required").
			minLen(2, "Tower owner name must be at least 2 characters"),
		"tower_info.tower_height": req("Tower height is required").between(1, 1000,
			"Tower height must be greater than 0", "Tower height must be less than 1000m"),
		"tower_info.building_height": none.between(0, 500,
			"Building height cannot be negative", "Building height must be less than 500m"),
		"tower_info.installation_year": none.between(1950, year+1,
			"Installation year must be after 1950", "Installation year cannot be in the future"),
		"tower_info.max_wind_load":   none.min(0, "Wind load cannot be negative"),
		"tower_info.max_load_charge": none.min(0, "Load charge cannot be negative"),

		"transmitter_info.exciter_manufacturer": req("Exciter manufacturer is required"),
		"transmitter_info.exciter_nominal_power": none.between(0, 100000,
			"Power cannot be negative", "Power seems too high, please verify"),
		"transmitter_info.exciter_actual_reading": none.min(0, "Reading cannot be negative"),
		"transmitter_info.amplifier_nominal_power": none.between(0, 1000000,
			"Power cannot be negative", "Power seems too high, please verify"),
		"transmitter_info.amplifier_actual_reading": none.min(0, "Reading cannot be negative"),
		"transmitter_info.transmit_frequency":       req("Transmit frequency is required"),
		"transmitter_info.frequency_stability":      none.pattern(stabilityPattern, "Format: ±10 ppm or ±10.5 ppm"),
		"transmitter_info.harmonics_suppression_level": none.between(0, 200,
			"Suppression level cannot be negative", "Suppression level seems too high"),
		"transmitter_info.spurious_emission_level": none.between(0, 200,
			"Emission level cannot be negative", "Emission level seems too high"),

		"antenna_system.height": req("Antenna height is required").between(0.1, 1000,
			"Antenna height must be greater than 0", "Antenna height must be less than 1000m"),
		"antenna_system.antenna_type": req("Antenna type is required"),
		"antenna_system.beam_width_3db": none.between(0, 360,
			"Beam width cannot be negative", "Beam width cannot exceed 360 degrees"),
		"antenna_system.degrees_azimuth": none.between(0, 360,
			"Azimuth cannot be negative", "Azimuth cannot exceed 360 degrees"),
		"antenna_system.mechanical_tilt_degree": none.between(-90, 90,
			"Mechanical tilt cannot be less than -90°", "Mechanical tilt cannot exceed 90°"),
		"antenna_system.electrical_tilt_degree": none.between(-90, 90,
			"Electrical tilt cannot be less than -90°", "Electrical tilt cannot exceed 90°"),
		"antenna_system.null_fill_percentage": none.between(0, 100,
			"Null fill percentage cannot be negative", "Null fill percentage cannot exceed 100%"),
		"antenna_system.estimated_antenna_losses": none.between(0, 50,
			"Antenna losses cannot be negative", "Antenna losses seem too high"),
		"antenna_system.estimated_feeder_losses": none.between(0, 50,
			"Feeder losses cannot be negative", "Feeder losses seem too high"),
		"antenna_system.estimated_multiplexer_losses": none.between(0, 50,
			"Multiplexer losses cannot be negative", "Multiplexer losses seem too high"),
		"antenna_system.effective_radiated_power": none.between(0, 1000,
			"ERP cannot be negative", "ERP seems too high, please verify"),

		"stl.frequency": none.between(0.1, 30000,
			"Frequency must be greater than 0.1 MHz", "Frequency must be less than 30,000 MHz"),

		"other_information.contact_email": none.pattern(emailPattern, "Please enter a valid email address"),
		"other_information.contact_tel":   none.pattern(phonePattern, phoneMessage),
		"other_information.contact_date":  none.check(NotFuture(now, "Contact date cannot be in the future")),

		"ca_personnel.name": req("Personnel name is required").
			minLen(2, "Name must be at least 2 characters"),
		"ca_personnel.date": req("Date is required").
			check(NotFuture(now, "Date cannot be in the future")),
	}
}

// NewRuleset builds the rule table. now supplies the current time for the
// installation year limit and the not-in-the-future checks; nil means
// time.Now.
//
// Besides the explicit rules, every field picks up checks implied by its
// kind: numbers must parse, dates must be valid, enumerations must use one
// of their options. Kind checks run before any custom predicate.
func NewRuleset(now func() time.Time) *Ruleset {
	if now == nil {
		now = time.Now
	}
	explicit := explicitRules(now)
	rs := &Ruleset{index: make(map[string]Rules, len(explicit))}

	collect := func(section string) []FieldRules {
		var out []FieldRules
		for _, f := range bySection[section] {
			r, declared := explicit[f.Path()]
			if kc := kindCheck(f); kc != nil {
				r.Validate = append([]Predicate{*kc}, r.Validate...)
				declared = true
			}
			if !declared {
				continue
			}
			if r.Required && r.RequiredMessage == "" {
				r.RequiredMessage = f.Label + " is required"
			}
			rs.index[f.Path()] = r
			out = append(out, FieldRules{Field: f.Name, Rules: r})
		}
		return out
	}

	for _, s := range Sections {
		if fields := collect(s); len(fields) > 0 {
			rs.sections = append(rs.sections, SectionRules{Section: s, Fields: fields})
		}
	}
	rs.personnel = collect(Personnel)
	return rs
}

func kindCheck(f Field) *Predicate {
	switch f.Kind {
	case Number:
		msg := f.Label + " must be a valid number"
		return &Predicate{Name: "validNumber", Check: func(v any) string {
			if _, ok := ParseNumber(v); ok {
				return ""
			}
			return msg
		}}
	case Date:
		msg := f.Label + " must be a valid date (YYYY-MM-DD)"
		return &Predicate{Name: "validDate", Check: func(v any) string {
			if _, ok := ParseDate(v, time.UTC); ok {
				return ""
			}
			return msg
		}}
	case Enum:
		values := make([]string, len(f.Options))
		for i, o := range f.Options {
			values[i] = o.Value
		}
		msg := f.Label + " must be one of: " + strings.Join(values, ", ")
		return &Predicate{Name: "oneOf", Check: func(v any) string {
			s, _ := v.(string)
			for _, want := range values {
				if s == want {
					return ""
				}
			}
			return msg
		}}
	}
	return nil
}

// NotFuture returns a predicate rejecting dates after today. Values that do
// not parse as dates pass; the date kind check reports those.
func NotFuture(now func() time.Time, msg string) Predicate {
	return Predicate{Name: "notFuture", Check: func(v any) string {
		t := now()
		d, ok := ParseDate(v, t.Location())
		if !ok {
			return ""
		}
		today := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
		if d.After(today) {
			return msg
		}
		return ""
	}}
}
