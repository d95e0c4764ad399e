package schema

import (
	"fmt"
	"strings"

	"github.com/tvinspection/tvinspect/pkg/constants"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Section names, in display order.
const (
	AdministrativeInfo = "administrative_info"
	TowerInfo          = "tower_info"
	TransmitterInfo    = "transmitter_info"
	FilterInfo         = "filter_info"
	AntennaSystem      = "antenna_system"
	STL                = "stl"
	OtherInformation   = "other_information"
	Personnel          = "ca_personnel"
)

// Sections lists the flat sections. The personnel sequence is handled
// separately because its value is a list of entries.
var Sections = []string{
	AdministrativeInfo,
	TowerInfo,
	TransmitterInfo,
	FilterInfo,
	AntennaSystem,
	STL,
	OtherInformation,
}

var sectionTitles = map[string]string{
	AdministrativeInfo: "Administrative Information",
	TowerInfo:          "Tower Information",
	TransmitterInfo:    "Transmitter Information",
	FilterInfo:         "Filter Information",
	AntennaSystem:      "Antenna System",
	STL:                "Studio to Transmitter Link",
	OtherInformation:   "Other Information",
	Personnel:          "CA Personnel",
}

// SectionTitle returns the human title of a section.
func SectionTitle(section string) string {
	if t, ok := sectionTitles[section]; ok {
		return t
	}
	return titleCase(section)
}

// Kind is the semantic type of a field.
type Kind int

const (
	Text Kind = iota
	Number
	Bool
	Date
	Enum
	Email
	Phone
	Coord
)

var kindNames = [...]string{"text", "number", "bool", "date", "enum", "email", "phone", "coord"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Field describes one input of the inspection form.
type Field struct {
	Section string             `json:"section"`
	Name    string             `json:"name"`
	Label   string             `json:"label"`
	Kind    Kind               `json:"kind"`
	Options []constants.Option `json:"options,omitempty"`
}

// Path returns "section.field".
func (f Field) Path() string {
	return f.Section + "." + f.Name
}

func text(section, name, label string) Field {
	return Field{Section: section, Name: name, Label: label, Kind: Text}
}

func number(section, name, label string) Field {
	return Field{Section: section, Name: name, Label: label, Kind: Number}
}

func boolean(section, name, label string) Field {
	return Field{Section: section, Name: name, Label: label, Kind: Bool}
}

func enum(section, name, label string, opts []constants.Option) Field {
	return Field{Section: section, Name: name, Label: label, Kind: Enum, Options: opts}
}

func kind(k Kind, section, name, label string) Field {
	return Field{Section: section, Name: name, Label: label, Kind: k}
}

var table = []Field{
	text(AdministrativeInfo, "name_of_broadcaster", "Name of Broadcaster"),
	text(AdministrativeInfo, "po_box", "P.O. Box"),
	text(AdministrativeInfo, "postal_code", "Postal Code"),
	text(AdministrativeInfo, "town", "Town"),
	text(AdministrativeInfo, "location", "Location"),
	text(AdministrativeInfo, "street", "Street"),
	kind(Phone, AdministrativeInfo, "phone_number", "Phone Number"),
	enum(AdministrativeInfo, "station_type", "Type of Station", constants.StationTypes),
	text(AdministrativeInfo, "transmitting_site", "Name of the Transmitting Site"),
	kind(Coord, AdministrativeInfo, "longitude", "Longitude (dd mm ss E)"),
	kind(Coord, AdministrativeInfo, "latitude", "Latitude (dd mm ss N/S)"),
	text(AdministrativeInfo, "physical_location", "Physical Location"),
	text(AdministrativeInfo, "physical_street", "Physical Street"),
	text(AdministrativeInfo, "physical_area", "Physical Area"),
	number(AdministrativeInfo, "altitude", "Altitude (m above sea level)"),
	text(AdministrativeInfo, "land_owner", "Name of the Land Owner"),
	boolean(AdministrativeInfo, "other_telecoms_operator", "Other Telecoms Operator on Site"),
	text(AdministrativeInfo, "other_telecoms_details", "Other Telecoms Operator Details"),

	text(TowerInfo, "tower_owner", "Name of the Tower Owner"),
	number(TowerInfo, "tower_height", "Height of the Tower above Ground (m)"),
	boolean(TowerInfo, "tower_above_building", "Tower above Building Roof"),
	number(TowerInfo, "building_height", "Height of the building above ground (m)"),
	enum(TowerInfo, "tower_type", "Type of Tower", constants.TowerTypes),
	text(TowerInfo, "tower_type_other", "Other Tower Type (specify)"),
	enum(TowerInfo, "rust_protection", "Rust Protection", constants.RustProtection),
	number(TowerInfo, "installation_year", "Year of Tower Installation"),
	text(TowerInfo, "manufacturer", "Name of the Tower Manufacturer"),
	text(TowerInfo, "model_number", "Model Number"),
	number(TowerInfo, "max_wind_load", "Maximum Wind Load (km/h)"),
	number(TowerInfo, "max_load_charge", "Maximum Load Charge (kg)"),
	boolean(TowerInfo, "is_insured", "Tower Insured"),
	text(TowerInfo, "insurer_name", "Name of Insurer"),
	boolean(TowerInfo, "concrete_base", "Concrete Base?"),
	boolean(TowerInfo, "lightning_protection", "Lightning Protection provided?"),
	boolean(TowerInfo, "electrically_grounded", "Electrically Grounded?"),
	boolean(TowerInfo, "aviation_warning_light", "Aviation Warning Light?"),
	boolean(TowerInfo, "other_antennas", "Other Antennas on Tower?"),
	text(TowerInfo, "other_antennas_details", "Other Antennas Details"),

	text(TransmitterInfo, "exciter_manufacturer", "Exciter Manufacturer"),
	text(TransmitterInfo, "exciter_model_number", "Exciter Model Number"),
	text(TransmitterInfo, "exciter_serial_number", "Exciter Serial Number"),
	number(TransmitterInfo, "exciter_nominal_power", "Exciter Nominal Power (W)"),
	number(TransmitterInfo, "exciter_actual_reading", "Exciter Actual Reading"),
	text(TransmitterInfo, "amplifier_manufacturer", "Amplifier Manufacturer"),
	text(TransmitterInfo, "amplifier_model_number", "Amplifier Model Number"),
	text(TransmitterInfo, "amplifier_serial_number", "Amplifier Serial Number"),
	number(TransmitterInfo, "amplifier_nominal_power", "Amplifier Nominal Power (W)"),
	number(TransmitterInfo, "amplifier_actual_reading", "Amplifier Actual Reading"),
	text(TransmitterInfo, "rf_output_type", "RF Output Type"),
	text(TransmitterInfo, "frequency_range", "Frequency Range"),
	text(TransmitterInfo, "transmit_frequency", "Transmit Frequency (MHz / TV Channel)"),
	text(TransmitterInfo, "frequency_stability", "Frequency Stability (ppm)"),
	number(TransmitterInfo, "harmonics_suppression_level", "Harmonics Suppression Level (dB)"),
	number(TransmitterInfo, "spurious_emission_level", "Spurious Emission Level (dB)"),
	text(TransmitterInfo, "transmit_bandwidth", "Transmit Bandwidth (-26dB)"),
	boolean(TransmitterInfo, "internal_audio_limiter", "Internal Audio Limiter"),
	boolean(TransmitterInfo, "internal_stereo_coder", "Internal Stereo Coder"),
	text(TransmitterInfo, "transmitter_catalog", "Transmitter Catalog / Additional Notes"),

	enum(FilterInfo, "filter_type", "Filter Type", constants.FilterTypes),
	text(FilterInfo, "manufacturer", "Manufacturer"),
	text(FilterInfo, "model_number", "Model Number"),
	text(FilterInfo, "serial_number", "Serial Number"),
	text(FilterInfo, "frequency", "Frequency (MHz / TV Channel)"),

	number(AntennaSystem, "height", "Height (m)"),
	text(AntennaSystem, "antenna_type", "Antenna Type"),
	text(AntennaSystem, "manufacturer", "Manufacturer"),
	text(AntennaSystem, "model_number", "Model Number"),
	enum(AntennaSystem, "polarization", "Polarization", constants.Polarization),
	enum(AntennaSystem, "horizontal_pattern", "Horizontal Pattern", constants.HorizontalPattern),
	number(AntennaSystem, "beam_width_3db", "Beam Width 3dB"),
	number(AntennaSystem, "degrees_azimuth", "Degrees Azimuth"),
	text(AntennaSystem, "table_azimuth_horizontal", "Table Azimuth Horizontal"),
	boolean(AntennaSystem, "mechanical_tilt", "Mechanical Tilt"),
	boolean(AntennaSystem, "electrical_tilt", "Electrical Tilt"),
	boolean(AntennaSystem, "null_fill", "Null Fill"),
	number(AntennaSystem, "mechanical_tilt_degree", "Mechanical Tilt Degree"),
	number(AntennaSystem, "electrical_tilt_degree", "Electrical Tilt Degree"),
	number(AntennaSystem, "null_fill_percentage", "Null Fill Percentage"),
	text(AntennaSystem, "table_azimuth_vertical", "Table Azimuth Vertical"),
	text(AntennaSystem, "antenna_system_gain", "Antenna System Gain"),
	number(AntennaSystem, "estimated_antenna_losses", "Estimated Antenna Losses (dB)"),
	number(AntennaSystem, "estimated_feeder_losses", "Estimated Feeder Losses (dB)"),
	number(AntennaSystem, "estimated_multiplexer_losses", "Estimated Multiplexer Losses (dB)"),
	number(AntennaSystem, "effective_radiated_power", "Effective Radiated Power (kW)"),
	text(AntennaSystem, "antenna_catalog", "Antenna Catalog / Additional Notes"),

	text(STL, "manufacturer", "Manufacturer"),
	text(STL, "model_number", "Model Number"),
	text(STL, "serial_number", "Serial Number"),
	number(STL, "frequency", "Frequency (MHz)"),
	text(STL, "polarization", "Polarization"),
	text(STL, "signal_description", "Signal Description"),

	text(OtherInformation, "observations", "Observations"),
	text(OtherInformation, "technical_personnel_name", "Technical Personnel Name"),
	text(OtherInformation, "contact_name", "Contact Name"),
	text(OtherInformation, "contact_address", "Contact Address"),
	kind(Phone, OtherInformation, "contact_tel", "Contact Telephone"),
	kind(Email, OtherInformation, "contact_email", "Contact Email"),
	kind(Date, OtherInformation, "contact_date", "Contact Date"),
	text(OtherInformation, "contact_signature", "Contact Signature (Digital Signature or Notes)"),

	text(Personnel, "name", "Name"),
	text(Personnel, "signature", "Signature (Digital Signature or Notes)"),
	kind(Date, Personnel, "date", "Date"),
}

var (
	byPath    = map[string]Field{}
	bySection = map[string][]Field{}
)

func init() {
	for _, f := range table {
		if _, dup := byPath[f.Path()]; dup {
			panic("schema: duplicate field " + f.Path())
		}
		byPath[f.Path()] = f
		bySection[f.Section] = append(bySection[f.Section], f)
	}
}

// Fields returns every field of the form in display order, personnel
// entry fields last.
func Fields() []Field {
	out := make([]Field, len(table))
	copy(out, table)
	return out
}

// SectionFields returns the fields of one section in display order.
func SectionFields(section string) []Field {
	fs := bySection[section]
	out := make([]Field, len(fs))
	copy(out, fs)
	return out
}

// Lookup finds a field by section and name.
func Lookup(section, name string) (Field, bool) {
	f, ok := byPath[section+"."+name]
	return f, ok
}

// KindOf returns the kind of section.name. Undeclared fields are Text.
func KindOf(section, name string) Kind {
	return byPath[section+"."+name].Kind
}

// Label returns the form label of a field, or a title-cased field name for
// fields the table does not declare.
func Label(section, name string) string {
	if f, ok := Lookup(section, name); ok {
		return f.Label
	}
	return titleCase(name)
}

func titleCase(name string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(name, "_", " "))
}
