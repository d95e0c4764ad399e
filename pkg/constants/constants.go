package constants

// Form identity printed on every submission and rendition.
var (
	FormID      = "CA/F/FSM/17"
	FormVersion = "B"
	AppName     = "TV Inspection System"
	Authority   = "Communications Authority of Kenya"
	FormTitle   = "FM & TV Inspection Form"
)

const DefaultAPIURL = "http://127.0.0.1:8000/api"

// Backend endpoints, relative to the API base URL.
const (
	PathLogin         = "/auth/login/"
	PathRegister      = "/auth/register/"
	PathProfile       = "/auth/profile/"
	PathProfileUpdate = "/auth/profile/update/"
	PathToken         = "/auth/token/"
	PathTokenRefresh  = "/auth/token/refresh/"
	PathForms         = "/forms/"
	PathHealth        = "/health/"
)

// Storage keys shared by the session and its storage backends.
const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
	KeyUser         = "user"
)

// Option is an allowed value of an enumerated field.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

var StationTypes = []Option{
	{Value: "RADIO_AM", Label: "Radio AM"},
	{Value: "RADIO_FM", Label: "Radio FM"},
	{Value: "TV", Label: "TV"},
}

var TowerTypes = []Option{
	{Value: "GUYED", Label: "Guyed"},
	{Value: "SELF_SUPPORTING", Label: "Self-Supporting"},
	{Value: "OTHER", Label: "Other"},
}

var RustProtection = []Option{
	{Value: "GALVANIZED", Label: "Galvanized"},
	{Value: "PAINTED", Label: "Painted"},
	{Value: "ALUMINUM", Label: "Aluminum"},
	{Value: "NONE", Label: "No Rust Protection"},
}

var FilterTypes = []Option{
	{Value: "BAND_PASS", Label: "Band Pass Filter"},
	{Value: "NOTCH", Label: "Notch Filter"},
	{Value: "OTHER", Label: "Other"},
}

var Polarization = []Option{
	{Value: "VERTICAL", Label: "Vertical"},
	{Value: "HORIZONTAL", Label: "Horizontal"},
	{Value: "CIRCULAR", Label: "Circular"},
	{Value: "ELLIPTICAL", Label: "Elliptical"},
}

var HorizontalPattern = []Option{
	{Value: "OMNI", Label: "Omni directional"},
	{Value: "DIRECTIONAL", Label: "Directional"},
}

// OptionLabel returns the display label for value, or value itself when it
// is not one of opts.
func OptionLabel(opts []Option, value string) string {
	for _, o := range opts {
		if o.Value == value {
			return o.Label
		}
	}
	return value
}
