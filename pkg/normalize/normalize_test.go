package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tvinspection/tvinspect/pkg/normalize"
	"github.com/tvinspection/tvinspect/pkg/schema"
)

func TestNormalizeCoercion(t *testing.T) {
	in := schema.Record{
		"administrative_info": map[string]any{"po_box": "", "other_telecoms_operator": "false"},
		"tower_info":          map[string]any{"tower_height": "45.5", "is_insured": "true", "manufacturer": "12"},
	}

	out := normalize.Normalize(in)

	tower := schema.SectionOf(out, schema.TowerInfo)
	assert.Equal(t, 45.5, tower["tower_height"])
	assert.Equal(t, true, tower["is_insured"])
	assert.Equal(t, "12", tower["manufacturer"], "text fields are never coerced")
	admin := schema.SectionOf(out, schema.AdministrativeInfo)
	assert.Nil(t, admin["po_box"])
	assert.Contains(t, admin, "po_box")
	assert.Equal(t, false, admin["other_telecoms_operator"])

	// input untouched
	assert.Equal(t, "45.5", schema.SectionOf(in, schema.TowerInfo)["tower_height"])
}

func TestNormalizeKeysByPath(t *testing.T) {
	out := normalize.Normalize(schema.Record{
		"stl":         map[string]any{"frequency": "7500"},
		"filter_info": map[string]any{"frequency": "98.4"},
	})
	assert.Equal(t, 7500.0, schema.SectionOf(out, schema.STL)["frequency"])
	assert.Equal(t, "98.4", schema.SectionOf(out, schema.FilterInfo)["frequency"])
}

func TestNormalizeLeavesMalformedValues(t *testing.T) {
	out := normalize.Normalize(schema.Record{
		"tower_info":     map[string]any{"tower_height": "m45", "building_height": "NaN", "is_insured": "yes"},
		"antenna_system": map[string]any{"height": 12},
	})
	tower := schema.SectionOf(out, schema.TowerInfo)
	assert.Equal(t, "m45", tower["tower_height"])
	assert.Equal(t, "NaN", tower["building_height"])
	assert.Equal(t, "yes", tower["is_insured"])
	assert.Equal(t, 12.0, schema.SectionOf(out, schema.AntennaSystem)["height"])
}

func TestNormalizeNumericPrefix(t *testing.T) {
	out := normalize.Normalize(schema.Record{
		"tower_info": map[string]any{"tower_height": "45m", "building_height": " 12.5e1 floors", "max_wind_load": "1e400"},
	})
	tower := schema.SectionOf(out, schema.TowerInfo)
	assert.Equal(t, 45.0, tower["tower_height"])
	assert.Equal(t, 125.0, tower["building_height"])
	assert.Equal(t, "1e400", tower["max_wind_load"], "non-finite results are left as typed")
	assert.Equal(t, out, normalize.Normalize(out))
}

func TestNormalizePersonnel(t *testing.T) {
	out := normalize.Normalize(schema.Record{
		"ca_personnel": []any{
			map[string]any{"name": "Jane", "signature": "", "date": ""},
			map[string]any{"name": "", "signature": "", "date": ""},
		},
	})
	people := schema.PersonnelOf(out)
	require.Len(t, people, 2, "empty entries are kept")
	assert.Equal(t, map[string]any{"name": "Jane", "signature": nil, "date": nil}, people[0])
	assert.Equal(t, map[string]any{"name": nil, "signature": nil, "date": nil}, people[1])
}

func TestNormalizeTypedPersonnelSlice(t *testing.T) {
	entries := []map[string]any{{"name": "Ann", "signature": "", "date": ""}}
	in := schema.Record{"ca_personnel": entries}

	out := normalize.Normalize(in)

	people := schema.PersonnelOf(out)
	require.Len(t, people, 1)
	assert.Equal(t, map[string]any{"name": "Ann", "signature": nil, "date": nil}, people[0])
	assert.Equal(t, "", entries[0]["signature"], "input untouched")
	assert.IsType(t, []any{}, out["ca_personnel"])
}

func TestNormalizeIdempotent(t *testing.T) {
	rec := schema.Defaults()
	schema.SectionOf(rec, schema.TowerInfo)["tower_height"] = "45.5"
	schema.SectionOf(rec, schema.TowerInfo)["is_insured"] = "true"
	schema.SectionOf(rec, schema.AntennaSystem)["height"] = "oops"
	rec[schema.Personnel] = []any{schema.PersonnelDefaults()}
	rec["id"] = ""

	once := normalize.Normalize(rec)
	twice := normalize.Normalize(once)
	assert.Equal(t, once, twice)
	assert.Nil(t, once["id"])
}

func TestNormalizeNil(t *testing.T) {
	assert.Nil(t, normalize.Normalize(nil))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "KBC", normalize.Sanitize("  <b>KBC</b> "))
	assert.Equal(t, "Hi", normalize.Sanitize(`<script>alert("x")</script>Hi`))
	assert.Equal(t, "R&S", normalize.Sanitize("R&S"))
	assert.Equal(t, "5 < 10", normalize.Sanitize("5 < 10"))

	for _, in := range []string{
		"&lt;script&gt;alert(1)&lt;/script&gt;",
		"&amp;lt;b&amp;gt;bold",
		"<i>&lt;b&gt;x&lt;/b&gt;</i>",
	} {
		once := normalize.Sanitize(in)
		assert.NotContains(t, once, "<", in)
		assert.Equal(t, once, normalize.Sanitize(once), in)
	}
	assert.Equal(t, "", normalize.Sanitize("&lt;script&gt;alert(1)&lt;/script&gt;"))

	out := normalize.SanitizeRecord(schema.Record{
		"other_information": map[string]any{"observations": "<i>rusty</i> base", "contact_date": nil},
		"ca_personnel":      []any{map[string]any{"name": " Jane "}},
	})
	assert.Equal(t, "rusty base", schema.SectionOf(out, schema.OtherInformation)["observations"])
	assert.Nil(t, schema.SectionOf(out, schema.OtherInformation)["contact_date"])
	assert.Equal(t, "Jane", schema.PersonnelOf(out)[0]["name"])
}
