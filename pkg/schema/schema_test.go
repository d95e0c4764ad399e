package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time {
	return time.Date(2025, time.June, 15, 10, 30, 0, 0, time.UTC)
}

func TestExplicitRulesTargetDeclaredFields(t *testing.T) {
	for path := range explicitRules(fixedClock) {
		_, ok := byPath[path]
		assert.True(t, ok, "rule for undeclared field %s", path)
	}
}

func TestKindIsKeyedByPath(t *testing.T) {
	assert.Equal(t, Number, KindOf(STL, "frequency"))
	assert.Equal(t, Text, KindOf(FilterInfo, "frequency"))
	assert.Equal(t, Bool, KindOf(TowerInfo, "is_insured"))
	assert.Equal(t, Text, KindOf(TowerInfo, "no_such_field"))
}

func TestLabelFallsBackToTitleCase(t *testing.T) {
	assert.Equal(t, "Name of Broadcaster", Label(AdministrativeInfo, "name_of_broadcaster"))
	assert.Equal(t, "Site Notes", Label(AdministrativeInfo, "site_notes"))
	assert.Equal(t, "Antenna System", SectionTitle(AntennaSystem))
}

func TestDefaults(t *testing.T) {
	rec := Defaults()
	for _, s := range Sections {
		require.Contains(t, rec, s)
	}
	assert.Equal(t, false, SectionOf(rec, TowerInfo)["is_insured"])
	assert.Equal(t, "", SectionOf(rec, TowerInfo)["tower_height"])
	assert.Equal(t, []any{}, rec[Personnel])

	// every call is independent
	SectionOf(rec, TowerInfo)["tower_owner"] = "KBC"
	assert.Equal(t, "", SectionOf(Defaults(), TowerInfo)["tower_owner"])
}

func TestMergeWithDefaults(t *testing.T) {
	fetched := Record{
		"id":         "42",
		"tower_info": map[string]any{"tower_height": 45.5, "legacy_field": "x"},
		"stl":        "not an object",
		"ca_personnel": []any{
			map[string]any{"name": "Jane"},
			"garbage",
		},
	}

	rec := MergeWithDefaults(fetched)

	assert.Equal(t, "42", rec["id"])
	tower := SectionOf(rec, TowerInfo)
	assert.Equal(t, 45.5, tower["tower_height"])
	assert.Equal(t, "x", tower["legacy_field"])
	assert.Equal(t, false, tower["is_insured"])
	assert.Equal(t, SectionDefaults(STL), SectionOf(rec, STL))

	people := PersonnelOf(rec)
	require.Len(t, people, 2)
	assert.Equal(t, "Jane", people[0]["name"])
	assert.Equal(t, "", people[0]["date"])
	assert.Equal(t, PersonnelDefaults(), people[1])

	// the input is untouched
	_, hasDefault := fetched["tower_info"].(map[string]any)["is_insured"]
	assert.False(t, hasDefault)
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   any
		want float64
		ok   bool
	}{
		{"45.5", 45.5, true},
		{" 12 ", 12, true},
		{"-3e2", -300, true},
		{"", 0, false},
		{"   ", 0, false},
		{"12abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{7, 7, true},
		{2.5, 2.5, true},
		{true, 0, false},
		{nil, 0, false},
	}
	for _, c := range cases {
		got, ok := ParseNumber(c.in)
		assert.Equal(t, c.ok, ok, "%#v", c.in)
		assert.Equal(t, c.want, got, "%#v", c.in)
	}
}

func TestIsAbsent(t *testing.T) {
	assert.True(t, IsAbsent(nil))
	assert.True(t, IsAbsent(""))
	assert.False(t, IsAbsent(" "))
	assert.False(t, IsAbsent(false))
	assert.False(t, IsAbsent(0.0))
}

func TestRulesetKindChecks(t *testing.T) {
	rs := NewRuleset(fixedClock)

	r, ok := rs.Lookup(TowerInfo, "installation_year")
	require.True(t, ok)
	require.NotNil(t, r.Max)
	assert.Equal(t, 2026.0, r.Max.Value)
	require.Len(t, r.Validate, 1)
	assert.Equal(t, "validNumber", r.Validate[0].Name)

	r, ok = rs.Lookup(AdministrativeInfo, "station_type")
	require.True(t, ok)
	assert.Equal(t, "oneOf", r.Validate[0].Name)
	assert.Equal(t, "", r.Validate[0].Check("TV"))
	assert.Equal(t, "Type of Station must be one of: RADIO_AM, RADIO_FM, TV", r.Validate[0].Check("tv"))

	r, ok = rs.Lookup(Personnel, "date")
	require.True(t, ok)
	require.Len(t, r.Validate, 2)
	assert.Equal(t, "validDate", r.Validate[0].Name)
	assert.Equal(t, "notFuture", r.Validate[1].Name)

	_, ok = rs.Lookup(FilterInfo, "manufacturer")
	assert.False(t, ok)
}

func TestNotFuture(t *testing.T) {
	p := NotFuture(fixedClock, "late")
	assert.Equal(t, "", p.Check("2025-06-15"))
	assert.Equal(t, "", p.Check("2024-01-01"))
	assert.Equal(t, "late", p.Check("2025-06-16"))
	assert.Equal(t, "", p.Check("not a date"))
}
