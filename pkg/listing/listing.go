// Package listing filters, sorts and summarizes fetched forms the way the
// list and dashboard pages show them.
package listing

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/tvinspection/tvinspect/pkg/schema"
)

type By string

const (
	ByBroadcaster By = "broadcaster"
	ByStationType By = "station_type"
	ByLocation    By = "location"
	ByCreatedAt   By = "created_at"
	ByUpdatedAt   By = "updated_at"
)

type Order string

const (
	Asc  Order = "asc"
	Desc Order = "desc"
)

// Query selects forms. Empty fields match everything.
type Query struct {
	Search      string
	StationType string
}

// Filter returns the forms matching q, in their original order.
func Filter(forms []schema.Record, q Query) []schema.Record {
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]schema.Record, 0, len(forms))
	for _, f := range forms {
		if q.StationType != "" && adminText(f, "station_type") != q.StationType {
			continue
		}
		if needle != "" && !matches(f, needle) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func matches(f schema.Record, needle string) bool {
	for _, s := range []string{
		adminText(f, "name_of_broadcaster"),
		adminText(f, "location"),
		ID(f),
	} {
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}

// ID renders the record id, which backends send as a number or a string.
func ID(f schema.Record) string {
	switch v := f["id"].(type) {
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprint(v)
	}
}

func adminText(f schema.Record, field string) string {
	s, _ := schema.SectionOf(f, schema.AdministrativeInfo)[field].(string)
	return s
}

// Sort orders forms in place. Missing values sort last in both orders.
func Sort(forms []schema.Record, by By, order Order) error {
	var compare func(a, b schema.Record) (int, bool)
	switch by {
	case ByBroadcaster, ByStationType, ByLocation:
		field := map[By]string{
			ByBroadcaster: "name_of_broadcaster",
			ByStationType: "station_type",
			ByLocation:    "location",
		}[by]
		col := collate.New(language.English, collate.IgnoreCase)
		compare = func(a, b schema.Record) (int, bool) {
			x, y := adminText(a, field), adminText(b, field)
			if x == "" || y == "" {
				return missing(x == "", y == ""), false
			}
			return col.CompareString(x, y), true
		}
	case ByCreatedAt, ByUpdatedAt:
		key := string(by)
		compare = func(a, b schema.Record) (int, bool) {
			x, okx := timestamp(a, key)
			y, oky := timestamp(b, key)
			if !okx || !oky {
				return missing(!okx, !oky), false
			}
			return x.Compare(y), true
		}
	default:
		return fmt.Errorf("unknown sort field %q", by)
	}
	if order != Asc && order != Desc {
		return fmt.Errorf("unknown sort order %q", order)
	}

	sort.SliceStable(forms, func(i, j int) bool {
		c, both := compare(forms[i], forms[j])
		if both && order == Desc {
			c = -c
		}
		return c < 0
	})
	return nil
}

// missing orders present values before absent ones.
func missing(xAbsent, yAbsent bool) int {
	switch {
	case xAbsent == yAbsent:
		return 0
	case xAbsent:
		return 1
	}
	return -1
}

func timestamp(f schema.Record, key string) (time.Time, bool) {
	s, ok := f[key].(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return schema.ParseDate(s, time.UTC)
	}
	return t, true
}

type Stats struct {
	Total     int `json:"total"`
	ThisMonth int `json:"this_month"`
}

// Summarize counts forms, and those created in now's month.
func Summarize(forms []schema.Record, now time.Time) Stats {
	st := Stats{Total: len(forms)}
	for _, f := range forms {
		t, ok := timestamp(f, "created_at")
		if !ok {
			continue
		}
		t = t.In(now.Location())
		if t.Year() == now.Year() && t.Month() == now.Month() {
			st.ThisMonth++
		}
	}
	return st
}

// Recent returns up to n forms, newest first.
func Recent(forms []schema.Record, n int) []schema.Record {
	out := make([]schema.Record, len(forms))
	copy(out, forms)
	_ = Sort(out, ByCreatedAt, Desc)
	if len(out) > n {
		out = out[:n]
	}
	return out
}
