package schema

// Record is an inspection record: section name to section value. Flat
// sections are map[string]any and the personnel section is []any of
// map[string]any.
type Record = map[string]any

// PersonnelDefaults is the shape of a new personnel entry.
func PersonnelDefaults() map[string]any {
	return map[string]any{"name": "", "signature": "", "date": ""}
}

// SectionDefaults returns a fresh default value for every field of a flat
// section: false for booleans, "" for everything else.
func SectionDefaults(section string) map[string]any {
	out := make(map[string]any, len(bySection[section]))
	for _, f := range bySection[section] {
		if f.Kind == Bool {
			out[f.Name] = false
		} else {
			out[f.Name] = ""
		}
	}
	return out
}

// Defaults returns a new, empty record.
func Defaults() Record {
	rec := make(Record, len(Sections)+1)
	for _, s := range Sections {
		rec[s] = SectionDefaults(s)
	}
	rec[Personnel] = []any{}
	return rec
}

// MergeWithDefaults overlays a fetched record on the defaults, section by
// section, so that fields the backend omitted still exist. Section values
// that are not objects are ignored. Keys outside the known sections, such
// as id or created_at, are copied through. The input is not modified.
func MergeWithDefaults(fetched Record) Record {
	rec := Defaults()
	for k, v := range fetched {
		if _, known := sectionTitles[k]; !known {
			rec[k] = Clone(v)
		}
	}
	for _, s := range Sections {
		src, ok := fetched[s].(map[string]any)
		if !ok {
			continue
		}
		dst := rec[s].(map[string]any)
		for k, v := range src {
			dst[k] = Clone(v)
		}
	}
	if list, ok := personnelList(fetched[Personnel]); ok {
		entries := make([]any, 0, len(list))
		for _, item := range list {
			entry := PersonnelDefaults()
			if m, ok := item.(map[string]any); ok {
				for k, v := range m {
					entry[k] = Clone(v)
				}
			}
			entries = append(entries, entry)
		}
		rec[Personnel] = entries
	}
	return rec
}

// SectionOf returns the map stored under section, or nil when the record has
// no such section or it is not an object.
func SectionOf(rec Record, section string) map[string]any {
	m, _ := rec[section].(map[string]any)
	return m
}

// PersonnelOf returns the personnel entries. Elements that are not objects
// come back as nil maps, which read as all-absent.
func PersonnelOf(rec Record) []map[string]any {
	list, _ := personnelList(rec[Personnel])
	out := make([]map[string]any, len(list))
	for i, item := range list {
		out[i], _ = item.(map[string]any)
	}
	return out
}

// Clone deep-copies maps and slices; scalars are returned as is. A
// []map[string]any comes back as []any.
func Clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = Clone(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = Clone(e)
		}
		return s
	case []map[string]any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = Clone(e)
		}
		return s
	}
	return v
}

// CloneRecord deep-copies a record.
func CloneRecord(rec Record) Record {
	if rec == nil {
		return nil
	}
	return Clone(map[string]any(rec)).(map[string]any)
}

func personnelList(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []map[string]any:
		out := make([]any, len(t))
		for i, m := range t {
			out[i] = m
		}
		return out, true
	}
	return nil, false
}
