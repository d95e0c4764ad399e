package validate

import (
	"fmt"
	"strings"

	"github.com/tvinspection/tvinspect/pkg/schema"
)

// FormatErrors renders a report as one line per failing field, in form
// order, e.g. "TOWER INFO - tower height: Tower height is required" and
// "CA Personnel #1 - name: Personnel name is required".
func FormatErrors(r Report) []string {
	var lines []string
	for _, section := range schema.Sections {
		fe := r.Sections[section]
		if len(fe) == 0 {
			continue
		}
		sectionLabel := strings.ToUpper(strings.ReplaceAll(section, "_", " "))
		for _, f := range schema.SectionFields(section) {
			if e, ok := fe[f.Name]; ok {
				lines = append(lines, fmt.Sprintf("%s - %s: %s", sectionLabel, fieldLabel(f.Name), e.Message))
			}
		}
	}
	personnel := schema.SectionFields(schema.Personnel)
	for i, fe := range r.Personnel {
		for _, f := range personnel {
			if e, ok := fe[f.Name]; ok {
				lines = append(lines, fmt.Sprintf("CA Personnel #%d - %s: %s", i+1, fieldLabel(f.Name), e.Message))
			}
		}
	}
	return lines
}

func fieldLabel(name string) string {
	return strings.ToLower(strings.ReplaceAll(name, "_", " "))
}
