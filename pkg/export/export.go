// Package export renders an inspection record as an Excel workbook.
package export

import (
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/tvinspection/tvinspect/pkg/constants"
	"github.com/tvinspection/tvinspect/pkg/schema"
	"github.com/tvinspection/tvinspect/pkg/validate"
)

const (
	SummarySheet   = "Summary"
	PersonnelSheet = "Personnel"
)

// maxSheetName is the Excel limit on sheet name length.
const maxSheetName = 31

// SheetName returns the sheet a section is written to.
func SheetName(section string) string {
	name := schema.SectionTitle(section)
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}

// Workbook builds the workbook of rec. The caller closes it.
func Workbook(rec schema.Record) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(f.GetSheetName(f.GetActiveSheetIndex()), SummarySheet); err != nil {
		f.Close()
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	w := &writer{f: f, bold: bold}

	w.summary(rec)
	for _, section := range schema.Sections {
		w.section(rec, section)
	}
	w.personnel(rec)

	if w.err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to build workbook: %w", w.err)
	}
	return f, nil
}

// Write streams the workbook of rec to out.
func Write(out io.Writer, rec schema.Record) error {
	f, err := Workbook(rec)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteTo(out)
	return err
}

// Save writes the workbook of rec to path.
func Save(path string, rec schema.Record) error {
	f, err := Workbook(rec)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.SaveAs(path)
}

// writer keeps the first error so building reads top to bottom.
type writer struct {
	f    *excelize.File
	bold int
	err  error
}

func (w *writer) set(sheet string, col, row int, v any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetCellValue(sheet, cell, v)
}

func (w *writer) header(sheet string, row int, titles ...string) {
	for i, t := range titles {
		w.set(sheet, i+1, row, t)
	}
	if w.err != nil {
		return
	}
	first, _ := excelize.CoordinatesToCellName(1, row)
	last, _ := excelize.CoordinatesToCellName(len(titles), row)
	w.err = w.f.SetCellStyle(sheet, first, last, w.bold)
}

func (w *writer) newSheet(name string) {
	if w.err != nil {
		return
	}
	if _, err := w.f.NewSheet(name); err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetColWidth(name, "A", "A", 40)
	if w.err == nil {
		w.err = w.f.SetColWidth(name, "B", "C", 30)
	}
}

func (w *writer) summary(rec schema.Record) {
	admin := schema.SectionOf(rec, schema.AdministrativeInfo)
	completion := validate.Completion(rec)
	rows := [][2]any{
		{"Form", constants.FormTitle},
		{"Authority", constants.Authority},
		{"Form ID", constants.FormID},
		{"Form Version", constants.FormVersion},
		{"Name of Broadcaster", display(admin["name_of_broadcaster"], schema.Text, nil)},
		{"Type of Station", display(admin["station_type"], schema.Enum, constants.StationTypes)},
		{"Completion", strconv.Itoa(completion.Percentage) + "%"},
	}
	if id, ok := rec["id"]; ok && !schema.IsAbsent(id) {
		rows = append(rows, [2]any{"Record ID", display(id, schema.Text, nil)})
	}

	w.err = w.f.SetColWidth(SummarySheet, "A", "B", 36)
	for i, r := range rows {
		w.set(SummarySheet, 1, i+1, r[0])
		w.set(SummarySheet, 2, i+1, r[1])
	}
	if w.err == nil {
		last, _ := excelize.CoordinatesToCellName(1, len(rows))
		w.err = w.f.SetCellStyle(SummarySheet, "A1", last, w.bold)
	}
}

func (w *writer) section(rec schema.Record, section string) {
	sheet := SheetName(section)
	w.newSheet(sheet)
	w.header(sheet, 1, "Field", "Value")

	values := schema.SectionOf(rec, section)
	for i, field := range schema.SectionFields(section) {
		w.set(sheet, 1, i+2, field.Label)
		w.set(sheet, 2, i+2, display(values[field.Name], field.Kind, field.Options))
	}
}

func (w *writer) personnel(rec schema.Record) {
	w.newSheet(PersonnelSheet)
	w.header(PersonnelSheet, 1, "Name", "Signature", "Date")
	row := 2
	for _, p := range schema.PersonnelOf(rec) {
		if p == nil {
			continue
		}
		w.set(PersonnelSheet, 1, row, display(p["name"], schema.Text, nil))
		w.set(PersonnelSheet, 2, row, display(p["signature"], schema.Text, nil))
		w.set(PersonnelSheet, 3, row, display(p["date"], schema.Date, nil))
		row++
	}
}

// Display renders a field value the way the form shows it: booleans as
// Yes/No and enumerations by their option label.
func Display(f schema.Field, v any) string {
	return display(v, f.Kind, f.Options)
}

func display(v any, k schema.Kind, opts []constants.Option) string {
	if schema.IsAbsent(v) {
		return ""
	}
	switch k {
	case schema.Bool:
		switch v {
		case true, "true":
			return "Yes"
		case false, "false":
			return "No"
		}
	case schema.Enum:
		if s, ok := v.(string); ok {
			return constants.OptionLabel(opts, s)
		}
	}
	s, ok := schema.TextOf(v)
	if !ok {
		return fmt.Sprint(v)
	}
	return s
}
