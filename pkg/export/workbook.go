// Package export writes the selected service's assessment to an xlsx
// workbook.
package export

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/greg-hellings/portal/pkg/assessment"
	"github.com/greg-hellings/portal/pkg/view"
)

// Filename is the download name of the workbook.
const Filename = "assessment_data.xlsx"

// ContentType is the MIME type of an xlsx workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// Sheet names.
const (
	SheetAssessment = "Assessment Data"
	SheetArtifacts  = "Artifacts"
	SheetFolders    = "Folder Structure"
)

// ErrNoSelection is returned when the repository or service does not resolve.
var ErrNoSelection = errors.New("export: selected repository or service not found")

// Layout chooses which sheets are written.
type Layout string

const (
	// LayoutExtended writes the parameter, artifact and folder sheets.
	LayoutExtended Layout = "extended"
	// LayoutBasic writes only the parameter sheet.
	LayoutBasic Layout = "basic"
)

// ParseLayout validates a layout name (case-insensitive). Empty means extended.
func ParseLayout(s string) (Layout, error) {
	switch Layout(strings.ToLower(strings.TrimSpace(s))) {
	case "", LayoutExtended:
		return LayoutExtended, nil
	case LayoutBasic:
		return LayoutBasic, nil
	default:
		return "", fmt.Errorf("unsupported export layout: %s (supported: extended, basic)", s)
	}
}

// Build creates the workbook for (repoURL, service). Callers must Close it.
func Build(set assessment.Set, repoURL, service string, layout Layout) (*excelize.File, error) {
	svc := set.Lookup(repoURL, service)
	if svc == nil {
		slog.Warn("Export skipped: selection not found in assessment data",
			"repoUrl", repoURL, "service", service)
		return nil, ErrNoSelection
	}

	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error creating bold style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetAssessment); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("error renaming sheet: %w", err)
	}
	if err := writeAssessmentSheet(f, svc, repoURL, service, bold); err != nil {
		_ = f.Close()
		return nil, err
	}

	if layout == LayoutExtended {
		if err := writeArtifactsSheet(f, svc, bold); err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := writeFoldersSheet(f, svc, bold); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

// Write builds the workbook and streams it to w.
func Write(w io.Writer, set assessment.Set, repoURL, service string, layout Layout) error {
	f, err := Build(set, repoURL, service, layout)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			slog.Warn("error closing workbook", "error", cerr)
		}
	}()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	slog.Info("Workbook exported", "repoUrl", repoURL, "service", service, "layout", layout)
	return nil
}

func writeAssessmentSheet(f *excelize.File, svc *assessment.ServiceAssessment, repoURL, service string, bold int) error {
	sheet := SheetAssessment
	header := [][]interface{}{
		{"Application Details"},
		{"Repo URL", cellText(repoURL)},
		{"Service Name", cellText(service)},
		{},
		{"Generated Assessment Data"},
		{"Parameter", "Value"},
	}
	for i, row := range header {
		if len(row) == 0 {
			continue
		}
		if err := setRow(f, sheet, i+1, row); err != nil {
			return err
		}
	}

	rowNum := len(header) + 1
	for _, r := range view.SheetRules.Rows(svc) {
		if err := setRow(f, sheet, rowNum, []interface{}{r.Label, cellValue(svc, r)}); err != nil {
			return err
		}
		rowNum++
	}

	for _, cell := range []string{"A1", "A2", "A3", "A5", "A6", "B6"} {
		if err := f.SetCellStyle(sheet, cell, cell, bold); err != nil {
			return fmt.Errorf("error applying style at cell %s: %w", cell, err)
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 30); err != nil {
		return fmt.Errorf("error setting column width: %w", err)
	}
	if err := f.SetColWidth(sheet, "B", "B", 60); err != nil {
		return fmt.Errorf("error setting column width: %w", err)
	}
	return nil
}

// cellValue keeps plain numbers numeric; everything else is the formatted text.
func cellValue(svc *assessment.ServiceAssessment, r view.Row) interface{} {
	if v, ok := svc.Get(r.Key); ok && v.Kind == assessment.KindNumber {
		if _, custom := view.SheetRules.Fields[r.Key]; !custom {
			return v.Num
		}
	}
	return cellText(r.Value)
}

func writeArtifactsSheet(f *excelize.File, svc *assessment.ServiceAssessment, bold int) error {
	sheet := SheetArtifacts
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("error creating sheet %s: %w", sheet, err)
	}
	header := []interface{}{"Service Name", "Artifact Name", "Artifact Path", "Category", "Artifact Location"}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "E1", bold); err != nil {
		return fmt.Errorf("error applying header style: %w", err)
	}
	for i, a := range svc.Artifacts() {
		row := []interface{}{cellText(svc.Name), cellText(a.Name), cellText(a.Path), cellText(a.Category), cellText(a.Location)}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", "E", 25); err != nil {
		return fmt.Errorf("error setting column width: %w", err)
	}
	return nil
}

func writeFoldersSheet(f *excelize.File, svc *assessment.ServiceAssessment, bold int) error {
	sheet := SheetFolders
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("error creating sheet %s: %w", sheet, err)
	}
	if err := setRow(f, sheet, 1, []interface{}{"Path"}); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", "A1", bold); err != nil {
		return fmt.Errorf("error applying header style: %w", err)
	}
	for i, p := range svc.RepoStructure() {
		if err := setRow(f, sheet, i+2, []interface{}{cellText(p)}); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", "A", 60); err != nil {
		return fmt.Errorf("error setting column width: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("error converting coordinates: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("error writing row %d of %s: %w", row, sheet, err)
	}
	return nil
}

// maxCellRunes keeps cells under Excel's 32,767 character limit.
const maxCellRunes = 32000

// cellText strips control characters and caps the length on a rune boundary.
func cellText(value string) string {
	value = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, value)
	n := 0
	for i := range value {
		if n == maxCellRunes {
			return value[:i]
		}
		n++
	}
	return value
}
