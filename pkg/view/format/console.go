// Package format renders assessment tables and repository checks for the
// terminal. It adapts column widths to the console and supports color and
// truncation.
package format

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"

	"github.com/greg-hellings/portal/pkg/ingest"
	"github.com/greg-hellings/portal/pkg/view"
)

// ConsoleFormatter renders tables that attempt to fit the current console
// width.
type ConsoleFormatter struct {
	// MaxValueColWidth constrains the value column of the parameter table.
	// If 0, a dynamic width is chosen based on terminal width.
	MaxValueColWidth int

	// EnableColors toggles ANSI color output for status cells.
	EnableColors bool
}

// NewConsoleFormatter creates a formatter with sensible defaults.
func NewConsoleFormatter() *ConsoleFormatter {
	return &ConsoleFormatter{
		MaxValueColWidth: 0,
		EnableColors:     true,
	}
}

func newTableWriter(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateRows = false
	tw.Style().Options.SeparateColumns = false
	tw.Style().Options.DrawBorder = true
	return tw
}

// RenderTable writes the parameter table of one service, followed by its
// artifacts and folder structure when present.
func (f *ConsoleFormatter) RenderTable(tbl *view.Table, writer io.Writer) error {
	if tbl == nil {
		return errors.New("nil table")
	}

	tw := newTableWriter(writer)
	tw.SetTitle("%s / %s", tbl.RepoURL, tbl.Service)
	tw.AppendHeader(table.Row{"Parameter", "Value"})
	if cfg := f.valueColumnConfig(tbl, writer); cfg != nil {
		tw.SetColumnConfigs([]table.ColumnConfig{*cfg})
	}

	var artifactRow, folderRow *view.Row
	for i := range tbl.Rows {
		row := &tbl.Rows[i]
		value := row.Value
		switch row.Cell {
		case view.CellArtifacts:
			artifactRow = row
			value = f.color(fmt.Sprintf("%d artifact(s)", len(row.Artifacts)), text.FgCyan)
		case view.CellFolder:
			folderRow = row
			value = f.color(fmt.Sprintf("%d path(s)", len(row.Paths)), text.FgCyan)
		}
		tw.AppendRow(table.Row{row.Label, value})
	}
	tw.Render()

	if artifactRow != nil && len(artifactRow.Artifacts) > 0 {
		if _, err := fmt.Fprintf(writer, "\nArtifacts:\n"); err != nil {
			return fmt.Errorf("failed writing artifacts header: %w", err)
		}
		at := newTableWriter(writer)
		at.AppendHeader(table.Row{"Name", "Path", "Category", "Location"})
		for _, a := range artifactRow.Artifacts {
			at.AppendRow(table.Row{a.Name, a.Path, a.Category, a.Location})
		}
		at.Render()
	}

	if folderRow != nil && len(folderRow.Paths) > 0 {
		if _, err := fmt.Fprintf(writer, "\nFolder structure:\n"); err != nil {
			return fmt.Errorf("failed writing folder structure header: %w", err)
		}
		for _, p := range folderRow.Paths {
			if _, err := fmt.Fprintf(writer, "  %s\n", p); err != nil {
				return fmt.Errorf("failed writing path %s: %w", p, err)
			}
		}
	}
	return nil
}

// RenderVerifications writes one row per checked repository and a summary.
func (f *ConsoleFormatter) RenderVerifications(results []ingest.Verification, writer io.Writer) error {
	tw := newTableWriter(writer)
	tw.AppendHeader(table.Row{"Line", "Repository", "Provider", "Full Name", "Default Branch", "Status"})
	if width := detectTerminalWidth(writer); width > 0 {
		urlWidth := width / 3
		if urlWidth < 20 {
			urlWidth = 20
		}
		tw.SetColumnConfigs([]table.ColumnConfig{{
			Number:      2,
			WidthMax:    urlWidth,
			Transformer: truncTransformer(urlWidth),
		}})
	}

	ok := 0
	for _, v := range results {
		fullName, branch := "", ""
		status := f.color("ERROR", text.FgRed)
		if v.OK() {
			ok++
			fullName, branch = v.Info.FullName, v.Info.DefaultBranch
			status = f.color("OK", text.FgGreen)
		}
		provider := string(v.Ref.Provider)
		if provider == "" {
			provider = f.color("-", text.FgHiBlack)
		}
		tw.AppendRow(table.Row{v.Row.Line, v.Row.RepoURL, provider, fullName, branch, status})
	}
	tw.Render()

	if _, err := fmt.Fprintln(writer); err != nil {
		return fmt.Errorf("failed writing summary spacer newline: %w", err)
	}
	if _, err := fmt.Fprintf(writer, "Summary:\n  Repositories verified: %d/%d successful\n", ok, len(results)); err != nil {
		return fmt.Errorf("failed writing summary: %w", err)
	}

	if ok < len(results) {
		if _, err := fmt.Fprintf(writer, "\nErrors:\n"); err != nil {
			return fmt.Errorf("failed writing errors header: %w", err)
		}
		for _, v := range results {
			if v.OK() {
				continue
			}
			if _, err := fmt.Fprintf(writer, "  line %-4d %-40s %v\n", v.Row.Line, v.Row.RepoURL, v.Err); err != nil {
				return fmt.Errorf("failed writing error line for %s: %w", v.Row.RepoURL, err)
			}
		}
	}
	return nil
}

// valueColumnConfig sizes the value column to the terminal.
func (f *ConsoleFormatter) valueColumnConfig(tbl *view.Table, w io.Writer) *table.ColumnConfig {
	width := f.MaxValueColWidth
	if width <= 0 {
		termWidth := detectTerminalWidth(w)
		if termWidth <= 0 {
			return nil
		}
		if termWidth < 60 {
			termWidth = 60
		}
		labelWidth := 0
		for _, r := range tbl.Rows {
			if l := utf8.RuneCountInString(r.Label); l > labelWidth {
				labelWidth = l
			}
		}
		width = termWidth - labelWidth - 7 // borders and padding
		if width < 20 {
			width = 20
		}
	}
	return &table.ColumnConfig{
		Number:      2,
		WidthMax:    width,
		Transformer: truncTransformer(width),
	}
}

// detectTerminalWidth attempts to get terminal width if writer is a file (stdout/stderr).
func detectTerminalWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			return width
		}
	}
	return -1
}

// truncTransformer returns a text.Transformer that ellipsizes each line of a
// cell to max runes.
func truncTransformer(max int) text.Transformer {
	return func(val interface{}) string {
		lines := strings.Split(fmt.Sprint(val), "\n")
		for i, l := range lines {
			if utf8.RuneCountInString(l) > max {
				lines[i] = truncateRunes(l, max)
			}
		}
		return strings.Join(lines, "\n")
	}
}

// truncateRunes truncates a string to (max) runes with ellipsis.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	var b strings.Builder
	count := 0
	for _, r := range s {
		if count >= max-1 {
			break
		}
		b.WriteRune(r)
		count++
	}
	b.WriteRune('…')
	return b.String()
}

func (f *ConsoleFormatter) color(s string, c text.Color) string {
	if !f.EnableColors {
		return s
	}
	return text.Colors{c}.Sprint(s)
}
