// Package ingest reads the repository CSV and drives the per-row clone
// requests. A valid row carries both a repository URL and an access token;
// anything else is skipped without a request.
package ingest

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Recognised CSV headers.
const (
	HeaderRepoURL     = "repo_url"
	HeaderAccessToken = "access_token"

	// SampleFilename is the download name of the template CSV.
	SampleFilename = "input.csv"
)

// Row is one CSV record.
type Row struct {
	Line        int // 1-based line number in the file, header is line 1
	RepoURL     string
	AccessToken string
}

// Valid reports whether both fields are present.
func (r Row) Valid() bool {
	return r.RepoURL != "" && r.AccessToken != ""
}

// ParseRows reads a CSV with a header line. Columns are located by header
// name; extra columns are ignored and a missing column yields empty values.
func ParseRows(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	urlCol, tokenCol := -1, -1
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		switch h {
		case HeaderRepoURL:
			urlCol = i
		case HeaderAccessToken:
			tokenCol = i
		}
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, Row{
			Line:        line,
			RepoURL:     column(record, urlCol),
			AccessToken: column(record, tokenCol),
		})
	}
	return rows, nil
}

func column(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return record[idx]
}

// ValidRows filters rows down to those that will be processed.
func ValidRows(rows []Row) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Valid() {
			out = append(out, r)
		}
	}
	return out
}

// SampleCSV returns the template: both headers and one empty row.
func SampleCSV() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{HeaderRepoURL, HeaderAccessToken})
	_ = w.Write([]string{"", ""})
	w.Flush()
	return buf.Bytes()
}

// RedactToken masks a token for logs and terminal output.
func RedactToken(t string) string {
	if t == "" {
		return ""
	}
	if len(t) <= 4 {
		return "***"
	}
	return t[:4] + "***"
}
