package view

import (
	"github.com/greg-hellings/portal/pkg/assessment"
)

// Row is one parameter/value line.
type Row struct {
	Key   string
	Label string
	Value string
	Cell  CellKind

	// Artifacts is set for CellArtifacts rows.
	Artifacts []assessment.Artifact
	// Paths is set for CellFolder rows.
	Paths []string
}

// Table is the parameter table of the active service.
type Table struct {
	RepoURL string
	Service string
	Rows    []Row
}

// Rows renders every visible field of svc in document order.
func (r Rules) Rows(svc *assessment.ServiceAssessment) []Row {
	if svc == nil {
		return nil
	}
	rows := make([]Row, 0, len(svc.Fields))
	for _, f := range svc.Fields {
		rule := r.Fields[f.Key]
		if rule.Hide {
			continue
		}
		text, cell := r.Format(f.Value)
		if rule.Format != nil {
			text = rule.Format(f.Value)
		}
		if rule.Cell != "" {
			cell = rule.Cell
		}
		row := Row{Key: f.Key, Label: Label(f.Key), Value: text, Cell: cell}
		switch cell {
		case CellArtifacts:
			row.Artifacts = svc.Artifacts()
		case CellFolder:
			row.Paths = svc.RepoStructure()
		}
		rows = append(rows, row)
	}
	return rows
}

// Derive builds the table for (repoURL, service) from the stored set. It
// returns nil when either key is empty or does not resolve.
func Derive(set assessment.Set, repoURL, service string, rules Rules) *Table {
	svc := set.Lookup(repoURL, service)
	if svc == nil {
		return nil
	}
	return &Table{
		RepoURL: repoURL,
		Service: service,
		Rows:    rules.Rows(svc),
	}
}
