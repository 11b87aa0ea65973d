// Package view turns a service assessment into labelled parameter rows.
// Formatting is data: the page and terminal share one Rules value and the
// spreadsheet has another, each keyed by field name, with value-kind defaults
// for everything else.
package view

import (
	"regexp"
	"unicode"
	"unicode/utf8"

	"github.com/greg-hellings/portal/pkg/assessment"
)

// CellKind tells a renderer how to present a value cell.
type CellKind string

const (
	CellText      CellKind = "text"
	CellCode      CellKind = "code"      // pretty-printed structured dump
	CellArtifacts CellKind = "artifacts" // list of artifact links
	CellFolder    CellKind = "folder"    // single folder-structure link
)

// EmptyListMarker replaces an empty or missing list in spreadsheet output.
const EmptyListMarker = "[]"

// Rule describes how one field is rendered.
type Rule struct {
	Hide   bool
	Cell   CellKind                      // overrides the kind-derived cell when set
	Format func(assessment.Value) string // overrides the kind-derived text when set
}

// Rules is a field-rendering table.
type Rules struct {
	Fields map[string]Rule
	// Object renders KindObject values from their raw JSON.
	Object func(raw string) string
}

// PageRules drives the HTML and terminal parameter tables.
var PageRules = Rules{
	Fields: map[string]Rule{
		assessment.FieldServiceName:   {Hide: true},
		assessment.FieldArtifacts:     {Cell: CellArtifacts, Format: func(assessment.Value) string { return "" }},
		assessment.FieldRepoStructure: {Cell: CellFolder, Format: func(assessment.Value) string { return "View Folder Structure" }},
	},
	Object: assessment.Pretty,
}

// SheetRules drives the spreadsheet parameter rows.
var SheetRules = Rules{
	Fields: map[string]Rule{
		assessment.FieldServiceName:         {Hide: true},
		assessment.FieldArtifacts:           {Hide: true},
		assessment.FieldCloudInfrastructure: {Format: listOrMarker},
	},
	Object: func(raw string) string { return assessment.Value{Kind: assessment.KindObject, Raw: raw}.Text() },
}

func listOrMarker(v assessment.Value) string {
	if v.Kind != assessment.KindArray || len(v.Items) == 0 {
		return EmptyListMarker
	}
	return v.Join(", ")
}

// Format renders a value by kind: booleans as Yes/No, arrays comma-joined,
// objects through the rules' Object func, null as empty.
func (r Rules) Format(v assessment.Value) (string, CellKind) {
	switch v.Kind {
	case assessment.KindBool:
		if v.Bool {
			return "Yes", CellText
		}
		return "No", CellText
	case assessment.KindArray:
		return v.Join(", "), CellText
	case assessment.KindObject:
		if r.Object != nil {
			return r.Object(v.Raw), CellCode
		}
		return v.Text(), CellCode
	case assessment.KindNull:
		return "", CellText
	default:
		return v.Text(), CellText
	}
}

var camelBoundary = regexp.MustCompile(`([a-z])([A-Z])`)

// Label converts a camelCase key into a readable label:
// "cloudInfrastructure" -> "Cloud Infrastructure".
func Label(key string) string {
	if key == "" {
		return ""
	}
	spaced := camelBoundary.ReplaceAllString(key, "$1 $2")
	first, size := utf8.DecodeRuneInString(spaced)
	return string(unicode.ToUpper(first)) + spaced[size:]
}
