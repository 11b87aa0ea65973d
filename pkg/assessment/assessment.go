// Package assessment holds the per-repository, per-service result set returned
// by the assessment backend. Field and service order is kept exactly as the
// backend sent it: the first service of a repository is the default selection
// and the parameter table lists fields in document order.
package assessment

import (
	"strconv"
	"strings"
)

// Recognised service field names.
const (
	FieldServiceName         = "serviceName"
	FieldCloudInfrastructure = "cloudInfrastructure"
	FieldRepoStructure       = "repoStructure"
	FieldArtifacts           = "artifacts"
)

// Kind identifies the JSON type of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindArray
	KindObject
)

// String returns the lowercase kind name.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindArray:
		return "array"
	case KindObject:
		return "object"
	default:
		return "null"
	}
}

// Value is a decoded JSON value that still carries its raw text.
type Value struct {
	Kind  Kind
	Str   string
	Num   float64
	Bool  bool
	Items []Value // set for KindArray
	Raw   string  // JSON text as received
}

// Text returns the plain-text form of a scalar, or the comma-joined items of
// an array (no space, like a JavaScript array's string form). Objects return
// their compact JSON.
func (v Value) Text() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindArray:
		return v.Join(",")
	case KindObject:
		return compact(v.Raw)
	default:
		return ""
	}
}

// Join renders the items of an array separated by sep. Non-array values
// render as their Text.
func (v Value) Join(sep string) string {
	if v.Kind != KindArray {
		return v.Text()
	}
	parts := make([]string, len(v.Items))
	for i, it := range v.Items {
		parts[i] = it.Text()
	}
	return strings.Join(parts, sep)
}

// Strings returns the text of each array item. Non-array values yield nil.
func (v Value) Strings() []string {
	if v.Kind != KindArray {
		return nil
	}
	out := make([]string, 0, len(v.Items))
	for _, it := range v.Items {
		out = append(out, it.Text())
	}
	return out
}

// Field is one key of a service assessment.
type Field struct {
	Key   string
	Value Value
}

// Artifact is a build or deployment output attached to a service.
type Artifact struct {
	Name     string `json:"artifactName"`
	Path     string `json:"artifactPath"`
	Category string `json:"category"`
	Location string `json:"artifactLocation"`
}

// ServiceAssessment is the parameter set of one service of a repository.
type ServiceAssessment struct {
	// Name is the key under which the service appears in responseDetails.
	Name   string
	Fields []Field
}

// Get returns the value of key and whether it is present.
func (s *ServiceAssessment) Get(key string) (Value, bool) {
	if s == nil {
		return Value{}, false
	}
	for _, f := range s.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Value{}, false
}

// Artifacts returns the artifacts list. Non-object entries are skipped.
func (s *ServiceAssessment) Artifacts() []Artifact {
	v, ok := s.Get(FieldArtifacts)
	if !ok || v.Kind != KindArray {
		return nil
	}
	out := make([]Artifact, 0, len(v.Items))
	for _, it := range v.Items {
		if it.Kind != KindObject {
			continue
		}
		out = append(out, artifactFromRaw(it.Raw))
	}
	return out
}

// RepoStructure returns the folder-structure paths of the service.
func (s *ServiceAssessment) RepoStructure() []string {
	v, ok := s.Get(FieldRepoStructure)
	if !ok {
		return nil
	}
	return v.Strings()
}

// Result is the assessment of a single repository.
type Result struct {
	RepoURL  string
	Services []*ServiceAssessment
}

// Service looks a service up by name.
func (r *Result) Service(name string) *ServiceAssessment {
	if r == nil {
		return nil
	}
	for _, s := range r.Services {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// ServiceNames lists service names in document order.
func (r *Result) ServiceNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Services))
	for _, s := range r.Services {
		names = append(names, s.Name)
	}
	return names
}

// Set is the full result set of one assessment run.
type Set []*Result

// Find returns the result for repoURL, or nil.
func (s Set) Find(repoURL string) *Result {
	for _, r := range s {
		if r.RepoURL == repoURL {
			return r
		}
	}
	return nil
}

// RepoURLs lists repository URLs in document order.
func (s Set) RepoURLs() []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, r.RepoURL)
	}
	return out
}

// Lookup resolves a (repo, service) pair. Either miss yields nil.
func (s Set) Lookup(repoURL, service string) *ServiceAssessment {
	if repoURL == "" || service == "" {
		return nil
	}
	return s.Find(repoURL).Service(service)
}
