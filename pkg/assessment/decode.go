package assessment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// ResultsField is the response key holding the per-repository array.
const ResultsField = "repoDetails"

var (
	// ErrMalformed is returned when the response body is not valid JSON.
	ErrMalformed = errors.New("assessment: malformed response body")
	// ErrNotArray is returned when repoDetails is missing or not an array.
	ErrNotArray = errors.New("assessment: repoDetails is not an array")
	// ErrNoResults is returned when repoDetails is an empty array.
	ErrNoResults = errors.New("assessment: repoDetails is empty")
)

// Decode parses an assessment response body. Document order of repositories,
// services and fields is preserved.
func Decode(body []byte) (Set, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrMalformed
	}
	details := gjson.GetBytes(body, ResultsField)
	if !details.IsArray() {
		return nil, fmt.Errorf("%w (got %s)", ErrNotArray, describe(details))
	}
	entries := details.Array()
	if len(entries) == 0 {
		return nil, ErrNoResults
	}

	set := make(Set, 0, len(entries))
	for _, entry := range entries {
		set = append(set, decodeResult(entry))
	}
	return set, nil
}

func decodeResult(entry gjson.Result) *Result {
	res := &Result{RepoURL: entry.Get("repoUrl").String()}
	services := entry.Get("responseDetails")
	if !services.IsObject() {
		return res
	}
	services.ForEach(func(key, svc gjson.Result) bool {
		res.Services = append(res.Services, decodeService(key.String(), svc))
		return true
	})
	return res
}

func decodeService(name string, svc gjson.Result) *ServiceAssessment {
	out := &ServiceAssessment{Name: name}
	if !svc.IsObject() {
		return out
	}
	svc.ForEach(func(key, val gjson.Result) bool {
		out.Fields = append(out.Fields, Field{Key: key.String(), Value: fromResult(val)})
		return true
	})
	return out
}

func fromResult(r gjson.Result) Value {
	v := Value{Raw: r.Raw}
	switch r.Type {
	case gjson.String:
		v.Kind = KindString
		v.Str = r.Str
	case gjson.Number:
		v.Kind = KindNumber
		v.Num = r.Num
	case gjson.True, gjson.False:
		v.Kind = KindBool
		v.Bool = r.Bool()
	case gjson.JSON:
		if r.IsArray() {
			v.Kind = KindArray
			r.ForEach(func(_, item gjson.Result) bool {
				v.Items = append(v.Items, fromResult(item))
				return true
			})
		} else {
			v.Kind = KindObject
		}
	default:
		v.Kind = KindNull
	}
	return v
}

func artifactFromRaw(raw string) Artifact {
	fields := gjson.GetMany(raw, "artifactName", "artifactPath", "category", "artifactLocation")
	return Artifact{
		Name:     fields[0].String(),
		Path:     fields[1].String(),
		Category: fields[2].String(),
		Location: fields[3].String(),
	}
}

func describe(r gjson.Result) string {
	if !r.Exists() {
		return "nothing"
	}
	if r.IsObject() {
		return "object"
	}
	return r.Type.String()
}

// Pretty renders raw JSON with two-space indentation.
func Pretty(raw string) string {
	out := pretty.PrettyOptions([]byte(raw), &pretty.Options{Width: 80, Indent: "  "})
	return string(bytes.TrimRight(out, "\n"))
}

func compact(raw string) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(raw)); err != nil {
		return raw
	}
	return buf.String()
}

// MarshalJSON writes the result set back in the backend's wire shape.
func (s Set) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range s {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := r.MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// MarshalJSON writes one result as {"repoUrl":..,"responseDetails":{..}}.
func (r *Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	url, err := json.Marshal(r.RepoURL)
	if err != nil {
		return nil, err
	}
	buf.WriteString(`{"repoUrl":`)
	buf.Write(url)
	buf.WriteString(`,"responseDetails":{`)
	for i, svc := range r.Services {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(svc.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.WriteByte('{')
		for j, f := range svc.Fields {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(f.Key)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if f.Value.Raw == "" {
				buf.WriteString("null")
			} else {
				buf.WriteString(f.Value.Raw)
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteString(`}}`)
	return buf.Bytes(), nil
}
