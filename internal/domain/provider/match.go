package provider

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sophialabs/fixturemock/internal/domain/compare"
	"github.com/sophialabs/fixturemock/internal/domain/jsonvalue"
)

// Result is the outcome of matching a request against a definition list.
// A nil Definition means no definition's path and query matched. A non-empty
// ValidationError means the first candidate matched but the request failed
// its header or body requirements.
type Result struct {
	Definition      *Definition
	ValidationError string
}

// Matched reports whether a candidate was found.
func (r Result) Matched() bool { return r.Definition != nil }

// Valid reports whether a candidate was found and the request satisfied it.
func (r Result) Valid() bool { return r.Definition != nil && r.ValidationError == "" }

// Match selects the first definition whose path and query parameters equal
// the request's, then validates headers and body against it. Later
// definitions with the same path and query are never considered.
func Match(req *Request, defs []*Definition) Result {
	for _, d := range defs {
		if d.Path != req.Path || !queryEqual(req.Query, d.Query) {
			continue
		}
		if msg := validateHeaders(req, d); msg != "" {
			return Result{Definition: d, ValidationError: msg}
		}
		if msg := validateBody(req, d); msg != "" {
			return Result{Definition: d, ValidationError: msg}
		}
		return Result{Definition: d}
	}
	return Result{}
}

func queryEqual(a, b map[string][]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !slices.Equal(av, bv) {
			return false
		}
	}
	return true
}

func validateHeaders(req *Request, d *Definition) string {
	for _, name := range d.HeaderNames() {
		observed := req.HeaderValues(name)
		if len(observed) == 0 {
			return name + " not received from request"
		}
		for _, want := range d.RequiredHeaders[name].Values {
			if !slices.Contains(observed, want) {
				return fmt.Sprintf("%s was expected to have value %s but had %s", name, want, renderStrings(observed))
			}
		}
	}
	return ""
}

func validateBody(req *Request, d *Definition) string {
	if d.RequestBody == nil {
		if body := strings.TrimSpace(string(req.Body)); body != "" {
			return "expected no body but got " + body
		}
		return ""
	}

	received, err := jsonvalue.Parse(req.Body)
	if err != nil {
		return fmt.Sprintf("body was expected to be %s but could not be parsed: %v", d.RequestBody, err)
	}
	if v := compare.Compare(received, *d.RequestBody); !v.IsEqual() {
		return "request body mismatch: " + v.Reason
	}
	return ""
}

func renderStrings(values []string) string {
	items := make([]jsonvalue.Value, len(values))
	for i, v := range values {
		items[i] = jsonvalue.String(v)
	}
	return jsonvalue.Array(items...).String()
}
