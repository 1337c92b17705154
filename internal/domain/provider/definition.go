// Package provider models the declarative definitions the mock endpoint
// answers from, first-match request selection, and invocation coverage.
package provider

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/sophialabs/fixturemock/internal/domain/jsonvalue"
)

// ID identifies a registered definition. It is assigned on registration and
// is the only key coverage is tracked by.
type ID string

// NewID returns a fresh, random ID.
func NewID() ID {
	return ID(uuid.NewString())
}

// HeaderRequirement lists the values a request header must carry. List
// records whether the definition declared a list or a single value, which
// only affects how the requirement is displayed.
type HeaderRequirement struct {
	Values []string
	List   bool
}

// Template describes a dynamically rendered response body.
type Template struct {
	Engine string
	Source string
}

// Definition describes how the mock endpoint answers one class of request.
type Definition struct {
	ID ID

	Path            string
	Query           map[string][]string
	RequiredHeaders map[string]HeaderRequirement
	RequestBody     *jsonvalue.Value

	ResponseStatus   int
	ResponseBody     *jsonvalue.Value
	ResponseHeaders  map[string]string
	ResponseTemplate *Template

	// Source names where the definition was declared, usually a fixture file.
	Source string
}

// Describe renders a one-line human-readable summary.
func (d *Definition) Describe() string {
	var sb strings.Builder
	sb.WriteString(d.Path)
	if len(d.Query) > 0 {
		sb.WriteByte('?')
		sb.WriteString(url.Values(d.Query).Encode())
	}
	fmt.Fprintf(&sb, " -> %d [id=%s", d.ResponseStatus, d.ID)
	if d.Source != "" {
		sb.WriteString(" source=")
		sb.WriteString(d.Source)
	}
	sb.WriteByte(']')
	return sb.String()
}

// HeaderNames returns the required header names in sorted order.
func (d *Definition) HeaderNames() []string {
	names := make([]string, 0, len(d.RequiredHeaders))
	for name := range d.RequiredHeaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Request is an inbound HTTP request in domain terms, free of net/http.
type Request struct {
	Method  string
	Path    string
	Query   map[string][]string
	Headers map[string][]string
	Body    []byte
}

// HeaderValues returns every value of the named header. Lookup is
// case-insensitive.
func (r *Request) HeaderValues(name string) []string {
	var values []string
	for k, v := range r.Headers {
		if strings.EqualFold(k, name) {
			values = append(values, v...)
		}
	}
	return values
}
