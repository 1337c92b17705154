// Package fixture models recorded request/response alternatives and the
// verdicts produced by replaying them against a service under test.
package fixture

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/sophialabs/fixturemock/internal/domain/jsonvalue"
	"github.com/sophialabs/fixturemock/internal/domain/provider"
)

// ErrInvalidFixture indicates a fixture document that cannot be used.
var ErrInvalidFixture = errors.New("invalid fixture")

// Method is an HTTP method a fixture step may use.
type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

// ParseMethod validates s as a supported method.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToUpper(s)); m {
	case MethodGet, MethodPost, MethodPut, MethodPatch, MethodDelete:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unsupported method %q", ErrInvalidFixture, s)
	}
}

// Pair is an ordered key/value entry such as a header or query parameter.
type Pair struct {
	Key   string
	Value string
}

// ExpectedRequest is the request a step sends to the service under test.
type ExpectedRequest struct {
	Method       Method
	PathSegments []string
	Query        []Pair
	Headers      []Pair
	Body         *string
}

// URL joins base with the path segments and appends the query.
func (r ExpectedRequest) URL(base string) string {
	u := strings.TrimSuffix(base, "/") + "/" + strings.Join(r.PathSegments, "/")
	if len(r.Query) == 0 {
		return u
	}
	parts := make([]string, 0, len(r.Query))
	for _, q := range r.Query {
		parts = append(parts, url.QueryEscape(q.Key)+"="+url.QueryEscape(q.Value))
	}
	return u + "?" + strings.Join(parts, "&")
}

// ExpectedResponse is what the service under test should answer.
type ExpectedResponse struct {
	StatusCode int
	Headers    []Pair
	Body       *jsonvalue.Value
}

// Step pairs one request with its expected response.
type Step struct {
	Request  ExpectedRequest
	Response ExpectedResponse
}

// ProviderBlock declares the dependent-service behavior a fixture needs.
// A nil Port means the definitions are appended to the running endpoint.
type ProviderBlock struct {
	Port        *int
	Definitions []*provider.Definition
}

// Fixture is one logical test case. Steps are acceptable alternatives: the
// first step that fully succeeds passes the fixture.
type Fixture struct {
	Name      string
	Steps     []Step
	Providers *ProviderBlock
}
