package http_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sophialabs/fixturemock/internal/domain/jsonvalue"
	"github.com/sophialabs/fixturemock/internal/domain/provider"
	"github.com/sophialabs/fixturemock/internal/domain/trace"
	inboundhttp "github.com/sophialabs/fixturemock/internal/infrastructure/inbound/http"
	"github.com/sophialabs/fixturemock/internal/infrastructure/outbound/template"
	"github.com/sophialabs/fixturemock/internal/infrastructure/usecases"
	"github.com/sophialabs/fixturemock/internal/testutil"
)

func bodyPtr(s string) *jsonvalue.Value {
	v := jsonvalue.MustParse(s)
	return &v
}

func buildTestServer(defs ...*provider.Definition) (*inboundhttp.Server, *provider.DefinitionSet) {
	traceBuf := trace.NewBuffer(50)
	clk := &testutil.FixedClock{T: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	logger := &testutil.NoopLogger{}
	templates := template.NewRegistry()

	dispatchUC := usecases.NewDispatchUseCase(templates, clk, logger, traceBuf)
	srv := inboundhttp.NewServer(dispatchUC, templates, traceBuf, logger)

	set := provider.NewDefinitionSet(defs...)
	srv.Install(set)
	return srv, set
}

func do(srv http.Handler, method, target, body string, headers ...string) *http.Response {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Add(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w.Result()
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(b)
}

func TestMockHandler_Matches(t *testing.T) {
	srv, set := buildTestServer(&provider.Definition{
		Path:            "/ngsi-ld/v1/entities",
		Query:           map[string][]string{"type": {"Building"}},
		RequiredHeaders: map[string]provider.HeaderRequirement{"Accept": {Values: []string{"application/json"}}},
		ResponseStatus:  200,
		ResponseBody:    bodyPtr(`{"id":"urn:x"}`),
		ResponseHeaders: map[string]string{"X-Mock": "true"},
	})

	resp := do(srv, "GET", "/ngsi-ld/v1/entities?type=Building", "", "Accept", "application/json")
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := readBody(t, resp); got != "{\n  \"id\": \"urn:x\"\n}" {
		t.Errorf("unexpected body: %q", got)
	}
	if resp.Header.Get("X-Mock") != "true" {
		t.Error("expected X-Mock header")
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("unexpected content type: %s", resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get(inboundhttp.DiagnosticHeader) != "" {
		t.Error("matched responses must not carry a diagnostic header")
	}
	if !set.Coverage()[0].Invoked {
		t.Error("expected the definition to be marked invoked")
	}
}

func TestMockHandler_Diagnostics(t *testing.T) {
	srv, set := buildTestServer(&provider.Definition{
		Path:            "/csource",
		RequiredHeaders: map[string]provider.HeaderRequirement{"Link": {Values: []string{"<ctx>"}}},
		RequestBody:     bodyPtr(`{"a":1}`),
		ResponseStatus:  201,
	})

	tests := []struct {
		name     string
		method   string
		target   string
		body     string
		headers  []string
		wantKind string
		wantBody string
	}{
		{
			name:     "missing header",
			method:   "POST",
			target:   "/csource",
			body:     `{"a":1}`,
			wantKind: usecases.DiagnosticValidation,
			wantBody: "Link not received from request",
		},
		{
			name:     "unknown path",
			method:   "GET",
			target:   "/other",
			wantKind: usecases.DiagnosticNoMatch,
			wantBody: usecases.NoMatchReason,
		},
		{
			name:     "query mismatch",
			method:   "POST",
			target:   "/csource?x=1",
			body:     `{"a":1}`,
			headers:  []string{"Link", "<ctx>"},
			wantKind: usecases.DiagnosticNoMatch,
			wantBody: usecases.NoMatchReason,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(srv, tt.method, tt.target, tt.body, tt.headers...)
			if resp.StatusCode != 500 {
				t.Errorf("expected 500, got %d", resp.StatusCode)
			}
			if got := resp.Header.Get(inboundhttp.DiagnosticHeader); got != tt.wantKind {
				t.Errorf("diagnostic header = %q, want %q", got, tt.wantKind)
			}
			if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
				t.Errorf("unexpected content type: %s", resp.Header.Get("Content-Type"))
			}
			if got := readBody(t, resp); got != tt.wantBody {
				t.Errorf("body = %q, want %q", got, tt.wantBody)
			}
		})
	}

	if set.Coverage()[0].Invoked {
		t.Error("diagnostics must not mark coverage")
	}

	resp := do(srv, "POST", "/csource", `{"a":1}`, "Link", "<ctx>")
	if resp.StatusCode != 201 {
		t.Errorf("expected 201 once everything matches, got %d", resp.StatusCode)
	}
}

func TestMockHandler_NothingInstalled(t *testing.T) {
	srv, _ := buildTestServer()
	srv.Install(nil)

	resp := do(srv, "GET", "/", "")
	if resp.StatusCode != 500 || resp.Header.Get(inboundhttp.DiagnosticHeader) != usecases.DiagnosticNoMatch {
		t.Errorf("expected a no-match diagnostic, got %d %q", resp.StatusCode, resp.Header.Get(inboundhttp.DiagnosticHeader))
	}
}

func TestMockHandler_TemplateEchoesRequest(t *testing.T) {
	srv, _ := buildTestServer(&provider.Definition{
		Path:           "/echo",
		ResponseStatus: 200,
		ResponseTemplate: &provider.Template{
			Engine: "expr",
			Source: `{"method":"${method}","type":"${queryParam('type')}","id":${toJSON(jsonPath('$.id'))}}`,
		},
	})

	resp := do(srv, "POST", "/echo?type=Room", `{"id":"urn:r1"}`)
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := readBody(t, resp); got != `{"method":"POST","type":"Room","id":"urn:r1"}` {
		t.Errorf("unexpected body: %s", got)
	}
}

func TestAdmin_DefinitionsAndCoverage(t *testing.T) {
	srv, _ := buildTestServer(&provider.Definition{Path: "/a", ResponseStatus: 200, Source: "seed.json"})

	resp := do(srv, "POST", "/__admin/definitions", `[{"endpoint":{"path":"/b"},"response-code":204}]`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var created struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(created.IDs) != 1 || created.IDs[0] == "" {
		t.Fatalf("unexpected ids: %v", created.IDs)
	}

	resp = do(srv, "POST", "/__admin/definitions", "- endpoint: {path: /c}\n  response-code: 200\n", "Content-Type", "application/yaml")
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for YAML, got %d", resp.StatusCode)
	}

	if r := do(srv, "DELETE", "/b", ""); r.StatusCode != 204 {
		t.Errorf("expected appended definition to serve 204, got %d", r.StatusCode)
	}

	var defs []map[string]any
	if err := json.NewDecoder(do(srv, "GET", "/__admin/definitions", "").Body).Decode(&defs); err != nil {
		t.Fatalf("decode definitions: %v", err)
	}
	if len(defs) != 3 || defs[0]["path"] != "/a" || defs[0]["source"] != "seed.json" {
		t.Errorf("unexpected definitions: %v", defs)
	}

	var cov []struct {
		Path    string `json:"path"`
		Invoked bool   `json:"invoked"`
	}
	if err := json.NewDecoder(do(srv, "GET", "/__admin/coverage", "").Body).Decode(&cov); err != nil {
		t.Fatalf("decode coverage: %v", err)
	}
	if len(cov) != 3 || cov[0].Invoked || !cov[1].Invoked || cov[2].Invoked {
		t.Errorf("unexpected coverage: %+v", cov)
	}
}

func TestAdmin_AppendRejectsInvalid(t *testing.T) {
	srv, set := buildTestServer()

	tests := []struct {
		name string
		body string
	}{
		{"not json", `{`},
		{"missing response code", `[{"endpoint":{"path":"/x"}}]`},
		{"bad template", `[{"endpoint":{"path":"/x"},"response-code":200,"response-template":{"engine":"velocity","source":"x"}}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(srv, "POST", "/__admin/definitions", tt.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
	if set.Len() != 0 {
		t.Errorf("rejected definitions must not be installed, got %d", set.Len())
	}

	srv.Install(nil)
	if resp := do(srv, "POST", "/__admin/definitions", `[]`); resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 without an installed set, got %d", resp.StatusCode)
	}
}

func TestAdmin_TraceAndHealth(t *testing.T) {
	srv, _ := buildTestServer(&provider.Definition{Path: "/a", ResponseStatus: 200})

	do(srv, "GET", "/a", "")
	do(srv, "GET", "/missing", "")
	do(srv, "GET", "/a?x=1", "")

	var entries []trace.Entry
	if err := json.NewDecoder(do(srv, "GET", "/__admin/trace?last=2", "").Body).Decode(&entries); err != nil {
		t.Fatalf("decode trace: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Outcome != trace.OutcomeNoMatch || entries[0].Path != "/missing" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Query != "x=1" {
		t.Errorf("expected query to be recorded, got %+v", entries[1])
	}

	var health map[string]any
	if err := json.NewDecoder(do(srv, "GET", "/__admin/health", "").Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health["status"] != "ok" || health["definitions"] != float64(1) {
		t.Errorf("unexpected health: %v", health)
	}
}

func TestMockHandler_OversizedBodyIsRejected(t *testing.T) {
	srv, set := buildTestServer(&provider.Definition{Path: "/upload", ResponseStatus: 201})
	big := strings.Repeat("x", 10<<20+1)

	resp := do(srv, "POST", "/upload", big)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get(inboundhttp.DiagnosticHeader); got != usecases.DiagnosticValidation {
		t.Errorf("expected validation diagnostic, got %q", got)
	}
	if body := readBody(t, resp); !strings.Contains(body, "request body exceeds") {
		t.Errorf("unexpected body %q", body)
	}
	if set.Coverage()[0].Invoked {
		t.Error("an oversized request must not mark the definition as covered")
	}

	var entries []trace.Entry
	if err := json.NewDecoder(do(srv, "GET", "/__admin/trace?last=1", "").Body).Decode(&entries); err != nil {
		t.Fatalf("decode trace: %v", err)
	}
	if len(entries) != 1 || entries[0].Outcome != trace.OutcomeValidationFailed {
		t.Errorf("expected a validation trace entry, got %+v", entries)
	}

	resp = do(srv, "POST", "/__admin/definitions", big, "Content-Type", "application/json")
	if resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("admin append: expected 413, got %d", resp.StatusCode)
	}
}
