package fixturemock_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	inboundhttp "github.com/sophialabs/fixturemock/internal/infrastructure/inbound/http"
	"github.com/sophialabs/fixturemock/internal/infrastructure/wiring"
	"github.com/sophialabs/fixturemock/internal/testutil"
)

const entitiesPrefix = "/ngsi-ld/v1/entities"

// broker is a minimal entity store standing in for the service under test.
// Entities it does not hold are fetched from a context source, which the
// fixtures provide through the mock endpoint.
type broker struct {
	mu       sync.Mutex
	entities map[string]json.RawMessage
	types    map[string]string
	source   func() string
}

func newBroker(source func() string) *broker {
	return &broker{
		entities: make(map[string]json.RawMessage),
		types:    make(map[string]string),
		source:   source,
	}
}

func (b *broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, entitiesPrefix), "/")

	switch {
	case r.Method == http.MethodPost && id == "":
		b.create(w, r)
	case r.Method == http.MethodGet && id == "":
		b.query(w, r.URL.Query().Get("type"))
	case r.Method == http.MethodGet:
		b.retrieve(w, id)
	case r.Method == http.MethodDelete:
		b.remove(w, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (b *broker) create(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var head struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.ID == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.entities[head.ID]; exists {
		w.WriteHeader(http.StatusConflict)
		return
	}
	b.entities[head.ID] = raw
	b.types[head.ID] = head.Type
	w.Header().Set("Location", entitiesPrefix+"/"+head.ID)
	w.WriteHeader(http.StatusCreated)
}

func (b *broker) query(w http.ResponseWriter, typ string) {
	b.mu.Lock()
	ids := make([]string, 0, len(b.entities))
	for id := range b.entities {
		if typ == "" || b.types[id] == typ {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := make([]json.RawMessage, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.entities[id])
	}
	b.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (b *broker) retrieve(w http.ResponseWriter, id string) {
	b.mu.Lock()
	raw, ok := b.entities[id]
	b.mu.Unlock()
	if ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
		return
	}

	source := b.source()
	if source == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	req, _ := http.NewRequest(http.MethodGet, source+entitiesPrefix+"/"+id, nil)
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.Copy(w, resp.Body)
}

func (b *broker) remove(w http.ResponseWriter, id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.entities[id]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	delete(b.entities, id)
	delete(b.types, id)
	w.WriteHeader(http.StatusNoContent)
}

func setupE2E(t *testing.T, fixturesDir string) *wiring.Container {
	t.Helper()

	var container *wiring.Container
	sut := httptest.NewServer(newBroker(func() string {
		if addr := container.Endpoint().Addr(); addr != nil {
			return "http://" + addr.String()
		}
		return ""
	}))
	t.Cleanup(sut.Close)

	c, err := wiring.New(wiring.Params{
		FixturesDir:     fixturesDir,
		TargetURL:       sut.URL,
		DefaultMockPort: 0,
		RequestTimeout:  5 * time.Second,
		TraceSize:       100,
		Endpoint: inboundhttp.EndpointConfig{
			Host:            "127.0.0.1",
			ShutdownTimeout: 5 * time.Second,
		},
		Logger: &testutil.NoopLogger{},
	})
	if err != nil {
		t.Fatalf("failed to wire: %v", err)
	}
	t.Cleanup(c.Close)
	container = c
	return c
}

func TestE2E_SuitePasses(t *testing.T) {
	c := setupE2E(t, "./testdata/fixtures")

	report, err := c.RunAllUseCase().Execute(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	wantOrder := []string{
		"01-create-entity.json",
		"02-get-entity.yaml",
		"03-query-by-type.json",
		"04-delete-entity.json",
		"federation/01-remote-entity.json",
		"federation/02-templated-entity.yaml",
	}
	if len(report.Verdicts) != len(wantOrder) {
		t.Fatalf("expected %d verdicts, got %d:\n%s", len(wantOrder), len(report.Verdicts), report)
	}
	for i, v := range report.Verdicts {
		if v.Fixture != wantOrder[i] {
			t.Errorf("verdict %d is %s, want %s", i, v.Fixture, wantOrder[i])
		}
	}
	if !report.Passed() {
		t.Fatalf("expected the suite to pass:\n%s", report)
	}
	if report.Verdicts[2].PassedStep != 1 {
		t.Errorf("the type query should pass on its second alternative, got step %d", report.Verdicts[2].PassedStep)
	}
	if c.Endpoint().Bound() {
		t.Error("the mock endpoint must be stopped after the run")
	}

	entries := c.TraceBuf().Recent(10)
	if len(entries) != 2 {
		t.Fatalf("expected 2 mock dispatches, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Status != 200 {
			t.Errorf("unexpected dispatch: %+v", e)
		}
	}
}

func TestE2E_FailuresAreReported(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	// The entity does not exist, so the broker asks the context source with
	// Accept set, which the definition below does not allow.
	write("a-wrong-status.json", `{
	  "responses": [{
	    "originalRequest": {"method": "GET", "url": {"path": "ngsi-ld/v1/entities/urn:x"}},
	    "code": 200,
	    "body": "{\"id\": \"urn:x\"}"
	  }],
	  "dataProviders": {"defs": [
	    {"endpoint": {"path": "/ngsi-ld/v1/entities/urn:x"}, "request-headers": {"Accept": "application/ld+json"}, "response-code": 200, "response-body": {"id": "urn:x"}},
	    {"endpoint": {"path": "/ngsi-ld/v1/types"}, "response-code": 200, "response-body": []}
	  ]}
	}`)
	write("b-broken.json", `{"responses": []}`)

	c := setupE2E(t, dir)
	report, err := c.RunAllUseCase().Execute(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(report.Verdicts) != 2 {
		t.Fatalf("expected 2 verdicts, got %d", len(report.Verdicts))
	}
	first := report.Verdicts[0]
	if first.Passed() || len(first.Failures) != 2 {
		t.Fatalf("unexpected verdict: %+v", first)
	}
	if first.Failures[0] != "step 0: Expected response code: 200 but got 404" {
		t.Errorf("unexpected failure: %q", first.Failures[0])
	}
	if !strings.HasPrefix(first.Failures[1], "step 0: Body was expected to be") {
		t.Errorf("unexpected failure: %q", first.Failures[1])
	}
	if !strings.HasPrefix(report.Verdicts[1].Failures[0], "load: ") {
		t.Errorf("expected a load failure, got %v", report.Verdicts[1].Failures)
	}

	if len(report.Uncovered) != 2 {
		t.Fatalf("expected both definitions uncovered, got %v", report.Uncovered)
	}

	entries := c.TraceBuf().Recent(1)
	if len(entries) != 1 || entries[0].Reason != "Accept was expected to have value application/ld+json but had [\"application/json\"]" {
		t.Errorf("unexpected trace: %+v", entries)
	}
}

func TestE2E_AdminAPI(t *testing.T) {
	c := setupE2E(t, "./testdata/fixtures")
	if err := c.Endpoint().Bind(context.Background(), 0, nil); err != nil {
		t.Fatalf("bind: %v", err)
	}
	base := fmt.Sprintf("http://%s", c.Endpoint().Addr())

	resp, err := http.Post(base+"/__admin/definitions", "application/json",
		strings.NewReader(`{"defs": [{"endpoint": {"path": "/ngsi-ld/v1/types"}, "response-code": 200, "response-body": {"typeList": ["Building"]}}]}`))
	if err != nil {
		t.Fatalf("POST definitions: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	resp, err = http.Get(base + "/ngsi-ld/v1/types")
	if err != nil {
		t.Fatalf("GET types: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"Building"`) {
		t.Errorf("unexpected response %d: %s", resp.StatusCode, body)
	}

	resp, err = http.Get(base + "/ngsi-ld/v1/subscriptions")
	if err != nil {
		t.Fatalf("GET subscriptions: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != 500 || resp.Header.Get(inboundhttp.DiagnosticHeader) != "no-match" {
		t.Errorf("expected no-match diagnostic, got %d %q", resp.StatusCode, resp.Header.Get(inboundhttp.DiagnosticHeader))
	}

	coverage, err := c.Endpoint().Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(coverage) != 1 || !coverage[0].Invoked {
		t.Errorf("unexpected coverage: %+v", coverage)
	}
}
