package filesystem_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/sophialabs/fixturemock/internal/domain/fixture"
	"github.com/sophialabs/fixturemock/internal/infrastructure/outbound/filesystem"
)

const minimalFixture = `{"responses": [{"originalRequest": {"method": "GET", "url": {"path": ["ngsi-ld", "v1", "types"]}}, "code": 200}]}`

func newTestRepo(t *testing.T, rootDir string) *filesystem.FixtureRepository {
	t.Helper()
	repo, err := filesystem.NewFixtureRepository(rootDir)
	if err != nil {
		t.Fatalf("NewFixtureRepository failed: %v", err)
	}
	return repo
}

func TestFixtureRepository_ListLexicalOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.json", "a.yaml", "sub/c.yml", "sub/a.json", "README.md", ".hidden.json", ".git/x.json"} {
		writeFile(t, filepath.Join(dir, filepath.FromSlash(name)), minimalFixture)
	}

	names, err := newTestRepo(t, dir).List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}

	want := []string{"a.yaml", "b.json", "sub/a.json", "sub/c.yml"}
	if len(names) != len(want) {
		t.Fatalf("List() = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestFixtureRepository_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "types.json"), minimalFixture)

	f, err := newTestRepo(t, dir).Load(context.Background(), "types.json")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.Name != "types.json" {
		t.Errorf("unexpected name %q", f.Name)
	}
	if len(f.Steps) != 1 || f.Steps[0].Response.StatusCode != 200 {
		t.Errorf("unexpected steps: %+v", f.Steps)
	}
}

func TestFixtureRepository_LoadYAMLWithInclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bodies", "building.json"), `{"id": "urn:ngsi-ld:Building:1", "type": "Building"}`)
	writeFile(t, filepath.Join(dir, "create.yaml"), `
responses:
  - originalRequest:
      method: POST
      url: {path: [ngsi-ld, v1, entities]}
      body:
        raw: !include bodies/building.json
    code: 201
  - originalRequest:
      method: GET
      url: {path: [ngsi-ld, v1, entities, "urn:ngsi-ld:Building:1"]}
    code: 200
    body: !include bodies/building.json
`)

	f, err := newTestRepo(t, dir).Load(context.Background(), "create.yaml")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if f.Steps[0].Request.Body == nil || *f.Steps[0].Request.Body != `{"id":"urn:ngsi-ld:Building:1","type":"Building"}` {
		t.Errorf("unexpected request body: %v", f.Steps[0].Request.Body)
	}
	if f.Steps[1].Response.Body == nil {
		t.Fatal("expected the included response body")
	}
	if got, _ := f.Steps[1].Response.Body.Get("type"); got.String() != `"Building"` {
		t.Errorf("unexpected response body: %s", f.Steps[1].Response.Body)
	}
}

func TestFixtureRepository_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.json"), `{"responses": `)
	repo := newTestRepo(t, dir)

	if _, err := repo.Load(context.Background(), "broken.json"); !errors.Is(err, fixture.ErrInvalidFixture) {
		t.Errorf("expected ErrInvalidFixture for malformed JSON, got %v", err)
	}
	if _, err := repo.Load(context.Background(), "../outside.json"); !errors.Is(err, fixture.ErrInvalidFixture) {
		t.Errorf("expected traversal to be denied, got %v", err)
	}
	if _, err := repo.Load(context.Background(), "missing.json"); err == nil {
		t.Error("expected error for missing fixture")
	}
}

func TestNewFixtureRepository_NotADirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f.json")
	writeFile(t, file, minimalFixture)

	if _, err := filesystem.NewFixtureRepository(file); err == nil {
		t.Error("expected error for a file root")
	}
	if _, err := filesystem.NewFixtureRepository(filepath.Join(dir, "nope")); err == nil {
		t.Error("expected error for a missing root")
	}
}

func TestReadDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defs.yaml")
	writeFile(t, path, `
port: 9999
defs:
  - endpoint: {path: /ngsi-ld/v1/csourceRegistrations}
    response-code: 200
    response-body: []
`)

	defs, err := filesystem.ReadDefinitions(path)
	if err != nil {
		t.Fatalf("ReadDefinitions failed: %v", err)
	}
	if len(defs) != 1 || defs[0].Path != "/ngsi-ld/v1/csourceRegistrations" || defs[0].Source != "defs.yaml" {
		t.Errorf("unexpected definitions: %+v", defs)
	}
}
