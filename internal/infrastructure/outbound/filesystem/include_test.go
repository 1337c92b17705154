package filesystem_test

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/sophialabs/fixturemock/internal/infrastructure/outbound/filesystem"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func resolve(t *testing.T, root, dir, content string) (*yaml.Node, error) {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(content), &node); err != nil {
		t.Fatal(err)
	}
	err := filesystem.NewIncludeResolver(root).Hook(dir)(&node)
	return &node, err
}

func TestIncludeResolver_SplicesStructuredFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bodies", "entity.json"), `{"id": "urn:x", "type": "Building"}`)
	writeFile(t, filepath.Join(dir, "bodies", "headers.yaml"), "Accept: application/json\n")

	node, err := resolve(t, dir, dir, "body: !include bodies/entity.json\nheaders: !include '@root/bodies/headers.yaml'\n")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	var out struct {
		Body    map[string]string `yaml:"body"`
		Headers map[string]string `yaml:"headers"`
	}
	if err := node.Decode(&out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.Body["id"] != "urn:x" || out.Body["type"] != "Building" {
		t.Errorf("unexpected body: %v", out.Body)
	}
	if out.Headers["Accept"] != "application/json" {
		t.Errorf("unexpected headers: %v", out.Headers)
	}
}

func TestIncludeResolver_RawFileBecomesString(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "payload.txt"), `{"not":"parsed"}`)

	node, err := resolve(t, dir, dir, "raw: !include payload.txt\n")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	var out struct {
		Raw string `yaml:"raw"`
	}
	if err := node.Decode(&out); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if out.Raw != `{"not":"parsed"}` {
		t.Errorf("unexpected raw value: %q", out.Raw)
	}
}

func TestIncludeResolver_Errors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "self.yaml"), "body: !include self.yaml\n")
	sub := filepath.Join(dir, "sub")
	writeFile(t, filepath.Join(sub, "x.yaml"), "a: 1\n")

	tests := []struct {
		name    string
		root    string
		content string
	}{
		{"depth limit", dir, "body: !include self.yaml\n"},
		{"empty reference", dir, "body: !include \"\"\n"},
		{"absolute path", dir, "body: !include /etc/passwd\n"},
		{"escapes root", sub, "body: !include ../self.yaml\n"},
		{"missing file", dir, "body: !include nope.yaml\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := resolve(t, tt.root, tt.root, tt.content); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
