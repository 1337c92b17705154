package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// IncludeResolver replaces !include tagged YAML nodes with the contents of
// the referenced file. YAML and JSON files are spliced in as structure, any
// other file as a string.
type IncludeResolver struct {
	rootDir string
}

// NewIncludeResolver creates a resolver. References starting with @root/
// resolve against rootDir, all others against the including file.
func NewIncludeResolver(rootDir string) *IncludeResolver {
	return &IncludeResolver{rootDir: rootDir}
}

// Hook returns a function resolving includes in a tree read from a file in
// currentDir.
func (r *IncludeResolver) Hook(currentDir string) func(*yaml.Node) error {
	return func(node *yaml.Node) error {
		return r.walk(node, currentDir, 0)
	}
}

func (r *IncludeResolver) walk(node *yaml.Node, currentDir string, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("!include nested deeper than %d", maxIncludeDepth)
	}
	if node == nil {
		return nil
	}
	if node.Tag == "!include" {
		return r.splice(node, currentDir, depth)
	}
	for _, child := range node.Content {
		if err := r.walk(child, currentDir, depth); err != nil {
			return err
		}
	}
	return nil
}

func (r *IncludeResolver) splice(node *yaml.Node, currentDir string, depth int) error {
	ref := node.Value
	if ref == "" {
		return fmt.Errorf("line %d: !include needs a file name", node.Line)
	}

	path, err := r.resolvePath(ref, currentDir)
	if err != nil {
		return fmt.Errorf("line %d: !include %q: %w", node.Line, ref, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("line %d: !include %q: %w", node.Line, ref, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		var included yaml.Node
		if err := yaml.Unmarshal(data, &included); err != nil {
			return fmt.Errorf("line %d: !include %q: %w", node.Line, ref, err)
		}
		if err := r.walk(&included, filepath.Dir(path), depth+1); err != nil {
			return err
		}
		if included.Kind == yaml.DocumentNode && len(included.Content) > 0 {
			*node = *included.Content[0]
		} else {
			*node = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
		}
	default:
		*node = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(data)}
	}
	return nil
}

func (r *IncludeResolver) resolvePath(ref, currentDir string) (string, error) {
	var path string
	switch {
	case strings.HasPrefix(ref, "@root/"):
		path = filepath.Join(r.rootDir, ref[len("@root/"):])
	case filepath.IsAbs(ref):
		return "", fmt.Errorf("absolute paths are not allowed")
	default:
		path = filepath.Join(currentDir, ref)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		resolved = path
	}
	root, err := filepath.EvalSymlinks(r.rootDir)
	if err != nil {
		root = r.rootDir
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the fixtures directory")
	}
	return path, nil
}
