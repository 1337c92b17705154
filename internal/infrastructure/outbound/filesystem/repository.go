package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sophialabs/fixturemock/internal/domain/fixture"
	"github.com/sophialabs/fixturemock/internal/domain/provider"
	"github.com/sophialabs/fixturemock/internal/infrastructure/services"
)

var _ fixture.Repository = (*FixtureRepository)(nil)

// FixtureRepository loads fixtures from .json, .yaml and .yml files in a
// directory tree. Fixture names are slash separated paths relative to the
// root.
type FixtureRepository struct {
	rootDir  string
	includes *IncludeResolver
}

// NewFixtureRepository creates a repository rooted at rootDir.
func NewFixtureRepository(rootDir string) (*FixtureRepository, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fixtures directory: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixtures directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("fixtures path %s is not a directory", absRoot)
	}
	return &FixtureRepository{rootDir: absRoot, includes: NewIncludeResolver(absRoot)}, nil
}

// Root returns the absolute fixtures directory.
func (r *FixtureRepository) Root() string { return r.rootDir }

// List walks the root directory and returns fixture names in lexical order.
// Hidden files and directories are skipped.
func (r *FixtureRepository) List(ctx context.Context) ([]string, error) {
	var names []string

	err := filepath.WalkDir(r.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != r.rootDir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !services.IsFixtureFile(path) {
			return nil
		}

		rel, err := filepath.Rel(r.rootDir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk fixtures directory: %w", err)
	}

	sort.Strings(names)
	return names, nil
}

// Load reads and decodes the named fixture.
func (r *FixtureRepository) Load(_ context.Context, name string) (*fixture.Fixture, error) {
	path, err := r.resolve(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture %s: %w", name, err)
	}

	doc, err := services.ParseDocument(path, data, r.includes.Hook(filepath.Dir(path)))
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", name, err)
	}
	f, err := services.DecodeFixture(name, doc)
	if err != nil {
		return nil, fmt.Errorf("fixture %s: %w", name, err)
	}
	return f, nil
}

// resolve maps a fixture name to a path and refuses names that escape the
// root directory.
func (r *FixtureRepository) resolve(name string) (string, error) {
	path := filepath.Join(r.rootDir, filepath.FromSlash(name))
	rel, err := filepath.Rel(r.rootDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: path traversal denied: %s is outside %s", fixture.ErrInvalidFixture, name, r.rootDir)
	}
	return path, nil
}

// ReadDefinitions loads provider definitions from a single file in any of
// the shapes services.DecodeDefinitions accepts.
func ReadDefinitions(path string) ([]*provider.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions: %w", err)
	}
	dir := filepath.Dir(path)
	doc, err := services.ParseDocument(path, data, NewIncludeResolver(dir).Hook(dir))
	if err != nil {
		return nil, fmt.Errorf("definitions %s: %w", path, err)
	}
	defs, err := services.DecodeDefinitions(filepath.Base(path), doc)
	if err != nil {
		return nil, fmt.Errorf("definitions %s: %w", path, err)
	}
	return defs, nil
}
