package template

import (
	"fmt"
	"sync"

	"github.com/sophialabs/fixturemock/internal/domain/provider"
)

// Engine compiles a template source into a renderer.
type Engine interface {
	Compile(name, source string) (provider.BodyRenderer, error)
}

// Registry maps engine names to engines and caches compiled renderers per
// definition.
type Registry struct {
	engines map[string]Engine
	cache   sync.Map // provider.ID -> provider.BodyRenderer
}

// NewRegistry creates a registry with the expr and jinja2 engines.
func NewRegistry() *Registry {
	return &Registry{
		engines: map[string]Engine{
			"expr":   ExprEngine{},
			"jinja2": Jinja2Engine{},
		},
	}
}

// Compile resolves the engine by name and compiles the source.
func (r *Registry) Compile(engine, name, source string) (provider.BodyRenderer, error) {
	e, ok := r.engines[engine]
	if !ok {
		return nil, fmt.Errorf("unknown template engine %q (supported: expr, jinja2)", engine)
	}
	return e.Compile(name, source)
}

// Renderer returns the compiled response template of def, compiling it on
// first use. It returns nil when def has no template.
func (r *Registry) Renderer(def *provider.Definition) (provider.BodyRenderer, error) {
	if def.ResponseTemplate == nil {
		return nil, nil
	}
	if cached, ok := r.cache.Load(def.ID); ok {
		return cached.(provider.BodyRenderer), nil
	}
	br, err := r.Compile(def.ResponseTemplate.Engine, string(def.ID), def.ResponseTemplate.Source)
	if err != nil {
		return nil, err
	}
	actual, _ := r.cache.LoadOrStore(def.ID, br)
	return actual.(provider.BodyRenderer), nil
}

// Validate compiles tpl without caching it.
func (r *Registry) Validate(name string, tpl *provider.Template) error {
	if tpl == nil {
		return nil
	}
	_, err := r.Compile(tpl.Engine, name, tpl.Source)
	return err
}
