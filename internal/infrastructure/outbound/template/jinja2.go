package template

import (
	"fmt"

	"github.com/flosch/pongo2/v6"

	"github.com/sophialabs/fixturemock/internal/domain/provider"
)

// Jinja2Engine compiles response templates with pongo2.
type Jinja2Engine struct{}

// Compile parses source as a pongo2 template.
func (Jinja2Engine) Compile(name, source string) (provider.BodyRenderer, error) {
	tpl, err := pongo2.FromString(source)
	if err != nil {
		return nil, fmt.Errorf("jinja2 template %q: %w", name, err)
	}
	return &jinja2Renderer{tpl: tpl}, nil
}

type jinja2Renderer struct {
	tpl *pongo2.Template
}

func (r *jinja2Renderer) Render(ctx provider.RenderContext) ([]byte, error) {
	h := helpers{ctx: ctx}
	out, err := r.tpl.Execute(pongo2.Context{
		"method":      ctx.Method,
		"path":        ctx.Path,
		"headers":     ctx.Headers,
		"queryParams": ctx.QueryParams,
		"body":        string(ctx.Body),
		"now":         ctx.Now,

		"queryParam": h.queryParam,
		"header":     h.header,
		"nowFormat":  h.nowFormat,
		"jsonPath":   h.jsonPath,
		"uuid":       newUUID,
		"randomInt":  randomInt,
		"seq":        seq,
		"toJSON":     toJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("render jinja2 template: %w", err)
	}
	return []byte(out), nil
}
