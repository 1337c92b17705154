package template

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/sophialabs/fixturemock/internal/domain/provider"
)

// ExprEngine compiles response templates written in the Expr language with
// ${ } interpolation.
type ExprEngine struct{}

// Compile splits the source on ${ } and compiles each expression.
func (ExprEngine) Compile(name, source string) (provider.BodyRenderer, error) {
	segments, err := splitInterpolations(source)
	if err != nil {
		return nil, fmt.Errorf("expr template %q: %w", name, err)
	}
	for _, seg := range segments {
		if seg.program != nil {
			return &exprRenderer{segments: segments}, nil
		}
	}
	return staticRenderer(source), nil
}

type segment struct {
	literal string
	program *vm.Program
}

func splitInterpolations(source string) ([]segment, error) {
	var out []segment
	rest := source
	offset := 0

	for {
		open := strings.Index(rest, "${")
		if open < 0 {
			if rest != "" {
				out = append(out, segment{literal: rest})
			}
			return out, nil
		}
		if open > 0 {
			out = append(out, segment{literal: rest[:open]})
		}

		inner := rest[open+2:]
		end := closingBrace(inner)
		if end < 0 {
			return nil, fmt.Errorf("unclosed ${ at offset %d", offset+open)
		}

		program, err := expr.Compile(inner[:end], expr.Env(exprEnv{}))
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", inner[:end], err)
		}
		out = append(out, segment{program: program})

		consumed := open + 2 + end + 1
		offset += consumed
		rest = rest[consumed:]
	}
}

// closingBrace returns the index of the } closing an interpolation, skipping
// nested braces and quoted strings.
func closingBrace(s string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			switch ch {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"':
			quote = ch
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i
			}
			depth--
		}
	}
	return -1
}

type exprEnv struct {
	Method     string               `expr:"method"`
	Path       string               `expr:"path"`
	QueryParam func(string) string  `expr:"queryParam"`
	Header     func(string) string  `expr:"header"`
	Body       func() string        `expr:"body"`
	Now        func() string        `expr:"now"`
	NowFormat  func(string) string  `expr:"nowFormat"`
	UUID       func() string        `expr:"uuid"`
	RandomInt  func(int, int) int   `expr:"randomInt"`
	Seq        func(int, int) []int `expr:"seq"`
	ToJSON     func(any) string     `expr:"toJSON"`
	JSONPath   func(string) string  `expr:"jsonPath"`
}

func newExprEnv(ctx provider.RenderContext) exprEnv {
	h := helpers{ctx: ctx}
	return exprEnv{
		Method:     ctx.Method,
		Path:       ctx.Path,
		QueryParam: h.queryParam,
		Header:     h.header,
		Body:       h.body,
		Now:        h.now,
		NowFormat:  h.nowFormat,
		UUID:       newUUID,
		RandomInt:  randomInt,
		Seq:        seq,
		ToJSON:     toJSON,
		JSONPath:   h.jsonPath,
	}
}

type exprRenderer struct {
	segments []segment
}

func (r *exprRenderer) Render(ctx provider.RenderContext) ([]byte, error) {
	env := newExprEnv(ctx)

	var sb strings.Builder
	for _, seg := range r.segments {
		if seg.program == nil {
			sb.WriteString(seg.literal)
			continue
		}
		v, err := expr.Run(seg.program, env)
		if err != nil {
			return nil, fmt.Errorf("evaluate expression: %w", err)
		}
		fmt.Fprintf(&sb, "%v", v)
	}
	return []byte(sb.String()), nil
}

type staticRenderer []byte

func (r staticRenderer) Render(provider.RenderContext) ([]byte, error) { return r, nil }
