package template

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/google/uuid"

	"github.com/sophialabs/fixturemock/internal/domain/provider"
)

// helpers holds the functions both engines expose to templates, bound to
// one request.
type helpers struct {
	ctx provider.RenderContext
}

func (h helpers) queryParam(name string) string { return h.ctx.QueryParams[name] }

func (h helpers) header(name string) string {
	for k, v := range h.ctx.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func (h helpers) body() string { return string(h.ctx.Body) }

func (h helpers) now() string { return h.ctx.Now }

func (h helpers) nowFormat(layout string) string {
	t, err := time.Parse(time.RFC3339, h.ctx.Now)
	if err != nil {
		return h.ctx.Now
	}
	return t.Format(layout)
}

// jsonPath evaluates expression against the request body. Strings come back
// bare, everything else as compact JSON. Errors yield "".
func (h helpers) jsonPath(expression string) string {
	var data any
	if err := json.Unmarshal(h.ctx.Body, &data); err != nil {
		return ""
	}
	result, err := jsonpath.Get(expression, data)
	if err != nil {
		return ""
	}
	if s, ok := result.(string); ok {
		return s
	}
	return toJSON(result)
}

func newUUID() string { return uuid.NewString() }

func randomInt(lo, hi int) int {
	if lo >= hi {
		return lo
	}
	return lo + rand.IntN(hi-lo+1)
}

func seq(start, end int) []int {
	if end < start {
		return nil
	}
	s := make([]int, 0, end-start+1)
	for i := start; i <= end; i++ {
		s = append(s, i)
	}
	return s
}

func toJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
