package services

import (
	"fmt"
	"math"
	"strings"

	"github.com/sophialabs/fixturemock/internal/domain/fixture"
	"github.com/sophialabs/fixturemock/internal/domain/jsonvalue"
	"github.com/sophialabs/fixturemock/internal/domain/provider"
)

// AdminPrefix is the path prefix the mock endpoint keeps for its own API.
// Definitions cannot be declared under it.
const AdminPrefix = "/__admin"

// IsAdminPath reports whether p is AdminPrefix or lies below it.
func IsAdminPath(p string) bool {
	return p == AdminPrefix || strings.HasPrefix(p, AdminPrefix+"/")
}

// DecodeFixture builds a fixture from a parsed fixture document. name is
// kept as the fixture name and as the source of its provider definitions.
func DecodeFixture(name string, doc jsonvalue.Value) (*fixture.Fixture, error) {
	if doc.Kind() != jsonvalue.KindObject {
		return nil, invalid("$", "expected an object but found %s", doc.Kind())
	}

	responses, ok := doc.Get("responses")
	if !ok || responses.Kind() != jsonvalue.KindArray {
		return nil, invalid("$.responses", "expected an array")
	}
	if responses.Len() == 0 {
		return nil, invalid("$.responses", "at least one response is required")
	}

	f := &fixture.Fixture{Name: name}
	for i, r := range responses.Items() {
		step, err := decodeStep(fmt.Sprintf("$.responses[%d]", i), r)
		if err != nil {
			return nil, err
		}
		f.Steps = append(f.Steps, step)
	}

	for _, key := range []string{"extraServer", "dataProviders"} {
		block, ok := doc.Get(key)
		if !ok || block.IsNull() {
			continue
		}
		pb, err := decodeProviderBlock("$."+key, name, block)
		if err != nil {
			return nil, err
		}
		f.Providers = pb
		break
	}
	return f, nil
}

// DecodeDefinitions extracts provider definitions from a document that is
// either a bare array of definitions, a provider block ({"port", "defs"}),
// or a whole fixture.
func DecodeDefinitions(source string, doc jsonvalue.Value) ([]*provider.Definition, error) {
	if doc.Kind() == jsonvalue.KindArray {
		return decodeDefinitionList("$", source, doc)
	}
	if doc.Kind() != jsonvalue.KindObject {
		return nil, invalid("$", "expected an array or an object but found %s", doc.Kind())
	}
	if _, ok := doc.Get("defs"); ok {
		pb, err := decodeProviderBlock("$", source, doc)
		if err != nil {
			return nil, err
		}
		return pb.Definitions, nil
	}
	for _, key := range []string{"extraServer", "dataProviders"} {
		if block, ok := doc.Get(key); ok && !block.IsNull() {
			pb, err := decodeProviderBlock("$."+key, source, block)
			if err != nil {
				return nil, err
			}
			return pb.Definitions, nil
		}
	}
	return nil, invalid("$", "no provider definitions found")
}

func decodeStep(path string, v jsonvalue.Value) (fixture.Step, error) {
	var step fixture.Step
	if v.Kind() != jsonvalue.KindObject {
		return step, invalid(path, "expected an object")
	}

	reqVal, ok := v.Get("originalRequest")
	if !ok {
		return step, invalid(path+".originalRequest", "missing")
	}
	req, err := decodeRequest(path+".originalRequest", reqVal)
	if err != nil {
		return step, err
	}
	step.Request = req

	code, err := intField(path+".code", v, "code", true)
	if err != nil {
		return step, err
	}
	step.Response.StatusCode = code

	if step.Response.Headers, err = pairsField(path+".header", v, "header"); err != nil {
		return step, err
	}

	body, ok := v.Get("body")
	switch {
	case !ok || body.IsNull():
	case body.Kind() == jsonvalue.KindString:
		text, _ := body.AsString()
		if strings.TrimSpace(text) == "" {
			break
		}
		parsed, err := jsonvalue.Parse([]byte(text))
		if err != nil {
			return step, invalid(path+".body", "not valid JSON: %v", err)
		}
		step.Response.Body = &parsed
	default:
		step.Response.Body = &body
	}
	return step, nil
}

func decodeRequest(path string, v jsonvalue.Value) (fixture.ExpectedRequest, error) {
	var req fixture.ExpectedRequest
	if v.Kind() != jsonvalue.KindObject {
		return req, invalid(path, "expected an object")
	}

	m, err := stringField(path+".method", v, "method", true)
	if err != nil {
		return req, err
	}
	if req.Method, err = fixture.ParseMethod(m); err != nil {
		return req, invalid(path+".method", "unsupported method %q", m)
	}

	u, ok := v.Get("url")
	if !ok {
		return req, invalid(path+".url", "missing")
	}
	if req.PathSegments, err = pathSegments(path+".url.path", u); err != nil {
		return req, err
	}
	if u.Kind() == jsonvalue.KindObject {
		if req.Query, err = pairsField(path+".url.query", u, "query"); err != nil {
			return req, err
		}
	}

	if req.Headers, err = pairsField(path+".header", v, "header"); err != nil {
		return req, err
	}

	if b, ok := v.Get("body"); ok && !b.IsNull() {
		if b.Kind() != jsonvalue.KindObject {
			return req, invalid(path+".body", "expected an object with a raw field")
		}
		if raw, present := b.Get("raw"); present && !raw.IsNull() {
			// An included JSON file arrives as structure; send it compact.
			text, ok := raw.AsString()
			if !ok {
				text = raw.String()
			}
			req.Body = &text
		}
	}
	return req, nil
}

// pathSegments accepts url.path as an array of segments or as a slash
// separated string.
func pathSegments(path string, u jsonvalue.Value) ([]string, error) {
	p := u
	if u.Kind() == jsonvalue.KindObject {
		var ok bool
		if p, ok = u.Get("path"); !ok {
			return nil, invalid(path, "missing")
		}
	}
	switch p.Kind() {
	case jsonvalue.KindString:
		s, _ := p.AsString()
		s = strings.Trim(s, "/")
		if s == "" {
			return nil, nil
		}
		return strings.Split(s, "/"), nil
	case jsonvalue.KindArray:
		segs := make([]string, 0, p.Len())
		for i, item := range p.Items() {
			s, ok := item.AsString()
			if !ok {
				return nil, invalid(fmt.Sprintf("%s[%d]", path, i), "expected a string")
			}
			segs = append(segs, s)
		}
		return segs, nil
	default:
		return nil, invalid(path, "expected an array of segments or a string")
	}
}

func decodeProviderBlock(path, source string, v jsonvalue.Value) (*fixture.ProviderBlock, error) {
	if v.Kind() != jsonvalue.KindObject {
		return nil, invalid(path, "expected an object")
	}

	pb := &fixture.ProviderBlock{}
	if p, ok := v.Get("port"); ok && !p.IsNull() {
		port, err := intField(path+".port", v, "port", true)
		if err != nil {
			return nil, err
		}
		if port < 0 || port > 65535 {
			return nil, invalid(path+".port", "%d is out of range", port)
		}
		pb.Port = &port
	}

	defs, ok := v.Get("defs")
	if !ok || defs.IsNull() {
		return pb, nil
	}
	list, err := decodeDefinitionList(path+".defs", source, defs)
	if err != nil {
		return nil, err
	}
	pb.Definitions = list
	return pb, nil
}

func decodeDefinitionList(path, source string, v jsonvalue.Value) ([]*provider.Definition, error) {
	if v.Kind() != jsonvalue.KindArray {
		return nil, invalid(path, "expected an array")
	}
	out := make([]*provider.Definition, 0, v.Len())
	for i, item := range v.Items() {
		d, err := decodeDefinition(fmt.Sprintf("%s[%d]", path, i), source, item)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func decodeDefinition(path, source string, v jsonvalue.Value) (*provider.Definition, error) {
	if v.Kind() != jsonvalue.KindObject {
		return nil, invalid(path, "expected an object")
	}
	d := &provider.Definition{Source: source}

	ep, ok := v.Get("endpoint")
	if !ok || ep.Kind() != jsonvalue.KindObject {
		return nil, invalid(path+".endpoint", "expected an object")
	}
	p, err := stringField(path+".endpoint.path", ep, "path", true)
	if err != nil {
		return nil, err
	}
	if IsAdminPath(p) {
		return nil, invalid(path+".endpoint.path", "%q is reserved for the admin API", p)
	}
	d.Path = p
	if d.Query, err = multiValueMap(path+".endpoint.parameters", ep, "parameters"); err != nil {
		return nil, err
	}

	if hv, ok := v.Get("request-headers"); ok && !hv.IsNull() {
		if hv.Kind() != jsonvalue.KindObject {
			return nil, invalid(path+".request-headers", "expected an object")
		}
		d.RequiredHeaders = make(map[string]provider.HeaderRequirement, hv.Len())
		for _, m := range hv.Members() {
			values, list, err := stringOrList(path+".request-headers."+m.Key, m.Value)
			if err != nil {
				return nil, err
			}
			d.RequiredHeaders[m.Key] = provider.HeaderRequirement{Values: values, List: list}
		}
	}

	if b, ok := v.Get("request-body"); ok && !b.IsNull() {
		d.RequestBody = &b
	}

	if d.ResponseStatus, err = intField(path+".response-code", v, "response-code", true); err != nil {
		return nil, err
	}
	if d.ResponseStatus < 100 || d.ResponseStatus > 999 {
		return nil, invalid(path+".response-code", "%d is not an HTTP status", d.ResponseStatus)
	}

	if b, ok := v.Get("response-body"); ok && !b.IsNull() {
		d.ResponseBody = &b
	}

	if hv, ok := v.Get("response-headers"); ok && !hv.IsNull() {
		if hv.Kind() != jsonvalue.KindObject {
			return nil, invalid(path+".response-headers", "expected an object")
		}
		d.ResponseHeaders = make(map[string]string, hv.Len())
		for _, m := range hv.Members() {
			s, ok := m.Value.AsString()
			if !ok {
				return nil, invalid(path+".response-headers."+m.Key, "expected a string")
			}
			d.ResponseHeaders[m.Key] = s
		}
	}

	if tv, ok := v.Get("response-template"); ok && !tv.IsNull() {
		if tv.Kind() != jsonvalue.KindObject {
			return nil, invalid(path+".response-template", "expected an object")
		}
		engine, err := stringField(path+".response-template.engine", tv, "engine", false)
		if err != nil {
			return nil, err
		}
		if engine == "" {
			engine = "expr"
		}
		src, err := stringField(path+".response-template.source", tv, "source", true)
		if err != nil {
			return nil, err
		}
		d.ResponseTemplate = &provider.Template{Engine: engine, Source: src}
	}
	return d, nil
}

func invalid(path, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", fixture.ErrInvalidFixture, path, fmt.Sprintf(format, args...))
}

func stringField(path string, obj jsonvalue.Value, key string, required bool) (string, error) {
	v, ok := obj.Get(key)
	if !ok || v.IsNull() {
		if required {
			return "", invalid(path, "missing")
		}
		return "", nil
	}
	s, ok := v.AsString()
	if !ok {
		return "", invalid(path, "expected a string but found %s", v.Kind())
	}
	return s, nil
}

func intField(path string, obj jsonvalue.Value, key string, required bool) (int, error) {
	v, ok := obj.Get(key)
	if !ok || v.IsNull() {
		if required {
			return 0, invalid(path, "missing")
		}
		return 0, nil
	}
	f, ok := v.AsFloat()
	if !ok || f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, invalid(path, "expected an integer")
	}
	return int(f), nil
}

// pairsField decodes a Postman style [{"key": .., "value": ..}] list.
// Entries marked "disabled": true are skipped.
func pairsField(path string, obj jsonvalue.Value, key string) ([]fixture.Pair, error) {
	v, ok := obj.Get(key)
	if !ok || v.IsNull() {
		return nil, nil
	}
	if v.Kind() != jsonvalue.KindArray {
		return nil, invalid(path, "expected an array of key/value pairs")
	}
	var out []fixture.Pair
	for i, item := range v.Items() {
		ipath := fmt.Sprintf("%s[%d]", path, i)
		if item.Kind() != jsonvalue.KindObject {
			return nil, invalid(ipath, "expected an object")
		}
		if d, ok := item.Get("disabled"); ok {
			if b, _ := d.AsBool(); b {
				continue
			}
		}
		k, err := stringField(ipath+".key", item, "key", true)
		if err != nil {
			return nil, err
		}
		val, err := stringField(ipath+".value", item, "value", false)
		if err != nil {
			return nil, err
		}
		out = append(out, fixture.Pair{Key: k, Value: val})
	}
	return out, nil
}

func multiValueMap(path string, obj jsonvalue.Value, key string) (map[string][]string, error) {
	v, ok := obj.Get(key)
	if !ok || v.IsNull() {
		return nil, nil
	}
	if v.Kind() != jsonvalue.KindObject {
		return nil, invalid(path, "expected an object")
	}
	out := make(map[string][]string, v.Len())
	for _, m := range v.Members() {
		values, _, err := stringOrList(path+"."+m.Key, m.Value)
		if err != nil {
			return nil, err
		}
		out[m.Key] = values
	}
	return out, nil
}

func stringOrList(path string, v jsonvalue.Value) ([]string, bool, error) {
	if s, ok := v.AsString(); ok {
		return []string{s}, false, nil
	}
	if v.Kind() != jsonvalue.KindArray {
		return nil, false, invalid(path, "expected a string or an array of strings")
	}
	values := make([]string, 0, v.Len())
	for i, item := range v.Items() {
		s, ok := item.AsString()
		if !ok {
			return nil, false, invalid(fmt.Sprintf("%s[%d]", path, i), "expected a string")
		}
		values = append(values, s)
	}
	return values, true, nil
}
