package usecases

import (
	"context"
	"net/url"
	"time"

	"github.com/sophialabs/fixturemock/internal/domain/provider"
	"github.com/sophialabs/fixturemock/internal/domain/trace"
	"github.com/sophialabs/fixturemock/internal/infrastructure/ports"
	"github.com/sophialabs/fixturemock/internal/infrastructure/services"
)

// Diagnostic kinds reported by the mock endpoint instead of a configured
// response.
const (
	DiagnosticValidation = "validation"
	DiagnosticNoMatch    = "no-match"
	DiagnosticTemplate   = "template"
)

// NoMatchReason is the diagnostic body sent when no definition is selected.
const NoMatchReason = "requested target not found"

// MockResponse is what the mock endpoint answers. A non-empty Diagnostic
// means the request was not served from a definition and Reason explains
// why.
type MockResponse struct {
	Status     int
	Headers    map[string]string
	Body       []byte
	Diagnostic string
	Reason     string
}

// DispatchResult is the outcome of one mock request.
type DispatchResult struct {
	Match      provider.Result
	Response   MockResponse
	TraceEntry trace.Entry
}

// DispatchUseCase answers mock requests from a definition set.
type DispatchUseCase struct {
	templates ports.TemplateRenderer
	clock     ports.Clock
	logger    ports.Logger
	traceBuf  *trace.Buffer
}

// NewDispatchUseCase creates a new use case.
func NewDispatchUseCase(
	templates ports.TemplateRenderer,
	clock ports.Clock,
	logger ports.Logger,
	traceBuf *trace.Buffer,
) *DispatchUseCase {
	return &DispatchUseCase{
		templates: templates,
		clock:     clock,
		logger:    logger,
		traceBuf:  traceBuf,
	}
}

// Execute matches req against set, builds the response and records the
// trace entry. Coverage is marked only when the response was produced. A
// nil set answers every request with no-match.
func (uc *DispatchUseCase) Execute(_ context.Context, set *provider.DefinitionSet, req *provider.Request) DispatchResult {
	now := uc.clock.Now()
	entry := trace.Entry{
		Timestamp: now,
		Method:    req.Method,
		Path:      req.Path,
		Query:     url.Values(req.Query).Encode(),
	}

	var res provider.Result
	if set != nil {
		res = set.Match(req)
	}

	result := DispatchResult{Match: res}

	switch {
	case !res.Matched():
		entry.Outcome = trace.OutcomeNoMatch
		result.Response = diagnostic(DiagnosticNoMatch, NoMatchReason)
		uc.logger.Warn("mock request unmatched", "method", req.Method, "path", req.Path, "query", entry.Query)

	case !res.Valid():
		entry.Outcome = trace.OutcomeValidationFailed
		entry.DefinitionID = string(res.Definition.ID)
		result.Response = diagnostic(DiagnosticValidation, res.ValidationError)
		uc.logger.Warn("mock request failed validation",
			"method", req.Method, "path", req.Path, "definition", res.Definition.ID, "reason", res.ValidationError)

	default:
		entry.Outcome = trace.OutcomeMatched
		entry.DefinitionID = string(res.Definition.ID)
		result.Response = uc.respond(res.Definition, req, now)
		if result.Response.Diagnostic != "" {
			uc.logger.Error("response template failed",
				"definition", res.Definition.ID, "reason", result.Response.Reason)
		} else {
			// Only a definition that produced its response counts as covered.
			set.MarkInvoked(res.Definition.ID)
			uc.logger.Info("mock request matched",
				"method", req.Method, "path", req.Path, "definition", res.Definition.ID, "status", result.Response.Status)
		}
	}

	entry.Status = result.Response.Status
	entry.Reason = result.Response.Reason
	uc.traceBuf.Record(entry)
	result.TraceEntry = entry
	return result
}

// Reject answers req with a validation diagnostic without consulting any
// definition. The endpoint uses it for requests it cannot hand to Execute,
// such as bodies over the size limit. The trace entry is still recorded.
func (uc *DispatchUseCase) Reject(_ context.Context, req *provider.Request, reason string) DispatchResult {
	resp := diagnostic(DiagnosticValidation, reason)
	entry := trace.Entry{
		Timestamp: uc.clock.Now(),
		Method:    req.Method,
		Path:      req.Path,
		Query:     url.Values(req.Query).Encode(),
		Outcome:   trace.OutcomeValidationFailed,
		Status:    resp.Status,
		Reason:    reason,
	}
	uc.traceBuf.Record(entry)
	uc.logger.Warn("mock request rejected", "method", req.Method, "path", req.Path, "reason", reason)
	return DispatchResult{Response: resp, TraceEntry: entry}
}

func (uc *DispatchUseCase) respond(def *provider.Definition, req *provider.Request, now time.Time) MockResponse {
	resp := MockResponse{Status: def.ResponseStatus, Headers: def.ResponseHeaders}

	br, err := uc.templates.Renderer(def)
	if err != nil {
		return diagnostic(DiagnosticTemplate, "response template: "+err.Error())
	}

	switch {
	case br != nil:
		body, err := br.Render(renderContext(req, now))
		if err != nil {
			return diagnostic(DiagnosticTemplate, "response template: "+err.Error())
		}
		resp.Body = body
	case def.ResponseBody != nil:
		resp.Body = []byte(def.ResponseBody.Pretty())
	}

	if ct := services.ResponseContentType(def.ResponseHeaders, resp.Body); ct != "" {
		headers := make(map[string]string, len(def.ResponseHeaders)+1)
		for k, v := range def.ResponseHeaders {
			headers[k] = v
		}
		headers["Content-Type"] = ct
		resp.Headers = headers
	}
	return resp
}

// diagnostic is the single constructor for responses that report a harness
// failure rather than a configured answer.
func diagnostic(kind, reason string) MockResponse {
	return MockResponse{
		Status:     500,
		Headers:    map[string]string{"Content-Type": "text/plain; charset=utf-8"},
		Body:       []byte(reason),
		Diagnostic: kind,
		Reason:     reason,
	}
}

func renderContext(req *provider.Request, now time.Time) provider.RenderContext {
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}
	query := make(map[string]string, len(req.Query))
	for k, v := range req.Query {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}
	return provider.RenderContext{
		Method:      req.Method,
		Path:        req.Path,
		Headers:     headers,
		QueryParams: query,
		Body:        req.Body,
		Now:         now.UTC().Format(time.RFC3339),
	}
}
