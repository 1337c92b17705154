package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sophialabs/fixturemock/internal/domain/provider"
	"github.com/sophialabs/fixturemock/internal/domain/trace"
	"github.com/sophialabs/fixturemock/internal/infrastructure/ports"
	"github.com/sophialabs/fixturemock/internal/infrastructure/services"
	"github.com/sophialabs/fixturemock/internal/infrastructure/usecases"
)

const maxBodySize = 10 << 20 // 10 MB

// DiagnosticHeader names the header that carries the diagnostic kind on
// responses the mock endpoint did not serve from a definition.
const DiagnosticHeader = "X-Fixturemock-Diagnostic"

// Server is the HTTP handler of the mock endpoint. Every path outside
// /__admin is answered from the installed definition set.
type Server struct {
	router     *chi.Mux
	set        atomic.Pointer[provider.DefinitionSet]
	dispatchUC *usecases.DispatchUseCase
	templates  ports.TemplateRenderer
	traceBuf   *trace.Buffer
	logger     ports.Logger
}

// NewServer creates a new Server with no definitions installed.
func NewServer(
	dispatchUC *usecases.DispatchUseCase,
	templates ports.TemplateRenderer,
	traceBuf *trace.Buffer,
	logger ports.Logger,
) *Server {
	s := &Server{
		dispatchUC: dispatchUC,
		templates:  templates,
		traceBuf:   traceBuf,
		logger:     logger,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route(services.AdminPrefix, func(r chi.Router) {
		r.Get("/definitions", s.handleListDefinitions)
		r.Post("/definitions", s.handleAppendDefinitions)
		r.Get("/coverage", s.handleGetCoverage)
		r.Get("/trace", s.handleGetTrace)
		r.Get("/health", s.handleHealth)
	})

	r.HandleFunc("/*", s.mockHandler)
	r.HandleFunc("/", s.mockHandler)
	return r
}

// Install swaps the live definition set. A nil set answers every mock
// request with a no-match diagnostic.
func (s *Server) Install(set *provider.DefinitionSet) {
	s.set.Store(set)
}

// Definitions returns the live definition set, or nil.
func (s *Server) Definitions() *provider.DefinitionSet {
	return s.set.Load()
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) mockHandler(w http.ResponseWriter, r *http.Request) {
	s.logger.Debug("request received", "method", r.Method, "path", r.URL.Path, "query", r.URL.RawQuery, "remote", r.RemoteAddr)

	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	tooLarge := isTooLarge(err)
	if err != nil && !tooLarge {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	headers := make(map[string][]string, len(r.Header)+1)
	for k, v := range r.Header {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	if r.Host != "" {
		headers["Host"] = []string{r.Host}
	}

	req := &provider.Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.Query(),
		Headers: headers,
		Body:    body,
	}

	if tooLarge {
		req.Body = nil
		result := s.dispatchUC.Reject(r.Context(), req, fmt.Sprintf("request body exceeds %d bytes", maxBodySize))
		writeMockResponse(w, result.Response, s.logger)
		return
	}

	result := s.dispatchUC.Execute(r.Context(), s.set.Load(), req)
	writeMockResponse(w, result.Response, s.logger)
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

func writeMockResponse(w http.ResponseWriter, resp usecases.MockResponse, logger ports.Logger) {
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	if resp.Diagnostic != "" {
		w.Header().Set(DiagnosticHeader, resp.Diagnostic)
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) == 0 {
		return
	}
	if _, err := w.Write(resp.Body); err != nil {
		logger.Debug("failed to write response body", "error", err)
	}
}

func (s *Server) handleListDefinitions(w http.ResponseWriter, _ *http.Request) {
	set := s.set.Load()
	if set == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	defs := set.Snapshot()
	out := make([]map[string]any, 0, len(defs))
	for _, d := range defs {
		out = append(out, definitionJSON(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAppendDefinitions(w http.ResponseWriter, r *http.Request) {
	set := s.set.Load()
	if set == nil {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "not_bound",
			"message": "no definition set is installed",
		})
		return
	}

	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if isTooLarge(err) {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
			"error":   "body_too_large",
			"message": fmt.Sprintf("request body exceeds %d bytes", maxBodySize),
		})
		return
	}
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	name := "admin.json"
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		name = "admin.yaml"
	}
	doc, err := services.ParseDocument(name, body)
	if err == nil {
		var defs []*provider.Definition
		defs, err = services.DecodeDefinitions("admin", doc)
		if err == nil {
			err = s.validateTemplates(defs)
		}
		if err == nil {
			registered := set.Append(defs...)
			ids := make([]string, 0, len(registered))
			for _, d := range registered {
				ids = append(ids, string(d.ID))
			}
			s.logger.Info("definitions appended via admin API", "count", len(ids))
			writeJSON(w, http.StatusCreated, map[string]any{"ids": ids})
			return
		}
	}

	writeJSON(w, http.StatusBadRequest, map[string]string{
		"error":   "invalid_definitions",
		"message": err.Error(),
	})
}

func (s *Server) validateTemplates(defs []*provider.Definition) error {
	for i, d := range defs {
		if d.ResponseTemplate == nil {
			continue
		}
		if err := s.templates.Validate(fmt.Sprintf("%s#%d", d.Source, i), d.ResponseTemplate); err != nil {
			return fmt.Errorf("definition %d: %w", i, err)
		}
	}
	return nil
}

func (s *Server) handleGetCoverage(w http.ResponseWriter, _ *http.Request) {
	set := s.set.Load()
	if set == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}

	cov := set.Coverage()
	out := make([]map[string]any, 0, len(cov))
	for _, c := range cov {
		out = append(out, map[string]any{
			"id":      c.Definition.ID,
			"path":    c.Definition.Path,
			"source":  c.Definition.Source,
			"invoked": c.Invoked,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	n := 10
	if lastParam := r.URL.Query().Get("last"); lastParam != "" {
		if parsed, err := strconv.Atoi(lastParam); err == nil && parsed > 0 {
			n = parsed
		}
	}
	writeJSON(w, http.StatusOK, s.traceBuf.Recent(n))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	definitions := 0
	if set := s.set.Load(); set != nil {
		definitions = set.Len()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"definitions": definitions,
	})
}

func definitionJSON(d *provider.Definition) map[string]any {
	out := map[string]any{
		"id":            d.ID,
		"path":          d.Path,
		"response_code": d.ResponseStatus,
	}
	if len(d.Query) > 0 {
		out["parameters"] = d.Query
	}
	if len(d.RequiredHeaders) > 0 {
		headers := make(map[string][]string, len(d.RequiredHeaders))
		for name, req := range d.RequiredHeaders {
			headers[name] = req.Values
		}
		out["request_headers"] = headers
	}
	if d.RequestBody != nil {
		out["request_body"] = *d.RequestBody
	}
	if d.ResponseBody != nil {
		out["response_body"] = *d.ResponseBody
	}
	if len(d.ResponseHeaders) > 0 {
		out["response_headers"] = d.ResponseHeaders
	}
	if d.ResponseTemplate != nil {
		out["response_template"] = map[string]string{
			"engine": d.ResponseTemplate.Engine,
			"source": d.ResponseTemplate.Source,
		}
	}
	if d.Source != "" {
		out["source"] = d.Source
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
