package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sophialabs/fixturemock/internal/domain/fixture"
	"github.com/sophialabs/fixturemock/internal/domain/provider"
	"github.com/sophialabs/fixturemock/internal/infrastructure/ports"
)

var _ ports.Logger = (*NoopLogger)(nil)

// NoopLogger discards all log output.
type NoopLogger struct{}

func (l *NoopLogger) Info(string, ...any)  {}
func (l *NoopLogger) Warn(string, ...any)  {}
func (l *NoopLogger) Error(string, ...any) {}
func (l *NoopLogger) Debug(string, ...any) {}

var _ ports.Clock = (*FixedClock)(nil)

// FixedClock returns a fixed time and never sleeps.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }
func (c *FixedClock) SleepContext(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

var _ ports.Pacer = (*StubPacer)(nil)

// StubPacer counts Wait calls and returns Err.
type StubPacer struct {
	mu    sync.Mutex
	Calls int
	Err   error
}

func (p *StubPacer) Wait(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	return p.Err
}

var _ provider.BodyRenderer = (*StubBodyRenderer)(nil)

// StubBodyRenderer returns a configurable render result.
type StubBodyRenderer struct {
	Result []byte
	Err    error
}

func (r *StubBodyRenderer) Render(provider.RenderContext) ([]byte, error) {
	return r.Result, r.Err
}

var _ ports.TargetClient = (*FakeTargetClient)(nil)

// FakeTargetClient answers requests with Handler and records them.
type FakeTargetClient struct {
	mu       sync.Mutex
	Handler  func(req fixture.ExpectedRequest) (*ports.TargetResponse, error)
	Requests []fixture.ExpectedRequest
}

func (c *FakeTargetClient) Send(_ context.Context, req fixture.ExpectedRequest) (*ports.TargetResponse, error) {
	c.mu.Lock()
	c.Requests = append(c.Requests, req)
	c.mu.Unlock()
	return c.Handler(req)
}

var _ ports.MockEndpoint = (*FakeEndpoint)(nil)

// FakeEndpoint is an in-memory MockEndpoint. Invoke marks definitions as
// hit the way a matching request would.
type FakeEndpoint struct {
	mu      sync.Mutex
	bound   bool
	Port    int
	Binds   []int
	set     *provider.DefinitionSet
	BindErr error
}

func (e *FakeEndpoint) Bound() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bound
}

func (e *FakeEndpoint) Bind(_ context.Context, port int, defs []*provider.Definition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.BindErr != nil {
		return e.BindErr
	}
	e.bound = true
	e.Port = port
	e.Binds = append(e.Binds, port)
	e.set = provider.NewDefinitionSet(defs...)
	return nil
}

func (e *FakeEndpoint) Append(defs []*provider.Definition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.bound {
		return errors.New("not bound")
	}
	e.set.Append(defs...)
	return nil
}

func (e *FakeEndpoint) Rebind(ctx context.Context, port int, defs []*provider.Definition) (provider.Coverage, error) {
	retired := e.Coverage()
	if err := e.Bind(ctx, port, defs); err != nil {
		return retired, err
	}
	return retired, nil
}

func (e *FakeEndpoint) Stop(context.Context) (provider.Coverage, error) {
	cov := e.Coverage()
	e.mu.Lock()
	e.bound = false
	e.mu.Unlock()
	return cov, nil
}

func (e *FakeEndpoint) Coverage() provider.Coverage {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set == nil {
		return nil
	}
	return e.set.Coverage()
}

// Dispatch runs req against the live definitions as the HTTP endpoint would.
func (e *FakeEndpoint) Dispatch(req *provider.Request) provider.Result {
	e.mu.Lock()
	set := e.set
	e.mu.Unlock()
	if set == nil {
		return provider.Result{}
	}
	res := set.Match(req)
	if res.Valid() {
		set.MarkInvoked(res.Definition.ID)
	}
	return res
}

var _ ports.TemplateRenderer = (*StubTemplates)(nil)

// StubTemplates hands out Body for every definition that has a template.
type StubTemplates struct {
	Body        provider.BodyRenderer
	Err         error
	ValidateErr error
}

func (s *StubTemplates) Renderer(def *provider.Definition) (provider.BodyRenderer, error) {
	if def.ResponseTemplate == nil {
		return nil, nil
	}
	return s.Body, s.Err
}

func (s *StubTemplates) Validate(string, *provider.Template) error { return s.ValidateErr }

var _ fixture.Repository = (*MemoryRepository)(nil)

// MemoryRepository serves fixtures from memory. Names listed in LoadErrs
// fail to load with the mapped error.
type MemoryRepository struct {
	Names    []string
	Fixtures map[string]*fixture.Fixture
	LoadErrs map[string]error
	ListErr  error
}

func (r *MemoryRepository) List(context.Context) ([]string, error) {
	return r.Names, r.ListErr
}

func (r *MemoryRepository) Load(_ context.Context, name string) (*fixture.Fixture, error) {
	if err, ok := r.LoadErrs[name]; ok {
		return nil, err
	}
	f, ok := r.Fixtures[name]
	if !ok {
		return nil, fixture.ErrInvalidFixture
	}
	return f, nil
}
