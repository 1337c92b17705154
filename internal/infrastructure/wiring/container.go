package wiring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sophialabs/fixturemock/internal/domain/trace"
	inboundhttp "github.com/sophialabs/fixturemock/internal/infrastructure/inbound/http"
	"github.com/sophialabs/fixturemock/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/fixturemock/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/fixturemock/internal/infrastructure/outbound/ratelimit"
	"github.com/sophialabs/fixturemock/internal/infrastructure/outbound/target"
	"github.com/sophialabs/fixturemock/internal/infrastructure/outbound/template"
	"github.com/sophialabs/fixturemock/internal/infrastructure/ports"
	"github.com/sophialabs/fixturemock/internal/infrastructure/usecases"
)

// Params holds the subset of configuration needed to construct infrastructure components.
type Params struct {
	// FixturesDir and TargetURL enable the runner. Both empty builds the
	// mock endpoint only.
	FixturesDir string
	TargetURL   string

	DefaultMockPort int
	RequestTimeout  time.Duration
	RequestRate     float64
	RequestBurst    int
	TraceSize       int
	Endpoint        inboundhttp.EndpointConfig
	Logger          ports.Logger
}

// Container owns the construction and lifecycle of all infrastructure components.
type Container struct {
	logger    ports.Logger
	clock     ports.Clock
	traceBuf  *trace.Buffer
	templates *template.Registry
	server    *inboundhttp.Server
	endpoint  *inboundhttp.Endpoint
	repo      *filesystem.FixtureRepository
	client    *target.Client
	installUC *usecases.InstallProvidersUseCase
	runAllUC  *usecases.RunAllUseCase
	closeOnce sync.Once
}

// New constructs all infrastructure components. Nothing listens until the
// endpoint is bound.
func New(p Params) (*Container, error) {
	if p.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	clk := clock.New()
	traceBuf := trace.NewBuffer(p.TraceSize)
	templates := template.NewRegistry()

	dispatchUC := usecases.NewDispatchUseCase(templates, clk, p.Logger, traceBuf)
	server := inboundhttp.NewServer(dispatchUC, templates, traceBuf, p.Logger)
	endpoint := inboundhttp.NewEndpoint(server, p.Endpoint, p.Logger)
	installUC := usecases.NewInstallProvidersUseCase(endpoint, p.DefaultMockPort, p.Logger)

	c := &Container{
		logger:    p.Logger,
		clock:     clk,
		traceBuf:  traceBuf,
		templates: templates,
		server:    server,
		endpoint:  endpoint,
		installUC: installUC,
	}

	if p.FixturesDir == "" && p.TargetURL == "" {
		return c, nil
	}
	if p.FixturesDir == "" || p.TargetURL == "" {
		return nil, fmt.Errorf("fixtures directory and target URL must be set together")
	}

	repo, err := filesystem.NewFixtureRepository(p.FixturesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create fixture repository: %w", err)
	}

	pacer := ratelimit.NewTokenBucketPacer(p.RequestRate, p.RequestBurst)
	if pacer.Enabled() {
		p.Logger.Info("pacing target requests", "per_second", p.RequestRate, "burst", p.RequestBurst)
	}
	client := target.NewClient(p.TargetURL, p.RequestTimeout, pacer)
	runFixtureUC := usecases.NewRunFixtureUseCase(installUC, client, clk, p.Logger)

	c.repo = repo
	c.client = client
	c.runAllUC = usecases.NewRunAllUseCase(repo, runFixtureUC, installUC, p.Logger)
	return c, nil
}

// Close stops the mock endpoint if it is still listening. It is idempotent.
func (c *Container) Close() {
	c.closeOnce.Do(func() {
		if !c.endpoint.Bound() {
			return
		}
		if _, err := c.endpoint.Stop(context.Background()); err != nil {
			c.logger.Warn("failed to stop mock endpoint", "error", err)
		}
	})
}

// Logger returns the logger passed at construction time.
func (c *Container) Logger() ports.Logger {
	return c.logger
}

// Clock returns the wall clock.
func (c *Container) Clock() ports.Clock {
	return c.clock
}

// TraceBuf returns the dispatch trace buffer.
func (c *Container) TraceBuf() *trace.Buffer {
	return c.traceBuf
}

// Server returns the mock HTTP handler.
func (c *Container) Server() *inboundhttp.Server {
	return c.server
}

// Endpoint returns the mock endpoint handle.
func (c *Container) Endpoint() *inboundhttp.Endpoint {
	return c.endpoint
}

// Repository returns the fixture repository, or nil in mock-only mode.
func (c *Container) Repository() *filesystem.FixtureRepository {
	return c.repo
}

// TargetClient returns the client for the service under test, or nil in
// mock-only mode.
func (c *Container) TargetClient() *target.Client {
	return c.client
}

// InstallProvidersUseCase returns the use case that installs provider blocks.
func (c *Container) InstallProvidersUseCase() *usecases.InstallProvidersUseCase {
	return c.installUC
}

// RunAllUseCase returns the suite runner, or nil in mock-only mode.
func (c *Container) RunAllUseCase() *usecases.RunAllUseCase {
	return c.runAllUC
}
