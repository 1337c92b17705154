package app

import (
	"context"
	"fmt"
	"io"
	"net"
	"os/signal"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/sophialabs/fixturemock/internal/domain/fixture"
	inboundhttp "github.com/sophialabs/fixturemock/internal/infrastructure/inbound/http"
	"github.com/sophialabs/fixturemock/internal/infrastructure/outbound/clock"
	"github.com/sophialabs/fixturemock/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/fixturemock/internal/infrastructure/outbound/logging"
	"github.com/sophialabs/fixturemock/internal/infrastructure/ports"
	"github.com/sophialabs/fixturemock/internal/infrastructure/wiring"
)

const targetPollInterval = 250 * time.Millisecond

// App is the thin lifecycle manager that delegates dependency construction to wiring.Container.
type App struct {
	cfg       Config
	container *wiring.Container
	logger    ports.Logger
	stdout    io.Writer
}

// New constructs the runner: reports go to stdout, logs to stderr.
func New(cfg Config, stdout, stderr io.Writer) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return build(cfg, cfg.FixturesDir, cfg.TargetURL, stdout, stderr)
}

// NewMockOnly constructs an app that only serves provider definitions.
func NewMockOnly(cfg Config, stderr io.Writer) (*App, error) {
	return build(cfg, "", "", io.Discard, stderr)
}

func build(cfg Config, fixturesDir, targetURL string, stdout, stderr io.Writer) (*App, error) {
	logger, err := logging.NewText(stderr, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	container, err := wiring.New(wiring.Params{
		FixturesDir:     fixturesDir,
		TargetURL:       targetURL,
		DefaultMockPort: cfg.MockPort,
		RequestTimeout:  cfg.RequestTimeout,
		RequestRate:     cfg.RequestRate,
		RequestBurst:    cfg.RequestBurst,
		TraceSize:       cfg.TraceSize,
		Endpoint: inboundhttp.EndpointConfig{
			Host:            cfg.MockHost,
			ReadTimeout:     cfg.ReadTimeout,
			WriteTimeout:    cfg.WriteTimeout,
			IdleTimeout:     cfg.IdleTimeout,
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to wire infrastructure: %w", err)
	}

	return &App{
		cfg:       cfg,
		container: container,
		logger:    logger,
		stdout:    stdout,
	}, nil
}

// MockAddr returns the address the mock endpoint listens on, or nil.
func (a *App) MockAddr() net.Addr {
	return a.container.Endpoint().Addr()
}

// Run executes the fixture suite and prints the report. In watch mode the
// suite reruns on every fixture change until SIGINT/SIGTERM or ctx
// cancellation, and the last report is returned.
func (a *App) Run(ctx context.Context) (fixture.Report, error) {
	defer a.container.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.waitForTarget(ctx); err != nil {
		return fixture.Report{}, err
	}

	report, err := a.runOnce(ctx)
	if err != nil || !a.cfg.Watch {
		return report, err
	}

	root := a.container.Repository().Root()
	changes := &changeQueue{ready: make(chan struct{}, 1)}
	watcher, err := filesystem.NewWatcher(root, a.cfg.WatchDebounce, a.logger, changes.add)
	if err != nil {
		return report, fmt.Errorf("failed to watch fixtures: %w", err)
	}
	watcher.Start()
	defer watcher.Stop()
	a.logger.Info("watching fixtures", "root", root)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("watch stopped")
			return report, nil
		case <-changes.ready:
			a.logger.Info("fixtures changed, rerunning", "fixtures", changes.take())
			next, err := a.runOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return report, nil
				}
				return next, err
			}
			report = next
		}
	}
}

// changeQueue merges watcher batches that arrive while a run is in
// progress so the next run logs all of them.
type changeQueue struct {
	mu      sync.Mutex
	pending []string
	ready   chan struct{}
}

func (q *changeQueue) add(changed []string) {
	q.mu.Lock()
	for _, name := range changed {
		if !slices.Contains(q.pending, name) {
			q.pending = append(q.pending, name)
		}
	}
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *changeQueue) take() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	names := q.pending
	q.pending = nil
	slices.Sort(names)
	return names
}

func (a *App) runOnce(ctx context.Context) (fixture.Report, error) {
	report, err := a.container.RunAllUseCase().Execute(ctx)
	if err != nil {
		return report, fmt.Errorf("run failed: %w", err)
	}
	fmt.Fprint(a.stdout, report.String())
	return report, nil
}

func (a *App) waitForTarget(ctx context.Context) error {
	if a.cfg.TargetWait <= 0 {
		return nil
	}
	client := a.container.TargetClient()
	a.logger.Info("waiting for target", "url", client.BaseURL(), "timeout", a.cfg.TargetWait)
	if err := clock.Poll(ctx, a.container.Clock(), a.cfg.TargetWait, targetPollInterval, client.Ping); err != nil {
		return fmt.Errorf("target %s: %w", client.BaseURL(), err)
	}
	return nil
}

// Serve binds the mock endpoint on port with the definitions in defsPath
// and serves until SIGINT/SIGTERM or ctx cancellation. Definitions never
// invoked are logged on shutdown.
func (a *App) Serve(ctx context.Context, defsPath string, port int) error {
	defer a.container.Close()

	defs, err := filesystem.ReadDefinitions(defsPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	endpoint := a.container.Endpoint()
	if err := endpoint.Bind(ctx, port, defs); err != nil {
		return fmt.Errorf("failed to start mock endpoint: %w", err)
	}
	a.logger.Info("serving provider definitions", "addr", endpoint.Addr().String(), "definitions", len(defs), "source", defsPath)

	<-ctx.Done()
	a.logger.Info("shutting down mock endpoint...")

	coverage, err := endpoint.Stop(context.Background())
	for _, d := range coverage.Uninvoked() {
		a.logger.Warn("provider definition never invoked", "definition", d.ID, "path", d.Path)
	}
	if err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	a.logger.Info("mock endpoint stopped")
	return nil
}
