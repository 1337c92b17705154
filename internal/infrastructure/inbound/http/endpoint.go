package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/sophialabs/fixturemock/internal/domain/provider"
	"github.com/sophialabs/fixturemock/internal/infrastructure/ports"
)

var (
	// ErrNotBound is returned by operations that need a listening endpoint.
	ErrNotBound = errors.New("mock endpoint is not bound")
	// ErrAlreadyBound is returned by Bind while the endpoint is listening.
	ErrAlreadyBound = errors.New("mock endpoint is already bound")
)

// State is the lifecycle state of an Endpoint.
type State int

const (
	StateIdle State = iota
	StateBound
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBound:
		return "bound"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// EndpointConfig holds the listener settings of the mock endpoint.
type EndpointConfig struct {
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

var _ ports.MockEndpoint = (*Endpoint)(nil)

// Endpoint owns the listener of the mock dispatch server. It moves from
// Idle to Bound on Bind and to Stopped on Stop; a stopped endpoint may be
// bound again.
type Endpoint struct {
	mu       sync.Mutex
	state    State
	server   *Server
	cfg      EndpointConfig
	logger   ports.Logger
	httpSrv  *http.Server
	addr     net.Addr
	serveErr chan error
	set      *provider.DefinitionSet
}

// NewEndpoint creates an idle endpoint that serves requests with server.
func NewEndpoint(server *Server, cfg EndpointConfig, logger ports.Logger) *Endpoint {
	return &Endpoint{
		server: server,
		cfg:    cfg,
		logger: logger,
	}
}

// State returns the current lifecycle state.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Bound reports whether the endpoint is listening.
func (e *Endpoint) Bound() bool {
	return e.State() == StateBound
}

// Addr returns the listening address, or nil when not bound.
func (e *Endpoint) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateBound {
		return nil
	}
	return e.addr
}

// Bind validates defs, starts listening on port and installs a fresh
// definition set. Port 0 picks an ephemeral port.
func (e *Endpoint) Bind(_ context.Context, port int, defs []*provider.Definition) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateBound {
		return ErrAlreadyBound
	}
	if err := e.server.validateTemplates(defs); err != nil {
		return err
	}
	return e.listenLocked(port, defs)
}

// Append adds defs to the live set. Requests already in flight see the set
// as it was when they were matched.
func (e *Endpoint) Append(defs []*provider.Definition) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateBound {
		return ErrNotBound
	}
	if err := e.server.validateTemplates(defs); err != nil {
		return err
	}
	e.set.Append(defs...)
	return nil
}

// Rebind stops the listener and binds again on port with a fresh set. The
// coverage of the retired set is returned even when the new bind fails.
func (e *Endpoint) Rebind(ctx context.Context, port int, defs []*provider.Definition) (provider.Coverage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateBound {
		return nil, ErrNotBound
	}
	if err := e.server.validateTemplates(defs); err != nil {
		return nil, err
	}

	retired, err := e.shutdownLocked(ctx)
	if err != nil {
		return retired, err
	}
	return retired, e.listenLocked(port, defs)
}

// Stop shuts the listener down gracefully and returns the final coverage.
func (e *Endpoint) Stop(ctx context.Context) (provider.Coverage, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateBound {
		return nil, ErrNotBound
	}
	return e.shutdownLocked(ctx)
}

// Coverage returns the coverage of the live set, or of the last set when
// the endpoint is stopped.
func (e *Endpoint) Coverage() provider.Coverage {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set == nil {
		return nil
	}
	return e.set.Coverage()
}

func (e *Endpoint) listenLocked(port int, defs []*provider.Definition) error {
	addr := net.JoinHostPort(e.cfg.Host, strconv.Itoa(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	set := provider.NewDefinitionSet(defs...)
	e.server.Install(set)

	srv := &http.Server{
		Handler:      e.server,
		ReadTimeout:  e.cfg.ReadTimeout,
		WriteTimeout: e.cfg.WriteTimeout,
		IdleTimeout:  e.cfg.IdleTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	e.set = set
	e.httpSrv = srv
	e.addr = ln.Addr()
	e.serveErr = serveErr
	e.state = StateBound
	e.logger.Info("mock endpoint listening", "addr", e.addr.String(), "definitions", len(defs))
	return nil
}

func (e *Endpoint) shutdownLocked(ctx context.Context) (provider.Coverage, error) {
	if e.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
		defer cancel()
	}

	err := e.httpSrv.Shutdown(ctx)
	if serveErr := <-e.serveErr; serveErr != nil && err == nil {
		err = serveErr
	}
	if err != nil {
		_ = e.httpSrv.Close()
		err = fmt.Errorf("shutdown mock endpoint: %w", err)
	}

	coverage := e.set.Coverage()
	e.server.Install(nil)
	e.httpSrv = nil
	e.serveErr = nil
	e.state = StateStopped
	e.logger.Info("mock endpoint stopped", "addr", e.addr.String(), "definitions", len(coverage))
	return coverage, err
}
