package ports

import (
	"context"
	"net/http"
	"time"

	"github.com/sophialabs/fixturemock/internal/domain/fixture"
	"github.com/sophialabs/fixturemock/internal/domain/provider"
)

// Clock provides the current time and cancellable sleeps.
type Clock interface {
	Now() time.Time
	SleepContext(ctx context.Context, d time.Duration) error
}

// Logger provides structured logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// Pacer throttles outbound requests to the service under test.
type Pacer interface {
	// Wait blocks until the next request may be sent or ctx is done.
	Wait(ctx context.Context) error
}

// TargetResponse is what the service under test answered.
type TargetResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// TargetClient sends fixture requests to the service under test.
type TargetClient interface {
	Send(ctx context.Context, req fixture.ExpectedRequest) (*TargetResponse, error)
}

// MockEndpoint is the lifecycle handle of the mock dispatch listener.
type MockEndpoint interface {
	// Bound reports whether the endpoint is currently listening.
	Bound() bool
	// Bind starts listening on port with a fresh definition set.
	Bind(ctx context.Context, port int, defs []*provider.Definition) error
	// Append adds definitions to the live set without restarting.
	Append(defs []*provider.Definition) error
	// Rebind stops the listener and starts it again on port with a fresh
	// definition set. It returns the coverage of the retired set.
	Rebind(ctx context.Context, port int, defs []*provider.Definition) (provider.Coverage, error)
	// Stop shuts the listener down and returns the coverage of the last set.
	Stop(ctx context.Context) (provider.Coverage, error)
	// Coverage returns the coverage of the live set.
	Coverage() provider.Coverage
}

// TemplateRenderer compiles response templates and caches them per
// definition.
type TemplateRenderer interface {
	Renderer(def *provider.Definition) (provider.BodyRenderer, error)
	Validate(name string, tpl *provider.Template) error
}
