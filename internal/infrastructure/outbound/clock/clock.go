// Package clock provides the wall clock used for trace timestamps, template
// rendering and readiness polling.
package clock

import (
	"context"
	"fmt"
	"time"

	"github.com/sophialabs/fixturemock/internal/infrastructure/ports"
)

var _ ports.Clock = (*System)(nil)

// System is the UTC wall clock.
type System struct{}

// New creates a System clock.
func New() *System {
	return &System{}
}

// Now returns the current time in UTC.
func (c *System) Now() time.Time { return time.Now().UTC() }

// SleepContext waits for d or until ctx is done.
func (c *System) SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Poll calls probe every interval until it succeeds, ctx is done, or
// timeout elapses on clk. The last probe error is returned on timeout.
func Poll(ctx context.Context, clk ports.Clock, timeout, interval time.Duration, probe func(context.Context) error) error {
	deadline := clk.Now().Add(timeout)
	for {
		err := probe(ctx)
		if err == nil {
			return nil
		}
		if !clk.Now().Before(deadline) {
			return fmt.Errorf("not ready after %s: %w", timeout, err)
		}
		if sleepErr := clk.SleepContext(ctx, interval); sleepErr != nil {
			return fmt.Errorf("%w (last error: %v)", sleepErr, err)
		}
	}
}
