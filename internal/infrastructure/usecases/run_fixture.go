package usecases

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/sophialabs/fixturemock/internal/domain/compare"
	"github.com/sophialabs/fixturemock/internal/domain/fixture"
	"github.com/sophialabs/fixturemock/internal/domain/jsonvalue"
	"github.com/sophialabs/fixturemock/internal/infrastructure/ports"
)

// RunFixtureUseCase replays one fixture against the service under test.
type RunFixtureUseCase struct {
	install *InstallProvidersUseCase
	client  ports.TargetClient
	clock   ports.Clock
	logger  ports.Logger
}

// NewRunFixtureUseCase creates a new use case.
func NewRunFixtureUseCase(
	install *InstallProvidersUseCase,
	client ports.TargetClient,
	clock ports.Clock,
	logger ports.Logger,
) *RunFixtureUseCase {
	return &RunFixtureUseCase{
		install: install,
		client:  client,
		clock:   clock,
		logger:  logger,
	}
}

// Execute installs the fixture's providers and tries its steps in order.
// The first step that fully succeeds passes the fixture. Otherwise every
// step's diagnostics are returned, prefixed with the step index. A
// transport failure ends the fixture without trying further steps.
func (uc *RunFixtureUseCase) Execute(ctx context.Context, f *fixture.Fixture) (v fixture.Verdict) {
	start := uc.clock.Now()
	v = fixture.Verdict{Fixture: f.Name, PassedStep: -1}
	defer func() {
		v.Duration = uc.clock.Now().Sub(start)
	}()

	if err := uc.install.Execute(ctx, f.Providers); err != nil {
		v.Failures = []string{"providers: " + err.Error()}
		uc.logger.Error("fixture failed", "fixture", f.Name, "error", err)
		return v
	}

	for i, step := range f.Steps {
		failures, transportErr := uc.runStep(ctx, step)
		if transportErr != nil {
			v.Failures = append(v.Failures, fmt.Sprintf("step %d: %v", i, transportErr))
			uc.logger.Error("fixture aborted", "fixture", f.Name, "step", i, "error", transportErr)
			return v
		}
		if len(failures) == 0 {
			v.PassedStep = i
			v.Failures = nil
			uc.logger.Info("fixture passed", "fixture", f.Name, "step", i)
			return v
		}
		for _, msg := range failures {
			v.Failures = append(v.Failures, fmt.Sprintf("step %d: %s", i, msg))
		}
		uc.logger.Debug("fixture step failed", "fixture", f.Name, "step", i, "failures", len(failures))
	}

	if len(v.Failures) == 0 {
		v.Failures = []string{"fixture has no steps"}
	}
	uc.logger.Warn("fixture failed", "fixture", f.Name, "failures", len(v.Failures))
	return v
}

func (uc *RunFixtureUseCase) runStep(ctx context.Context, step fixture.Step) ([]string, error) {
	resp, err := uc.client.Send(ctx, step.Request)
	if err != nil {
		return nil, err
	}
	return verifyResponse(step.Response, resp), nil
}

// verifyResponse compares an observed response with the expectation and
// returns every difference found.
func verifyResponse(want fixture.ExpectedResponse, got *ports.TargetResponse) []string {
	var failures []string

	if got.StatusCode != want.StatusCode {
		failures = append(failures, fmt.Sprintf("Expected response code: %d but got %d", want.StatusCode, got.StatusCode))
	}

	for _, h := range want.Headers {
		values := got.Header.Values(h.Key)
		if len(values) == 0 {
			failures = append(failures, fmt.Sprintf("Expected header %s is not present in reply", h.Key))
			continue
		}
		if !slices.Contains(values, h.Value) {
			failures = append(failures, fmt.Sprintf("Expected header %s to have value %s but these values were present %s",
				h.Key, h.Value, strings.Join(values, ", ")))
		}
	}

	if msg := verifyBody(want.Body, got.Body); msg != "" {
		failures = append(failures, msg)
	}
	return failures
}

func verifyBody(want *jsonvalue.Value, body []byte) string {
	body = bytes.TrimSpace(body)
	switch {
	case want == nil && len(body) == 0:
		return ""
	case want == nil:
		return "Body was expected to be empty but was " + string(body)
	case len(body) == 0:
		return "Body was expected to be " + want.Pretty() + " but no body was received"
	}

	received, err := jsonvalue.Parse(body)
	if err != nil {
		return fmt.Sprintf("Body could not be parsed as JSON: %v", err)
	}
	if verdict := compare.Compare(received, *want); !verdict.IsEqual() {
		return "Body mismatch: " + verdict.Reason
	}
	return ""
}
