package usecases

import (
	"context"
	"fmt"

	"github.com/sophialabs/fixturemock/internal/domain/fixture"
	"github.com/sophialabs/fixturemock/internal/infrastructure/ports"
)

// RunAllUseCase runs every fixture of a repository and asserts that every
// installed provider definition was invoked.
type RunAllUseCase struct {
	repo       fixture.Repository
	runFixture *RunFixtureUseCase
	install    *InstallProvidersUseCase
	logger     ports.Logger
}

// NewRunAllUseCase creates a new use case.
func NewRunAllUseCase(
	repo fixture.Repository,
	runFixture *RunFixtureUseCase,
	install *InstallProvidersUseCase,
	logger ports.Logger,
) *RunAllUseCase {
	return &RunAllUseCase{
		repo:       repo,
		runFixture: runFixture,
		install:    install,
		logger:     logger,
	}
}

// Execute runs the fixtures in lexical order and stops the mock endpoint
// afterwards. A fixture that fails to load is reported as failed. The
// error is only set when the run itself could not proceed.
func (uc *RunAllUseCase) Execute(ctx context.Context) (fixture.Report, error) {
	var report fixture.Report

	names, err := uc.repo.List(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list fixtures: %w", err)
	}
	uc.logger.Info("running fixtures", "count", len(names))

	var runErr error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		f, err := uc.repo.Load(ctx, name)
		if err != nil {
			uc.logger.Error("failed to load fixture", "fixture", name, "error", err)
			report.Verdicts = append(report.Verdicts, fixture.Verdict{
				Fixture:    name,
				PassedStep: -1,
				Failures:   []string{"load: " + err.Error()},
			})
			continue
		}

		report.Verdicts = append(report.Verdicts, uc.runFixture.Execute(ctx, f))
	}

	// The endpoint is stopped even when the run was interrupted.
	coverage, err := uc.install.Finish(context.WithoutCancel(ctx))
	if err != nil {
		uc.logger.Error("failed to stop mock endpoint", "error", err)
	}
	for _, d := range coverage.Uninvoked() {
		uc.logger.Error("provider definition never invoked", "definition", d.ID, "path", d.Path, "source", d.Source)
		report.Uncovered = append(report.Uncovered, d.Describe())
	}

	uc.logger.Info("run finished",
		"fixtures", len(report.Verdicts), "failed", len(report.Failed()), "uncovered", len(report.Uncovered))
	return report, runErr
}
