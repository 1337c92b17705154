package usecases

import (
	"context"
	"fmt"

	"github.com/sophialabs/fixturemock/internal/domain/fixture"
	"github.com/sophialabs/fixturemock/internal/domain/provider"
	"github.com/sophialabs/fixturemock/internal/infrastructure/ports"
)

// InstallProvidersUseCase installs fixture provider blocks into the mock
// endpoint and remembers the coverage of every definition set it retires,
// so the end-of-run assertion sees every definition ever installed.
type InstallProvidersUseCase struct {
	endpoint    ports.MockEndpoint
	defaultPort int
	logger      ports.Logger
	retired     provider.Coverage
}

// NewInstallProvidersUseCase creates a new use case. defaultPort is used
// when a block without a port arrives while the endpoint is idle.
func NewInstallProvidersUseCase(endpoint ports.MockEndpoint, defaultPort int, logger ports.Logger) *InstallProvidersUseCase {
	return &InstallProvidersUseCase{
		endpoint:    endpoint,
		defaultPort: defaultPort,
		logger:      logger,
	}
}

// Execute installs block. A block with a port rebinds the endpoint on that
// port with a fresh set; a block without one appends to the live set.
func (uc *InstallProvidersUseCase) Execute(ctx context.Context, block *fixture.ProviderBlock) error {
	if block == nil {
		return nil
	}

	switch {
	case block.Port != nil && uc.endpoint.Bound():
		retired, err := uc.endpoint.Rebind(ctx, *block.Port, block.Definitions)
		uc.retired = append(uc.retired, retired...)
		if err != nil {
			return fmt.Errorf("rebind mock endpoint on port %d: %w", *block.Port, err)
		}
		uc.logger.Info("mock endpoint rebound", "port", *block.Port, "definitions", len(block.Definitions), "retired", len(retired))

	case block.Port != nil:
		if err := uc.endpoint.Bind(ctx, *block.Port, block.Definitions); err != nil {
			return fmt.Errorf("bind mock endpoint on port %d: %w", *block.Port, err)
		}
		uc.logger.Info("mock endpoint bound", "port", *block.Port, "definitions", len(block.Definitions))

	case !uc.endpoint.Bound():
		if err := uc.endpoint.Bind(ctx, uc.defaultPort, block.Definitions); err != nil {
			return fmt.Errorf("bind mock endpoint on default port %d: %w", uc.defaultPort, err)
		}
		uc.logger.Info("mock endpoint bound", "port", uc.defaultPort, "definitions", len(block.Definitions))

	default:
		if err := uc.endpoint.Append(block.Definitions); err != nil {
			return fmt.Errorf("append provider definitions: %w", err)
		}
		uc.logger.Debug("provider definitions appended", "definitions", len(block.Definitions))
	}
	return nil
}

// Finish stops the endpoint if it is running and returns the coverage of
// every definition installed since the previous Finish.
func (uc *InstallProvidersUseCase) Finish(ctx context.Context) (provider.Coverage, error) {
	all := uc.retired
	uc.retired = nil

	if !uc.endpoint.Bound() {
		return all, nil
	}
	final, err := uc.endpoint.Stop(ctx)
	all = append(all, final...)
	if err != nil {
		return all, fmt.Errorf("stop mock endpoint: %w", err)
	}
	return all, nil
}
