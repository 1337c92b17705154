package fixture

import "context"

// Repository is the port for discovering and loading fixtures.
type Repository interface {
	// List returns the names of all fixtures in run order.
	List(ctx context.Context) ([]string, error)

	// Load reads and decodes the named fixture. Decoding problems are
	// reported as errors wrapping ErrInvalidFixture.
	Load(ctx context.Context, name string) (*Fixture, error)
}
