package ports

import (
	"clientreg/internal/types"
	"context"
)

// ClientStore is the durable record of registered clients.
// Every implementation MUST enforce uniqueness of CNPJ on Insert and report a violation as
// types.ErrConflict, so that two racing registrations cannot both succeed.
// Implementations acquire their connection per call and release it before returning.
type ClientStore interface {
	// Exists reports whether a client with this CNPJ is stored.
	Exists(ctx context.Context, cnpj string) (bool, error)

	// Insert stores a new client and commits it before returning.
	// MUST return types.ErrConflict if the CNPJ is already taken.
	Insert(ctx context.Context, client types.Client) error

	// List returns every client ordered by Nome ascending.
	List(ctx context.Context) ([]types.ClientView, error)

	// Get returns the public projection of a client.
	// MUST return types.ErrNotFound if the client does not exist.
	Get(ctx context.Context, cnpj string) (types.ClientView, error)

	// SecretFor returns the sealed secret of a client.
	// MUST return types.ErrNotFound if the client does not exist.
	SecretFor(ctx context.Context, cnpj string) (string, error)

	// Delete removes a client and commits. It returns false when no row was removed.
	Delete(ctx context.Context, cnpj string) (bool, error)

	// Secrets returns every sealed secret mapped to its owner's Nome.
	Secrets(ctx context.Context) (map[string]string, error)

	// ClearAll purges all clients. Used in tests only.
	ClearAll(ctx context.Context) error
}

// Migrator is implemented by stores that need a schema or table created up front.
type Migrator interface {
	Migrate(ctx context.Context) error
}
