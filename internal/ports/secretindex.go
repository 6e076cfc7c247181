package ports

import "context"

// SecretIndex maps sealed secrets to the name of the client owning them, so a presented
// secret can be resolved without a store round-trip.
type SecretIndex interface {
	Add(ctx context.Context, secretEncrypted, nome string) error
	// Remove is idempotent: removing an absent key is not an error.
	Remove(ctx context.Context, secretEncrypted string) error
	// Snapshot returns a copy of the whole index.
	Snapshot(ctx context.Context) (map[string]string, error)
}
