package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const secretIndexKey = "_clientreg_secrets"

// SecretIndex keeps the index in a single hash so every instance resolves the same secrets.
type SecretIndex struct {
	cli *redis.Client
}

func NewSecretIndex(cli *redis.Client) *SecretIndex {
	return &SecretIndex{cli: cli}
}

func (s *SecretIndex) Add(ctx context.Context, secretEncrypted, nome string) error {
	return s.cli.HSet(ctx, secretIndexKey, secretEncrypted, nome).Err()
}

// Remove is a no-op when the field is absent; HDEL just reports zero.
func (s *SecretIndex) Remove(ctx context.Context, secretEncrypted string) error {
	return s.cli.HDel(ctx, secretIndexKey, secretEncrypted).Err()
}

func (s *SecretIndex) Snapshot(ctx context.Context) (map[string]string, error) {
	return s.cli.HGetAll(ctx, secretIndexKey).Result()
}
