package registry

import (
	"clientreg/internal/metrics"
	"clientreg/internal/types"
	"context"
	"crypto/subtle"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Authenticate resolves a presented plaintext secret to the name of the client owning it,
// using only the secret index. Every indexed secret is opened and compared in constant time.
func (s *Service) Authenticate(ctx context.Context, secret string) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return "", s.fail(OpAuthenticate, "", types.ErrInvalidSecret)
	}
	entries, err := s.Index.Snapshot(ctx)
	if err != nil {
		return "", s.fail(OpAuthenticate, "", types.Err(types.ErrPersistence, err, ""))
	}
	presented := []byte(secret)
	for encrypted, nome := range entries {
		plain, err := s.Secrets.Reveal(encrypted)
		if err != nil {
			log.WithError(err).WithField("nome", nome).Warn("secret index holds an entry that cannot be opened")
			continue
		}
		if subtle.ConstantTimeCompare([]byte(plain), presented) == 1 {
			s.succeed(OpAuthenticate)
			return nome, nil
		}
	}
	return "", s.fail(OpAuthenticate, "", types.ErrInvalidSecret)
}

// WarmSecretIndex loads every stored secret into the index. Run it once at startup, before
// serving, so secrets issued by earlier processes resolve.
func (s *Service) WarmSecretIndex(ctx context.Context) (int, error) {
	secrets, err := s.Store.Secrets(ctx)
	if err != nil {
		return 0, types.Err(types.ErrPersistence, err, "load secrets")
	}
	for encrypted, nome := range secrets {
		if err := s.Index.Add(ctx, encrypted, nome); err != nil {
			return 0, types.Err(types.ErrPersistence, err, "index secret of %s", nome)
		}
	}
	metrics.SecretIndexSize.Set(float64(len(secrets)))
	log.WithField("count", len(secrets)).Info("secret index warmed")
	return len(secrets), nil
}
