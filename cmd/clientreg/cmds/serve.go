package cmds

import (
	"clientreg/internal/api"
	"clientreg/internal/backends"
	"clientreg/internal/config"
	"clientreg/internal/metrics"
	"clientreg/internal/pub"
	"clientreg/internal/registry"
	"clientreg/internal/secrets"
	"clientreg/internal/types"
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// LoadConfig loads the configuration and applies its logging settings.
func LoadConfig(path string) (types.ServerConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	config.SetupLogging(cfg)
	return cfg, nil
}

// NewService wires a registry service over opened backends.
func NewService(ctx context.Context, cfg types.ServerConfig, b *backends.Backends) (*registry.Service, error) {
	sealer, err := secrets.NewSealerFromHex(cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	svc := registry.NewService(b.Store, b.Cache, b.Index, sealer)

	p, err := pub.FromConfig(ctx, cfg.SNS)
	if err != nil {
		return nil, fmt.Errorf("sns publisher: %w", err)
	}
	if p != nil {
		svc.Pub = p
		svc.TopicArn = cfg.SNS.TopicArn
	}
	return svc, nil
}

// Serve runs the HTTP API until ctx is cancelled.
func Serve(ctx context.Context, cfg types.ServerConfig) error {
	b, err := backends.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.Close(); err != nil {
			log.WithError(err).Warn("failed to close backends")
		}
	}()

	svc, err := NewService(ctx, cfg, b)
	if err != nil {
		return err
	}
	if _, err := svc.WarmSecretIndex(ctx); err != nil {
		return err
	}

	opts := api.ServerOptions{Port: cfg.Port, DrainDuration: cfg.DrainDuration()}
	if cfg.Metrics {
		opts.Metrics = metrics.Init()
	}
	stop, done := api.RunServerInterruptible(opts, svc)
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		log.Info("shutting down")
		close(stop)
		return <-done
	}
}

// Migrate creates the client table of the configured backend.
func Migrate(ctx context.Context, cfg types.ServerConfig) error {
	b, err := backends.ClientStoreOnly(ctx, cfg)
	if err != nil {
		return err
	}
	defer b.Close()
	if err := b.Migrate(ctx); err != nil {
		return err
	}
	log.WithField("backend", cfg.ClientBackend).Info("client table ready")
	return nil
}
