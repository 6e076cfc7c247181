package backends

import (
	"clientreg/internal/backends/ddb"
	"clientreg/internal/backends/memory"
	"clientreg/internal/backends/sql"
	"clientreg/internal/ports"
	"clientreg/internal/types"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	redisbackend "clientreg/internal/backends/redis"
)

const (
	DefaultDDBTable  = "clientreg"
	DefaultDDBRegion = "us-east-1"

	janitorInterval = time.Minute
)

const AmazonRootCA1PEM = `-----BEGIN CERTIFICATE-----
MIIDQTCCAimgAwIBAgITBmyfz5m/jAo54vB4ikPmljZbyjANBgkqhkiG9w0BAQsF
ADA5MQswCQYDVQQGEwJVUzEPMA0GA1UEChMGQW1hem9uMRkwFwYDVQQDExBBbWF6
b24gUm9vdCBDQSAxMB4XDTE1MDUyNjAwMDAwMFoXDTM4MDExNzAwMDAwMFowOTEL
MAkGA1UEBhMCVVMxDzANBgNVBAoTBkFtYXpvbjEZMBcGA1UEAxMQQW1hem9uIFJv
b3QgQ0EgMTCCASIwDQYJKoZIhvcNAQEBBQADggEPADCCAQoCggEBALJ4gHHKeNXj
ca9HgFB0fW7Y14h29Jlo91ghYPl0hAEvrAIthtOgQ3pOsqTQNroBvo3bSMgHFzZM
9O6II8c+6zf1tRn4SWiw3te5djgdYZ6k/oI2peVKVuRF4fn9tBb6dNqcmzU5L/qw
IFAGbHrQgLKm+a/sRxmPUDgH3KKHOVj4utWp+UhnMJbulHheb4mjUcAwhmahRWa6
VOujw5H5SNz/0egwLX0tdHA114gk957EWW67c4cX8jJGKLhD+rcdqsq08p8kDi1L
93FcXmn/6pUCyziKrlA4b9v7LWIbxcceVOF34GfID5yHI9Y/QCB/IIDEgEw+OyQm
jgSubJrIqg0CAwEAAaNCMEAwDwYDVR0TAQH/BAUwAwEB/zAOBgNVHQ8BAf8EBAMC
AYYwHQYDVR0OBBYEFIQYzIU07LwMlJQuCFmcx7IQTgoIMA0GCSqGSIb3DQEBCwUA
A4IBAQCY8jdaQZChGsV2USggNiMOruYou6r4lK5IpDB/G/wkjUu0yKGX9rbxenDI
U5PMCCjjmCXPI6T53iHTfIUJrU6adTrCC2qJeHZERxhlbI1Bjjt/msv0tadQ1wUs
N+gDS63pYaACbvXy8MWy7Vu33PqUXHeeE6V/Uq2V8viTO96LXFvKWlJbYK8U90vv
o/ufQJVtMVT8QtPHRh8jrdkPSHCa2XV4cdFyQzR1bldZwgJcJmApzyMZFo6IQ6XU
5MsI+yMRQ+hDKXJioaldXgjUkK642M4UwtBV8ob2xJNDd2ZhwLnoQdeXeGADbkpy
rqXRfboQnoZsG4q5WTP468SQvvG5
-----END CERTIFICATE-----`

// Backends holds the stores selected by configuration. Components sharing a backend kind
// share one client.
type Backends struct {
	Store ports.ClientStore
	Cache ports.ResponseCache
	Index ports.SecretIndex

	redis   *redis.Client
	closers []func() error
}

// Open constructs the client store, response cache and secret index selected by cfg.
// The in-process cache janitor runs until ctx is done.
func Open(ctx context.Context, cfg types.ServerConfig) (*Backends, error) {
	b := &Backends{}
	fail := func(err error) (*Backends, error) {
		if cerr := b.Close(); cerr != nil {
			log.WithError(cerr).Warn("failed to close backends after startup error")
		}
		return nil, err
	}

	store, err := b.clientStore(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	b.Store = store

	switch cfg.CacheBackend {
	case types.BackendRedis:
		cli, err := b.redisClient(ctx, cfg.Redis)
		if err != nil {
			return fail(err)
		}
		b.Cache = redisbackend.NewResponseCache(cli, cfg.CacheTTL())
	case types.BackendMemory, "":
		cache := memory.NewResponseCache(cfg.CacheTTL())
		go cache.RunJanitor(ctx, janitorInterval)
		b.Cache = cache
	default:
		return fail(types.Err(types.ErrInvalidBackend, nil, "cache backend %q", cfg.CacheBackend))
	}

	switch cfg.SecretIndexBackend {
	case types.BackendRedis:
		cli, err := b.redisClient(ctx, cfg.Redis)
		if err != nil {
			return fail(err)
		}
		b.Index = redisbackend.NewSecretIndex(cli)
	case types.BackendMemory, "":
		b.Index = memory.NewSecretIndex()
	default:
		return fail(types.Err(types.ErrInvalidBackend, nil, "secret index backend %q", cfg.SecretIndexBackend))
	}
	return b, nil
}

// ClientStoreOnly opens just the client store, for commands that never touch the cache.
func ClientStoreOnly(ctx context.Context, cfg types.ServerConfig) (*Backends, error) {
	b := &Backends{}
	store, err := b.clientStore(ctx, cfg)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Store = store
	return b, nil
}

// Migrate creates the client table when the store supports it.
func (b *Backends) Migrate(ctx context.Context) error {
	m, ok := b.Store.(ports.Migrator)
	if !ok {
		log.Info("client backend needs no migration")
		return nil
	}
	return m.Migrate(ctx)
}

func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

func (b *Backends) clientStore(ctx context.Context, cfg types.ServerConfig) (ports.ClientStore, error) {
	switch cfg.ClientBackend {
	case types.BackendSQL:
		db, err := sql.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		return sql.NewClientStore(db), nil
	case types.BackendDDB:
		cli, err := ddbClientFromConfig(ctx, cfg.DDB)
		if err != nil {
			return nil, err
		}
		table := cfg.DDB.Table
		if table == "" {
			table = DefaultDDBTable
		}
		return ddb.NewClientStore(table, cli), nil
	case types.BackendRedis:
		cli, err := b.redisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return redisbackend.NewClientStore(cli), nil
	case types.BackendMemory:
		log.Warn("clients are kept in memory and will be lost on exit")
		return memory.NewClientStore(), nil
	default:
		return nil, types.Err(types.ErrInvalidBackend, nil, "client backend %q", cfg.ClientBackend)
	}
}

// redisClient connects once and reuses the client for every redis-backed component.
func (b *Backends) redisClient(ctx context.Context, rc types.RedisConfig) (*redis.Client, error) {
	if b.redis != nil {
		return b.redis, nil
	}
	cli, err := redisClientFromConfig(ctx, rc)
	if err != nil {
		return nil, err
	}
	b.redis = cli
	b.closers = append(b.closers, cli.Close)
	return cli, nil
}

// ddbClientFromConfig creates a DynamoDB client. A configured endpoint means a local
// emulator, so static credentials are used.
func ddbClientFromConfig(ctx context.Context, dc types.DDBConfig) (*dynamodb.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	ddbClient := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if dc.Region != "" {
			o.Region = dc.Region
		}
		if dc.Endpoint != "" {
			o.BaseEndpoint = aws.String(dc.Endpoint)
			if o.Region == "" {
				o.Region = DefaultDDBRegion
			}
			o.Credentials = credentials.NewStaticCredentialsProvider("x", "x", "")
		}
	})
	return ddbClient, nil
}

func redisClientFromConfig(ctx context.Context, rc types.RedisConfig) (*redis.Client, error) {
	opts, err := redisOptions(rc)
	if err != nil {
		return nil, err
	}
	redisClient := redis.NewClient(opts)
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return redisClient, nil
}

func redisOptions(rc types.RedisConfig) (*redis.Options, error) {
	host, port := rc.Host, rc.Port
	if host == "" {
		host = "localhost"
	}
	if port == "" {
		port = "6379"
	}

	var tlsConfig *tls.Config
	if rc.TLS {
		caCerts := x509.NewCertPool()
		if !caCerts.AppendCertsFromPEM([]byte(AmazonRootCA1PEM)) {
			return nil, fmt.Errorf("failed to retrieve CA certificate")
		}
		tlsConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			RootCAs:    caCerts,
		}
	}

	return &redis.Options{
		Addr:      fmt.Sprintf("%s:%s", host, port),
		Username:  rc.User,
		Password:  rc.Pass,
		DB:        rc.DBNum,
		TLSConfig: tlsConfig,
	}, nil
}
