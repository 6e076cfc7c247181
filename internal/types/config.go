package types

import (
	"encoding/hex"
	"fmt"
	"time"
)

const (
	BackendSQL    = "sql"
	BackendDDB    = "ddb"
	BackendRedis  = "redis"
	BackendMemory = "memory"

	SecretKeyLength = 32

	MinCacheTTLSeconds = 1
)

// ServerConfig drives the whole process: which backends hold clients, cached responses
// and the secret index, how secrets are sealed, and where the HTTP API listens.
// ClientBackend is one of sql, ddb, redis or memory; CacheBackend and SecretIndexBackend
// are memory or redis.
// SecretKey is the hex-encoded 32-byte key used to seal client secrets. Losing it makes
// every stored secret unusable.
type ServerConfig struct {
	Port         int    `yaml:"port" json:"port"`
	LogLevel     string `yaml:"log_level" json:"log_level"`
	LogJSON      bool   `yaml:"log_json" json:"log_json"`
	DrainSeconds int    `yaml:"drain_seconds" json:"drain_seconds"`
	Metrics      bool   `yaml:"metrics" json:"metrics"`

	ClientBackend      string `yaml:"client_backend" json:"client_backend"`
	CacheBackend       string `yaml:"cache_backend" json:"cache_backend"`
	SecretIndexBackend string `yaml:"secret_index_backend" json:"secret_index_backend"`
	CacheTTLSeconds    int    `yaml:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	SecretKey string `yaml:"secret_key" json:"-"`

	Database DatabaseConfig `yaml:"database" json:"database"`
	DDB      DDBConfig      `yaml:"ddb" json:"ddb"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	SNS      SNSConfig      `yaml:"sns" json:"sns"`
}

type DatabaseConfig struct {
	URL string `yaml:"url" json:"-"`
}

type DDBConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Table    string `yaml:"table" json:"table"`
	Region   string `yaml:"region" json:"region"`
}

type RedisConfig struct {
	Host  string `yaml:"host" json:"host"`
	Port  string `yaml:"port" json:"port"`
	User  string `yaml:"user" json:"user"`
	Pass  string `yaml:"pass" json:"-"`
	TLS   bool   `yaml:"tls" json:"tls"`
	DBNum int    `yaml:"db_num" json:"db_num"`
}

// SNSConfig enables client lifecycle events when TopicArn is set.
type SNSConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	TopicArn string `yaml:"topic_arn" json:"topic_arn"`
}

func (c ServerConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c ServerConfig) DrainDuration() time.Duration {
	return time.Duration(c.DrainSeconds) * time.Second
}

func (c ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	switch c.ClientBackend {
	case BackendSQL:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the %s client backend", BackendSQL)
		}
	case BackendDDB, BackendRedis, BackendMemory:
	default:
		return Err(ErrInvalidBackend, nil, "client_backend %q", c.ClientBackend)
	}
	for name, b := range map[string]string{
		"cache_backend":        c.CacheBackend,
		"secret_index_backend": c.SecretIndexBackend,
	} {
		if b != BackendMemory && b != BackendRedis {
			return Err(ErrInvalidBackend, nil, "%s %q", name, b)
		}
	}
	if c.CacheTTLSeconds < MinCacheTTLSeconds {
		return fmt.Errorf("cache_ttl_seconds must be greater than or equal to %d", MinCacheTTLSeconds)
	}
	key, err := hex.DecodeString(c.SecretKey)
	if err != nil || len(key) != SecretKeyLength {
		return fmt.Errorf("secret_key must be %d hex-encoded bytes", SecretKeyLength)
	}
	return nil
}
