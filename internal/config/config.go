// Package config loads the server configuration from defaults, an optional YAML file and
// the environment, in that order.
package config

import (
	"clientreg/internal/types"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
	log "github.com/sirupsen/logrus"
)

const (
	ConfigFileEnvKey = "CONFIG_FILE"

	PortKey               = "PORT"
	LogLevelKey           = "LOG_LEVEL"
	LogJSONKey            = "LOG_JSON"
	DrainSecondsKey       = "DRAIN_SECONDS"
	MetricsKey            = "METRICS"
	ClientBackendKey      = "CLIENT_BACKEND"
	CacheBackendKey       = "CACHE_BACKEND"
	SecretIndexBackendKey = "SECRET_INDEX_BACKEND"
	CacheTTLSecondsKey    = "CACHE_TTL_SECONDS"
	SecretKeyKey          = "SECRET_KEY"
	DatabaseURLKey        = "DATABASE_URL"

	DDBEndpointKey = "DDB_ENDPOINT"
	DDBTableKey    = "DDB_TABLE"
	DDBRegionKey   = "DDB_REGION"

	RedisHost  = "REDIS_HOST"
	RedisPort  = "REDIS_PORT"
	RedisUser  = "REDIS_USER"
	RedisPass  = "REDIS_PASS"
	RedisTLS   = "REDIS_SSL"
	RedisDBNum = "REDIS_DB_NUM"

	SNSEndpointKey = "SNS_ENDPOINT"
	SNSTopicArnKey = "SNS_TOPIC_ARN"
)

// Defaults returns a configuration that runs with a SQL store and in-process cache and index.
func Defaults() types.ServerConfig {
	return types.ServerConfig{
		Port:               8080,
		LogLevel:           "info",
		DrainSeconds:       15,
		Metrics:            true,
		ClientBackend:      types.BackendSQL,
		CacheBackend:       types.BackendMemory,
		SecretIndexBackend: types.BackendMemory,
		CacheTTLSeconds:    300,
		DDB: types.DDBConfig{
			Table: "clientreg",
		},
		Redis: types.RedisConfig{
			Host: "localhost",
			Port: "6379",
		},
	}
}

// Load reads the YAML file at path (or CONFIG_FILE when path is empty) over the defaults,
// then applies environment overrides and validates the result.
func Load(path string) (types.ServerConfig, error) {
	cfg := Defaults()
	if path == "" {
		path = os.Getenv(ConfigFileEnvKey)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *types.ServerConfig) error {
	var err error
	setString(&cfg.LogLevel, LogLevelKey)
	setString(&cfg.ClientBackend, ClientBackendKey)
	setString(&cfg.CacheBackend, CacheBackendKey)
	setString(&cfg.SecretIndexBackend, SecretIndexBackendKey)
	setString(&cfg.SecretKey, SecretKeyKey)
	setString(&cfg.Database.URL, DatabaseURLKey)
	setString(&cfg.DDB.Endpoint, DDBEndpointKey)
	setString(&cfg.DDB.Table, DDBTableKey)
	setString(&cfg.DDB.Region, DDBRegionKey)
	setString(&cfg.Redis.Host, RedisHost)
	setString(&cfg.Redis.Port, RedisPort)
	setString(&cfg.Redis.User, RedisUser)
	setString(&cfg.Redis.Pass, RedisPass)
	setString(&cfg.SNS.Endpoint, SNSEndpointKey)
	setString(&cfg.SNS.TopicArn, SNSTopicArnKey)
	setBool(&cfg.LogJSON, LogJSONKey)
	setBool(&cfg.Metrics, MetricsKey)
	setBool(&cfg.Redis.TLS, RedisTLS)

	for key, dst := range map[string]*int{
		PortKey:            &cfg.Port,
		DrainSecondsKey:    &cfg.DrainSeconds,
		CacheTTLSecondsKey: &cfg.CacheTTLSeconds,
		RedisDBNum:         &cfg.Redis.DBNum,
	} {
		if err = setInt(dst, key); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = parseBoolean(v)
	}
}

func setInt(dst *int, key string) error {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func parseBoolean(s string) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false
	}
	return b
}

// SetupLogging applies the configured level and format to the standard logrus logger.
func SetupLogging(cfg types.ServerConfig) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.WithField("level", cfg.LogLevel).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if cfg.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
