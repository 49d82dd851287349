// Package config loads lockfleetd's runtime configuration from a YAML file
// with environment-variable overrides, mirroring the teacher's
// redis_config.go convention of "struct for explicit config, env vars for
// production".
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lockfleet/lockfleet"
)

// Config is the full set of options spec.md recognizes.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Lock    LockConfig    `yaml:"lock"`
	Storage StorageConfig `yaml:"storage"`
	HTTP    HTTPConfig    `yaml:"http"`
}

// BackendConfig selects and configures the two lock providers.
type BackendConfig struct {
	Active    string          `yaml:"active"` // "redis" or "zookeeper"
	Redis     RedisConfig     `yaml:"redis"`
	ZooKeeper ZooKeeperConfig `yaml:"zookeeper"`
}

type RedisClusterConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Nodes    []string `yaml:"nodes"`
	ReadMode string   `yaml:"readMode"`
}

type RedisConfig struct {
	Host          string             `yaml:"host"`
	Port          int                `yaml:"port"`
	Password      string             `yaml:"password"`
	Database      int                `yaml:"database"`
	Timeout       time.Duration      `yaml:"timeout"`
	RetryAttempts int                `yaml:"retryAttempts"`
	PoolSize      int                `yaml:"poolSize"`
	Cluster       RedisClusterConfig `yaml:"cluster"`
}

type ZooKeeperRetryConfig struct {
	BaseSleep  time.Duration `yaml:"baseSleep"`
	MaxRetries int           `yaml:"maxRetries"`
	MaxSleep   time.Duration `yaml:"maxSleep"`
}

type ZooKeeperConfig struct {
	ConnectString     string               `yaml:"connectString"`
	Namespace         string               `yaml:"namespace"`
	SessionTimeout    time.Duration        `yaml:"sessionTimeout"`
	ConnectionTimeout time.Duration        `yaml:"connectionTimeout"`
	Retry             ZooKeeperRetryConfig `yaml:"retry"`
}

// LockConfig bounds the wait/lease budgets callers may request.
type LockConfig struct {
	DefaultWaitBudget  time.Duration `yaml:"defaultWaitBudget"`
	DefaultLeaseBudget time.Duration `yaml:"defaultLeaseBudget"`
	MaxWaitBudget      time.Duration `yaml:"maxWaitBudget"`
	MaxLeaseBudget     time.Duration `yaml:"maxLeaseBudget"`
}

// StorageConfig selects the persistence backend for account/transaction rows.
type StorageConfig struct {
	Backend  string `yaml:"backend"` // "filesystem", "gcs", "postgres"
	BasePath string `yaml:"basePath"`
	Bucket   string `yaml:"bucket"`
	DSN      string `yaml:"dsn"`
}

// HTTPConfig configures the external interface (C9).
type HTTPConfig struct {
	Addr         string   `yaml:"addr"`
	CORSOrigins  []string `yaml:"corsOrigins"`
}

// Load starts from the defaults, overlays path as YAML (if it exists),
// then overlays recognized LOCKFLEET_* environment variables and validates
// the result: environment variables win over file values, which win over
// the defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Active: "redis",
			Redis: RedisConfig{
				Host:          "localhost",
				Port:          6379,
				Database:      0,
				Timeout:       5 * time.Second,
				RetryAttempts: 3,
				PoolSize:      10,
			},
			ZooKeeper: ZooKeeperConfig{
				ConnectString:     "localhost:2181",
				Namespace:         "/lockfleet",
				SessionTimeout:    10 * time.Second,
				ConnectionTimeout: 5 * time.Second,
				Retry: ZooKeeperRetryConfig{
					BaseSleep:  100 * time.Millisecond,
					MaxRetries: 5,
					MaxSleep:   2 * time.Second,
				},
			},
		},
		Lock: LockConfig{
			DefaultWaitBudget:  5 * time.Second,
			DefaultLeaseBudget: 10 * time.Second,
			MaxWaitBudget:      30 * time.Second,
			MaxLeaseBudget:     60 * time.Second,
		},
		Storage: StorageConfig{
			Backend:  "filesystem",
			BasePath: "./data",
		},
		HTTP: HTTPConfig{
			Addr:        ":8080",
			CORSOrigins: []string{"*"},
		},
	}
}

// applyEnvOverrides overlays LOCKFLEET_-prefixed environment variables on
// top of whatever the file or defaults produced, in the spirit of the
// teacher's getEnvAsInt helper.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOCKFLEET_BACKEND_ACTIVE"); v != "" {
		cfg.Backend.Active = v
	}
	if v := os.Getenv("LOCKFLEET_REDIS_HOST"); v != "" {
		cfg.Backend.Redis.Host = v
	}
	if v := getEnvAsInt("LOCKFLEET_REDIS_PORT", 0); v != 0 {
		cfg.Backend.Redis.Port = v
	}
	if v := os.Getenv("LOCKFLEET_REDIS_PASSWORD"); v != "" {
		cfg.Backend.Redis.Password = v
	}
	if v := os.Getenv("LOCKFLEET_ZK_CONNECT_STRING"); v != "" {
		cfg.Backend.ZooKeeper.ConnectString = v
	}
	if v := os.Getenv("LOCKFLEET_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("LOCKFLEET_STORAGE_BASE_PATH"); v != "" {
		cfg.Storage.BasePath = v
	}
	if v := os.Getenv("LOCKFLEET_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("LOCKFLEET_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("LOCKFLEET_CORS_ORIGINS"); v != "" {
		cfg.HTTP.CORSOrigins = strings.Split(v, ",")
	}
}

func getEnvAsInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var parsed int
	if _, err := fmt.Sscanf(v, "%d", &parsed); err != nil {
		return defaultVal
	}
	return parsed
}

// Validate checks the bounds spec.md requires: lease must exceed wait, and
// the max fields must dominate the corresponding defaults.
func (c *Config) Validate() error {
	if c.Backend.Active != "redis" && c.Backend.Active != "zookeeper" {
		return lockfleet.WithContext(lockfleet.ErrInvalidConfig, map[string]interface{}{
			"field":  "backend.active",
			"value":  c.Backend.Active,
			"reason": "must be one of: redis, zookeeper",
		})
	}
	if c.Lock.DefaultLeaseBudget <= c.Lock.DefaultWaitBudget {
		return lockfleet.WithContext(lockfleet.ErrInvalidConfig, map[string]interface{}{
			"field":  "lock.defaultLeaseBudget",
			"reason": "must exceed lock.defaultWaitBudget",
		})
	}
	if c.Lock.MaxWaitBudget < c.Lock.DefaultWaitBudget {
		return lockfleet.WithContext(lockfleet.ErrInvalidConfig, map[string]interface{}{
			"field":  "lock.maxWaitBudget",
			"reason": "must be >= lock.defaultWaitBudget",
		})
	}
	if c.Lock.MaxLeaseBudget < c.Lock.DefaultLeaseBudget {
		return lockfleet.WithContext(lockfleet.ErrInvalidConfig, map[string]interface{}{
			"field":  "lock.maxLeaseBudget",
			"reason": "must be >= lock.defaultLeaseBudget",
		})
	}
	return nil
}
