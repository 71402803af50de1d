package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMemory   = "memory"

	BusRedis    = "redis"
	BusRocketMQ = "rocketmq"
	BusMemory   = "memory"
)

func defaultConfig() *Config {
	return &Config{
		Env:         "development",
		ServiceName: "bulkflow",
		HTTP: HTTPConfig{
			Addr:              ":4001",
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       2 * time.Minute,
			ShutdownTimeout:   15 * time.Second,
			MaxRequestBytes:   10 << 20,
			CORSOrigins:       []string{"http://localhost:3000"},
			RateLimitRPS:      50,
			RateLimitBurst:    100,
		},
		Redis: RedisConfig{
			Addr:        "localhost:6379",
			DialTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Backend: StoreRedis,
		},
		Bus: BusConfig{
			Backend:      BusRedis,
			DomainTopic:  "topic-sdk-outbound-domain-events",
			CommandTopic: "topic-sdk-outbound-command-events",
			BlockTimeout: 2 * time.Second,
			RocketMQ:     RocketMQConfig{MaxReconsume: 3},

			FSPIOPConcurrency: 32,
			ClaimMinIdle:      2 * time.Minute,
			ClaimInterval:     30 * time.Second,
		},
		Workflow: WorkflowConfig{
			BatchMaxEntries:       1000,
			ChildWriteConcurrency: 16,
			RequestTimeout:        30 * time.Second,
		},
		Switch: SwitchConfig{
			BaseURL: "http://localhost:4002",
			DfspID:  "bulkflow",
			Timeout: 10 * time.Second,
		},
		Roles: RolesConfig{
			CommandHandler: true,
			DomainHandler:  true,
			FSPIOPHandler:  true,
			API:            true,
		},
		Observability: ObservabilityConfig{
			OtelSampleRatio: 0.1,
		},
	}
}

// Load reads defaults, then an optional YAML file, then environment overrides.
func Load() (*Config, error) {
	cfg := defaultConfig()

	cfgPath := strings.TrimSpace(os.Getenv("BULKFLOW_CONFIG_PATH"))
	if cfgPath == "" {
		if wd, err := os.Getwd(); err == nil {
			p := filepath.Join(wd, "config", "config.yaml")
			if _, err := os.Stat(p); err == nil {
				cfgPath = p
			}
		}
	}
	if cfgPath != "" {
		b, err := os.ReadFile(cfgPath)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgPath, err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", cfgPath, err)
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseEnv overlays environment variables onto target; unset variables leave
// fields untouched.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.Env) == "" {
		c.Env = "development"
	}
	if strings.TrimSpace(c.ServiceName) == "" {
		c.ServiceName = "bulkflow"
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		c.HTTP.Addr = ":4001"
	}
	if c.HTTP.MaxRequestBytes <= 0 {
		c.HTTP.MaxRequestBytes = 10 << 20
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 15 * time.Second
	}
	if c.HTTP.RateLimitRPS < 0 {
		return errors.New("http.rate_limit_rps must be >= 0")
	}

	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	switch c.Store.Backend {
	case StoreRedis, StoreMemory:
	case StorePostgres, StoreSQLite:
		if strings.TrimSpace(c.Store.DSN) == "" {
			return fmt.Errorf("store.backend=%s requires store.dsn", c.Store.Backend)
		}
	default:
		return fmt.Errorf("invalid store.backend=%q", c.Store.Backend)
	}

	c.Bus.Backend = strings.ToLower(strings.TrimSpace(c.Bus.Backend))
	switch c.Bus.Backend {
	case BusRedis, BusMemory:
	case BusRocketMQ:
		if len(c.Bus.RocketMQ.NameServers) == 0 {
			return errors.New("bus.backend=rocketmq requires bus.rocketmq.name_servers")
		}
	default:
		return fmt.Errorf("invalid bus.backend=%q", c.Bus.Backend)
	}
	if strings.TrimSpace(c.Bus.DomainTopic) == "" || strings.TrimSpace(c.Bus.CommandTopic) == "" {
		return errors.New("bus topics are required")
	}
	if c.Bus.DomainTopic == c.Bus.CommandTopic {
		return errors.New("bus domain and command topics must differ")
	}
	if strings.TrimSpace(c.Bus.ConsumerName) == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "bulkflow"
		}
		c.Bus.ConsumerName = host
	}
	if c.Bus.BlockTimeout <= 0 {
		c.Bus.BlockTimeout = 2 * time.Second
	}
	if c.Bus.FSPIOPConcurrency <= 0 {
		c.Bus.FSPIOPConcurrency = 1
	}
	if c.Bus.ClaimMinIdle <= 0 {
		c.Bus.ClaimMinIdle = 2 * time.Minute
	}
	if c.Bus.ClaimInterval <= 0 {
		c.Bus.ClaimInterval = 30 * time.Second
	}

	if c.Workflow.BatchMaxEntries <= 0 {
		return errors.New("workflow.batch_max_entries must be > 0")
	}
	if c.Workflow.ChildWriteConcurrency <= 0 {
		c.Workflow.ChildWriteConcurrency = 1
	}
	if c.Workflow.RequestTimeout <= 0 {
		return errors.New("workflow.request_timeout must be > 0")
	}
	c.Switch.BaseURL = strings.TrimRight(strings.TrimSpace(c.Switch.BaseURL), "/")
	if c.Switch.Timeout <= 0 {
		c.Switch.Timeout = 10 * time.Second
	}

	if c.Observability.OtelSampleRatio < 0 {
		c.Observability.OtelSampleRatio = 0
	}
	if c.Observability.OtelSampleRatio > 1 {
		c.Observability.OtelSampleRatio = 1
	}
	return nil
}

// UsesRedis reports whether any configured backend needs a redis client.
// Reply channels ride on redis pub/sub for every bus except the in-process one.
func (c *Config) UsesRedis() bool {
	return c.Store.Backend == StoreRedis || c.Bus.Backend != BusMemory
}
