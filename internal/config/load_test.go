package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BULKFLOW_CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != StoreRedis {
		t.Fatalf("store backend: want=%s got=%s", StoreRedis, cfg.Store.Backend)
	}
	if cfg.Workflow.BatchMaxEntries != 1000 {
		t.Fatalf("batch max entries: want=1000 got=%d", cfg.Workflow.BatchMaxEntries)
	}
	if cfg.Bus.ConsumerName == "" {
		t.Fatalf("consumer name should default to hostname")
	}
}

func TestLoadYAMLThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bulkflow.yaml")
	raw := strings.Join([]string{
		"env: production",
		"store:",
		"  backend: sqlite",
		"  dsn: \"file::memory:\"",
		"workflow:",
		"  batch_max_entries: 25",
		"  request_timeout: 3s",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BULKFLOW_CONFIG_PATH", path)
	t.Setenv("BULKFLOW_BATCH_MAX_ENTRIES", "7")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Env != "production" {
		t.Fatalf("env: want=production got=%s", cfg.Env)
	}
	if cfg.Store.Backend != StoreSQLite {
		t.Fatalf("store backend: want=sqlite got=%s", cfg.Store.Backend)
	}
	if cfg.Workflow.RequestTimeout != 3*time.Second {
		t.Fatalf("request timeout: want=3s got=%s", cfg.Workflow.RequestTimeout)
	}
	if cfg.Workflow.BatchMaxEntries != 7 {
		t.Fatalf("env override: want=7 got=%d", cfg.Workflow.BatchMaxEntries)
	}
}

func TestLoadRejectsInvalidBackends(t *testing.T) {
	t.Setenv("BULKFLOW_CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	cases := map[string]map[string]string{
		"unknown store":      {"BULKFLOW_STORE_BACKEND": "mongo"},
		"sql without dsn":    {"BULKFLOW_STORE_BACKEND": "postgres"},
		"rocketmq no server": {"BULKFLOW_BUS_BACKEND": "rocketmq"},
		"same topics": {
			"BULKFLOW_DOMAIN_EVENTS_TOPIC":  "t",
			"BULKFLOW_COMMAND_EVENTS_TOPIC": "t",
		},
	}
	for name, envs := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range envs {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestUsesRedis(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.Backend = StoreMemory
	cfg.Bus.Backend = BusMemory
	if cfg.UsesRedis() {
		t.Fatalf("memory store + memory bus should not need redis")
	}
	cfg.Bus.Backend = BusRocketMQ
	if !cfg.UsesRedis() {
		t.Fatalf("rocketmq bus still needs redis reply channels")
	}
}

func TestLoadBusDeliveryDefaults(t *testing.T) {
	t.Setenv("BULKFLOW_CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bus.FSPIOPConcurrency != 32 {
		t.Fatalf("fspiop concurrency: want=32 got=%d", cfg.Bus.FSPIOPConcurrency)
	}
	if cfg.Bus.ClaimMinIdle != 2*time.Minute {
		t.Fatalf("claim min idle: want=%v got=%v", 2*time.Minute, cfg.Bus.ClaimMinIdle)
	}

	t.Setenv("BULKFLOW_FSPIOP_CONCURRENCY", "0")
	t.Setenv("BULKFLOW_BUS_CLAIM_INTERVAL", "-1s")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bus.FSPIOPConcurrency != 1 {
		t.Fatalf("fspiop concurrency: want=1 got=%d", cfg.Bus.FSPIOPConcurrency)
	}
	if cfg.Bus.ClaimInterval != 30*time.Second {
		t.Fatalf("claim interval: want=%v got=%v", 30*time.Second, cfg.Bus.ClaimInterval)
	}
}
