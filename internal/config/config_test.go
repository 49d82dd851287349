package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.Active != "redis" {
		t.Errorf("default backend.active = %q, want redis", cfg.Backend.Active)
	}
	if cfg.Lock.DefaultLeaseBudget <= cfg.Lock.DefaultWaitBudget {
		t.Errorf("default lease budget must exceed wait budget")
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
backend:
  active: zookeeper
  zookeeper:
    connectString: "zk1:2181,zk2:2181"
lock:
  defaultWaitBudget: 2s
  defaultLeaseBudget: 8s
  maxWaitBudget: 20s
  maxLeaseBudget: 40s
storage:
  backend: postgres
  dsn: "postgres://localhost/lockfleet"
`
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.Active != "zookeeper" {
		t.Errorf("backend.active = %q, want zookeeper", cfg.Backend.Active)
	}
	if cfg.Backend.ZooKeeper.ConnectString != "zk1:2181,zk2:2181" {
		t.Errorf("zookeeper.connectString = %q", cfg.Backend.ZooKeeper.ConnectString)
	}
	if cfg.Storage.Backend != "postgres" {
		t.Errorf("storage.backend = %q, want postgres", cfg.Storage.Backend)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	os.Setenv("LOCKFLEET_BACKEND_ACTIVE", "zookeeper")
	os.Setenv("LOCKFLEET_REDIS_HOST", "redis.internal")
	defer func() {
		os.Unsetenv("LOCKFLEET_BACKEND_ACTIVE")
		os.Unsetenv("LOCKFLEET_REDIS_HOST")
	}()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Backend.Active != "zookeeper" {
		t.Errorf("env override backend.active = %q, want zookeeper", cfg.Backend.Active)
	}
	if cfg.Backend.Redis.Host != "redis.internal" {
		t.Errorf("env override redis.host = %q, want redis.internal", cfg.Backend.Redis.Host)
	}
}

func TestValidate_RejectsUnknownBackend(t *testing.T) {
	cfg := defaultConfig()
	cfg.Backend.Active = "mongodb"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for unknown backend")
	}
}

func TestValidate_RejectsLeaseNotExceedingWait(t *testing.T) {
	cfg := defaultConfig()
	cfg.Lock.DefaultWaitBudget = cfg.Lock.DefaultLeaseBudget
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when lease budget does not exceed wait budget")
	}
}

func TestValidate_RejectsMaxBelowDefault(t *testing.T) {
	cfg := defaultConfig()
	cfg.Lock.MaxWaitBudget = cfg.Lock.DefaultWaitBudget - 1
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error when maxWaitBudget is below defaultWaitBudget")
	}
}
