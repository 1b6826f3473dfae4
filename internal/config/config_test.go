package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testRID = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
blockchainRid: "`+testRID+`"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.NodeURL != DefaultNodeURL {
		t.Fatalf("nodeURL = %q, want %q", cfg.NodeURL, DefaultNodeURL)
	}
	if cfg.PointerBackend != PointerFile || cfg.PointerPath == "" {
		t.Fatalf("pointer backend = %q path = %q", cfg.PointerBackend, cfg.PointerPath)
	}
	if cfg.SnapshotCache != CacheNone {
		t.Fatalf("snapshotCache = %q, want none", cfg.SnapshotCache)
	}
	if len(cfg.SessionFlags) != 1 || cfg.SessionFlags[0] != "MySession" {
		t.Fatalf("sessionFlags = %v", cfg.SessionFlags)
	}
	if cfg.ReconcileMaxPasses != 5 {
		t.Fatalf("reconcileMaxPasses = %d, want 5", cfg.ReconcileMaxPasses)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BOOKCHAIN_NODE_URL", "http://node:7740")
	t.Setenv("BOOKCHAIN_QUERY_RETRIES", "2")
	t.Setenv("BOOKCHAIN_SESSION_TTL", "30m")
	t.Setenv("BOOKCHAIN_SESSION_FLAGS", "MySession, Admin")
	t.Setenv("BOOKCHAIN_POINTER_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("BOOKCHAIN_ACCOUNTS", "0xabc,0xdef")

	path := writeConfig(t, `
nodeURL: "http://localhost:7740"
blockchainRid: "`+testRID+`"
queryRetries: 4
sessionTTL: "2h"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.NodeURL != "http://node:7740" {
		t.Fatalf("nodeURL = %q", cfg.NodeURL)
	}
	if cfg.QueryRetries != 2 {
		t.Fatalf("queryRetries = %d, want 2", cfg.QueryRetries)
	}
	ttl, err := ParseDuration("sessionTTL", cfg.SessionTTL, 0)
	if err != nil || ttl != 30*time.Minute {
		t.Fatalf("sessionTTL = %v, %v", ttl, err)
	}
	if strings.Join(cfg.SessionFlags, "|") != "MySession|Admin" {
		t.Fatalf("sessionFlags = %v", cfg.SessionFlags)
	}
	if cfg.PointerBackend != PointerRedis || cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("pointer backend = %q redis = %q", cfg.PointerBackend, cfg.RedisAddr)
	}
	if len(cfg.Accounts) != 2 {
		t.Fatalf("accounts = %v", cfg.Accounts)
	}
}

func TestLoadWithoutFileUsesEnvironment(t *testing.T) {
	t.Setenv("BOOKCHAIN_BLOCKCHAIN_RID", testRID)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.BlockchainRID != testRID {
		t.Fatalf("blockchainRid = %q", cfg.BlockchainRID)
	}
}

func TestValidateConfigRejectsInvalidSettings(t *testing.T) {
	valid := FileConfig{
		NodeURL:        DefaultNodeURL,
		BlockchainRID:  testRID,
		PointerBackend: PointerMemory,
		SnapshotCache:  CacheNone,
	}
	if err := validateConfig(valid); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(*FileConfig){
		"short rid":          func(c *FileConfig) { c.BlockchainRID = "abc" },
		"non-hex rid":        func(c *FileConfig) { c.BlockchainRID = strings.Repeat("z", 64) },
		"too many retries":   func(c *FileConfig) { c.QueryRetries = 6 },
		"bad duration":       func(c *FileConfig) { c.RequestTimeout = "soon" },
		"negative duration":  func(c *FileConfig) { c.SessionTTL = "-1h" },
		"unknown backend":    func(c *FileConfig) { c.PointerBackend = "cookie" },
		"redis without addr": func(c *FileConfig) { c.PointerBackend = PointerRedis },
		"postgres no dsn":    func(c *FileConfig) { c.SnapshotCache = CachePostgres },
		"unknown cache":      func(c *FileConfig) { c.SnapshotCache = "disk" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid
			mutate(&cfg)
			if err := validateConfig(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestParseDurationDefault(t *testing.T) {
	d, err := ParseDuration("requestTimeout", "", 10*time.Second)
	if err != nil || d != 10*time.Second {
		t.Fatalf("ParseDuration default = %v, %v", d, err)
	}
}
