package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

const (
	DefaultNodeURL   = "http://localhost:7740"
	maxQueryRetries  = 5
	PointerFile      = "file"
	PointerRedis     = "redis"
	PointerMemory    = "memory"
	CacheNone        = "none"
	CacheRedis       = "redis"
	CachePostgres    = "postgres"
	defaultMaxPasses = 5
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	LogLevel           string   `yaml:"logLevel"`
	NodeURL            string   `yaml:"nodeURL"`
	BlockchainRID      string   `yaml:"blockchainRid"`
	RequestTimeout     string   `yaml:"requestTimeout"`
	QueryRetries       int      `yaml:"queryRetries"`
	QueryRetryDelay    string   `yaml:"queryRetryDelay"`
	SessionTTL         string   `yaml:"sessionTTL"`
	SessionFlags       []string `yaml:"sessionFlags"`
	PointerBackend     string   `yaml:"pointerBackend"`
	PointerPath        string   `yaml:"pointerPath"`
	PointerSecret      string   `yaml:"pointerSecret"`
	RedisAddr          string   `yaml:"redisAddr"`
	RedisPassword      string   `yaml:"redisPassword"`
	SnapshotCache      string   `yaml:"snapshotCache"`
	DatabaseURL        string   `yaml:"databaseURL"`
	ReconcileMaxPasses int      `yaml:"reconcileMaxPasses"`
	WatchURL           string   `yaml:"watchURL"`
	Accounts           []string `yaml:"accounts"`
}

// Load reads config from path (defaults to config.yaml). A missing file is
// fine as long as the environment supplies what validation needs.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("BOOKCHAIN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKCHAIN_NODE_URL"); v != "" {
		cfg.NodeURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKCHAIN_BLOCKCHAIN_RID"); v != "" {
		cfg.BlockchainRID = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKCHAIN_REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = v
	}
	if v := os.Getenv("BOOKCHAIN_QUERY_RETRIES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.QueryRetries = n
		}
	}
	if v := os.Getenv("BOOKCHAIN_QUERY_RETRY_DELAY"); v != "" {
		cfg.QueryRetryDelay = v
	}
	if v := os.Getenv("BOOKCHAIN_SESSION_TTL"); v != "" {
		cfg.SessionTTL = v
	}
	if v := os.Getenv("BOOKCHAIN_SESSION_FLAGS"); v != "" {
		cfg.SessionFlags = splitCSV(v)
	}
	if v := os.Getenv("BOOKCHAIN_POINTER_BACKEND"); v != "" {
		cfg.PointerBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKCHAIN_POINTER_PATH"); v != "" {
		cfg.PointerPath = v
	}
	if v := os.Getenv("BOOKCHAIN_POINTER_SECRET"); v != "" {
		cfg.PointerSecret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("BOOKCHAIN_SNAPSHOT_CACHE"); v != "" {
		cfg.SnapshotCache = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("BOOKCHAIN_RECONCILE_MAX_PASSES"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.ReconcileMaxPasses = n
		}
	}
	if v := os.Getenv("BOOKCHAIN_WATCH_URL"); v != "" {
		cfg.WatchURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BOOKCHAIN_ACCOUNTS"); v != "" {
		cfg.Accounts = splitCSV(v)
	}
}

func applyDefaults(cfg *FileConfig) {
	if cfg.NodeURL == "" {
		cfg.NodeURL = DefaultNodeURL
	}
	if cfg.PointerBackend == "" {
		cfg.PointerBackend = PointerFile
	}
	if cfg.PointerBackend == PointerFile && cfg.PointerPath == "" {
		cfg.PointerPath = ".bookchain/pointers.json"
	}
	if cfg.SnapshotCache == "" {
		cfg.SnapshotCache = CacheNone
	}
	if len(cfg.SessionFlags) == 0 {
		cfg.SessionFlags = []string{"MySession"}
	}
	if cfg.ReconcileMaxPasses == 0 {
		cfg.ReconcileMaxPasses = defaultMaxPasses
	}
}

func validateConfig(cfg FileConfig) error {
	if rid := cfg.BlockchainRID; len(rid) != 64 {
		return errors.New("config: blockchainRid must be 64 hex characters (set in config.yaml or BOOKCHAIN_BLOCKCHAIN_RID)")
	} else if _, err := hex.DecodeString(rid); err != nil {
		return fmt.Errorf("config: blockchainRid is not hex: %w", err)
	}
	if cfg.QueryRetries < 0 || cfg.QueryRetries > maxQueryRetries {
		return fmt.Errorf("config: queryRetries must be between 0 and %d", maxQueryRetries)
	}
	if cfg.ReconcileMaxPasses < 0 {
		return errors.New("config: reconcileMaxPasses must be >= 0")
	}
	for field, value := range map[string]string{
		"requestTimeout":  cfg.RequestTimeout,
		"queryRetryDelay": cfg.QueryRetryDelay,
		"sessionTTL":      cfg.SessionTTL,
	} {
		if _, err := ParseDuration(field, value, 0); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	switch cfg.PointerBackend {
	case PointerFile:
		if strings.TrimSpace(cfg.PointerPath) == "" {
			return errors.New("config: pointerPath is required for the file pointer backend")
		}
	case PointerRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis pointer backend")
		}
	case PointerMemory:
	default:
		return fmt.Errorf("config: unknown pointerBackend %q", cfg.PointerBackend)
	}
	switch cfg.SnapshotCache {
	case CacheNone:
	case CacheRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis snapshot cache")
		}
	case CachePostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return errors.New("config: databaseURL is required for the postgres snapshot cache")
		}
	default:
		return fmt.Errorf("config: unknown snapshotCache %q", cfg.SnapshotCache)
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseDuration parses an optional duration field, returning def when value
// is empty.
func ParseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", field, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must not be negative", field)
	}
	return dur, nil
}
