package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Server struct {
	Port              string `json:"port" yaml:"port"`
	RequestTimeoutSec int    `json:"request_timeout_sec" yaml:"request_timeout_sec"`
}

type Log struct {
	Level       string `json:"level" yaml:"level"`
	Development bool   `json:"development" yaml:"development"`
}

type Selectors struct {
	Buy       string `json:"buy" yaml:"buy"`
	Sell      string `json:"sell" yaml:"sell"`
	Variation string `json:"variation" yaml:"variation"`
}

type Cronista struct {
	BaseURL               string    `json:"base_url" yaml:"base_url"`
	UserAgent             string    `json:"user_agent" yaml:"user_agent"`
	Selectors             Selectors `json:"selectors" yaml:"selectors"`
	Retries               int       `json:"retries" yaml:"retries"`
	MaxConcurrency        int       `json:"max_concurrency" yaml:"max_concurrency"`
	MaxRequestsPerMinute  int       `json:"max_requests_per_minute" yaml:"max_requests_per_minute"`
	MinRequestIntervalSec int       `json:"min_request_interval_sec" yaml:"min_request_interval_sec"`
	Burst                 int       `json:"burst" yaml:"burst"`
	CacheTTLSeconds       int       `json:"cache_ttl_sec" yaml:"cache_ttl_sec"`
	CacheMaxItems         int       `json:"cache_max_items" yaml:"cache_max_items"`
}

type Redis struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	Addr       string `json:"addr" yaml:"addr"`
	Password   string `json:"password" yaml:"password"`
	DB         int    `json:"db" yaml:"db"`
	TTLSeconds int    `json:"ttl_sec" yaml:"ttl_sec"`
	Prefix     string `json:"prefix" yaml:"prefix"`
}

type Postgres struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type Config struct {
	Server   Server   `json:"server" yaml:"server"`
	Log      Log      `json:"log" yaml:"log"`
	Cronista Cronista `json:"cronista" yaml:"cronista"`
	Redis    Redis    `json:"redis" yaml:"redis"`
	Postgres Postgres `json:"postgres" yaml:"postgres"`
}

func Default() Config {
	return Config{
		Server: Server{Port: "8080", RequestTimeoutSec: 10},
		Log:    Log{Level: "info"},
		Cronista: Cronista{
			BaseURL:              "https://www.cronista.com",
			MaxConcurrency:       1,
			MaxRequestsPerMinute: 30,
			Burst:                4,
			CacheTTLSeconds:      60,
			CacheMaxItems:        16,
		},
		Redis: Redis{
			Addr:       "localhost:6379",
			TTLSeconds: 60,
			Prefix:     "quotes:",
		},
	}
}

// candidates are tried in order when no path is given.
var candidates = []string{"config.json", "config.yaml", "config.yml"}

// Load reads a JSON or YAML config from path. If path is empty the first
// existing candidate in the working directory is used; if none exists the
// defaults apply. A dotenv file is loaded first, then environment variables
// override select fields.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := loadDotEnv(); err != nil {
		return cfg, err
	}
	if path == "" {
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := decode(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	applyEnv(&cfg)
	return cfg, nil
}

func decode(path string, b []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	default:
		return json.Unmarshal(b, cfg)
	}
}

// loadDotEnv reads DOTENV_FILE, or .env when unset. Variables already present
// in the environment win.
func loadDotEnv() error {
	path := os.Getenv("DOTENV_FILE")
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat dotenv: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	envInt("REQUEST_TIMEOUT_SEC", &cfg.Server.RequestTimeoutSec, 1)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	envBool("LOG_DEVELOPMENT", &cfg.Log.Development)

	if v := os.Getenv("CRONISTA_BASE_URL"); v != "" {
		cfg.Cronista.BaseURL = v
	}
	if v := os.Getenv("CRONISTA_USER_AGENT"); v != "" {
		cfg.Cronista.UserAgent = v
	}
	envInt("CRONISTA_RETRIES", &cfg.Cronista.Retries, 0)
	envInt("CRONISTA_MAX_CONCURRENCY", &cfg.Cronista.MaxConcurrency, 1)
	envInt("CRONISTA_MAX_RPM", &cfg.Cronista.MaxRequestsPerMinute, 0)
	envInt("CRONISTA_MIN_INTERVAL_SEC", &cfg.Cronista.MinRequestIntervalSec, 0)
	envInt("CRONISTA_BURST", &cfg.Cronista.Burst, 1)
	envInt("CRONISTA_CACHE_TTL_SEC", &cfg.Cronista.CacheTTLSeconds, 0)
	envInt("CRONISTA_CACHE_MAX_ITEMS", &cfg.Cronista.CacheMaxItems, 1)

	envBool("REDIS_ENABLED", &cfg.Redis.Enabled)
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	envInt("REDIS_DB", &cfg.Redis.DB, 0)
	envInt("REDIS_TTL_SEC", &cfg.Redis.TTLSeconds, 0)

	envBool("POSTGRES_ENABLED", &cfg.Postgres.Enabled)
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
}

// envInt sets *dst from key when it holds an integer >= lo.
func envInt(key string, dst *int, lo int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	x, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || x < lo {
		return
	}
	*dst = x
}

func envBool(key string, dst *bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "y":
		*dst = true
	case "0", "false", "no", "n":
		*dst = false
	}
}
