package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Example env config:
// API_PORT=8080
// VIDEOS_DIR=/srv/videos
// APP_SECRET=change-me
// CATALOG_TTL=5m
// MEDIA_TIMEOUT=10m
// REQUEST_TIMEOUT=30s
// USERS_FILE=/etc/reelshelf/users.yaml
// REDIS_ADDR=redis:6379
// SCYLLA_HOSTS=scylla-1,scylla-2
// LOG_LEVEL=debug
// LOG_PRETTY=true
type Config struct {
	Port           string
	VideosDir      string
	AppSecret      string
	TokenTTL       time.Duration
	CatalogTTL     time.Duration
	MediaTimeout   time.Duration
	RequestTimeout time.Duration
	UsersFile      string
	LoginRate      float64
	LoginBurst     int
	MetricsToken   string
	Redis          RedisConfig
	Scylla         ScyllaConfig
	LogLevel       string
	LogPretty      bool
	OTLPEndpoint   string
	OTLPSampleRate string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ScyllaConfig struct {
	Hosts       []string
	Port        int
	Keyspace    string
	Consistency string
	Replication int
}

func DefaultConfig() Config {
	return Config{
		Port:           "8080",
		VideosDir:      "./videos",
		TokenTTL:       24 * time.Hour,
		CatalogTTL:     5 * time.Minute,
		MediaTimeout:   10 * time.Minute,
		RequestTimeout: 30 * time.Second,
		UsersFile:      "./users.yaml",
		LoginRate:      1,
		LoginBurst:     5,
		Scylla: ScyllaConfig{
			Port:        9042,
			Keyspace:    "reelshelf",
			Consistency: "QUORUM",
			Replication: 1,
		},
		LogLevel: "info",
	}
}

// Load reads the environment on top of DefaultConfig. Only APP_SECRET is required.
func Load() (Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	cfg.Port = env("API_PORT", env("PORT", cfg.Port))
	cfg.VideosDir = env("VIDEOS_DIR", cfg.VideosDir)
	cfg.AppSecret = getenv("APP_SECRET")
	cfg.TokenTTL = envDuration(env("TOKEN_TTL", ""), cfg.TokenTTL)
	cfg.CatalogTTL = envDuration(env("CATALOG_TTL", ""), cfg.CatalogTTL)
	cfg.MediaTimeout = envDuration(env("MEDIA_TIMEOUT", ""), cfg.MediaTimeout)
	cfg.RequestTimeout = envDuration(env("REQUEST_TIMEOUT", ""), cfg.RequestTimeout)
	cfg.UsersFile = env("USERS_FILE", cfg.UsersFile)
	if v := env("LOGIN_RATE", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.LoginRate = f
		}
	}
	cfg.LoginBurst = envInt(env("LOGIN_BURST", ""), cfg.LoginBurst)
	cfg.MetricsToken = getenv("METRICS_TOKEN")

	cfg.Redis.Addr = env("REDIS_ADDR", "")
	cfg.Redis.Password = getenv("REDIS_PASSWORD")
	cfg.Redis.DB = envInt(env("REDIS_DB", ""), 0)

	cfg.Scylla.Hosts = splitCSV(getenv("SCYLLA_HOSTS"))
	cfg.Scylla.Port = envInt(env("SCYLLA_PORT", ""), cfg.Scylla.Port)
	cfg.Scylla.Keyspace = env("SCYLLA_KEYSPACE", cfg.Scylla.Keyspace)
	cfg.Scylla.Consistency = env("SCYLLA_CONSISTENCY", cfg.Scylla.Consistency)
	cfg.Scylla.Replication = envInt(env("SCYLLA_RF", ""), cfg.Scylla.Replication)

	cfg.LogLevel = env("LOG_LEVEL", cfg.LogLevel)
	cfg.LogPretty = parseBool(getenv("LOG_PRETTY"), cfg.LogPretty)
	cfg.OTLPEndpoint = env("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.OTLPSampleRate = env("OTEL_TRACE_SAMPLE_RATE", "")

	cfg = cfg.normalize()
	if cfg.AppSecret == "" {
		return cfg, fmt.Errorf("APP_SECRET is required")
	}
	return cfg, nil
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.TokenTTL <= 0 {
		c.TokenTTL = def.TokenTTL
	}
	if c.CatalogTTL <= 0 {
		c.CatalogTTL = def.CatalogTTL
	}
	if c.MediaTimeout <= 0 {
		c.MediaTimeout = def.MediaTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.LoginBurst <= 0 {
		c.LoginBurst = def.LoginBurst
	}
	return c
}

// CheckLibrary reports every problem with the videos directory: missing,
// not a directory, not readable, not writable. A nil result means healthy.
func CheckLibrary(dir string) []error {
	info, err := os.Stat(dir)
	if err != nil {
		return []error{fmt.Errorf("videos directory %s: %w", dir, err)}
	}
	if !info.IsDir() {
		return []error{fmt.Errorf("videos directory %s: not a directory", dir)}
	}
	var problems []error
	if _, err := os.ReadDir(dir); err != nil {
		problems = append(problems, fmt.Errorf("videos directory %s not readable: %w", dir, err))
	}
	probe, err := os.CreateTemp(dir, ".reelshelf-probe-*")
	if err != nil {
		problems = append(problems, fmt.Errorf("videos directory %s not writable: %w", dir, err))
	} else {
		name := probe.Name()
		probe.Close()
		if rmErr := os.Remove(name); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			problems = append(problems, fmt.Errorf("remove probe file: %w", rmErr))
		}
	}
	return problems
}

func envDuration(v string, def time.Duration) time.Duration {
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// bare numbers are seconds
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return def
}

func envInt(v string, def int) int {
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return def
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(raw string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
