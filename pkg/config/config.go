// Package config loads the combiner service configuration from a YAML file
// and WEBUTIL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/anupambasak/webutilities/pkg/cache"
	"github.com/anupambasak/webutilities/pkg/logging"
	"github.com/anupambasak/webutilities/pkg/merge"
	"github.com/anupambasak/webutilities/pkg/respcache"
)

// ErrInvalidConfig indicates a configuration value failed validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the complete service configuration.
type Config struct {
	Server  ServerConfig           `yaml:"server"`
	Assets  AssetsConfig           `yaml:"assets"`
	Merge   MergeConfig            `yaml:"merge"`
	Cache   CacheConfig            `yaml:"cache"`
	Filter  respcache.FilterConfig `yaml:"filter"`
	Signals SignalsConfig          `yaml:"signals"`
	Warmup  WarmupConfig           `yaml:"warmup"`
	Log     logging.Config         `yaml:"log"`
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type AssetsConfig struct {
	// Root is the directory resources are served from.
	Root string `yaml:"root"`

	// ContextPath is the URL prefix the assets are mounted under.
	ContextPath string `yaml:"context_path"`
}

type MergeConfig struct {
	ExpiresMinutes     int    `yaml:"expires_minutes"`
	CacheControl       string `yaml:"cache_control"`
	DisableETag        bool   `yaml:"disable_etag"`
	DisableFingerprint bool   `yaml:"disable_fingerprint"`
	RewriteCSSURLs     bool   `yaml:"rewrite_css_urls"`
	CSSContextPath     string `yaml:"css_context_path"`
	Policy             string `yaml:"policy"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
}

type CacheConfig struct {
	Backend      string        `yaml:"backend"`
	MemoryMax    ByteSize      `yaml:"memory_max"`
	MaxBody      ByteSize      `yaml:"max_body"`
	Redis        RedisConfig   `yaml:"redis"`
	LevelDBPath  string        `yaml:"leveldb_path"`
	SQLitePath   string        `yaml:"sqlite_path"`
	OpTimeout    time.Duration `yaml:"op_timeout"`
	Coalesce     bool          `yaml:"coalesce"`
	ConnectTries int           `yaml:"connect_attempts"`
}

type SignalsConfig struct {
	respcache.Signals `yaml:",inline"`

	// ResetInterval flushes the whole cache periodically. Zero disables it.
	ResetInterval time.Duration `yaml:"reset_interval"`

	// SharedResetClock keeps the reset interval in redis so all instances
	// flush together. Requires the redis backend.
	SharedResetClock bool `yaml:"shared_reset_clock"`
}

type WarmupConfig struct {
	Paths       []string `yaml:"paths"`
	Concurrency int      `yaml:"concurrency"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   10 * time.Second,
		},
		Assets: AssetsConfig{
			ContextPath: "/static",
		},
		Merge: MergeConfig{
			ExpiresMinutes: merge.DefaultExpiresMinutes,
			CacheControl:   merge.DefaultCacheControl,
			RewriteCSSURLs: true,
			Policy:         merge.PolicyLenient.String(),
		},
		Cache: CacheConfig{
			Backend:      string(cache.BackendMemory),
			MemoryMax:    cache.DefaultMemoryMaxBytes,
			OpTimeout:    cache.DefaultOpTimeout,
			ConnectTries: cache.DefaultRetryConfig().MaxAttempts,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: cache.DefaultRedisPrefix,
			},
		},
		Filter: respcache.FilterConfig{
			AcceptMIME: respcache.DefaultMIMETypes,
		},
		Signals: SignalsConfig{
			Signals: respcache.DefaultSignals(),
		},
		Warmup: WarmupConfig{
			Concurrency: 4,
		},
		Log: logging.DefaultConfig(),
	}
}

// Load reads the YAML file at path (optional: an empty path keeps the
// defaults), applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment lookup.
func LoadWithEnv(path string, lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that cannot be expressed in the YAML types.
func (c *Config) Validate() error {
	if c.Assets.Root == "" {
		return fmt.Errorf("%w: assets.root is required", ErrInvalidConfig)
	}
	info, err := os.Stat(c.Assets.Root)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: assets.root %q is not a directory", ErrInvalidConfig, c.Assets.Root)
	}
	c.Assets.ContextPath = normalizeContextPath(c.Assets.ContextPath)

	backend, err := cache.ParseBackend(c.Cache.Backend)
	if err != nil {
		return fmt.Errorf("%w: cache.backend: %v", ErrInvalidConfig, err)
	}
	if _, err := merge.ParsePolicy(c.Merge.Policy); err != nil {
		return fmt.Errorf("%w: merge.policy: %v", ErrInvalidConfig, err)
	}
	if c.Merge.ExpiresMinutes < 0 {
		return fmt.Errorf("%w: merge.expires_minutes must not be negative", ErrInvalidConfig)
	}
	if c.Signals.ResetInterval < 0 {
		return fmt.Errorf("%w: signals.reset_interval must not be negative", ErrInvalidConfig)
	}
	if c.Signals.SharedResetClock && backend != cache.BackendRedis {
		return fmt.Errorf("%w: signals.shared_reset_clock requires the redis cache backend", ErrInvalidConfig)
	}
	if _, err := respcache.NewFilter(c.Filter); err != nil {
		return fmt.Errorf("%w: filter: %v", ErrInvalidConfig, err)
	}
	if c.Warmup.Concurrency < 1 {
		c.Warmup.Concurrency = 1
	}
	return nil
}

// applyEnv overrides the most commonly deployed settings from WEBUTIL_* variables.
func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok {
			*dst = v
		}
	}
	str("WEBUTIL_ADDR", &c.Server.Addr)
	str("WEBUTIL_ASSETS_ROOT", &c.Assets.Root)
	str("WEBUTIL_CONTEXT_PATH", &c.Assets.ContextPath)
	str("WEBUTIL_CACHE_BACKEND", &c.Cache.Backend)
	str("WEBUTIL_REDIS_ADDR", &c.Cache.Redis.Addr)
	str("WEBUTIL_REDIS_PASSWORD", &c.Cache.Redis.Password)
	str("WEBUTIL_LEVELDB_PATH", &c.Cache.LevelDBPath)
	str("WEBUTIL_SQLITE_PATH", &c.Cache.SQLitePath)
	str("WEBUTIL_MERGE_POLICY", &c.Merge.Policy)

	if v, ok := lookup("WEBUTIL_LOG_LEVEL"); ok {
		c.Log.Level = logging.LogLevel(v)
	}
	if v, ok := lookup("WEBUTIL_LOG_PRETTY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: WEBUTIL_LOG_PRETTY: %v", ErrInvalidConfig, err)
		}
		c.Log.Pretty = b
	}
	if v, ok := lookup("WEBUTIL_REDIS_DB"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: WEBUTIL_REDIS_DB: %v", ErrInvalidConfig, err)
		}
		c.Cache.Redis.DB = n
	}
	if v, ok := lookup("WEBUTIL_CACHE_MEMORY_MAX"); ok {
		n, err := ParseBytes(v)
		if err != nil {
			return fmt.Errorf("%w: WEBUTIL_CACHE_MEMORY_MAX: %v", ErrInvalidConfig, err)
		}
		c.Cache.MemoryMax = ByteSize(n)
	}
	if v, ok := lookup("WEBUTIL_RESET_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: WEBUTIL_RESET_INTERVAL: %v", ErrInvalidConfig, err)
		}
		c.Signals.ResetInterval = d
	}
	return nil
}

func normalizeContextPath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return strings.TrimRight(p, "/")
}

// CacheOptions converts the cache section for cache.Open.
func (c Config) CacheOptions() cache.Options {
	backend, _ := cache.ParseBackend(c.Cache.Backend)
	connect := cache.DefaultRetryConfig()
	if c.Cache.ConnectTries > 0 {
		connect.MaxAttempts = c.Cache.ConnectTries
	}
	return cache.Options{
		Backend:        backend,
		MemoryMaxBytes: int64(c.Cache.MemoryMax),
		Redis: cache.RedisOptions{
			Addr:     c.Cache.Redis.Addr,
			Password: c.Cache.Redis.Password,
			DB:       c.Cache.Redis.DB,
			Prefix:   c.Cache.Redis.Prefix,
			TTL:      c.Cache.Redis.TTL,
		},
		LevelDBPath: c.Cache.LevelDBPath,
		SQLitePath:  c.Cache.SQLitePath,
		OpTimeout:   c.Cache.OpTimeout,
		Connect:     connect,
	}
}

// MergeOptions converts the merge section for merge.NewEngine.
func (c Config) MergeOptions() merge.Options {
	policy, _ := merge.ParsePolicy(c.Merge.Policy)
	return merge.Options{
		Policy:         policy,
		RewriteCSSURLs: c.Merge.RewriteCSSURLs,
		Fingerprinting: !c.Merge.DisableFingerprint,
	}
}

// CacheHeaders returns the Expires and Cache-Control settings.
func (c Config) CacheHeaders() merge.CacheHeaders {
	return merge.CacheHeaders{
		ExpiresMinutes: c.Merge.ExpiresMinutes,
		CacheControl:   c.Merge.CacheControl,
	}
}

// HandlerOptions converts the merge and assets sections for merge.NewHandler.
func (c Config) HandlerOptions() merge.HandlerOptions {
	return merge.HandlerOptions{
		ContextPath:    c.Assets.ContextPath,
		CSSContextPath: c.Merge.CSSContextPath,
		Cache:          c.CacheHeaders(),
		DisableETag:    c.Merge.DisableETag,
	}
}

// RespcacheOptions converts the cache, filter and signals sections for
// respcache.New. The filter was validated by Validate.
func (c Config) RespcacheOptions() (respcache.Options, error) {
	filter, err := respcache.NewFilter(c.Filter)
	if err != nil {
		return respcache.Options{}, fmt.Errorf("%w: filter: %v", ErrInvalidConfig, err)
	}
	return respcache.Options{
		Filter:        filter,
		Signals:       c.Signals.Signals,
		ResetInterval: c.Signals.ResetInterval,
		ContextPath:   c.Assets.ContextPath,
		Cache:         c.CacheHeaders(),
		DisableETag:   c.Merge.DisableETag,
		Coalesce:      c.Cache.Coalesce,
		MaxBodyBytes:  int64(c.Cache.MaxBody),
	}, nil
}
