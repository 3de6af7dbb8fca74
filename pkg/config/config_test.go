package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/anupambasak/webutilities/pkg/cache"
	"github.com/anupambasak/webutilities/pkg/logging"
	"github.com/anupambasak/webutilities/pkg/merge"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := vars[name]
		return v, ok
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"512", 512, false},
		{"64k", 64 << 10, false},
		{"64KB", 64 << 10, false},
		{"64m", 64 << 20, false},
		{"1.5g", 3 << 29, false},
		{" 2 mb ", 2 << 20, false},
		{"", 0, true},
		{"b", 0, true},
		{"-1m", 0, true},
		{"ten", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBytes(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBytes(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseBytes(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoad_Defaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := LoadWithEnv("", env(map[string]string{"WEBUTIL_ASSETS_ROOT": root}))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Assets.ContextPath != "/static" {
		t.Errorf("Assets.ContextPath = %q, want /static", cfg.Assets.ContextPath)
	}
	if cfg.Merge.ExpiresMinutes != merge.DefaultExpiresMinutes {
		t.Errorf("Merge.ExpiresMinutes = %d, want %d", cfg.Merge.ExpiresMinutes, merge.DefaultExpiresMinutes)
	}
	if cfg.Cache.MemoryMax != cache.DefaultMemoryMaxBytes {
		t.Errorf("Cache.MemoryMax = %d, want %d", cfg.Cache.MemoryMax, cache.DefaultMemoryMaxBytes)
	}
	if cfg.Signals.Expire != "_expirecache_" || cfg.Signals.Reset != "_resetcache_" {
		t.Errorf("Signals = %+v, want default names", cfg.Signals.Signals)
	}

	mo := cfg.MergeOptions()
	if mo.Policy != merge.PolicyLenient || !mo.RewriteCSSURLs || !mo.Fingerprinting {
		t.Errorf("MergeOptions() = %+v, want lenient with rewriting and fingerprints", mo)
	}
}

func TestLoad_File(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, `
server:
  addr: ":9090"
  shutdown_timeout: 3s
assets:
  root: `+root+`
  context_path: assets/
merge:
  expires_minutes: 60
  cache_control: "private, max-age=3600"
  disable_fingerprint: true
  policy: strict
cache:
  backend: leveldb
  leveldb_path: /var/lib/webutil
  memory_max: 16m
  max_body: 256k
  op_timeout: 500ms
  coalesce: true
filter:
  accept_url: ".*\\.(js|css)"
  ignore_user_agent: ".*bot.*"
signals:
  expire: _flush_
  reset_interval: 1h
warmup:
  paths: ["/js/a,b.js"]
  concurrency: 0
log:
  level: debug
`)

	cfg, err := LoadWithEnv(path, env(nil))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}

	if cfg.Server.Addr != ":9090" || cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Assets.ContextPath != "/assets" {
		t.Errorf("Assets.ContextPath = %q, want /assets", cfg.Assets.ContextPath)
	}
	if cfg.Cache.MemoryMax != 16<<20 || cfg.Cache.MaxBody != 256<<10 {
		t.Errorf("Cache sizes = %d/%d", cfg.Cache.MemoryMax, cfg.Cache.MaxBody)
	}
	if cfg.Signals.Expire != "_flush_" || cfg.Signals.Reset != "_resetcache_" {
		t.Errorf("Signals = %+v, want only expire overridden", cfg.Signals.Signals)
	}
	if cfg.Warmup.Concurrency != 1 {
		t.Errorf("Warmup.Concurrency = %d, want 1", cfg.Warmup.Concurrency)
	}
	if cfg.Log.Level != logging.LevelDebug {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}

	co := cfg.CacheOptions()
	if co.Backend != cache.BackendLevelDB || co.LevelDBPath != "/var/lib/webutil" || co.OpTimeout != 500*time.Millisecond {
		t.Errorf("CacheOptions() = %+v", co)
	}
	if mo := cfg.MergeOptions(); mo.Policy != merge.PolicyStrict || mo.Fingerprinting {
		t.Errorf("MergeOptions() = %+v, want strict without fingerprints", mo)
	}

	ro, err := cfg.RespcacheOptions()
	if err != nil {
		t.Fatalf("RespcacheOptions() error = %v", err)
	}
	if !ro.Coalesce || ro.MaxBodyBytes != 256<<10 || ro.ResetInterval != time.Hour {
		t.Errorf("RespcacheOptions() = %+v", ro)
	}
	if ro.Filter.UserAgentAccepted("googlebot/2.1") {
		t.Error("filter accepted an ignored user agent")
	}
	if !ro.Filter.URLAccepted("/js/a.js") {
		t.Error("filter rejected an accepted URL")
	}

	ho := cfg.HandlerOptions()
	if ho.ContextPath != "/assets" || ho.Cache.CacheControl != "private, max-age=3600" || ho.Cache.ExpiresMinutes != 60 {
		t.Errorf("HandlerOptions() = %+v", ho)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, "assets:\n  root: /does/not/matter\ncache:\n  backend: memory\n")

	cfg, err := LoadWithEnv(path, env(map[string]string{
		"WEBUTIL_ASSETS_ROOT":      root,
		"WEBUTIL_CACHE_BACKEND":    "redis",
		"WEBUTIL_REDIS_ADDR":       "redis:6379",
		"WEBUTIL_REDIS_DB":         "3",
		"WEBUTIL_CACHE_MEMORY_MAX": "8m",
		"WEBUTIL_RESET_INTERVAL":   "30m",
		"WEBUTIL_LOG_LEVEL":        "warn",
		"WEBUTIL_LOG_PRETTY":       "true",
	}))
	if err != nil {
		t.Fatalf("LoadWithEnv() error = %v", err)
	}

	if cfg.Assets.Root != root {
		t.Errorf("Assets.Root = %q, want %q", cfg.Assets.Root, root)
	}
	co := cfg.CacheOptions()
	if co.Backend != cache.BackendRedis || co.Redis.Addr != "redis:6379" || co.Redis.DB != 3 {
		t.Errorf("CacheOptions().Redis = %+v", co.Redis)
	}
	if co.MemoryMaxBytes != 8<<20 {
		t.Errorf("MemoryMaxBytes = %d, want %d", co.MemoryMaxBytes, 8<<20)
	}
	if cfg.Signals.ResetInterval != 30*time.Minute {
		t.Errorf("ResetInterval = %v, want 30m", cfg.Signals.ResetInterval)
	}
	if cfg.Log.Level != logging.LevelWarn || !cfg.Log.Pretty {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

func TestLoad_Invalid(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name   string
		config string
		env    map[string]string
	}{
		{"missing root", "server:\n  addr: \":1\"\n", nil},
		{"root is not a directory", "assets:\n  root: " + filepath.Join(root, "nope") + "\n", nil},
		{"unknown backend", "assets:\n  root: " + root + "\ncache:\n  backend: memcached\n", nil},
		{"unknown policy", "assets:\n  root: " + root + "\nmerge:\n  policy: yolo\n", nil},
		{"bad pattern", "assets:\n  root: " + root + "\nfilter:\n  accept_url: \"(\"\n", nil},
		{"shared clock without redis", "assets:\n  root: " + root + "\nsignals:\n  shared_reset_clock: true\n", nil},
		{"negative expires", "assets:\n  root: " + root + "\nmerge:\n  expires_minutes: -1\n", nil},
		{"bad size", "assets:\n  root: " + root + "\ncache:\n  memory_max: lots\n", nil},
		{"bad env bool", "assets:\n  root: " + root + "\n", map[string]string{"WEBUTIL_LOG_PRETTY": "maybe"}},
		{"bad env duration", "assets:\n  root: " + root + "\n", map[string]string{"WEBUTIL_RESET_INTERVAL": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWithEnv(writeConfig(t, tt.config), env(tt.env))
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("LoadWithEnv() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join(t.TempDir(), "absent.yaml"), env(nil))
	if err == nil {
		t.Fatal("LoadWithEnv() error = nil, want read error")
	}
	if errors.Is(err, ErrInvalidConfig) {
		t.Errorf("missing file reported as invalid config: %v", err)
	}
}
