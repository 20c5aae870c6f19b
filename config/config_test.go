package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/kvcache/backend"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("CACHE_TYPE", "")
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, backend.KindInMemory, cfg.Backend)
	require.Equal(t, "json", cfg.Codec)
	require.Equal(t, DefaultSweepInterval, cfg.Memory.SweepInterval)
}

func TestFromEnvRedis(t *testing.T) {
	t.Setenv("CACHE_TYPE", "redis")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("REDIS_READ_TIMEOUT", "250ms")
	t.Setenv("REDIS_DIAL_TIMEOUT", "3")
	t.Setenv("CACHE_CODEC", "MsgPack")

	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, backend.KindRedis, cfg.Backend)
	require.Equal(t, "cache:6380", cfg.Redis.Addr)
	require.Equal(t, 2, cfg.Redis.DB)
	require.Equal(t, 250*time.Millisecond, cfg.Redis.ReadTimeout)
	require.Equal(t, 3*time.Second, cfg.Redis.DialTimeout)
	require.Equal(t, "msgpack", cfg.Codec)
}

func TestUnknownBackendIsConfigurationError(t *testing.T) {
	t.Setenv("CACHE_TYPE", "memcached")
	_, err := FromEnv()
	require.ErrorIs(t, err, backend.ErrConfiguration)
}

func TestBadNumberIsConfigurationError(t *testing.T) {
	t.Setenv("CACHE_TYPE", "redis")
	t.Setenv("REDIS_DB", "zero")
	_, err := FromEnv()
	require.ErrorIs(t, err, backend.ErrConfiguration)
}

func TestParseKindIsCaseInsensitive(t *testing.T) {
	for in, want := range map[string]backend.Kind{
		"inmemory": backend.KindInMemory,
		" Redis ":  backend.KindRedis,
		"BigCache": backend.KindBigCache,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}
	_, err := ParseKind("")
	require.ErrorIs(t, err, backend.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Backend = backend.KindBigCache
	cfg.BigCache.Shards = 3
	require.ErrorIs(t, cfg.Validate(), backend.ErrConfiguration)

	cfg = Default()
	cfg.Codec = "xml"
	require.ErrorIs(t, cfg.Validate(), backend.ErrConfiguration)

	cfg = Default()
	cfg.Backend = backend.KindRedis
	cfg.Redis.Addr = ""
	require.ErrorIs(t, cfg.Validate(), backend.ErrConfiguration)
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: bigcache
codec: cbor
bigcache:
  shards: 64
  sweep_interval: 30s
`), 0o600))
	t.Setenv("CACHE_TYPE", "")
	t.Setenv("BIGCACHE_SHARDS", "128")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, backend.KindBigCache, cfg.Backend)
	require.Equal(t, "cbor", cfg.Codec)
	require.Equal(t, 128, cfg.BigCache.Shards)
	require.Equal(t, 30*time.Second, cfg.BigCache.SweepInterval)
}

func TestLoadFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [unterminated"), 0o600))
	_, err := LoadFile(path)
	require.ErrorIs(t, err, backend.ErrConfiguration)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("KVCACHE_TEST_DOTENV=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("KVCACHE_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	require.Equal(t, "from-file", os.Getenv("KVCACHE_TEST_DOTENV"))
}

func TestSignature(t *testing.T) {
	a := Default()
	a.Backend = backend.KindRedis
	require.NoError(t, a.Validate())

	b := a
	require.Equal(t, a.Signature(), b.Signature())

	b.Redis.DB = 1
	require.NotEqual(t, a.Signature(), b.Signature())

	c := a
	c.Backend = backend.KindInMemory
	require.NotEqual(t, a.Signature(), c.Signature())
}

func TestSignatureCoversBackendTuning(t *testing.T) {
	base := func(kind backend.Kind) Config {
		cfg := Default()
		cfg.Backend = kind
		require.NoError(t, cfg.Validate())
		return cfg
	}
	cases := map[string]func(*Config){
		"memory max_patterns":            func(c *Config) { c.Backend = backend.KindInMemory; c.Memory.MaxPatterns = 8 },
		"bigcache max_patterns":          func(c *Config) { c.Backend = backend.KindBigCache; c.BigCache.MaxPatterns = 8 },
		"bigcache max_entries_in_window": func(c *Config) { c.Backend = backend.KindBigCache; c.BigCache.MaxEntriesInWindow = 64 },
		"redis scan_count":               func(c *Config) { c.Backend = backend.KindRedis; c.Redis.ScanCount = 500 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			changed := Default()
			mutate(&changed)
			require.NoError(t, changed.Validate())
			require.NotEqual(t, base(changed.Backend).Signature(), changed.Signature())
		})
	}
}

func TestMaxEntriesInWindowFromEnv(t *testing.T) {
	t.Setenv("CACHE_TYPE", "bigcache")
	t.Setenv("BIGCACHE_MAX_ENTRIES_IN_WINDOW", "2048")
	cfg, err := FromEnv()
	require.NoError(t, err)
	require.Equal(t, 2048, cfg.BigCache.MaxEntriesInWindow)
}
