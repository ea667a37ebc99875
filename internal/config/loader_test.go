package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const sampleConfig = `
server:
  host: 0.0.0.0
  port: 9090
  shutdownTimeout: 15s
logging:
  level: debug
rateLimit:
  enabled: true
  trustedProxies:
    - 10.0.0.0/8
  authenticated:
    capacity: 100
    refillPerSecond: 1.6667
  anonymous:
    capacity: 10
    refillPerSecond: 0.1667
  overrides:
    - pattern: /api/v1/search/*
      bucket:
        capacity: 5
        refillPerSecond: 0.5
downstreams:
  - name: coupon
    baseURL: http://coupon:8080
    timeout: 2s
    circuitBreaker:
      minimumCalls: 8
    retry:
      maxAttempts: 2
caches:
  - entity: member
    ttl: 10m
    chunkSize: 50
    fetch:
      service: member
      path: /internal/members
enrichment:
  keys:
    - key: writerId
      entity: member
      defaults:
        writerNickname: unknown
`

func TestLoadFromReader(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "debug", cfg.Logging.Level)

	require.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 100, cfg.RateLimit.Authenticated.Capacity)
	require.Len(t, cfg.RateLimit.Overrides, 1)
	assert.Equal(t, "/api/v1/search/*", cfg.RateLimit.Overrides[0].Pattern)

	require.Len(t, cfg.Downstreams, 1)
	d := cfg.Downstreams[0]
	assert.Equal(t, 2*time.Second, d.Timeout.Duration())
	assert.Equal(t, 8, d.CircuitBreaker.MinimumCalls)
	// Unset breaker fields are defaulted.
	assert.Equal(t, 10, d.CircuitBreaker.WindowSize)
	assert.Equal(t, 2, d.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, d.Retry.Backoff.Duration())

	require.Len(t, cfg.Caches, 1)
	cs := cfg.Caches[0]
	assert.Equal(t, 10*time.Minute, cs.TTL.Duration())
	assert.Equal(t, 50, cs.ChunkSize)
	assert.Equal(t, "memory", cs.Backend)
	require.NotNil(t, cs.Fetch)
	assert.Equal(t, "ids", cs.Fetch.QueryParam)
	assert.Equal(t, "id", cs.Fetch.IDField)

	require.Len(t, cfg.Enrichment.Keys, 1)
	assert.Equal(t, "writerId", cfg.Enrichment.Keys[0].Key)
	assert.Equal(t, DefaultEnrichmentMaxIDs, cfg.Enrichment.MaxIDs)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := LoadFromReader(strings.NewReader("server: [not a map"))
	assert.Error(t, err)
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("GW_PORT", "7070")

	cfg, err := LoadFromReader(strings.NewReader(`
server:
  port: ${GW_PORT}
  host: ${GW_HOST:-127.0.0.1}
`))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestLoadEnvSubstitutionEscapedDollar(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`
logging:
  output: "$${literal}"
`))
	require.NoError(t, err)

	assert.Equal(t, "${literal}", cfg.Logging.Output)
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	// Missing buckets default to permissive shapes.
	assert.Equal(t, DefaultBucketCapacity, cfg.RateLimit.Authenticated.Capacity)
	assert.Equal(t, DefaultAnonCapacity, cfg.RateLimit.Anonymous.Capacity)
}

func TestNormalizeDropsInvalidOverrides(t *testing.T) {
	cfg := &Config{
		RateLimit: RateLimitConfig{
			Overrides: []EndpointOverrideConfig{
				{Pattern: "/ok/*", Bucket: BucketConfig{Capacity: 5, RefillPerSecond: 1}},
				{Pattern: "", Bucket: BucketConfig{Capacity: 5, RefillPerSecond: 1}},
				{Pattern: "/bad/*", Bucket: BucketConfig{Capacity: 0, RefillPerSecond: 1}},
			},
		},
	}
	cfg.Normalize()

	require.Len(t, cfg.RateLimit.Overrides, 1)
	assert.Equal(t, "/ok/*", cfg.RateLimit.Overrides[0].Pattern)
}

func TestCacheSpaceLookup(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	cs := cfg.CacheSpace("member")
	assert.Equal(t, 10*time.Minute, cs.TTL.Duration())

	// Undeclared entities get a defaulted space.
	cs = cfg.CacheSpace("coupon")
	assert.Equal(t, DefaultCacheTTL, cs.TTL.Duration())
	assert.Equal(t, "memory", cs.Backend)
}

func TestDurationUnmarshal(t *testing.T) {
	var cfg struct {
		D Duration `yaml:"d"`
	}

	require.NoError(t, yaml.Unmarshal([]byte("d: 1h30m"), &cfg))
	assert.Equal(t, 90*time.Minute, cfg.D.Duration())

	require.NoError(t, yaml.Unmarshal([]byte(`d: ""`), &cfg))
	assert.Equal(t, time.Duration(0), cfg.D.Duration())

	assert.Error(t, yaml.Unmarshal([]byte("d: bogus"), &cfg))
}
