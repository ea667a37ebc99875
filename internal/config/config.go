// Package config provides configuration loading and validation for the gateway.
package config

import (
	"fmt"
	"time"
)

// Default values applied by Normalize for missing or invalid settings.
const (
	DefaultServerPort      = 8080
	DefaultShutdownTimeout = 30 * time.Second

	// Permissive admission defaults used when a bucket is not configured.
	DefaultBucketCapacity  = 1000
	DefaultBucketRefill    = 1000.0
	DefaultAnonCapacity    = 100
	DefaultAnonRefill      = 100.0 / 60.0

	DefaultBreakerWindowSize       = 10
	DefaultBreakerMinimumCalls     = 5
	DefaultBreakerFailureRate      = 0.5
	DefaultBreakerSlowCallRate     = 0.8
	DefaultBreakerSlowCallDuration = 3 * time.Second
	DefaultBreakerOpenTimeout      = 10 * time.Second
	DefaultBreakerHalfOpenCalls    = 3

	DefaultRetryMaxAttempts = 3
	DefaultRetryBackoff     = 500 * time.Millisecond

	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 10000
	DefaultBatchChunkSize  = 100

	DefaultEnrichmentMaxIDs = 5000
)

// Config is the root gateway configuration.
type Config struct {
	Server      ServerConfig       `yaml:"server"`
	Logging     LoggingConfig      `yaml:"logging"`
	Metrics     MetricsConfig      `yaml:"metrics"`
	Tracing     TracingConfig      `yaml:"tracing"`
	Overload    OverloadConfig     `yaml:"overload"`
	RateLimit   RateLimitConfig    `yaml:"rateLimit"`
	Downstreams []DownstreamConfig `yaml:"downstreams"`
	Caches      []CacheSpaceConfig `yaml:"caches"`
	Enrichment  EnrichmentConfig   `yaml:"enrichment"`
}

// OverloadConfig configures the gateway-wide overload guard in front of
// the handler chain.
type OverloadConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Threshold int      `yaml:"threshold"`
	Interval  Duration `yaml:"interval"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
	Insecure     bool    `yaml:"insecure"`
}

// BucketConfig configures a token bucket for one identity class.
type BucketConfig struct {
	// Capacity is the maximum number of tokens in the bucket.
	Capacity int `yaml:"capacity"`

	// RefillPerSecond is the continuous refill rate in tokens per second.
	RefillPerSecond float64 `yaml:"refillPerSecond"`
}

// Valid reports whether the bucket configuration is usable.
func (b BucketConfig) Valid() bool {
	return b.Capacity > 0 && b.RefillPerSecond > 0
}

// EndpointOverrideConfig overrides the bucket for requests matching a path
// pattern. Patterns use path.Match syntax (e.g. "/api/v1/coupons/*").
type EndpointOverrideConfig struct {
	Pattern string       `yaml:"pattern"`
	Bucket  BucketConfig `yaml:"bucket"`
}

// RateLimitConfig configures admission control.
type RateLimitConfig struct {
	Enabled        bool                     `yaml:"enabled"`
	TrustedProxies []string                 `yaml:"trustedProxies"`
	Authenticated  BucketConfig             `yaml:"authenticated"`
	Anonymous      BucketConfig             `yaml:"anonymous"`
	Overrides      []EndpointOverrideConfig `yaml:"overrides"`
}

// BreakerConfig configures a per-service circuit breaker.
type BreakerConfig struct {
	WindowSize            int      `yaml:"windowSize"`
	MinimumCalls          int      `yaml:"minimumCalls"`
	FailureRateThreshold  float64  `yaml:"failureRateThreshold"`
	SlowCallRateThreshold float64  `yaml:"slowCallRateThreshold"`
	SlowCallDuration      Duration `yaml:"slowCallDuration"`
	OpenTimeout           Duration `yaml:"openTimeout"`
	HalfOpenMaxCalls      int      `yaml:"halfOpenMaxCalls"`
}

// RetryConfig configures the retry policy for transient downstream failures.
type RetryConfig struct {
	MaxAttempts int      `yaml:"maxAttempts"`
	Backoff     Duration `yaml:"backoff"`
}

// DownstreamConfig configures one backend service boundary.
type DownstreamConfig struct {
	Name           string         `yaml:"name"`
	BaseURL        string         `yaml:"baseURL"`
	Timeout        Duration       `yaml:"timeout"`
	CircuitBreaker *BreakerConfig `yaml:"circuitBreaker"`
	Retry          *RetryConfig   `yaml:"retry"`
}

// RedisConfig configures a Redis connection for a cache space.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FetchConfig binds a cache space to the downstream batch endpoint that
// loads its misses.
type FetchConfig struct {
	// Service names the downstream serving this entity type.
	Service string `yaml:"service"`

	// Path is the batch endpoint path.
	Path string `yaml:"path"`

	// QueryParam carries the comma-separated ids. Defaults to "ids".
	QueryParam string `yaml:"queryParam"`

	// IDField names the entity field carrying the id. Defaults to "id".
	IDField string `yaml:"idField"`
}

// CacheSpaceConfig configures one entity type's cache space.
type CacheSpaceConfig struct {
	Entity             string       `yaml:"entity"`
	TTL                Duration     `yaml:"ttl"`
	MaxEntries         int          `yaml:"maxEntries"`
	ChunkSize          int          `yaml:"chunkSize"`
	FetchRatePerSecond float64      `yaml:"fetchRatePerSecond"`
	Backend            string       `yaml:"backend"`
	Redis              *RedisConfig `yaml:"redis"`
	Fetch              *FetchConfig `yaml:"fetch"`
}

// EnrichmentKeyConfig declares one recognized reference-id key. Order in the
// configuration is the match priority.
type EnrichmentKeyConfig struct {
	Key      string         `yaml:"key"`
	Entity   string         `yaml:"entity"`
	Defaults map[string]any `yaml:"defaults"`
}

// EnrichmentConfig configures the enrichment engine.
type EnrichmentConfig struct {
	MaxIDs int                   `yaml:"maxIDs"`
	Keys   []EnrichmentKeyConfig `yaml:"keys"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Normalize()
	return cfg
}

// Normalize fills in defaults for missing or invalid settings. Admission
// control and resilience settings are deliberately permissive when absent so
// a partial configuration never rejects traffic it did not mean to.
func (c *Config) Normalize() {
	if c.Server.Port <= 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = Duration(DefaultShutdownTimeout)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Overload.Threshold <= 0 {
		c.Overload.Threshold = 20
	}
	if c.Overload.Interval <= 0 {
		c.Overload.Interval = Duration(30 * time.Second)
	}

	if !c.RateLimit.Authenticated.Valid() {
		c.RateLimit.Authenticated = BucketConfig{
			Capacity:        DefaultBucketCapacity,
			RefillPerSecond: DefaultBucketRefill,
		}
	}
	if !c.RateLimit.Anonymous.Valid() {
		c.RateLimit.Anonymous = BucketConfig{
			Capacity:        DefaultAnonCapacity,
			RefillPerSecond: DefaultAnonRefill,
		}
	}
	overrides := c.RateLimit.Overrides[:0]
	for _, o := range c.RateLimit.Overrides {
		if o.Pattern != "" && o.Bucket.Valid() {
			overrides = append(overrides, o)
		}
	}
	c.RateLimit.Overrides = overrides

	for i := range c.Downstreams {
		d := &c.Downstreams[i]
		if d.CircuitBreaker != nil {
			d.CircuitBreaker.Normalize()
		}
		if d.Retry != nil {
			d.Retry.Normalize()
		}
	}

	for i := range c.Caches {
		cs := &c.Caches[i]
		if cs.TTL <= 0 {
			cs.TTL = Duration(DefaultCacheTTL)
		}
		if cs.MaxEntries <= 0 {
			cs.MaxEntries = DefaultCacheMaxEntries
		}
		if cs.ChunkSize <= 0 {
			cs.ChunkSize = DefaultBatchChunkSize
		}
		if cs.Backend == "" {
			cs.Backend = "memory"
		}
		if cs.Fetch != nil {
			if cs.Fetch.QueryParam == "" {
				cs.Fetch.QueryParam = "ids"
			}
			if cs.Fetch.IDField == "" {
				cs.Fetch.IDField = "id"
			}
		}
	}

	if c.Enrichment.MaxIDs <= 0 {
		c.Enrichment.MaxIDs = DefaultEnrichmentMaxIDs
	}
}

// Normalize fills in breaker defaults for unset fields.
func (b *BreakerConfig) Normalize() {
	if b.WindowSize <= 0 {
		b.WindowSize = DefaultBreakerWindowSize
	}
	if b.MinimumCalls <= 0 {
		b.MinimumCalls = DefaultBreakerMinimumCalls
	}
	if b.FailureRateThreshold <= 0 || b.FailureRateThreshold > 1 {
		b.FailureRateThreshold = DefaultBreakerFailureRate
	}
	if b.SlowCallRateThreshold <= 0 || b.SlowCallRateThreshold > 1 {
		b.SlowCallRateThreshold = DefaultBreakerSlowCallRate
	}
	if b.SlowCallDuration <= 0 {
		b.SlowCallDuration = Duration(DefaultBreakerSlowCallDuration)
	}
	if b.OpenTimeout <= 0 {
		b.OpenTimeout = Duration(DefaultBreakerOpenTimeout)
	}
	if b.HalfOpenMaxCalls <= 0 {
		b.HalfOpenMaxCalls = DefaultBreakerHalfOpenCalls
	}
}

// Normalize fills in retry defaults for unset fields.
func (r *RetryConfig) Normalize() {
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = DefaultRetryMaxAttempts
	}
	if r.Backoff <= 0 {
		r.Backoff = Duration(DefaultRetryBackoff)
	}
}

// CacheSpace returns the configuration for one entity type, or a defaulted
// configuration when the entity is not declared.
func (c *Config) CacheSpace(entity string) CacheSpaceConfig {
	for _, cs := range c.Caches {
		if cs.Entity == entity {
			return cs
		}
	}
	return CacheSpaceConfig{
		Entity:     entity,
		TTL:        Duration(DefaultCacheTTL),
		MaxEntries: DefaultCacheMaxEntries,
		ChunkSize:  DefaultBatchChunkSize,
		Backend:    "memory",
	}
}
