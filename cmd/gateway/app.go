package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/edgefront/bffgw/internal/aggregate"
	"github.com/edgefront/bffgw/internal/cache"
	"github.com/edgefront/bffgw/internal/circuitbreaker"
	"github.com/edgefront/bffgw/internal/config"
	"github.com/edgefront/bffgw/internal/downstream"
	"github.com/edgefront/bffgw/internal/enrich"
	"github.com/edgefront/bffgw/internal/middleware"
	"github.com/edgefront/bffgw/internal/observability"
	"github.com/edgefront/bffgw/internal/ratelimit"
	"github.com/edgefront/bffgw/internal/ratelimit/store"
	"github.com/edgefront/bffgw/internal/retry"
)

// application holds all gateway components, built once at startup and
// injected where needed.
type application struct {
	cfg     *config.Config
	logger  observability.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer

	limiter   ratelimit.Limiter
	admission *middleware.Admission
	breakers  *circuitbreaker.Registry
	services  map[string]*downstream.Protected
	caches    map[string]cache.Cache
	loaders   map[string]*cache.BatchLoader[map[string]any]
	enricher  *enrich.Engine
	fanout    *aggregate.Fanout

	mux    *http.ServeMux
	server *http.Server
}

// newApplication builds the component graph from configuration.
func newApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	app := &application{
		cfg:      cfg,
		logger:   logger,
		metrics:  observability.NewMetrics(""),
		services: make(map[string]*downstream.Protected),
		caches:   make(map[string]cache.Cache),
		loaders:  make(map[string]*cache.BatchLoader[map[string]any]),
		mux:      http.NewServeMux(),
	}

	if cfg.Tracing.Enabled {
		tracer, err := observability.NewTracer(observability.TracerConfig{
			ServiceName:  "bffgw",
			OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
			SamplingRate: cfg.Tracing.SamplingRate,
			Insecure:     cfg.Tracing.Insecure,
			Enabled:      true,
		})
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		app.tracer = tracer
	}

	app.limiter = ratelimit.NewTokenBucketLimiter(
		store.NewMemoryStore(),
		ratelimit.WithLogger(logger),
	)
	app.admission = middleware.NewAdmission(app.limiter, cfg.RateLimit,
		middleware.WithAdmissionLogger(logger),
		middleware.WithAdmissionMetrics(app.metrics),
	)

	app.breakers = circuitbreaker.NewRegistry(nil, logger)
	for _, d := range cfg.Downstreams {
		app.services[d.Name] = app.buildService(d)
	}

	for _, cs := range cfg.Caches {
		if err := app.buildCacheSpace(cs); err != nil {
			return nil, err
		}
	}

	app.enricher = app.buildEnricher(cfg.Enrichment)
	app.fanout = aggregate.NewFanout(
		aggregate.WithFanoutLogger(logger),
		aggregate.WithFanoutMetrics(app.metrics),
	)

	app.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(middleware.HeaderContentType, middleware.ContentTypeJSON)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.Metrics.Enabled {
		app.mux.Handle("GET "+cfg.Metrics.Path, app.metrics.Handler())
	}

	app.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      app.buildChain(),
		ReadTimeout:  cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  cfg.Server.IdleTimeout.Duration(),
	}

	return app, nil
}

// buildService wires one downstream: client, breaker with transport-only
// failure accounting, retry policy.
func (app *application) buildService(d config.DownstreamConfig) *downstream.Protected {
	client := downstream.NewClient(d.Name, d.BaseURL,
		downstream.WithClientLogger(app.logger),
		downstream.WithTimeout(d.Timeout.Duration()),
	)

	var breakerCfg *circuitbreaker.Config
	if d.CircuitBreaker != nil {
		breakerCfg = &circuitbreaker.Config{
			WindowSize:            d.CircuitBreaker.WindowSize,
			MinimumCalls:          d.CircuitBreaker.MinimumCalls,
			FailureRateThreshold:  d.CircuitBreaker.FailureRateThreshold,
			SlowCallRateThreshold: d.CircuitBreaker.SlowCallRateThreshold,
			SlowCallDuration:      d.CircuitBreaker.SlowCallDuration.Duration(),
			OpenTimeout:           d.CircuitBreaker.OpenTimeout.Duration(),
			HalfOpenMaxCalls:      d.CircuitBreaker.HalfOpenMaxCalls,
		}
	} else {
		breakerCfg = circuitbreaker.DefaultConfig()
	}
	breaker := app.breakers.GetOrCreateWithConfig(d.Name, downstream.NewBreakerConfig(breakerCfg))

	return downstream.NewProtected(client, breaker, retryFromConfig(d.Retry), app.logger)
}

// buildCacheSpace wires one entity type: cache backend plus, when a fetch
// source is configured, the read-through batch loader.
func (app *application) buildCacheSpace(cs config.CacheSpaceConfig) error {
	c, err := cache.New(cs, app.logger)
	if err != nil {
		return fmt.Errorf("cache space %s: %w", cs.Entity, err)
	}
	app.caches[cs.Entity] = c

	if cs.Fetch == nil {
		return nil
	}

	svc, ok := app.services[cs.Fetch.Service]
	if !ok {
		return fmt.Errorf("cache space %s: unknown downstream %s", cs.Entity, cs.Fetch.Service)
	}

	fetch := downstream.NewBatchFetcher(svc, cs.Fetch.Path, cs.Fetch.QueryParam, cs.Fetch.IDField)
	app.loaders[cs.Entity] = cache.NewBatchLoader(cs, c, fetch,
		cache.WithLoaderLogger[map[string]any](app.logger),
	)

	return nil
}

// buildEnricher turns the configured reference-id keys into enrichment
// rules backed by the entity loaders. Keys pointing at entities with no
// loader are skipped with a warning.
func (app *application) buildEnricher(cfg config.EnrichmentConfig) *enrich.Engine {
	var rules []enrich.Rule
	for _, key := range cfg.Keys {
		loader, ok := app.loaders[key.Entity]
		if !ok {
			app.logger.Warn("enrichment key has no loader, skipping",
				observability.String("key", key.Key),
				observability.String("entity", key.Entity),
			)
			continue
		}
		rules = append(rules, enrich.Rule{
			Key:      key.Key,
			Resolver: loader,
			Defaults: key.Defaults,
		})
	}

	return enrich.NewEngine(rules,
		enrich.WithEngineLogger(app.logger),
		enrich.WithEngineMetrics(app.metrics),
		enrich.WithMaxIDs(cfg.MaxIDs),
	)
}

// buildChain assembles the middleware chain around the mux. Recovery is
// outermost; admission runs last so denied requests still get a request id
// and an access log line.
func (app *application) buildChain() http.Handler {
	var handler http.Handler = app.mux

	handler = app.admission.Middleware()(handler)
	if app.cfg.Overload.Enabled {
		guard := middleware.NewGatewayBreaker(
			app.cfg.Overload.Threshold,
			app.cfg.Overload.Interval.Duration(),
			middleware.WithGatewayBreakerLogger(app.logger),
		)
		handler = guard.Middleware()(handler)
	}
	handler = middleware.Metrics(app.metrics)(handler)
	handler = middleware.Logging(app.logger)(handler)
	handler = middleware.RequestID()(handler)
	handler = middleware.Recovery(app.logger)(handler)

	return handler
}

// run serves until ctx is cancelled, then drains.
func (app *application) run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("gateway listening",
			observability.String("addr", app.server.Addr),
		)
		if err := app.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.logger.Info("shutting down",
		observability.Duration("timeout", app.cfg.Server.ShutdownTimeout.Duration()),
	)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	err := app.server.Shutdown(shutdownCtx)
	app.close(shutdownCtx)
	return err
}

// close releases component resources in dependency order.
func (app *application) close(ctx context.Context) {
	if err := app.limiter.Close(); err != nil {
		app.logger.Warn("closing rate limiter", observability.Error(err))
	}
	for entity, c := range app.caches {
		if err := c.Close(); err != nil {
			app.logger.Warn("closing cache space",
				observability.String("entity", entity),
				observability.Error(err),
			)
		}
	}
	if app.tracer != nil {
		if err := app.tracer.Shutdown(ctx); err != nil {
			app.logger.Warn("shutting down tracer", observability.Error(err))
		}
	}
	_ = app.logger.Sync()
}

// reload applies a freshly loaded configuration to the components that
// support hot updates. Server and downstream topology changes still need a
// restart.
func (app *application) reload(cfg *config.Config) {
	app.admission.Update(cfg.RateLimit)
	app.logger.Info("applied reloaded configuration")
}

// retryFromConfig translates the configuration form of a retry policy.
func retryFromConfig(r *config.RetryConfig) *retry.Config {
	if r == nil {
		return nil
	}
	return &retry.Config{
		MaxAttempts: r.MaxAttempts,
		Backoff:     r.Backoff.Duration(),
	}
}
