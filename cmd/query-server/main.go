// cmd/query-server/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"query-orchestrator/internal/agents/analytics"
	"query-orchestrator/internal/agents/seo"
	"query-orchestrator/internal/api"
	"query-orchestrator/internal/audit"
	"query-orchestrator/internal/common/config"
	"query-orchestrator/internal/common/database"
	qhttp "query-orchestrator/internal/common/http"
	"query-orchestrator/internal/common/logger"
	"query-orchestrator/internal/common/observability"
	"query-orchestrator/internal/common/reasoning"
	"query-orchestrator/internal/orchestrator"
	"query-orchestrator/internal/plan"
	"query-orchestrator/pkg/registry"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	configPath := flag.String("config", "", "path to a config file (defaults to configs/config.yaml)")
	flag.Parse()

	bootLog := logger.New("info", "console")

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFromFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		bootLog.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.NewWithOutput(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	// Wrap zap logger with our logger interface
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting query server...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	obs := observability.New(cfg.App.Name)
	defer obs.Shutdown()

	tracer, err := observability.NewTracer(ctx, observability.TracingConfig{
		Enabled:      cfg.Tracing.Enabled,
		ServiceName:  cfg.Tracing.ServiceName,
		ServiceVer:   cfg.App.Version,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
	})
	if err != nil {
		zapLog.Fatal("tracer init failed", zap.Error(err))
	}

	// --- Domain registry ---
	var reg *registry.DomainRegistry
	if cfg.Registry.Path != "" {
		reg, err = registry.LoadRegistry(cfg.Registry.Path)
	} else {
		reg, err = registry.Default()
	}
	if err != nil {
		zapLog.Fatal("domain registry load failed", zap.Error(err))
	}
	zapLog.Info("Domain registry loaded",
		zap.Int("metrics", len(reg.Analytics.Metrics)),
		zap.Int("dimensions", len(reg.Analytics.Dimensions)),
		zap.Int("seoColumns", len(reg.SEO.Columns)),
	)

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	if cfg.Database.Redis.Enabled() {
		err = retryWithBackoff(func() error {
			var err error
			redis, err = database.NewRedis(cfg.Database.Redis)
			if err != nil {
				return err
			}
			return redis.Ping(ctx)
		}, 10, 2*time.Second, zapLog, "Redis connection")

		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer redis.Close()
		zapLog.Info("Redis connected successfully")
	}

	// --- Init PostgreSQL with retry ---
	var auditor orchestrator.Auditor
	var pg *database.PostgresClient
	if cfg.Audit.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

		if err != nil {
			zapLog.Fatal("postgres failed after retries", zap.Error(err))
		}
		defer pg.Close()
		zapLog.Info("PostgreSQL connected successfully")

		recorder, err := audit.NewRecorder(pg.DB, cfg.Audit.Table, config.GetDuration(cfg.Audit.Timeout), log)
		if err != nil {
			zapLog.Fatal("audit recorder init failed", zap.Error(err))
		}
		if err := recorder.EnsureTable(ctx); err != nil {
			zapLog.Fatal("audit table setup failed", zap.Error(err))
		}
		auditor = recorder
	}

	// --- Reasoning client ---
	var reasoner reasoning.Reasoner = reasoning.NewClient(reasoning.ClientConfigFrom(cfg.LLM), nil, log)
	if cfg.LLM.CacheEnabled && redis != nil {
		reasoner = reasoning.NewCached(reasoner, redis, config.GetDuration(cfg.LLM.CacheTTL), log)
	}

	// --- Analytics agent ---
	reporter, err := analytics.NewGA4Reporter(ctx, cfg.Analytics, nil)
	if err != nil {
		zapLog.Fatal("GA4 client init failed", zap.Error(err))
	}
	analyticsAgent := analytics.NewAgent(reporter, log)
	if cfg.Analytics.CacheEnabled && redis != nil {
		analyticsAgent = analyticsAgent.WithCache(redis, config.GetDuration(cfg.Analytics.CacheTTL))
	}

	// --- SEO dataset ---
	source, err := seoSource(ctx, cfg, reg, zapLog)
	if err != nil {
		zapLog.Fatal("seo source init failed", zap.Error(err))
	}
	store := seo.NewStore(source, log)
	fetchTimeout := config.GetDuration(cfg.SEO.FetchTimeout)
	warmCtx, cancelWarm := context.WithTimeout(ctx, fetchTimeout)
	if _, err := store.Get(warmCtx); err != nil {
		// the first query retries the load
		zapLog.Warn("initial crawl snapshot load failed", zap.Error(err))
	}
	cancelWarm()
	store.StartRefresh(ctx, config.GetDuration(cfg.SEO.RefreshInterval), fetchTimeout)

	policy := plan.KeyPolicy{
		StripHost:         cfg.Fusion.StripHost,
		StripQuery:        cfg.Fusion.StripQuery,
		TrimTrailingSlash: cfg.Fusion.TrimTrailingSlash,
		CaseInsensitive:   cfg.Fusion.CaseInsensitive,
	}
	seoAgent := seo.NewAgent(store, reg, policy, log)

	// --- Orchestrator and HTTP API ---
	orch := orchestrator.New(orchestrator.ConfigFrom(cfg), orchestrator.Deps{
		Registry:  reg,
		Reasoner:  reasoner,
		Analytics: analyticsAgent,
		SEO:       seoAgent,
		Logger:    log,
		Tracer:    tracer,
		Obs:       obs,
		Auditor:   auditor,
	})

	checks := []api.Check{{
		Name: "seo_dataset",
		Fn: func(ctx context.Context) error {
			if !store.Ready() {
				return errors.New("crawl snapshot not loaded")
			}
			return nil
		},
	}}
	if redis != nil {
		checks = append(checks, api.Check{Name: "redis", Fn: redis.Ping})
	}
	if pg != nil {
		checks = append(checks, api.Check{Name: "audit_db", Fn: pg.Ping})
	}

	apiCfg := api.DefaultConfig()
	apiCfg.Version = cfg.App.Version
	apiCfg.MaxBodyBytes = int64(cfg.Server.MaxBodyBytes)
	apiCfg.RequestTimeout = config.GetDuration(cfg.Server.RequestTimeout)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      api.NewServer(apiCfg, orch, checks, log).Handler(),
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining requests...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	stop()
	if err := tracer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error flushing traces", zap.Error(err))
	}

	zapLog.Info("Query server stopped gracefully")
}

// seoSource selects where the crawl export is read from.
func seoSource(ctx context.Context, cfg *config.Config, reg *registry.DomainRegistry, zapLog *zap.Logger) (seo.Source, error) {
	switch cfg.SEO.Source {
	case config.SEOSourceFile:
		return seo.NewFileSource(cfg.SEO.FilePath, cfg.SEO.MaxRows), nil
	case config.SEOSourceElasticsearch:
		var esClient *database.ElasticsearchClient
		err := retryWithBackoff(func() error {
			var err error
			esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return esClient.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			return nil, err
		}
		if err := esClient.IndexExists(ctx, cfg.SEO.Index); err != nil {
			return nil, err
		}
		zapLog.Info("Elasticsearch connected successfully", zap.String("index", cfg.SEO.Index))
		columns := make([]string, len(reg.SEO.Columns))
		for i, c := range reg.SEO.Columns {
			columns[i] = c.Name
		}
		return seo.NewElasticsearchSource(esClient.Client, cfg.SEO.Index, cfg.SEO.MaxRows, columns), nil
	default:
		client := qhttp.NewClient(config.GetDuration(cfg.SEO.FetchTimeout))
		return seo.NewCSVSource(cfg.SEO.CSVURL, client, cfg.SEO.MaxRows), nil
	}
}
