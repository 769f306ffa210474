package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammed-shakir/kg-feature-bridge/internal/cache"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/cache/redisstore"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/config"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/httpclient"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/observability"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/core/server"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/cypher"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/editevents"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/invalidation/kafkaconsumer"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgclient"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/kgserver"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/logger"
	h3mapper "github.com/mohammed-shakir/kg-feature-bridge/internal/mapper/h3"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/metrics"
	"github.com/mohammed-shakir/kg-feature-bridge/internal/provider"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "kgbridge",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, appLog)
	observability.ExposeBuildInfo(Version)

	if len(cfg.Sources) == 0 {
		appLog.Error("no knowledge graph sources configured (KG_SOURCES)")
		return 1
	}
	appLog.Info("starting kg bridge",
		"addr", cfg.Addr,
		"version", Version,
		"instance", cfg.InstanceID,
		"sources", len(cfg.Sources),
		"cache", cfg.Cache.Enabled)

	client := kgclient.New(appLog, httpclient.NewOutbound(cfg.UpstreamTimeout), cfg.Referer)
	translator := cypher.New(appLog, cypher.Options{Lenient: cfg.SpatialLenient, CacheSize: cfg.FilterCacheSize})

	var opts kgserver.Options
	opts.Translator = translator

	var results *cache.ResultCache
	if cfg.Cache.Enabled {
		cli, err := redisstore.New(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			appLog.Warn("redis unavailable, serving without result cache", "addr", cfg.Cache.RedisAddr, "err", err)
		} else {
			defer func() { _ = cli.Close() }()
			results = cache.New(appLog, cli, h3mapper.New(), cache.Options{
				TTL:          cfg.Cache.TTLDefault,
				TTLOverrides: cfg.Cache.TTLOverrides,
				OpTimeout:    cfg.Cache.OpTimeout,
				Res:          cfg.Cache.H3Res,
				MaxCells:     cfg.Cache.MaxCells,
			})
			opts.Cache = results
		}
	}

	if cfg.EditEvents.Enabled {
		pub, err := editevents.NewPublisher(kafkaconsumer.SplitCSV(cfg.Invalidation.Brokers),
			cfg.EditEvents.Topic, cfg.InstanceID, cfg.EditEvents.QueueSize, appLog)
		if err != nil {
			appLog.Warn("edit events disabled", "err", err)
		} else {
			defer func() {
				if err := pub.Close(); err != nil {
					appLog.Warn("edit events close", "err", err)
				}
			}()
			opts.Events = pub
		}
	}

	sources := make([]provider.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources = append(sources, kgserver.New(appLog, kgserver.Config{Name: s.Name, URL: s.URL, Token: s.Token}, client, opts))
	}
	prov := provider.New(appLog, sources...)
	go prov.Warm(ctx)

	if cfg.Invalidation.Enabled {
		if results == nil {
			appLog.Warn("invalidation consumer needs the result cache; not started")
		} else {
			kc := kafkaconsumer.NewConfig(cfg.Invalidation.Brokers, cfg.Invalidation.Topic, cfg.Invalidation.GroupID)
			kc.Self = cfg.InstanceID
			kc.LogLevel = cfg.LogLevel
			consumer := kafkaconsumer.New(kc, appLog, results)
			go func() {
				if err := consumer.Start(ctx); err != nil {
					appLog.Error("invalidation consumer stopped", "err", err)
				}
			}()
		}
	}

	if err := server.Run(ctx, cfg, appLog, prov); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}

// startMetrics serves the provider registry on its own listener when
// enabled; collectors are always on the default registry behind /metrics.
func startMetrics(ctx context.Context, cfg config.Config, log *slog.Logger) {
	if !cfg.Metrics.Enabled {
		observability.Init(nil, false)
		return
	}
	names := make([]string, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		names = append(names, s.Name)
	}
	p := metrics.Init(metrics.Config{
		Enabled:  true,
		Addr:     cfg.Metrics.Addr,
		Path:     cfg.Metrics.Path,
		Instance: cfg.InstanceID,
		Sources:  names,
		Build: metrics.BuildInfo{
			Version:  Version,
			Revision: os.Getenv("BUILD_REVISION"),
		},
	})
	observability.Init(p.Registerer(), true)

	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, p.Handler())
	srv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		log.Info("metrics listening", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("metrics server exited", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
