package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"reelshelf/internal/accounts"
	"reelshelf/internal/auth"
	"reelshelf/internal/catalog"
	"reelshelf/internal/config"
	"reelshelf/internal/metrics"
	"reelshelf/internal/progress"
	"reelshelf/internal/server"
	"reelshelf/internal/stream"
	"reelshelf/internal/telemetry"
	"reelshelf/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		lg := logger.New("info", true)
		lg.Fatal().Err(err).Msg("invalid config")
	}
	lg := logger.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		lg.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg config.Config, lg zerolog.Logger) error {
	for _, problem := range config.CheckLibrary(cfg.VideosDir) {
		lg.Error().Err(problem).Msg("videos directory check failed, serving an empty catalog until it is fixed")
	}

	shutdownTracing, err := telemetry.Init(ctx, "reelshelf", telemetry.Config{
		Endpoint:   cfg.OTLPEndpoint,
		SampleRate: cfg.OTLPSampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.Register(reg)

	revoker := revocationStore(cfg, lg)
	if c, ok := revoker.(io.Closer); ok {
		defer c.Close()
	}
	authSvc := auth.NewService(cfg.AppSecret, cfg.TokenTTL, revoker)

	users, err := accounts.Load(cfg.UsersFile)
	if err != nil {
		lg.Warn().Err(err).Str("file", cfg.UsersFile).Msg("no accounts loaded, logins will fail")
		users = accounts.Empty()
	} else {
		lg.Info().Int("users", users.Len()).Msg("accounts loaded")
	}

	store, closeStore := progressStore(ctx, cfg, lg)
	defer closeStore()

	scanner := catalog.Scanner{Root: cfg.VideosDir, Logger: lg}
	adminScanner := scanner
	adminScanner.IncludeAdult = true
	catalogCache := catalog.NewCache(scanner, cfg.CatalogTTL, "default")
	adminCache := catalog.NewCache(adminScanner, cfg.CatalogTTL, "admin")

	// warm the default catalog so the first client does not wait on a scan
	go catalogCache.Get(ctx)

	srv := server.New(server.Deps{
		Catalog:      catalogCache,
		AdminCatalog: adminCache,
		Streamer:     stream.NewStreamer(lg),
		Auth:         authSvc,
		Accounts:     users,
		Progress:     store,
		Metrics:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Logger:       lg,
	}, server.Options{
		MediaTimeout:   cfg.MediaTimeout,
		RequestTimeout: cfg.RequestTimeout,
		LoginRate:      cfg.LoginRate,
		LoginBurst:     cfg.LoginBurst,
		MetricsToken:   cfg.MetricsToken,
	})

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           telemetry.Wrap(srv.Handler(), "reelshelf"),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info().Str("addr", httpSrv.Addr).Str("videos_dir", cfg.VideosDir).Msg("api listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(sctx)
}

func revocationStore(cfg config.Config, lg zerolog.Logger) auth.Revoker {
	if cfg.Redis.Addr == "" {
		return auth.NewMemoryRevoker()
	}
	r, err := auth.NewRedisRevoker(auth.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, lg)
	if err != nil {
		lg.Warn().Err(err).Msg("redis unavailable, keeping revoked tokens in memory")
		return auth.NewMemoryRevoker()
	}
	return r
}

func progressStore(ctx context.Context, cfg config.Config, lg zerolog.Logger) (progress.Store, func()) {
	if len(cfg.Scylla.Hosts) == 0 {
		lg.Info().Msg("SCYLLA_HOSTS not set, watch progress kept in memory")
		return progress.NewMemoryStore(), func() {}
	}
	session, err := progress.Connect(ctx, progress.ScyllaConfig{
		Hosts:       cfg.Scylla.Hosts,
		Port:        cfg.Scylla.Port,
		Keyspace:    cfg.Scylla.Keyspace,
		Consistency: cfg.Scylla.Consistency,
		Replication: cfg.Scylla.Replication,
	}, lg)
	if err != nil {
		lg.Error().Err(err).Msg("scylla unavailable, watch progress kept in memory")
		return progress.NewMemoryStore(), func() {}
	}
	return progress.NewScyllaStore(session, cfg.Scylla.Keyspace), session.Close
}
