package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"shardgate/core/chain"
	"shardgate/core/query"
	"shardgate/gateway/config"
	"shardgate/gateway/middleware"
	"shardgate/gateway/routes"
	"shardgate/observability/logging"
	"shardgate/observability/metrics"
	telemetry "shardgate/observability/otel"
	"shardgate/rpc"
	"shardgate/rpc/shardclient"
)

func main() {
	var cfgPath string
	var allowInsecureFlag bool
	flag.StringVar(&cfgPath, "config", "", "path to gateway configuration (.yaml or .toml)")
	flag.BoolVar(&allowInsecureFlag, "allow-insecure", false, "DEV ONLY: permit plaintext listeners on loopback interfaces")
	flag.Parse()

	if err := run(cfgPath, allowInsecureFlag); err != nil {
		slog.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(cfgPath string, allowInsecureFlag bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.Setup(logging.Config{
		Service:    cfg.Observability.ServiceName,
		Env:        cfg.Env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})

	otlpEndpoint := strings.TrimSpace(cfg.Observability.OTLPEndpoint)
	if env := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); env != "" {
		otlpEndpoint = env
	}
	insecure := cfg.Observability.OTLPInsecure
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	if cfg.Observability.Tracing {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: cfg.Observability.ServiceName,
			Environment: cfg.Env,
			Endpoint:    otlpEndpoint,
			Insecure:    insecure,
			Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
			Metrics:     cfg.Observability.Metrics,
			Traces:      true,
			SampleRatio: cfg.Observability.SampleRatio,
		})
		if err != nil {
			return fmt.Errorf("initialise telemetry: %w", err)
		}
		defer func() {
			_ = shutdownTelemetry(context.Background())
		}()
	}

	upstream := metrics.Upstream()
	pool, err := shardclient.DialPool(cfg.Endpoints(), cfg.Upstream.Timeout,
		shardclient.WithMetrics(upstream),
		shardclient.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("dial shards: %w", err)
	}
	defer pool.Close()

	var client query.Client = pool
	if cfg.Upstream.CacheSize > 0 {
		cacheOpts := []shardclient.CacheOption{
			shardclient.WithCacheLogger(logger),
			shardclient.WithFetchTimeout(cfg.Upstream.Timeout),
		}
		if dir := strings.TrimSpace(cfg.Upstream.CacheDir); dir != "" {
			store, err := shardclient.OpenLevelDBStore(dir)
			if err != nil {
				return fmt.Errorf("open cache store: %w", err)
			}
			defer store.Close()
			cacheOpts = append(cacheOpts, shardclient.WithStore(store))
		}
		cached, err := shardclient.NewCached(pool, cfg.Upstream.CacheSize, upstream, cacheOpts...)
		if err != nil {
			return fmt.Errorf("configure cache: %w", err)
		}
		client = cached
	}

	network := cfg.Network()
	pipelines := query.New(client,
		query.WithLogger(logger),
		query.WithProbeObserver(upstream.RecordSearchProbe))
	api := chain.NewAPI(network, pipelines, logger)

	serverOpts := []rpc.Option{
		rpc.WithLogger(logger),
		rpc.WithRequestTimeout(cfg.RPC.RequestTimeout),
		rpc.WithMaxBatch(cfg.RPC.MaxBatch),
		rpc.WithAllowedOrigins(cfg.CORS.AllowedOrigins...),
	}
	if cfg.Auth.Enabled {
		auth := middleware.NewAuthenticator(middleware.AuthConfig{
			Enabled:     true,
			HMACSecret:  cfg.Auth.Secret(),
			Issuer:      cfg.Auth.Issuer,
			Audience:    cfg.Auth.Audience,
			ScopeClaim:  cfg.Auth.ScopeClaim,
			SubmitScope: cfg.Auth.SubmitScope,
			ClockSkew:   cfg.Auth.ClockSkew,
		}, logger)
		serverOpts = append(serverOpts, rpc.WithAuthorizer(auth, cfg.Auth.GuardedMethods...))
	}
	server := rpc.NewServer(api, serverOpts...)

	rateLimits := make([]middleware.RateLimit, 0, len(cfg.RateLimits))
	for _, entry := range cfg.RateLimits {
		rateLimits = append(rateLimits, middleware.RateLimit{
			ID:                entry.ID,
			RatePerSecond:     entry.RatePerSecond,
			RequestsPerMinute: entry.RequestsPerMinute,
			Burst:             entry.Burst,
			Paths:             entry.Paths,
		})
	}

	var obs *middleware.Observability
	if cfg.Observability.Metrics || cfg.Observability.LogRequests {
		obs = middleware.NewObservability(middleware.ObservabilityConfig{
			ServiceName:   cfg.Observability.ServiceName,
			MetricsPrefix: cfg.Observability.MetricsPrefix,
			LogRequests:   cfg.Observability.LogRequests,
			Enabled:       true,
		}, logger)
	}

	router := routes.New(routes.Config{
		RPC: server,
		CORS: middleware.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
		},
		Ready: func(ctx context.Context) error {
			for shard := uint16(0); shard < network.ShardCount; shard++ {
				if _, err := pipelines.BestHeader(ctx, shard); err != nil {
					return fmt.Errorf("shard %d: %w", shard, err)
				}
			}
			return nil
		},
		RateLimiter:   middleware.NewRateLimiter(rateLimits, logger),
		Observability: obs,
	})

	handler := http.Handler(router)
	if cfg.Observability.Tracing {
		handler = otelhttp.NewHandler(router, "shardgate")
	}

	configDir := ""
	if strings.TrimSpace(cfgPath) != "" {
		configDir = filepath.Dir(cfgPath)
	}
	tlsConfig, err := buildTLSConfig(configDir, cfg.Security)
	if err != nil {
		return fmt.Errorf("configure TLS: %w", err)
	}
	allowInsecure := cfg.Security.AllowInsecure || allowInsecureFlag
	if tlsConfig == nil {
		if !allowInsecure {
			return errors.New("gateway TLS certificate and key are required; provide security.tlsCertFile/tlsKeyFile or start with --allow-insecure in dev")
		}
		if !strings.EqualFold(cfg.Env, "dev") && !isLoopbackAddress(cfg.ListenAddress) {
			return errors.New("plaintext gateway mode is restricted to loopback listeners or dev environment")
		}
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		TLSConfig:    tlsConfig,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	scheme := "http"
	if tlsConfig != nil {
		scheme = "https"
		listener = tls.NewListener(listener, tlsConfig)
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("gateway listening",
			"addr", scheme+"://"+listener.Addr().String(),
			"hrp", string(network.HRP),
			"shards", network.ShardCount)
		serveErr <- httpServer.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	return nil
}
