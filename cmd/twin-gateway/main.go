package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voltsight/twin-gateway/internal/api"
	"github.com/voltsight/twin-gateway/internal/auth"
	"github.com/voltsight/twin-gateway/internal/cache"
	"github.com/voltsight/twin-gateway/internal/config"
	"github.com/voltsight/twin-gateway/internal/engine"
	"github.com/voltsight/twin-gateway/internal/metrics"
	"github.com/voltsight/twin-gateway/internal/notify"
	"github.com/voltsight/twin-gateway/internal/repo"
	"github.com/voltsight/twin-gateway/internal/services"
	"github.com/voltsight/twin-gateway/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("starting twin-gateway", slog.String("address", cfg.Server.Address), slog.String("model", cfg.Model.Name))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Identity.CredentialsFile, cfg.Identity.ProjectID)
	if err != nil {
		logger.Error("failed to initialise identity provider", slog.Any("error", err))
		os.Exit(1)
	}

	model, err := repo.NewGeminiClient(ctx, repo.GeminiConfig{
		APIKey:  cfg.Model.APIKey,
		Model:   cfg.Model.Name,
		BaseURL: cfg.Model.BaseURL,
	})
	if err != nil {
		logger.Error("failed to initialise model client", slog.Any("error", err))
		os.Exit(1)
	}

	deps := services.Dependencies{Model: model}

	if cfg.Cache.Enabled {
		var provider cache.Provider = cache.NewMemoryProvider()
		if cfg.Cache.Addr != "" {
			redisProvider, err := cache.NewRedisProvider(cache.RedisConfig{
				Addr:         cfg.Cache.Addr,
				Username:     cfg.Cache.Username,
				Password:     cfg.Cache.Password,
				DB:           cfg.Cache.DB,
				DialTimeout:  cfg.Cache.DialTimeout,
				ReadTimeout:  cfg.Cache.ReadTimeout,
				WriteTimeout: cfg.Cache.WriteTimeout,
				MaxRetries:   cfg.Cache.MaxRetries,
				TLS:          cfg.Cache.TLS,
			})
			if err != nil {
				logger.Warn("redis cache unavailable, using in-process cache", slog.Any("error", err))
			} else {
				provider = redisProvider
			}
		}
		defer provider.Close()
		deps.Cache = cache.NewPredictionCache(provider, cfg.Cache.PredictionTTL)
	}

	if cfg.History.Enabled {
		store, err := repo.NewHistoryStore(cfg.History.Path)
		if err != nil {
			logger.Error("failed to open analysis history", slog.String("path", cfg.History.Path), slog.Any("error", err))
			os.Exit(1)
		}
		defer store.Close()
		deps.History = store
		logger.Info("analysis history enabled", slog.String("path", cfg.History.Path))
	}

	if cfg.Alerts.Enabled {
		publisher, err := notify.NewMQTTPublisher(notify.MQTTConfig{
			Broker:    cfg.Alerts.Broker,
			ClientID:  cfg.Alerts.ClientID,
			Username:  cfg.Alerts.Username,
			Password:  cfg.Alerts.Password,
			Topic:     cfg.Alerts.Topic,
			QoS:       cfg.Alerts.QoS,
			QueueSize: cfg.Alerts.QueueSize,
		}, logger)
		if err != nil {
			logger.Warn("alert publisher unavailable", slog.Any("error", err))
		} else {
			defer publisher.Close()
			go publisher.Start(ctx)
			deps.Notifier = publisher
		}
	}

	presets, err := engine.NewPresetCatalog(cfg.Presets.Path, logger)
	if err != nil {
		logger.Error("failed to load battery presets", slog.String("path", cfg.Presets.Path), slog.Any("error", err))
		os.Exit(1)
	}

	gateway := services.NewGatewayService(logger, deps, services.Options{
		Timeout:              cfg.Model.Timeout,
		MaxRetries:           cfg.Model.MaxRetries,
		RetryInitialInterval: cfg.Model.RetryInitialInterval,
	})

	router := api.NewRouter(logger, api.NewHandlers(logger, gateway, presets), verifier, cfg.Server.AllowedOrigins)
	server, err := api.NewServer(cfg.Server, router)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	var healthServer *api.HealthServer
	if cfg.Server.GRPCAddress != "" {
		healthServer, err = api.NewHealthServer(cfg.Server.GRPCAddress)
		if err != nil {
			logger.Error("failed to create gRPC health server", slog.Any("error", err))
			os.Exit(1)
		}
		go func() {
			logger.Info("gRPC health server listening", slog.String("address", healthServer.Address()))
			if serveErr := healthServer.Start(); serveErr != nil {
				logger.Error("gRPC health server exited", slog.Any("error", serveErr))
				stop()
			}
		}()
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("HTTP server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")
	if healthServer != nil {
		healthServer.SetServing(false)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.GracefulTimeout())
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", slog.Any("error", err))
	}
	if healthServer != nil {
		healthServer.Shutdown(shutdownCtx)
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("twin-gateway stopped", slog.Duration("analysis_p95", gateway.LatencyP95()))
}
