package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"moad/internal/breaker"
	"moad/internal/catalog"
	"moad/internal/config"
	"moad/internal/degrade"
	"moad/internal/httpapi"
	"moad/internal/llm"
	"moad/internal/mixture"
)

func main() {
	var (
		configPath string
		addr       string
		logLevel   string
	)

	root := &cobra.Command{
		Use:           "moad",
		Short:         "Mixture-of-agents orchestration daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath, addr, logLevel)
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", "moad.yaml", "Config file (.yaml, .json or .toml)")
	root.Flags().StringVar(&addr, "addr", "", "HTTP listen address, overrides config (e.g. :8080)")
	root.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug|info|warn|error")

	if err := root.Execute(); err != nil {
		logger := zerolog.New(os.Stderr)
		logger.Err(err).Msg("fatal")
		os.Exit(1)
	}
}

func serve(configPath, addr, logLevel string) error {
	logger := newLogger(logLevel)

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	cat, err := catalog.New(cfg.Models, cfg.DefaultModel, cfg.FallbackModels)
	if err != nil {
		return err
	}

	connectTimeout := time.Duration(cfg.Upstream.ConnectTimeoutSec) * time.Second
	client := llm.NewHTTPClient(cfg.Upstream.BaseURL, cfg.Upstream.APIKey, connectTimeout)

	events := httpapi.NewSSEPublisher(0)
	engine, err := mixture.NewWithConfig(engineConfig(cfg, cat, client, events))
	if err != nil {
		return err
	}
	engine.SetLogger(logger)

	// Hot reload: rebuild the catalog when the config file changes. Pipeline
	// shape changes still need a restart; only model profiles are adopted.
	watcher, err := catalog.NewWatcher(configPath, 500*time.Millisecond, func() {
		fresh, err := config.Load(configPath)
		if err != nil {
			logger.Warn().Err(err).Msg("config reload failed")
			return
		}
		cat, err := catalog.New(fresh.Models, fresh.DefaultModel, fresh.FallbackModels)
		if err != nil {
			logger.Warn().Err(err).Msg("reloaded catalog invalid")
			return
		}
		engine.ReplaceCatalog(cat)
	}, logger)
	if err != nil {
		logger.Warn().Err(err).Msg("catalog watcher unavailable")
	} else {
		defer watcher.Close()
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	defer baseCancel()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetLogger(logger)
	httpapi.SetCORSOptions(cfg.CORSEnabled, cfg.CORSOrigins, nil, nil)
	httpapi.SetRequestRate(cfg.RequestRatePerSec, 0)

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(engine, events)}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Int("models", len(cfg.Models)).Msg("moad listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown (Ctrl+C / SIGTERM)
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	baseCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}

func engineConfig(cfg config.Config, cat *catalog.Catalog, client llm.CompletionClient, events mixture.EventPublisher) mixture.EngineConfig {
	l := cfg.Limits
	a := cfg.Adaptive
	return mixture.EngineConfig{
		Catalog:       cat,
		Client:        client,
		Pipeline:      cfg.Pipeline,
		Publisher:     events,
		QuotaWindow:   time.Duration(l.WindowSec) * time.Second,
		MaxQueueDepth: l.MaxQueueDepth,
		Retry: breaker.ExecutorConfig{
			MaxAttempts: l.RetryMaxAttempts,
			BaseDelay:   time.Duration(l.RetryBaseMs) * time.Millisecond,
			Multiplier:  l.RetryMultiplier,
			Jitter:      l.RetryJitter,
		},
		Breaker: breaker.Config{
			FailureThreshold: l.BreakerFailureThreshold,
			Cooldown:         time.Duration(l.BreakerCooldownSec) * time.Second,
		},
		Degrade: degrade.PolicyConfig{
			RateLimitMultiplier: l.RateLimitMultiplier,
			NetworkBaseDelay:    time.Duration(l.NetworkBaseMs) * time.Millisecond,
			UpstreamBaseDelay:   time.Duration(l.UpstreamBaseMs) * time.Millisecond,
		},
		Adaptive: mixture.AdaptiveConfig{
			Disabled:          a.Disabled,
			MaxRecords:        a.MaxRecords,
			WindowSize:        a.WindowSize,
			SlowThreshold:     time.Duration(a.SlowMs) * time.Millisecond,
			FastThreshold:     time.Duration(a.FastMs) * time.Millisecond,
			LowQuality:        a.LowQuality,
			VeryLowQuality:    a.VeryLowQuality,
			MutateProbability: a.MutateProbability,
			CoordinatorFanOut: a.CoordinatorFanOut,
		},
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(lvl).
		With().Timestamp().Logger()
}
