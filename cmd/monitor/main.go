// Command monitor watches configured Hyperliquid addresses and forwards their trades to notification and storage sinks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/config"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/dedup"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/dispatch"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/metrics"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/monitor"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/notify"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/store"
	"github.com/BrockCruess/hyperliquid-discord-monitor/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to YAML config file (optional; environment variables are always read)")
	checkConfig := flag.Bool("check-config", false, "validate the configuration, print it with secrets redacted, and exit")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return 1
	}

	if *checkConfig {
		out, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			logger.Error("failed to render config", "error", err)
			return 1
		}
		os.Stdout.Write(out)
		return 0
	}

	logger = newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting hyperliquid monitor",
		"version", version.String(),
		"instance_id", cfg.Instance.ID,
		"network", cfg.Venue.Network,
		"endpoint", cfg.Venue.WSURL(),
		"addresses", len(cfg.Venue.Addresses),
		"silent", cfg.Dispatch.Silent,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return 1
	}
	var sink dispatch.Store
	if st != nil {
		sink = st
	}

	consumers, err := notify.Build(ctx, cfg.Notify, logger)
	if err != nil {
		logger.Error("failed to build notification consumers", "error", err)
		if sink != nil {
			sink.Close()
		}
		return 1
	}

	pipeline := dispatch.NewPipeline(dispatch.Config{
		Silent:          cfg.Dispatch.Silent,
		ConsumerTimeout: cfg.Dispatch.ConsumerTimeout,
	}, sink, consumers, logger)
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Warn("close pipeline", "error", err)
		}
	}()

	ledger := dedup.NewLedger(dedup.Config{
		Capacity: cfg.Dedup.Capacity,
		TTL:      cfg.Dedup.TTL,
	})
	mon := monitor.New(monitor.ConfigFrom(cfg), ledger, pipeline, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mon.Run(gctx)
	})

	if !cfg.Metrics.Disabled {
		mux := http.NewServeMux()
		mux.Handle("/health", healthHandler(mon, pipeline, st))
		mux.Handle(cfg.Metrics.Path, metrics.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info("starting health server",
				"port", cfg.Metrics.Port,
				"metrics_path", cfg.Metrics.Path,
			)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("monitor exited with error", "error", err)
		return 1
	}

	logger.Info("monitor stopped", "restarts", mon.Status().Restarts)
	return 0
}

// newLogger builds the slog handler selected by the log config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
