package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/roman-kulish/spectrum-streamer/internal/api"
	"github.com/roman-kulish/spectrum-streamer/internal/feed"
	"github.com/roman-kulish/spectrum-streamer/internal/sdr/hackrf"
	"github.com/roman-kulish/spectrum-streamer/internal/sdr/rtl"
	"github.com/roman-kulish/spectrum-streamer/internal/storage"
	"github.com/roman-kulish/spectrum-streamer/internal/sweep"
)

const shutdownTimeout = 10 * time.Second

// Run wires the sweep engine to the HTTP API, the WebSocket feed and the
// optional journal and MQTT mirror, and runs them until ctx is cancelled.
func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	handler, err := createHandler(&config.Device)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	options := []func(e *sweep.Engine){
		sweep.WithLogger(logger),
		sweep.WithMetrics(sweep.NewMetrics(registry)),
		sweep.WithRecovery(config.Recovery.Sweep()),
	}
	if config.Stream.BufferSize > 0 {
		options = append(options, sweep.WithBufferSize(config.Stream.BufferSize))
	}
	if config.Stream.SubscriberQueue > 0 {
		options = append(options, sweep.WithSubscriberQueue(config.Stream.SubscriberQueue))
	}
	if config.Recovery.StopGracePeriod > 0 {
		options = append(options, sweep.WithGracePeriod(config.Recovery.StopGracePeriod))
	}

	engine, err := sweep.New(handler, options...)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	serverOptions := []func(s *api.Server){
		api.WithLogger(logger),
		api.WithRegistry(registry),
		api.WithFeed(feed.NewWebSocketHandler(engine, feed.WithLogger(logger))),
	}
	if len(config.Server.AllowedOrigins) > 0 {
		serverOptions = append(serverOptions, api.WithAllowedOrigins(config.Server.AllowedOrigins...))
	}

	if config.Journal.Enabled {
		store, err := createStorage(&config.Journal)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer store.Close()

		serverOptions = append(serverOptions, api.WithJournal(store))

		// Subscribed before the engine runs so the first status is recorded
		sub := engine.Subscribe()
		recorder := NewRecorder(store, engine,
			WithMaxBatchSize(config.Journal.MaxBatchSize),
			WithRecorderLogger(logger))

		g.Go(func() error {
			return recorder.Run(ctx, sub.C)
		})
	}

	if config.MQTT.Enabled {
		bridge, err := feed.NewMQTTBridge(config.MQTT.MQTTConfig, feed.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("failed to create MQTT bridge: %w", err)
		}
		defer bridge.Close()

		sub := engine.Subscribe()
		g.Go(func() error {
			return bridge.Run(ctx, sub.C)
		})
	}

	g.Go(func() error {
		return engine.Run(ctx)
	})

	server := &http.Server{
		Addr:              config.Server.Listen,
		Handler:           api.NewServer(engine, serverOptions...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info(fmt.Sprintf("listening on %s", config.Server.Listen))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if config.Cycle != nil {
		g.Go(func() error {
			autostart(ctx, engine, *config.Cycle, logger)
			return nil
		})
	}

	return g.Wait()
}

// autostart starts the configured cycle once the engine runs. A failed start
// is logged and left for the API to retry.
func autostart(ctx context.Context, engine *sweep.Engine, config sweep.CycleConfig, logger *slog.Logger) {
	select {
	case <-ctx.Done():
		return
	case <-engine.Ready():
	}

	if err := engine.StartCycle(ctx, config); err != nil {
		logger.Error(fmt.Sprintf("failed to start configured cycle: %s", err.Error()))
	}
}

func createHandler(config *DeviceConfig) (sweep.Handler, error) {
	switch config.Type {
	case DeviceHackRF:
		handler, err := hackrf.New(config.Runtime, config.SerialNumber, config.HackRF)
		if err != nil {
			return nil, fmt.Errorf("creating HackRF device: %w", err)
		}
		return handler, nil

	case DeviceRTLSDR:
		handler, err := rtl.New(config.Runtime, config.RTL)
		if err != nil {
			return nil, fmt.Errorf("creating RTL-SDR device: %w", err)
		}
		return handler, nil

	default:
		return nil, fmt.Errorf("creating device: unknown type '%s'", config.Type)
	}
}

func createStorage(config *JournalConfig) (*storage.SqliteStore, error) {
	dbPath, err := filepath.Abs(config.Path)
	if err != nil {
		return nil, fmt.Errorf("resolving journal path '%s': %w", config.Path, err)
	}

	dir := filepath.Dir(dbPath)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage directory '%s': %w", dir, err)
	}

	return storage.NewSqliteStore(dbPath), nil
}
