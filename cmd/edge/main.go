// Command edge runs the wildfire simulation and publishes one packed sensor
// frame per device per step, plus a satellite view every few steps.
package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/couchcryptid/wildfire-watch/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/wildfire-watch/internal/adapter/kafka"
	mqttadapter "github.com/couchcryptid/wildfire-watch/internal/adapter/mqtt"
	"github.com/couchcryptid/wildfire-watch/internal/adapter/stations"
	"github.com/couchcryptid/wildfire-watch/internal/config"
	"github.com/couchcryptid/wildfire-watch/internal/observability"
	"github.com/couchcryptid/wildfire-watch/internal/sensor"
	"github.com/couchcryptid/wildfire-watch/internal/simulation"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// publisher is implemented by both broker adapters.
type publisher interface {
	simulation.FramePublisher
	simulation.SatellitePublisher
	Close() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to init tracing", "error", err)
		os.Exit(1)
	}

	simCfg, err := simulationConfig(cfg)
	if err != nil {
		logger.Error("invalid simulation config", "error", err)
		os.Exit(1)
	}

	pub := newPublisher(ctx, cfg, logger)
	var frames simulation.FramePublisher
	var sat simulation.SatellitePublisher
	if pub != nil {
		frames, sat = pub, pub
	}

	sim := simulation.New(simCfg, newRand(cfg.Seed), frames, sat, logger, metrics)
	writeStations(ctx, cfg, sim, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, alwaysReady{}, logger,
		httpadapter.WithSnapshot(func() any { return sim.Snapshot() }))

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sim.Run(gctx) })

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	waitOrTimeout(shutdownCtx, g, logger)
	if pub != nil {
		if err := pub.Close(); err != nil {
			logger.Error("publisher close error", "error", err)
		}
	}
	observability.ShutdownTracing(shutdownCtx, shutdownTracing, logger)

	logger.Info("shutdown complete")
}

func simulationConfig(cfg *config.Config) (simulation.Config, error) {
	policy, err := sensor.ParsePolicy(cfg.FilterPolicy)
	if err != nil {
		return simulation.Config{}, err
	}
	sc := simulation.DefaultConfig()
	sc.Environment.Size = cfg.GridSize
	sc.Network.Count = cfg.SensorCount
	sc.Network.Radius = cfg.SensorRadius
	sc.Network.AberrationRate = cfg.AberrationRate
	sc.Params.Regrowth.Enabled = cfg.RegrowthEnabled
	sc.Params.Spontaneous.Enabled = cfg.SpontaneousIgnition
	sc.FilterPolicy = policy
	sc.FilterWindow = cfg.FilterWindow
	sc.Interval = cfg.StepInterval
	sc.SatelliteEvery = cfg.SatelliteEvery
	sc.IgniteX = cfg.IgniteX
	sc.IgniteY = cfg.IgniteY
	return sc, nil
}

// newRand seeds the simulation. Seed 0 picks a time-based seed.
func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return simulation.NewRand(seed)
}

// newPublisher connects the configured transport. A nil result means the
// simulation runs without publishing.
func newPublisher(ctx context.Context, cfg *config.Config, logger *slog.Logger) publisher {
	switch cfg.Transport {
	case config.TransportMQTT:
		clientID := cfg.MQTTClientID
		if clientID == "" {
			clientID = "wildfire-edge-" + uuid.NewString()
		}
		client, err := mqttadapter.Connect(ctx, cfg.MQTTBroker, clientID, cfg.ConnectMaxRetries, logger)
		if err != nil {
			logger.Error("mqtt unavailable, frames will not be published", "error", err)
			return nil
		}
		return mqttadapter.NewPublisher(client)
	default:
		return kafkaadapter.NewWriter(cfg, logger)
	}
}

// writeStations publishes the registry of simulated stations to the stations
// file and, when enabled, to MinIO.
func writeStations(ctx context.Context, cfg *config.Config, sim *simulation.Simulator, logger *slog.Logger) {
	all := sim.Stations()
	if err := stations.WriteFile(cfg.StationsFile, all); err != nil {
		logger.Error("failed to write stations file", "path", cfg.StationsFile, "error", err)
	} else {
		logger.Info("stations file written", "path", cfg.StationsFile, "count", len(all))
	}
	if !cfg.MinIOEnabled {
		return
	}
	store, err := stations.NewStore(minioConfig(cfg), logger)
	if err != nil {
		logger.Error("failed to create station store", "error", err)
		return
	}
	uploadCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := store.Upload(uploadCtx, all); err != nil {
		logger.Error("failed to upload stations", "error", err)
		return
	}
	logger.Info("stations uploaded", "bucket", cfg.MinIOBucket, "count", len(all))
}

func minioConfig(cfg *config.Config) stations.MinIOConfig {
	return stations.MinIOConfig{
		Endpoint:  cfg.MinIOEndpoint,
		AccessKey: cfg.MinIOAccessKey,
		SecretKey: cfg.MinIOSecretKey,
		Bucket:    cfg.MinIOBucket,
		UseSSL:    cfg.MinIOUseSSL,
	}
}

// waitOrTimeout joins the background loops, giving up at the shutdown
// deadline.
func waitOrTimeout(ctx context.Context, g *errgroup.Group, logger *slog.Logger) {
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("simulation error", "error", err)
		}
	case <-ctx.Done():
		logger.Warn("simulation did not stop before shutdown timeout")
	}
}

// alwaysReady reports the edge as ready once the HTTP server is up.
type alwaysReady struct{}

func (alwaysReady) CheckReadiness(context.Context) error { return nil }
