// Command fog consumes station frames and satellite views, fuses them into a
// fire-risk map and publishes the map on a fixed throttle.
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

	httpadapter "github.com/couchcryptid/wildfire-watch/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/wildfire-watch/internal/adapter/kafka"
	mqttadapter "github.com/couchcryptid/wildfire-watch/internal/adapter/mqtt"
	"github.com/couchcryptid/wildfire-watch/internal/adapter/stations"
	"github.com/couchcryptid/wildfire-watch/internal/config"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/fusion"
	"github.com/couchcryptid/wildfire-watch/internal/observability"
	"github.com/couchcryptid/wildfire-watch/internal/pipeline"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// source is a batch extractor that can be closed.
type source interface {
	pipeline.BatchExtractor
	Close() error
}

// transport bundles the feeds and the risk map publisher of one broker.
// Any member may be nil when the broker could not be reached.
type transport struct {
	frames    source
	satellite source
	publisher fusion.RiskPublisher
	closers   []func() error
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

	lookup := stationLookup(ctx, cfg, metrics, logger)
	tr := connect(ctx, cfg, logger)

	var opts []fusion.Option
	if cfg.Seed != 0 {
		opts = append(opts, fusion.WithRand(rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))))
	}
	engine := fusion.New(fusionConfig(cfg), tr.publisher, logger, metrics, opts...)

	var ready readiness
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx, cfg.CycleInterval) })

	if tr.frames != nil {
		p := pipeline.New[domain.Observation]("frames", tr.frames,
			pipeline.NewFrameTransformer(lookup, logger),
			pipeline.NewObservationLoader(engine),
			logger, metrics, cfg.BatchSize,
			pipeline.WithMaxFailures(cfg.ConnectMaxRetries))
		ready = append(ready, p)
		g.Go(func() error { return runFeed(gctx, p, logger) })
	}
	if tr.satellite != nil {
		p := pipeline.New[pipeline.SatelliteView]("satellite", tr.satellite,
			pipeline.NewSatelliteTransformer(cfg.FusionGridSize),
			pipeline.NewSatelliteLoader(engine),
			logger, metrics, cfg.BatchSize,
			pipeline.WithMaxFailures(cfg.ConnectMaxRetries))
		g.Go(func() error { return runFeed(gctx, p, logger) })
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, ready, logger,
		httpadapter.WithRiskMap(engine.LatestRiskMap))

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()
	select {
	case err := <-done:
		if err != nil {
			logger.Error("background loop error", "error", err)
		}
	case <-shutdownCtx.Done():
		logger.Warn("background loops did not stop before shutdown timeout")
	}

	for _, c := range tr.closers {
		if err := c(); err != nil {
			logger.Error("transport close error", "error", err)
		}
	}
	observability.ShutdownTracing(shutdownCtx, shutdownTracing, logger)

	logger.Info("shutdown complete")
}

func fusionConfig(cfg *config.Config) fusion.Config {
	fc := fusion.DefaultConfig()
	fc.GridSize = cfg.FusionGridSize
	fc.ForecastSteps = cfg.ForecastSteps
	fc.FireThreshold = cfg.FireThreshold
	fc.FreshnessWindow = cfg.FreshnessWindow
	fc.PublishInterval = cfg.PublishInterval
	return fc
}

// runFeed runs one ingest pipeline. A feed that gives up leaves the rest of
// the process running on the data already received.
func runFeed[T any](ctx context.Context, p *pipeline.Pipeline[T], logger *slog.Logger) error {
	err := p.Run(ctx)
	if errors.Is(err, pipeline.ErrFeedUnavailable) {
		logger.Error("feed unavailable, continuing without it", "error", err)
		return nil
	}
	return err
}

// stationLookup resolves devices from MinIO when enabled, else from the
// stations file. Unknown devices fall back to placeholder stations.
func stationLookup(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) domain.StationLookup {
	if cfg.MinIOEnabled {
		store, err := stations.NewStore(stations.MinIOConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			Bucket:    cfg.MinIOBucket,
			UseSSL:    cfg.MinIOUseSSL,
		}, logger)
		if err == nil {
			logger.Info("station registry: minio", "endpoint", cfg.MinIOEndpoint, "cache_size", cfg.StationCacheSize)
			return stations.NewCachedLookup(store, cfg.StationCacheSize, metrics)
		}
		logger.Error("station store unavailable, falling back to file", "error", err)
	}

	reg, err := stations.LoadFile(cfg.StationsFile)
	if err != nil {
		logger.Warn("stations file unavailable, all devices will use placeholders", "path", cfg.StationsFile, "error", err)
		return stations.NewRegistry(nil)
	}
	logger.Info("station registry: file", "path", cfg.StationsFile, "count", reg.Len())
	return reg
}

// connect opens the configured broker. Failures leave the affected members
// of the transport nil.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) transport {
	var tr transport
	switch cfg.Transport {
	case config.TransportMQTT:
		clientID := cfg.MQTTClientID
		if clientID == "" {
			clientID = "wildfire-fog-" + uuid.NewString()
		}
		client, err := mqttadapter.Connect(ctx, cfg.MQTTBroker, clientID, cfg.ConnectMaxRetries, logger)
		if err != nil {
			logger.Error("mqtt unavailable, running without feeds", "error", err)
			return tr
		}
		pub := mqttadapter.NewPublisher(client)
		tr.publisher = pub
		if sub, err := mqttadapter.Subscribe(client, mqttadapter.FrameSubscription, cfg.BatchSize*4, cfg.BatchFlushInterval, logger); err != nil {
			logger.Error("frame subscription failed", "error", err)
		} else {
			tr.frames = sub
			tr.closers = append(tr.closers, sub.Close)
		}
		if sub, err := mqttadapter.Subscribe(client, mqttadapter.SatelliteTopic, cfg.BatchSize, cfg.BatchFlushInterval, logger); err != nil {
			logger.Error("satellite subscription failed", "error", err)
		} else {
			tr.satellite = sub
			tr.closers = append(tr.closers, sub.Close)
		}
		tr.closers = append(tr.closers, pub.Close)
	default:
		writer := kafkaadapter.NewWriter(cfg, logger)
		tr.publisher = writer

		frames, err := kafkaadapter.NewPatternReader(ctx, cfg, cfg.KafkaFrameTopicPattern, logger)
		if err != nil {
			logger.Error("frame topics unavailable, running without frames", "error", err)
		} else {
			tr.frames = frames
			tr.closers = append(tr.closers, frames.Close)
		}
		sat := kafkaadapter.NewReader(cfg, cfg.KafkaSatelliteTopic, logger)
		tr.satellite = sat
		tr.closers = append(tr.closers, sat.Close, writer.Close)
	}
	return tr
}

// readiness is ready when every frame pipeline has loaded a message.
type readiness []interface{ CheckReadiness(context.Context) error }

func (r readiness) CheckReadiness(ctx context.Context) error {
	if len(r) == 0 {
		return errors.New("no frame feed")
	}
	for _, c := range r {
		if err := c.CheckReadiness(ctx); err != nil {
			return err
		}
	}
	return nil
}
