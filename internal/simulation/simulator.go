// Package simulation drives the edge world: environment, fire automaton and
// sensor network advance together one step at a time.
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/automaton"
	"github.com/couchcryptid/wildfire-watch/internal/codec"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/environment"
	"github.com/couchcryptid/wildfire-watch/internal/observability"
	"github.com/couchcryptid/wildfire-watch/internal/satellite"
	"github.com/couchcryptid/wildfire-watch/internal/sensor"
	"github.com/jonboulle/clockwork"
)

// FramePublisher sends the frames produced by one step.
type FramePublisher interface {
	PublishFrames(ctx context.Context, frames []domain.Frame) error
}

// SatellitePublisher sends a rendered satellite view.
type SatellitePublisher interface {
	PublishSatellite(ctx context.Context, env domain.SatelliteEnvelope) error
}

// Config holds the edge simulation settings.
type Config struct {
	Environment  environment.Config
	Network      sensor.NetworkConfig
	Params       automaton.Params
	FilterPolicy sensor.Policy
	FilterWindow int

	Interval       time.Duration
	SatelliteEvery int // steps between satellite views; 0 disables them
	SatelliteScale int // rendered pixels per cell

	// IgniteX and IgniteY place the initial fire; negative values mean the
	// grid centre.
	IgniteX, IgniteY int
	ForestArea       string
}

// DefaultConfig returns the stock edge settings.
func DefaultConfig() Config {
	return Config{
		Environment:    environment.DefaultConfig(),
		Network:        sensor.DefaultNetworkConfig(),
		Params:         automaton.EdgeParams(),
		FilterPolicy:   sensor.Median,
		FilterWindow:   6,
		Interval:       time.Second,
		SatelliteEvery: 5,
		SatelliteScale: 4,
		IgniteX:        -1,
		IgniteY:        -1,
		ForestArea:     "esterel",
	}
}

// StepResult summarizes one simulation step.
type StepResult struct {
	Step     int
	Stats    automaton.StepStats
	Counts   automaton.Counts
	Readings []domain.Reading
	Frames   []domain.Frame
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock sets the clock used for reading timestamps and the step ticker.
func WithClock(c clockwork.Clock) Option { return func(s *Simulator) { s.clock = c } }

// Simulator owns the edge world. Every mutation and every read happens
// under mu.
type Simulator struct {
	mu       sync.Mutex
	cfg      Config
	env      *environment.Environment
	fire     *automaton.Automaton
	network  *sensor.Network
	filter   *sensor.Filter
	step     int
	readings []domain.Reading

	frames    FramePublisher
	satellite SatellitePublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
}

// New builds a simulator seeded from rng and ignites the initial fire.
// Either publisher may be nil.
func New(cfg Config, rng *rand.Rand, frames FramePublisher, sat SatellitePublisher, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Simulator {
	env := environment.New(cfg.Environment, rng)
	size := env.Size()
	s := &Simulator{
		cfg:       cfg,
		env:       env,
		fire:      automaton.New(size, size, cfg.Params, rng),
		network:   sensor.NewNetwork(cfg.Network, size, rng),
		filter:    sensor.NewFilter(cfg.FilterPolicy, cfg.FilterWindow),
		frames:    frames,
		satellite: sat,
		logger:    logger,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}

	x, y := cfg.IgniteX, cfg.IgniteY
	if x < 0 {
		x = size / 2
	}
	if y < 0 {
		y = size / 2
	}
	if !s.fire.Ignite(x, y) {
		logger.Warn("initial ignition outside grid", "x", x, "y", y, "size", size)
	}
	return s
}

// Stations returns registry metadata for every simulated device.
func (s *Simulator) Stations() []domain.Station {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.network.Stations(s.env, s.cfg.ForestArea)
}

// Step advances the world once: wind drift, fire spread, heat feedback,
// then sampling, filtering and packing.
func (s *Simulator) Step(now time.Time) StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.env.EvolveWind()
	stats := s.fire.Step(s.env.Fields())
	s.env.ApplyHeatFeedback(s.fire.State())
	s.step++

	raw := s.network.Sample(s.env, now)
	readings := make([]domain.Reading, 0, len(raw))
	frames := make([]domain.Frame, 0, len(raw))
	for _, r := range raw {
		f := s.filter.Apply(r)
		readings = append(readings, f)
		frames = append(frames, domain.Frame{DeviceID: f.DeviceID, Payload: codec.Encode(f)})
	}
	s.readings = readings

	return StepResult{
		Step:     s.step,
		Stats:    stats,
		Counts:   s.fire.Counts(),
		Readings: readings,
		Frames:   frames,
	}
}

// SatelliteView renders the current fire state as a satellite envelope.
func (s *Simulator) SatelliteView(now time.Time) (domain.SatelliteEnvelope, error) {
	s.mu.Lock()
	img := satellite.Render(s.fire.State(), max(s.cfg.SatelliteScale, 1))
	bbox := s.env.Mapping().BBox
	s.mu.Unlock()

	env, err := satellite.EncodeEnvelope(img, bbox, now)
	if err != nil {
		return domain.SatelliteEnvelope{}, fmt.Errorf("render satellite view: %w", err)
	}
	return env, nil
}

// Run steps the simulation every Interval until ctx is cancelled. Publish
// failures are logged and the loop keeps going.
func (s *Simulator) Run(ctx context.Context) error {
	s.logger.Info("simulation started",
		"interval", s.cfg.Interval,
		"sensors", s.cfg.Network.Count,
		"grid_size", s.env.Size(),
	)
	ticker := s.clock.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulation stopping", "reason", ctx.Err())
			return nil
		case now := <-ticker.Chan():
			s.tick(ctx, now)
		}
	}
}

func (s *Simulator) tick(ctx context.Context, now time.Time) {
	res := s.Step(now)
	s.metrics.SimulationSteps.Inc()
	s.metrics.FireCells.WithLabelValues("burning").Set(float64(res.Counts.Burning))
	s.metrics.FireCells.WithLabelValues("burnt").Set(float64(res.Counts.Burnt))
	s.logger.Debug("simulation step",
		"step", res.Step,
		"ignited", res.Stats.Ignited,
		"burning", res.Counts.Burning,
		"burnt", res.Counts.Burnt,
	)

	if s.frames != nil {
		if err := s.frames.PublishFrames(ctx, res.Frames); err != nil {
			s.metrics.FramePublishErrors.Inc()
			s.logger.Warn("publish frames failed", "step", res.Step, "error", err)
		} else {
			s.metrics.FramesPublished.Add(float64(len(res.Frames)))
		}
	}

	if s.satellite == nil || s.cfg.SatelliteEvery <= 0 || res.Step%s.cfg.SatelliteEvery != 0 {
		return
	}
	view, err := s.SatelliteView(now)
	if err != nil {
		s.logger.Error("satellite render failed", "step", res.Step, "error", err)
		return
	}
	if err := s.satellite.PublishSatellite(ctx, view); err != nil {
		s.logger.Warn("publish satellite view failed", "step", res.Step, "error", err)
		return
	}
	s.metrics.SatelliteViews.Inc()
}
