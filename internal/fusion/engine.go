package fusion

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/automaton"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/grid"
	"github.com/couchcryptid/wildfire-watch/internal/observability"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/couchcryptid/wildfire-watch/internal/fusion"

// RiskPublisher sends a fused risk map downstream.
type RiskPublisher interface {
	PublishRiskMap(ctx context.Context, m domain.RiskMap) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for arrival stamps, satellite
// freshness and publish throttling.
func WithClock(c clockwork.Clock) Option { return func(e *Engine) { e.clock = c } }

// WithRand sets the random source used by the forecast.
func WithRand(r automaton.Rand) Option { return func(e *Engine) { e.rng = r } }

// WithTracer overrides the global tracer.
func WithTracer(t trace.Tracer) Option { return func(e *Engine) { e.tracer = t } }

// Engine runs the fusion cycle over the shared State.
type Engine struct {
	cfg       Config
	publisher RiskPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics
	clock     clockwork.Clock
	rng       automaton.Rand
	tracer    trace.Tracer

	cycleMu   sync.Mutex // serializes cycles and guards rng
	publishMu sync.Mutex // serializes the throttle check and send
	state     *State
}

// New creates an Engine. A nil publisher computes maps without sending them.
func New(cfg Config, publisher RiskPublisher, logger *slog.Logger, metrics *observability.Metrics, opts ...Option) *Engine {
	e := &Engine{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
		clock:     clockwork.NewRealClock(),
		state:     newState(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed))
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer(tracerName)
	}
	return e
}

// Ingest records an observation, replacing the device's previous one.
func (e *Engine) Ingest(obs domain.Observation) {
	n := e.state.putDevice(DeviceRecord{
		Reading:    obs.Reading,
		Station:    obs.Station,
		ReceivedAt: e.clock.Now(),
	})
	e.metrics.KnownDevices.Set(float64(n))
}

// IngestSatellite records a classified satellite view. bbox may be nil when
// the view covers the current fusion extent.
func (e *Engine) IngestSatellite(classes *grid.Grid[domain.CellState], bbox *domain.BBox) {
	v := &satelliteView{classes: classes.Clone(), receivedAt: e.clock.Now()}
	if bbox != nil {
		b := *bbox
		v.bbox = &b
	}
	e.state.putSatellite(v)
}

// Run executes a cycle every interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) error {
	e.logger.Info("fusion engine started", "interval", interval, "grid_size", e.cfg.GridSize)
	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("fusion engine stopping", "reason", ctx.Err())
			return nil
		case <-ticker.Chan():
			if err := e.Cycle(ctx); err != nil && ctx.Err() == nil {
				e.logger.Warn("fusion cycle publish failed, retrying next cycle", "error", err)
			}
		}
	}
}

// Cycle interpolates, readjusts against satellite truth, forecasts,
// combines and publishes (subject to the throttle).
func (e *Engine) Cycle(ctx context.Context) error {
	e.cycleMu.Lock()
	defer e.cycleMu.Unlock()

	ctx, span := e.tracer.Start(ctx, "fusion.cycle")
	defer span.End()
	start := time.Now()

	now := e.clock.Now()
	devices, latest, applied := e.state.snapshot()

	truth := applied
	fresh := latest != nil && now.Sub(latest.receivedAt) <= e.cfg.FreshnessWindow
	if fresh {
		truth = latest
	}

	field := Interpolate(e.cfg, devices, satelliteExtent(latest, applied))
	truthGrid := project(truth, field.Mapping)
	seed := seedGrid(e.cfg, truthGrid, devices, field.Mapping)
	mask := automaton.Forecast(e.cfg.Params, field.Fields, seed, e.cfg.ForecastSteps, e.rng)
	display := combine(truthGrid, mask)

	var wind *windSummary
	if field.Interpolated {
		wind = summarizeWind(field.Fields)
	}
	e.state.commit(display, field.Mapping, truth, wind)

	atRisk, burning, burnt := census(display)
	e.metrics.FusionCycles.Inc()
	e.metrics.FusionCycleDuration.Observe(time.Since(start).Seconds())
	e.metrics.RiskCells.WithLabelValues("at_risk").Set(float64(atRisk))
	e.metrics.RiskCells.WithLabelValues("burning").Set(float64(burning))
	e.metrics.RiskCells.WithLabelValues("burnt").Set(float64(burnt))

	span.SetAttributes(
		attribute.Int("fusion.devices", len(devices)),
		attribute.Bool("fusion.interpolated", field.Interpolated),
		attribute.Bool("fusion.satellite_fresh", fresh),
		attribute.Int("fusion.at_risk", atRisk),
		attribute.Int("fusion.burning", burning),
	)
	e.logger.Debug("fusion cycle complete",
		"devices", len(devices),
		"interpolated", field.Interpolated,
		"satellite_fresh", fresh,
		"at_risk", atRisk,
		"burning", burning,
		"burnt", burnt,
	)

	if _, err := e.Publish(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return err
	}
	return nil
}

// Display returns a copy of the latest fused grid and its mapping. ok is
// false before the first cycle.
func (e *Engine) Display() (display *grid.Grid[domain.CellState], m domain.Mapping, ok bool) {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	if !e.state.computed {
		return nil, domain.Mapping{}, false
	}
	return e.state.display.Clone(), e.state.mapping, true
}

// KnownDevices returns how many devices have reported.
func (e *Engine) KnownDevices() int {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	return len(e.state.devices)
}

// satelliteExtent is the bbox of the latest view, stale or not, falling back
// to the applied view's.
func satelliteExtent(latest, applied *satelliteView) *domain.BBox {
	for _, v := range []*satelliteView{latest, applied} {
		if v != nil && v.bbox != nil {
			return v.bbox
		}
	}
	return nil
}

// project resamples a satellite view onto m by geographic position. Cells
// outside the view's extent stay vegetation.
func project(v *satelliteView, m domain.Mapping) *grid.Grid[domain.CellState] {
	out := grid.New[domain.CellState](m.W, m.H)
	if v == nil {
		return out
	}
	vb := m.BBox
	if v.bbox != nil {
		vb = *v.bbox
	}
	vm := domain.Mapping{BBox: vb, W: v.classes.W, H: v.classes.H}
	for y := 0; y < m.H; y++ {
		for x := 0; x < m.W; x++ {
			lat, lon := m.CellToGeo(x, y)
			if !vb.Contains(lat, lon) {
				continue
			}
			sx, sy := vm.GeoToCell(lat, lon)
			out.Set(x, y, v.classes.At(sx, sy))
		}
	}
	return out
}

// seedGrid starts the forecast from satellite fire cells plus a square of
// burning cells around every located device at or above the fire threshold.
func seedGrid(cfg Config, truth *grid.Grid[domain.CellState], devices []DeviceRecord, m domain.Mapping) *grid.Grid[domain.CellState] {
	seed := grid.New[domain.CellState](truth.W, truth.H)
	sc, tc := seed.Cells(), truth.Cells()
	for i, s := range tc {
		if s.IsFire() {
			sc[i] = s
		}
	}
	r := cfg.SeedRadius
	for _, d := range devices {
		loc := d.Station.Location
		if !d.Station.Located || d.Reading.Temperature < cfg.FireThreshold || !m.BBox.Contains(loc.Latitude, loc.Longitude) {
			continue
		}
		cx, cy := m.GeoToCell(loc.Latitude, loc.Longitude)
		for y := cy - r; y <= cy+r; y++ {
			for x := cx - r; x <= cx+r; x++ {
				if seed.InBounds(x, y) && seed.At(x, y) == domain.Vegetation {
					seed.Set(x, y, domain.Burning)
				}
			}
		}
	}
	return seed
}

// combine overlays satellite fire cells on the forecast: satellite
// BURNING/BURNT wins, otherwise a forecast ignition marks AT_RISK.
func combine(truth *grid.Grid[domain.CellState], mask *grid.Grid[bool]) *grid.Grid[domain.CellState] {
	out := grid.New[domain.CellState](truth.W, truth.H)
	oc, tc, mc := out.Cells(), truth.Cells(), mask.Cells()
	for i := range oc {
		switch {
		case tc[i].IsFire():
			oc[i] = tc[i]
		case mc[i]:
			oc[i] = domain.AtRisk
		}
	}
	return out
}

func census(g *grid.Grid[domain.CellState]) (atRisk, burning, burnt int) {
	for _, s := range g.Cells() {
		switch s {
		case domain.AtRisk:
			atRisk++
		case domain.Burning:
			burning++
		case domain.Burnt:
			burnt++
		}
	}
	return atRisk, burning, burnt
}

// summarizeWind returns the mean speed and the circular mean direction of
// the field.
func summarizeWind(f automaton.Fields) *windSummary {
	speeds := f.WindSpeed.Cells()
	var sum, sinSum, cosSum float64
	for i, s := range speeds {
		sum += s
		rad := f.WindDirection.Cells()[i] * math.Pi / 180
		sinSum += math.Sin(rad)
		cosSum += math.Cos(rad)
	}
	dir := 0.0
	if math.Abs(sinSum) > 1e-9 || math.Abs(cosSum) > 1e-9 {
		dir = math.Mod(math.Atan2(sinSum, cosSum)*180/math.Pi+360, 360)
	}
	d := int(math.Round(dir)) % 360
	return &windSummary{
		speed:     math.Round(sum/float64(len(speeds))*10) / 10,
		direction: d,
	}
}
