package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/codec"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	"github.com/couchcryptid/wildfire-watch/internal/grid"
	"github.com/couchcryptid/wildfire-watch/internal/observability"
	"github.com/couchcryptid/wildfire-watch/internal/pipeline"
	"github.com/couchcryptid/wildfire-watch/internal/satellite"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockExtractor struct {
	batches [][]domain.RawMessage
	errs    []error
	index   atomic.Int64
}

func (m *mockExtractor) ExtractBatch(ctx context.Context, _ int) ([]domain.RawMessage, error) {
	i := int(m.index.Add(1) - 1)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i >= len(m.batches) {
		// block until context cancelled to simulate waiting for messages
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return m.batches[i], nil
}

type passthroughTransformer struct {
	err error
}

func (m *passthroughTransformer) Transform(_ context.Context, raw domain.RawMessage) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return string(raw.Value), nil
}

type mockLoader struct {
	mu     sync.Mutex
	loaded []string
	err    error
	calls  int
}

func (m *mockLoader) LoadBatch(_ context.Context, items []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, items...)
	return nil
}

type stubLookup map[uint16]domain.Station

func (s stubLookup) LookupStation(_ context.Context, id uint16) (domain.Station, error) {
	st, ok := s[id]
	if !ok {
		return domain.Station{}, errors.New("not found")
	}
	return st, nil
}

type recordingSink struct {
	observations []domain.Observation
	views        int
	bboxes       []*domain.BBox
}

func (r *recordingSink) Ingest(obs domain.Observation) { r.observations = append(r.observations, obs) }

func (r *recordingSink) IngestSatellite(_ *grid.Grid[domain.CellState], bbox *domain.BBox) {
	r.views++
	r.bboxes = append(r.bboxes, bbox)
}

func newTestMetrics() *observability.Metrics {
	return observability.NewMetricsForTesting()
}

func fastRetries(maxFailures int) []pipeline.Option {
	return []pipeline.Option{
		pipeline.WithMaxFailures(maxFailures),
		pipeline.WithBackoff(time.Millisecond, 2*time.Millisecond),
	}
}

// --- pipeline tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	var commits atomic.Int32
	commit := func(context.Context) error { commits.Add(1); return nil }
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		{Value: []byte("a"), Commit: commit},
		{Value: []byte("b"), Commit: commit},
	}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New[string]("frames", ext, &passthroughTransformer{}, ldr, slog.Default(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	if diff := cmp.Diff([]string{"a", "b"}, ldr.loaded); diff != "" {
		t.Fatalf("loaded mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int32(2), commits.Load())
	assert.True(t, p.Ready())
	require.NoError(t, p.CheckReadiness(ctx))
	assert.InDelta(t, 2.0, testutil.ToFloat64(metrics.MessagesLoaded.WithLabelValues("frames")), 0)
	assert.InDelta(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning.WithLabelValues("frames")), 0)
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ext := &mockExtractor{} // no batches, blocks
	ldr := &mockLoader{}

	p := pipeline.New[string]("frames", ext, &passthroughTransformer{}, ldr, slog.Default(), newTestMetrics(), 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded)
	assert.Error(t, p.CheckReadiness(ctx))
}

func TestPipeline_Run_TransformErrorDropsAndCommits(t *testing.T) {
	committed := false
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		{Value: []byte("x"), Topic: "sensors.meteo.1.data", Commit: func(context.Context) error {
			committed = true
			return nil
		}},
	}}}
	ldr := &mockLoader{}
	metrics := newTestMetrics()

	p := pipeline.New[string]("frames", ext, &passthroughTransformer{err: errors.New("bad frame")}, ldr, slog.Default(), metrics, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.loaded)
	assert.Equal(t, 0, ldr.calls)
	assert.True(t, committed)
	assert.False(t, p.Ready())
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.TransformErrors.WithLabelValues("frames")), 0)
}

func TestPipeline_Run_LoadFailuresMakeFeedUnavailable(t *testing.T) {
	batch := []domain.RawMessage{{Value: []byte("a")}}
	ext := &mockExtractor{batches: [][]domain.RawMessage{batch, batch, batch, batch, batch}}
	ldr := &mockLoader{err: errors.New("engine closed")}
	metrics := newTestMetrics()

	p := pipeline.New[string]("frames", ext, &passthroughTransformer{}, ldr, slog.Default(), metrics, 10, fastRetries(2)...)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := p.Run(ctx)
	require.ErrorIs(t, err, pipeline.ErrFeedUnavailable)
	assert.Equal(t, 3, ldr.calls)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.FeedUnavailable.WithLabelValues("frames")), 0)
}

func TestPipeline_Run_ExtractRecoveryResetsFailures(t *testing.T) {
	boom := errors.New("broker down")
	ext := &mockExtractor{
		errs: []error{boom, boom, nil, boom, boom},
		batches: [][]domain.RawMessage{
			nil, nil,
			{{Value: []byte("a")}},
			nil, nil,
			{{Value: []byte("b")}},
		},
	}
	ldr := &mockLoader{}

	p := pipeline.New[string]("frames", ext, &passthroughTransformer{}, ldr, slog.Default(), newTestMetrics(), 10, fastRetries(2)...)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, []string{"a", "b"}, ldr.loaded)
}

func TestPipeline_Run_ExtractFailuresExceedCeiling(t *testing.T) {
	boom := errors.New("broker down")
	ext := &mockExtractor{errs: []error{boom, boom, boom, boom}}

	p := pipeline.New[string]("satellite", ext, &passthroughTransformer{}, &mockLoader{}, slog.Default(), newTestMetrics(), 10, fastRetries(3)...)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := p.Run(ctx)
	require.ErrorIs(t, err, pipeline.ErrFeedUnavailable)
	assert.Contains(t, err.Error(), "satellite")
	assert.Equal(t, int64(4), ext.index.Load())
}

// --- transformer tests ---

func validReading(id uint16) domain.Reading {
	return domain.Reading{
		DeviceID:       id,
		Timestamp:      time.Date(2025, time.July, 14, 10, 0, 0, 0, time.UTC),
		BatteryVoltage: 3.7,
		Temperature:    25,
		AirHumidity:    40,
		SoilHumidity:   30,
		AirPressure:    1013.2,
		Rain:           0.4,
		WindSpeed:      12.2,
		WindDirection:  135.5,
	}
}

func TestFrameTransformer_RegisteredStation(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2025, time.July, 14, 10, 0, 1, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	lookup := stubLookup{4: {Location: domain.Location{Latitude: 43.55, Longitude: 7.05, Altitude: 240}, ForestArea: "esterel"}}
	tfm := pipeline.NewFrameTransformer(lookup, slog.Default())

	obs, err := tfm.Transform(context.Background(), domain.RawMessage{Value: codec.Encode(validReading(4))})
	require.NoError(t, err)

	assert.Equal(t, uint16(4), obs.Reading.DeviceID)
	assert.InDelta(t, 25.0, obs.Reading.Temperature, 1e-9)
	assert.InDelta(t, 1013.2, obs.Reading.AirPressure, 1e-6)
	assert.True(t, obs.Station.Located)
	assert.Equal(t, uint16(4), obs.Station.DeviceID)
	assert.Equal(t, "esterel", obs.Station.ForestArea)
	assert.Equal(t, fakeClock.Now(), obs.ProcessedAt)
}

func TestFrameTransformer_UnknownStationGetsPlaceholder(t *testing.T) {
	tfm := pipeline.NewFrameTransformer(stubLookup{}, slog.Default())

	obs, err := tfm.Transform(context.Background(), domain.RawMessage{Value: codec.Encode(validReading(9))})
	require.NoError(t, err)

	assert.False(t, obs.Station.Located)
	assert.Equal(t, domain.UnknownForestArea, obs.Station.ForestArea)
	assert.Equal(t, domain.Location{}, obs.Station.Location)
}

func TestFrameTransformer_Errors(t *testing.T) {
	tfm := pipeline.NewFrameTransformer(nil, slog.Default())

	_, err := tfm.Transform(context.Background(), domain.RawMessage{Value: []byte{1, 2, 3}})
	require.ErrorIs(t, err, codec.ErrFrameSize)

	bad := validReading(2)
	bad.AirHumidity = 255
	_, err = tfm.Transform(context.Background(), domain.RawMessage{Value: codec.Encode(bad)})
	require.ErrorIs(t, err, domain.ErrOutOfRange)
	assert.Contains(t, err.Error(), "device 2")
}

func TestSatelliteTransformer_Transform(t *testing.T) {
	state := grid.New[domain.CellState](8, 8)
	state.Set(2, 5, domain.Burning)
	bbox := domain.BBox{MinLon: 7.0, MinLat: 43.5, MaxLon: 7.1, MaxLat: 43.6}
	env, err := satellite.EncodeEnvelope(satellite.Render(state, 4), bbox, time.Now())
	require.NoError(t, err)
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	view, err := pipeline.NewSatelliteTransformer(8).Transform(context.Background(), domain.RawMessage{Value: payload})
	require.NoError(t, err)

	require.NotNil(t, view.BBox)
	assert.Equal(t, bbox, *view.BBox)
	assert.Equal(t, domain.Burning, view.Classes.At(2, 5))
	assert.Equal(t, 1, view.Classes.Count(func(s domain.CellState) bool { return s != domain.Vegetation }))
}

func TestSatelliteTransformer_Errors(t *testing.T) {
	tfm := pipeline.NewSatelliteTransformer(8)

	_, err := tfm.Transform(context.Background(), domain.RawMessage{Value: []byte("not json")})
	require.Error(t, err)

	_, err = tfm.Transform(context.Background(), domain.RawMessage{Value: []byte(`{"image":"@@@","timestamp":"2025-07-14T10:00:00Z"}`)})
	require.Error(t, err)

	_, err = tfm.Transform(context.Background(), domain.RawMessage{Value: []byte(`{"image":"","bbox":[1,1,0,0],"timestamp":"2025-07-14T10:00:00Z"}`)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid bbox")
}

// --- loader tests ---

func TestLoaders_ForwardToSink(t *testing.T) {
	sink := &recordingSink{}
	obs := []domain.Observation{{Reading: validReading(1)}, {Reading: validReading(2)}}

	require.NoError(t, pipeline.NewObservationLoader(sink).LoadBatch(context.Background(), obs))
	require.NoError(t, pipeline.NewSatelliteLoader(sink).LoadBatch(context.Background(), []pipeline.SatelliteView{
		{Classes: grid.New[domain.CellState](2, 2)},
	}))

	require.Len(t, sink.observations, 2)
	assert.Equal(t, uint16(2), sink.observations[1].Reading.DeviceID)
	assert.Equal(t, 1, sink.views)
	assert.Nil(t, sink.bboxes[0])
}

func TestPipeline_FramesIntoSink(t *testing.T) {
	sink := &recordingSink{}
	ext := &mockExtractor{batches: [][]domain.RawMessage{{
		{Value: codec.Encode(validReading(1))},
		{Value: []byte("short")},
		{Value: codec.Encode(validReading(3))},
	}}}

	p := pipeline.New[domain.Observation]("frames", ext,
		pipeline.NewFrameTransformer(nil, slog.Default()),
		pipeline.NewObservationLoader(sink),
		slog.Default(), newTestMetrics(), 10)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))
	require.Len(t, sink.observations, 2)
	assert.Equal(t, uint16(1), sink.observations[0].Reading.DeviceID)
	assert.Equal(t, uint16(3), sink.observations[1].Reading.DeviceID)
}
