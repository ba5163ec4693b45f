package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessageWriter struct {
	msgs []kafkago.Message
	err  error
}

func (f *fakeMessageWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeMessageWriter) Close() error { return nil }

func newFakeWriter() (*Writer, *fakeMessageWriter) {
	fake := &fakeMessageWriter{}
	return &Writer{
		writer:         fake,
		satelliteTopic: "sensors.satellite.view",
		riskMapTopic:   "maps.watch",
		logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, fake
}

func TestMapMessageToRawMessage(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("7"),
		Value:     []byte{0x00, 0x07},
		Topic:     "sensors.meteo.7.data",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("edge-1")},
		},
	}

	raw := mapMessageToRawMessage(msg)

	assert.Equal(t, []byte("7"), raw.Key)
	assert.Equal(t, []byte{0x00, 0x07}, raw.Value)
	assert.Equal(t, "sensors.meteo.7.data", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "edge-1", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestMatchTopics(t *testing.T) {
	re := regexp.MustCompile(`^sensors\.meteo\..+\.data$`)
	topics := []string{
		"sensors.meteo.2.data",
		"sensors.meteo.10.data",
		"sensors.meteo.2.data",
		"sensors.satellite.view",
		"maps.watch",
		"sensors.meteo..data",
	}

	assert.Equal(t, []string{"sensors.meteo.10.data", "sensors.meteo.2.data"}, matchTopics(re, topics))
}

func TestMaybeRefresh_KeepsReaderWhenUnchanged(t *testing.T) {
	r := &Reader{
		pattern:         regexp.MustCompile(`^a\..*$`),
		refreshInterval: time.Nanosecond,
		topics:          []string{"a.1"},
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		listTopics: func(context.Context) ([]string, error) {
			return []string{"a.1", "b.1"}, nil
		},
	}
	r.maybeRefresh(context.Background())
	assert.Equal(t, []string{"a.1"}, r.Topics())
}

func TestMaybeRefresh_DiscoveryErrorKeepsTopics(t *testing.T) {
	r := &Reader{
		pattern:         regexp.MustCompile(`^a\..*$`),
		refreshInterval: time.Nanosecond,
		topics:          []string{"a.1"},
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		listTopics: func(context.Context) ([]string, error) {
			return nil, errors.New("dial failed")
		},
	}
	r.maybeRefresh(context.Background())
	assert.Equal(t, []string{"a.1"}, r.Topics())
}

func TestFrameTopic(t *testing.T) {
	assert.Equal(t, "sensors.meteo.12.data", FrameTopic(12))
	assert.Regexp(t, `^sensors\.meteo\..+\.data$`, FrameTopic(1))
}

func TestWriter_PublishFrames(t *testing.T) {
	w, fake := newFakeWriter()

	err := w.PublishFrames(context.Background(), []domain.Frame{
		{DeviceID: 1, Payload: []byte{1}},
		{DeviceID: 12, Payload: []byte{2}},
	})
	require.NoError(t, err)

	require.Len(t, fake.msgs, 2)
	assert.Equal(t, "sensors.meteo.1.data", fake.msgs[0].Topic)
	assert.Equal(t, "sensors.meteo.12.data", fake.msgs[1].Topic)
	assert.Equal(t, []byte("12"), fake.msgs[1].Key)
	assert.Equal(t, []byte{2}, fake.msgs[1].Value)

	require.NoError(t, w.PublishFrames(context.Background(), nil))
	assert.Len(t, fake.msgs, 2)
}

func TestWriter_PublishFramesError(t *testing.T) {
	w, fake := newFakeWriter()
	fake.err = errors.New("leader not available")

	err := w.PublishFrames(context.Background(), []domain.Frame{{DeviceID: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestWriter_PublishSatellite(t *testing.T) {
	w, fake := newFakeWriter()
	at := time.Date(2025, time.July, 14, 10, 0, 0, 0, time.UTC)
	bbox := domain.BBox{MinLon: 7, MinLat: 43.5, MaxLon: 7.1, MaxLat: 43.6}

	require.NoError(t, w.PublishSatellite(context.Background(), domain.SatelliteEnvelope{Image: "aGk=", BBox: &bbox, Timestamp: at}))

	require.Len(t, fake.msgs, 1)
	msg := fake.msgs[0]
	assert.Equal(t, "sensors.satellite.view", msg.Topic)
	assert.JSONEq(t, `{"image":"aGk=","bbox":[7,43.5,7.1,43.6],"timestamp":"2025-07-14T10:00:00Z"}`, string(msg.Value))
	assert.Equal(t, "captured_at", msg.Headers[0].Key)
}

func TestRiskMapMessage(t *testing.T) {
	now := time.Date(2025, time.July, 14, 10, 0, 0, 0, time.UTC)
	speed, dir := 12.5, 90
	m := domain.RiskMap{
		ID:          "map-1",
		Timestamp:   now,
		CellSizeLat: 0.01,
		CellSizeLon: 0.02,
		Cells:       []domain.RiskCell{{Latitude: 43.5, Longitude: 7.0, Value: domain.Burning}},
		DataSources: domain.DataSources{MeteoStations: 3},
		WindSpeed:   &speed, WindDirection: &dir,
	}

	msg, err := riskMapMessage("maps.watch", m)
	require.NoError(t, err)

	assert.Equal(t, "maps.watch", msg.Topic)
	assert.Equal(t, []byte("map-1"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "published_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "map-1", decoded["id"])
	assert.Nil(t, decoded["data_sources"].(map[string]any)["satellite_age_seconds"])
	assert.InDelta(t, 2.0, decoded["cells"].([]any)[0].(map[string]any)["value"], 0)
	assert.InDelta(t, 90.0, decoded["wind_direction"], 0)
}
