package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/config"
	"github.com/couchcryptid/wildfire-watch/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
)

// FrameTopic returns the per-device frame topic.
func FrameTopic(deviceID uint16) string {
	return fmt.Sprintf("sensors.meteo.%d.data", deviceID)
}

// messageWriter is the subset of *kafkago.Writer the Writer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer produces frames, satellite views and risk maps. The topic is set
// per message. It implements simulation.FramePublisher,
// simulation.SatellitePublisher and fusion.RiskPublisher.
type Writer struct {
	writer         messageWriter
	satelliteTopic string
	riskMapTopic   string
	logger         *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topics.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return &Writer{
		writer:         w,
		satelliteTopic: cfg.KafkaSatelliteTopic,
		riskMapTopic:   cfg.KafkaRiskMapTopic,
		logger:         logger.With("component", "kafka-writer"),
	}
}

// PublishFrames sends each frame to its device topic in a single
// WriteMessages call.
func (w *Writer) PublishFrames(ctx context.Context, frames []domain.Frame) error {
	if len(frames) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(frames))
	for i, f := range frames {
		msgs[i] = frameMessage(f)
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d frames: %w", len(msgs), err)
	}
	return nil
}

// PublishSatellite sends a satellite envelope.
func (w *Writer) PublishSatellite(ctx context.Context, env domain.SatelliteEnvelope) error {
	msg, err := satelliteMessage(w.satelliteTopic, env)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write satellite view: %w", err)
	}
	return nil
}

// PublishRiskMap sends a fused risk map.
func (w *Writer) PublishRiskMap(ctx context.Context, m domain.RiskMap) error {
	msg, err := riskMapMessage(w.riskMapTopic, m)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write risk map: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func frameMessage(f domain.Frame) kafkago.Message {
	return kafkago.Message{
		Topic: FrameTopic(f.DeviceID),
		Key:   []byte(strconv.Itoa(int(f.DeviceID))),
		Value: f.Payload,
	}
}

// satelliteMessage marshals a satellite envelope into a Kafka message.
func satelliteMessage(topic string, env domain.SatelliteEnvelope) (kafkago.Message, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize satellite envelope: %w", err)
	}
	return kafkago.Message{
		Topic: topic,
		Value: data,
		Headers: []kafkago.Header{
			{Key: "captured_at", Value: []byte(env.Timestamp.Format(time.RFC3339))},
		},
	}, nil
}

// riskMapMessage marshals a RiskMap into a Kafka message keyed by map id.
func riskMapMessage(topic string, m domain.RiskMap) (kafkago.Message, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize risk map: %w", err)
	}
	return kafkago.Message{
		Topic: topic,
		Key:   []byte(m.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "map_id", Value: []byte(m.ID)},
			{Key: "published_at", Value: []byte(m.Timestamp.Format(time.RFC3339))},
		},
	}, nil
}
