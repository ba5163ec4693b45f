package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/couchcryptid/wildfire-watch/internal/domain"
)

// Publisher publishes to an MQTT broker. It implements
// simulation.FramePublisher, simulation.SatellitePublisher and
// fusion.RiskPublisher.
type Publisher struct {
	client Client
}

func NewPublisher(client Client) *Publisher {
	return &Publisher{client: client}
}

// PublishFrames sends each frame to its device topic at QoS 0. Every frame
// is attempted; the errors are joined.
func (p *Publisher) PublishFrames(ctx context.Context, frames []domain.Frame) error {
	var errs []error
	for _, f := range frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.publish(FrameTopic(f.DeviceID), 0, false, f.Payload); err != nil {
			errs = append(errs, fmt.Errorf("device %d: %w", f.DeviceID, err))
		}
	}
	return errors.Join(errs...)
}

// PublishSatellite sends a satellite envelope at QoS 1.
func (p *Publisher) PublishSatellite(_ context.Context, env domain.SatelliteEnvelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("serialize satellite envelope: %w", err)
	}
	return p.publish(SatelliteTopic, 1, false, payload)
}

// PublishRiskMap sends a risk map at QoS 1, retained so late subscribers
// see the current map.
func (p *Publisher) PublishRiskMap(_ context.Context, m domain.RiskMap) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("serialize risk map: %w", err)
	}
	return p.publish(RiskMapTopic, 1, true, payload)
}

func (p *Publisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	return wait(p.client.Publish(topic, qos, retained, payload), publishTimeout, "publish "+topic)
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}
