// Package mqtt carries frames, satellite views and risk maps over an MQTT
// broker as an alternative to Kafka.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/wildfire-watch/internal/retry"
	paho "github.com/eclipse/paho.mqtt.golang"
)

// Topics used on the MQTT transport.
const (
	FrameSubscription = "sensors/meteo/+/data"
	SatelliteTopic    = "sensors/satellite/view"
	RiskMapTopic      = "maps/watch"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// FrameTopic returns the per-device frame topic.
func FrameTopic(deviceID uint16) string {
	return fmt.Sprintf("sensors/meteo/%d/data", deviceID)
}

// Client is the subset of paho.Client used by the adapters.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Unsubscribe(topics ...string) paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Connect dials broker, retrying with backoff up to maxRetries times.
func Connect(ctx context.Context, broker, clientID string, maxRetries int, logger *slog.Logger) (paho.Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			logger.Warn("mqtt connection lost", "broker", broker, "error", err)
		}).
		SetOnConnectHandler(func(paho.Client) {
			logger.Info("mqtt connected", "broker", broker, "client_id", clientID)
		})

	client := paho.NewClient(opts)
	err := retry.Do(ctx, retry.DefaultPolicy(maxRetries), logger, "mqtt connect", func(context.Context) error {
		return wait(client.Connect(), connectTimeout, "connect to broker")
	})
	if err != nil {
		return nil, fmt.Errorf("mqtt %s: %w", broker, err)
	}
	return client, nil
}

// wait blocks on token for at most timeout and returns its error.
func wait(token paho.Token, timeout time.Duration, what string) error {
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("%s: timeout after %s", what, timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}
