package domain

import (
	"context"
	"time"
)

// RawMessage represents an unprocessed message from a broker, regardless of
// transport.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// Frame is one packed sensor reading addressed to its device topic.
type Frame struct {
	DeviceID uint16
	Payload  []byte
}
