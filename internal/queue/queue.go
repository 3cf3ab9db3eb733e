// Package queue adapts message brokers to the at-least-once Source contract
// used by the ingestion loop. A received message stays invisible for the
// visibility timeout and is delivered again unless it is deleted first.
package queue

import (
	"context"
	"errors"
	"time"
)

const (
	DriverSQS    = "sqs"
	DriverRedis  = "redis"
	DriverNATS   = "nats"
	DriverMemory = "memory"
)

// ErrUnknownHandle is returned by Delete when the handle is stale or was
// never issued.
var ErrUnknownHandle = errors.New("unknown receipt handle")

// Message is one delivery. Handle acknowledges this particular delivery.
type Message struct {
	ID     string
	Body   []byte
	Handle string
}

// Source is a long-polling, visibility-timeout message source.
type Source interface {
	// Receive returns up to max messages, waiting at most wait for the
	// first one. An empty batch is not an error.
	Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error)
	// Delete acknowledges a delivery so it is not redelivered.
	Delete(ctx context.Context, handle string) error
}

// Publisher puts a message body on the queue.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Queue is a Source that can also publish.
type Queue interface {
	Source
	Publisher
	Close() error
}
