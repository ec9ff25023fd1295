// Package broker moves events between the storefront and its background
// consumers over Kafka or RabbitMQ.
package broker

import (
	"context"
	"io"
)

// Message is one event on the wire. Payload is JSON.
type Message struct {
	ID      string
	Type    string
	Key     string
	Payload []byte
}

// Publisher sends messages to the broker.
type Publisher interface {
	io.Closer
	Publish(ctx context.Context, m Message) error
}

// Handler processes a received message. A returned error is logged and the
// message is not redelivered.
type Handler func(ctx context.Context, m Message) error

// Subscriber delivers messages to a Handler.
type Subscriber interface {
	io.Closer
	// Subscribe blocks, handling messages until ctx is done.
	Subscribe(ctx context.Context, h Handler) error
}

// Discard is a Publisher that drops every message.
type Discard struct{}

// Publish implements Publisher.
func (Discard) Publish(context.Context, Message) error { return nil }

// Close implements io.Closer.
func (Discard) Close() error { return nil }
