package broker

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	headerEventType = "event_type"
	headerEventID   = "event_id"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var (
	_ Publisher  = (*KafkaPublisher)(nil)
	_ Subscriber = (*KafkaSubscriber)(nil)
)

// KafkaPublisher writes messages to one topic, keyed for per-order ordering.
type KafkaPublisher struct {
	w kafkaWriter
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireAll,
	}}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, m Message) error {
	err := p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(m.Key),
		Value: m.Payload,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(m.Type)},
			{Key: headerEventID, Value: []byte(m.ID)},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "write kafka message %s", m.ID)
	}
	return nil
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// KafkaSubscriber consumes a topic as part of a consumer group.
type KafkaSubscriber struct {
	r kafkaReader
}

// NewKafkaSubscriber creates a subscriber for topic in consumer group groupID.
func NewKafkaSubscriber(brokers []string, topic, groupID string) *KafkaSubscriber {
	return &KafkaSubscriber{r: kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6,
	})}
}

// Subscribe implements Subscriber. Offsets are committed after the handler
// returns, whatever its result.
func (s *KafkaSubscriber) Subscribe(ctx context.Context, h Handler) error {
	lg := zctx.From(ctx)
	for {
		km, err := s.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch kafka message")
		}

		m := fromKafka(km)
		if err := h(ctx, m); err != nil {
			lg.Error("Handle message",
				zap.String("event_id", m.ID),
				zap.String("event_type", m.Type),
				zap.Int64("offset", km.Offset),
				zap.Error(err),
			)
		}
		if err := s.r.CommitMessages(ctx, km); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "commit kafka message")
		}
	}
}

// Close leaves the consumer group.
func (s *KafkaSubscriber) Close() error {
	return s.r.Close()
}

func fromKafka(km kafka.Message) Message {
	m := Message{Key: string(km.Key), Payload: km.Value}
	for _, h := range km.Headers {
		switch h.Key {
		case headerEventType:
			m.Type = string(h.Value)
		case headerEventID:
			m.ID = string(h.Value)
		}
	}
	return m
}
