package broker

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const publishTimeout = 3 * time.Second

type amqpPublishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

var (
	_ Publisher  = (*AMQPPublisher)(nil)
	_ Subscriber = (*AMQPSubscriber)(nil)
)

// AMQPPublisher publishes persistent JSON messages to a topic exchange using
// the message type as routing key.
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       amqpPublishChannel
	exchange string
}

// DialAMQPPublisher connects to url and declares exchange.
func DialAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Publish implements Publisher.
func (p *AMQPPublisher) Publish(ctx context.Context, m Message) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := p.ch.PublishWithContext(ctx, p.exchange, m.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    m.ID,
		Type:         m.Type,
		Headers:      amqp.Table{"key": m.Key},
		Timestamp:    time.Now().UTC(),
		Body:         m.Payload,
	})
	if err != nil {
		return errors.Wrapf(err, "publish %s to %s", m.ID, p.exchange)
	}
	return nil
}

// Close closes the channel and the connection.
func (p *AMQPPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		return errors.Wrap(err, "close channel")
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// AMQPSubscriber consumes a durable queue bound to the exchange.
type AMQPSubscriber struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	deliveries func() (<-chan amqp.Delivery, error)
}

// DialAMQPSubscriber connects to url and binds queue to exchange for
// routingKey.
func DialAMQPSubscriber(url, exchange, queue, routingKey string) (*AMQPSubscriber, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, errors.Wrap(err, "dial rabbitmq")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}
	if err := declareExchange(ch, exchange); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "declare queue %s", queue)
	}
	if err := ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		_ = conn.Close()
		return nil, errors.Wrapf(err, "bind queue %s", queue)
	}

	s := &AMQPSubscriber{conn: conn, ch: ch, queue: queue}
	s.deliveries = func() (<-chan amqp.Delivery, error) {
		return ch.Consume(queue, "", false, false, false, false, nil)
	}
	return s, nil
}

// Subscribe implements Subscriber. Messages are acked after a successful
// handler run and dropped otherwise.
func (s *AMQPSubscriber) Subscribe(ctx context.Context, h Handler) error {
	lg := zctx.From(ctx).With(zap.String("queue", s.queue))
	msgs, err := s.deliveries()
	if err != nil {
		return errors.Wrap(err, "consume")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			m := Message{ID: d.MessageId, Type: d.Type, Payload: d.Body}
			if k, ok := d.Headers["key"].(string); ok {
				m.Key = k
			}
			if err := h(ctx, m); err != nil {
				lg.Error("Handle message",
					zap.String("event_id", m.ID),
					zap.String("event_type", m.Type),
					zap.Error(err),
				)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Close closes the channel and the connection.
func (s *AMQPSubscriber) Close() error {
	if s.ch != nil {
		if err := s.ch.Close(); err != nil {
			return errors.Wrap(err, "close channel")
		}
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

func declareExchange(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return errors.Wrapf(err, "declare exchange %s", exchange)
	}
	return nil
}
