package app

import (
	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/broker"
)

// newPublisher returns the outbox publisher for cfg.Broker. With no broker
// configured events are marked sent and dropped.
func newPublisher(cfg EventsConfig) (broker.Publisher, error) {
	switch cfg.Broker {
	case BrokerKafka:
		return broker.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic), nil
	case BrokerAMQP:
		p, err := broker.DialAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return nil, errors.Wrap(err, "dial amqp publisher")
		}
		return p, nil
	case BrokerNone, "":
		return broker.Discard{}, nil
	default:
		return nil, errors.Errorf("unknown event broker %q", cfg.Broker)
	}
}

func newSubscriber(cfg EventsConfig) (broker.Subscriber, error) {
	switch cfg.Broker {
	case BrokerKafka:
		return broker.NewKafkaSubscriber(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroup), nil
	case BrokerAMQP:
		s, err := broker.DialAMQPSubscriber(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, cfg.RoutingKey)
		if err != nil {
			return nil, errors.Wrap(err, "dial amqp subscriber")
		}
		return s, nil
	default:
		return nil, errors.Errorf("notifier needs a kafka or amqp broker, got %q", cfg.Broker)
	}
}
