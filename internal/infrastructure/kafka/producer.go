// Package kafka relays domain events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	domoutbox "github.com/Zhima-Mochi/guestshop/internal/domain/outbox"
	"github.com/Zhima-Mochi/guestshop/internal/observability"
	"github.com/Zhima-Mochi/guestshop/internal/observability/logctx"
)

const (
	DefaultTopic = "orders.events"
	HeaderEvent  = "event"
)

type Config struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// NewSaramaConfig returns the producer settings used for event relay.
// Sync producers require Return.Successes.
func NewSaramaConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	if clientID != "" {
		config.ClientID = clientID
	}
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Producer.Retry.Max = 5
	config.Producer.Retry.Backoff = 200 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	return config
}

// Producer implements outbox.Sink on a sarama SyncProducer. Keyed events are
// partitioned by key so all events of one order stay ordered.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	log      observability.Logger
}

func NewProducer(cfg Config, logger observability.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	p, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg.ClientID))
	if err != nil {
		return nil, fmt.Errorf("kafka: start producer: %w", err)
	}
	return NewProducerWith(p, cfg.Topic, logger), nil
}

// NewProducerWith wraps an existing sarama producer.
func NewProducerWith(p sarama.SyncProducer, topic string, logger observability.Logger) *Producer {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Producer{
		producer: p,
		topic:    topic,
		log:      logger.With(observability.F("component", "kafka_producer"), observability.F("topic", topic)),
	}
}

func (p *Producer) Topic() string { return p.topic }

func (p *Producer) Send(ctx context.Context, e domoutbox.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("kafka: encode %s: %w", e.EventName(), err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(HeaderEvent), Value: []byte(e.EventName())},
		},
	}
	if k, ok := e.(domoutbox.Keyed); ok && k.Key() != "" {
		msg.Key = sarama.StringEncoder(k.Key())
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("kafka: send %s: %w", e.EventName(), err)
	}
	logctx.FromOr(ctx, p.log).Debug("event_sent",
		observability.F("event", e.EventName()),
		observability.F("partition", partition),
		observability.F("offset", offset),
	)
	return nil
}

func (p *Producer) Close() error {
	return p.producer.Close()
}
