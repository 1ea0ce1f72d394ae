package pub

import (
	"context"
	"time"

	"main/internal/bus"
	"main/pkg/exception"

	"github.com/segmentio/kafka-go"
	"github.com/yanun0323/errors"
)

// kafkaWriter is the Writer surface used, split out so tests can stub it.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes rate events to a Kafka topic, keyed by symbol so
// per-symbol ordering survives partitioning.
type KafkaPublisher struct {
	writer kafkaWriter
}

// NewKafkaPublisher builds a publisher over the given brokers.
func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	if len(brokers) == 0 || topic == "" {
		return nil, exception.ErrInvalidArgument
	}
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			Async:        true,
		},
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event bus.Event) error {
	if p == nil {
		return exception.ErrNilInstance
	}
	body, err := encode(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Rate.Name),
		Value: body,
	}); err != nil {
		return errors.Wrap(err, "write kafka message").With("symbol", event.Rate.Name)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p == nil {
		return nil
	}
	return p.writer.Close()
}
