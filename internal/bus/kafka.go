package bus

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/IBM/sarama"

	"github.com/answergrid/answergrid/internal/pkg/errors"
	"github.com/answergrid/answergrid/internal/pkg/logger"
)

// KafkaBus is a Kafka-backed event bus using sarama.
type KafkaBus struct {
	producer sarama.SyncProducer
	consumer sarama.Consumer
	brokers  []string
	log      *logger.Logger

	mu           sync.Mutex
	handlers     map[string][]Handler
	consuming    map[string]bool
	consumerStop chan struct{}
	consumerWg   sync.WaitGroup
	closed       bool
}

// NewKafkaBus creates a Kafka-backed bus connected to the given brokers.
func NewKafkaBus(brokers []string, log *logger.Logger) (*KafkaBus, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Retry.Max = 3

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka producer", err)
	}

	consumer, err := sarama.NewConsumer(brokers, cfg)
	if err != nil {
		_ = producer.Close()
		return nil, errors.Wrap(errors.CodeUnavailable, "failed to create kafka consumer", err)
	}

	return &KafkaBus{
		producer:     producer,
		consumer:     consumer,
		brokers:      brokers,
		log:          log,
		handlers:     make(map[string][]Handler),
		consuming:    make(map[string]bool),
		consumerStop: make(chan struct{}),
	}, nil
}

// Publish sends an event to a Kafka topic. Events are keyed by event ID so
// retries of the same event land on the same partition.
func (b *KafkaBus) Publish(ctx context.Context, topic string, event Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}
	b.mu.Unlock()

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(errors.CodeInternal, "failed to marshal event", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(event.ID),
		Value: sarama.ByteEncoder(data),
	}
	if event.CorrelationID != "" {
		msg.Headers = append(msg.Headers, sarama.RecordHeader{
			Key:   []byte("correlation_id"),
			Value: []byte(event.CorrelationID),
		})
	}

	if _, _, err := b.producer.SendMessage(msg); err != nil {
		return errors.Wrap(errors.CodeUnavailable, "failed to publish event", err)
	}
	return nil
}

// Subscribe registers a handler for a topic and starts consuming it if not
// already consuming.
func (b *KafkaBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errors.New(errors.CodeUnavailable, "bus is closed")
	}

	b.handlers[topic] = append(b.handlers[topic], handler)

	if !b.consuming[topic] {
		b.consuming[topic] = true
		b.consumerWg.Add(1)
		go b.consumeTopic(topic)
	}
	return nil
}

// consumeTopic consumes all partitions of a topic from the newest offset and
// dispatches messages to registered handlers.
func (b *KafkaBus) consumeTopic(topic string) {
	defer b.consumerWg.Done()

	partitions, err := b.consumer.Partitions(topic)
	if err != nil {
		b.log.WithError(err).Error("failed to list partitions", "topic", topic)
		return
	}

	var wg sync.WaitGroup
	for _, partition := range partitions {
		pc, err := b.consumer.ConsumePartition(topic, partition, sarama.OffsetNewest)
		if err != nil {
			b.log.WithError(err).Error("failed to consume partition",
				"topic", topic, "partition", partition)
			continue
		}

		wg.Add(1)
		go func(pc sarama.PartitionConsumer) {
			defer wg.Done()
			defer pc.Close()
			for {
				select {
				case msg, ok := <-pc.Messages():
					if !ok {
						return
					}
					b.dispatch(topic, msg)
				case <-b.consumerStop:
					return
				}
			}
		}(pc)
	}
	wg.Wait()
}

// dispatch unmarshals a Kafka message and runs all handlers for the topic.
func (b *KafkaBus) dispatch(topic string, msg *sarama.ConsumerMessage) {
	var event Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		b.log.WithError(err).Error("failed to unmarshal event", "topic", topic)
		return
	}

	b.mu.Lock()
	handlers := make([]Handler, len(b.handlers[topic]))
	copy(handlers, b.handlers[topic])
	b.mu.Unlock()

	ctx := context.Background()
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.log.WithError(err).Error("event handler failed",
				"topic", topic, "event_id", event.ID)
		}
	}
}

// Close stops consumers and closes the producer and consumer connections.
func (b *KafkaBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.consumerStop)
	b.mu.Unlock()

	b.consumerWg.Wait()

	var firstErr error
	if err := b.producer.Close(); err != nil {
		firstErr = err
	}
	if err := b.consumer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return errors.Wrap(errors.CodeInternal, "failed to close kafka bus", firstErr)
	}
	return nil
}
