package events

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
)

// NewProducerConfig is the sarama configuration used for the real-time topic.
func NewProducerConfig(clientID string) *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = clientID
	config.Producer.MaxMessageBytes = 1000000
	return config
}

// Publisher writes routed events for the real-time service to consume.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger
}

func NewPublisher(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewProducerConfig("taskplanner-api"))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewPublisherWithProducer(producer, topic, logger), nil
}

func NewPublisherWithProducer(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		producer: producer,
		topic:    topic,
		logger:   logger.With("component", "kafka-publisher"),
	}
}

// Publish validates and sends ev, keyed by its destination.
func (p *Publisher) Publish(ev *Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Key()),
		Value: sarama.ByteEncoder(value),
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", ev.Name, err)
	}

	p.logger.Debug("Event published", "event", ev.Name, "key", ev.Key(), "partition", partition, "offset", offset)
	return nil
}

func (p *Publisher) PublishToUser(userID, event string, data any) error {
	return p.publish(&Event{Target: TargetUser, UserID: userID, Name: event}, data)
}

func (p *Publisher) PublishToRoom(room, event string, data any) error {
	return p.publish(&Event{Target: TargetRoom, Room: room, Name: event}, data)
}

func (p *Publisher) PublishToAll(event string, data any) error {
	return p.publish(&Event{Target: TargetAll, Name: event}, data)
}

func (p *Publisher) publish(ev *Event, data any) error {
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("failed to encode %s payload: %w", ev.Name, err)
		}
		ev.Data = raw
	}
	return p.Publish(ev)
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
