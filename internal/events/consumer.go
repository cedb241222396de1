package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"taskplanner/internal/config"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Broker delivers routed events to live connections.
type Broker interface {
	SendToUser(userID, event string, payload any) bool
	SendToRoom(room, event string, payload any)
	Broadcast(event string, payload any)
}

// Consumer feeds domain events published by other services into the broker.
type Consumer struct {
	reader       MessageReader
	broker       Broker
	logger       *slog.Logger
	retryBackoff time.Duration
}

func NewConsumer(cfg config.KafkaConfig, broker Broker, logger *slog.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        500 * time.Millisecond,
		CommitInterval: 0,
		StartOffset:    kafka.LastOffset,
	})
	return NewConsumerWithReader(reader, broker, logger)
}

func NewConsumerWithReader(reader MessageReader, broker Broker, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		reader:       reader,
		broker:       broker,
		logger:       logger.With("component", "kafka-consumer"),
		retryBackoff: time.Second,
	}
}

// Run fetches, routes and commits records until ctx is cancelled. Records
// that cannot be decoded are logged and committed so they are not replayed.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Kafka consumer started")
	defer c.logger.Info("Kafka consumer stopped")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			c.logger.Warn("Failed to fetch message", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryBackoff):
			}
			continue
		}

		c.handle(msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("Failed to commit message", "partition", msg.Partition, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) handle(msg kafka.Message) {
	ev, err := Decode(msg.Value)
	if err != nil {
		c.logger.Warn("Skipping undecodable record",
			"partition", msg.Partition,
			"offset", msg.Offset,
			"error", err,
		)
		return
	}
	c.Route(ev)
}

// Route hands ev to the broker according to its target.
func (c *Consumer) Route(ev *Event) {
	var payload any = ev.Data
	if len(ev.Data) == 0 {
		payload = nil
	}

	switch ev.Target {
	case TargetUser:
		if !c.broker.SendToUser(ev.UserID, ev.Name, payload) {
			c.logger.Debug("User not connected, event dropped", "userID", ev.UserID, "event", ev.Name)
		}
	case TargetRoom:
		c.broker.SendToRoom(ev.Room, ev.Name, payload)
	case TargetAll:
		c.broker.Broadcast(ev.Name, payload)
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
