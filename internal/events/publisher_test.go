package events

import (
	"encoding/json"
	"errors"
	"testing"

	"taskplanner/pkg/logger"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPublisher(t *testing.T) (*Publisher, *mocks.SyncProducer) {
	t.Helper()
	producer := mocks.NewSyncProducer(t, NewProducerConfig("test"))
	return NewPublisherWithProducer(producer, "realtime-events", logger.Discard()), producer
}

func TestPublisher_PublishToUser(t *testing.T) {
	pub, producer := newMockPublisher(t)

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		assert.Equal(t, "realtime-events", msg.Topic)

		key, err := msg.Key.Encode()
		require.NoError(t, err)
		assert.Equal(t, "user:u1", string(key))

		value, err := msg.Value.Encode()
		require.NoError(t, err)
		ev, err := Decode(value)
		require.NoError(t, err)
		assert.Equal(t, TargetUser, ev.Target)
		assert.Equal(t, "notification", ev.Name)
		assert.JSONEq(t, `{"title":"x"}`, string(ev.Data))
		return nil
	})

	require.NoError(t, pub.PublishToUser("u1", "notification", map[string]string{"title": "x"}))
	require.NoError(t, pub.Close())
}

func TestPublisher_RoomAndAll(t *testing.T) {
	pub, producer := newMockPublisher(t)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Room != "task:9" {
			return errors.New("unexpected room " + ev.Room)
		}
		return nil
	})
	producer.ExpectSendMessageAndSucceed()

	require.NoError(t, pub.PublishToRoom("task:9", "task:updated", map[string]string{"id": "9"}))
	require.NoError(t, pub.PublishToAll("task:deleted", nil))
	require.NoError(t, pub.Close())
}

func TestPublisher_Errors(t *testing.T) {
	pub, producer := newMockPublisher(t)

	err := pub.PublishToUser("", "notification", nil)
	assert.ErrorIs(t, err, ErrInvalidEvent)

	err = pub.PublishToAll("notification", make(chan int))
	assert.Error(t, err)

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	err = pub.PublishToAll("notification", nil)
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)

	require.NoError(t, pub.Close())
}
