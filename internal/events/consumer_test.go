package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"taskplanner/pkg/logger"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) SendToUser(userID, event string, payload any) bool {
	return m.Called(userID, event, payload).Bool(0)
}

func (m *mockBroker) SendToRoom(room, event string, payload any) {
	m.Called(room, event, payload)
}

func (m *mockBroker) Broadcast(event string, payload any) {
	m.Called(event, payload)
}

// fakeReader serves queued messages and then blocks until ctx is cancelled.
type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	fetchErrs []error
	committed []kafka.Message
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		r.mu.Unlock()
		return kafka.Message{}, err
	}
	if len(r.messages) > 0 {
		msg := r.messages[0]
		r.messages = r.messages[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	offsets := make([]int64, len(r.committed))
	for i, m := range r.committed {
		offsets[i] = m.Offset
	}
	return offsets
}

func record(t *testing.T, offset int64, ev any) kafka.Message {
	t.Helper()
	value, err := json.Marshal(ev)
	require.NoError(t, err)
	return kafka.Message{Offset: offset, Value: value}
}

func TestConsumer_RoutesAndCommits(t *testing.T) {
	reader := &fakeReader{}
	reader.messages = []kafka.Message{
		record(t, 1, Event{Target: TargetUser, UserID: "u1", Name: "notification", Data: json.RawMessage(`{"title":"x"}`)}),
		record(t, 2, Event{Target: TargetRoom, Room: "task:7", Name: "task:updated", Data: json.RawMessage(`{"id":"7"}`)}),
		{Offset: 3, Value: []byte("not json")},
		record(t, 4, Event{Target: "nowhere", Name: "task:updated"}),
		record(t, 5, Event{Target: TargetAll, Name: "task:deleted"}),
	}

	broker := new(mockBroker)
	broker.On("SendToUser", "u1", "notification", json.RawMessage(`{"title":"x"}`)).Return(false).Once()
	broker.On("SendToRoom", "task:7", "task:updated", json.RawMessage(`{"id":"7"}`)).Once()
	broker.On("Broadcast", "task:deleted", nil).Once()

	consumer := NewConsumerWithReader(reader, broker, logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	require.Eventually(t, func() bool { return len(reader.committedOffsets()) == 5 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, reader.committedOffsets())
	broker.AssertExpectations(t)

	require.NoError(t, consumer.Close())
	assert.True(t, reader.closed)
}

func TestConsumer_RetriesFetchErrors(t *testing.T) {
	reader := &fakeReader{fetchErrs: []error{errors.New("broker not available")}}
	reader.messages = []kafka.Message{
		record(t, 10, Event{Target: TargetAll, Name: "notification"}),
	}

	broker := new(mockBroker)
	broker.On("Broadcast", "notification", nil).Once()

	consumer := NewConsumerWithReader(reader, broker, logger.Discard())
	consumer.retryBackoff = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go consumer.Run(ctx)

	require.Eventually(t, func() bool { return len(reader.committedOffsets()) == 1 }, time.Second, 5*time.Millisecond)
	broker.AssertExpectations(t)
}

func TestEvent_Validate(t *testing.T) {
	tests := []struct {
		name    string
		event   Event
		wantErr bool
		key     string
	}{
		{name: "user", event: Event{Target: TargetUser, UserID: "u1", Name: "x"}, key: "user:u1"},
		{name: "room", event: Event{Target: TargetRoom, Room: "task:1", Name: "x"}, key: "room:task:1"},
		{name: "all", event: Event{Target: TargetAll, Name: "x"}, key: "all"},
		{name: "user without id", event: Event{Target: TargetUser, Name: "x"}, wantErr: true},
		{name: "room without name", event: Event{Target: TargetRoom, Name: "x"}, wantErr: true},
		{name: "missing event", event: Event{Target: TargetAll}, wantErr: true},
		{name: "unknown target", event: Event{Target: "group", Name: "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.key, tt.event.Key())
		})
	}
}
