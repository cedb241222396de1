package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliveryMetrics_HistoryWrapsOldestFirst(t *testing.T) {
	m := NewDeliveryMetrics(3)
	for _, user := range []string{"a", "b", "c", "d"} {
		m.RecordUnreachable("notification", user)
	}

	history := m.History()
	require.Len(t, history, 3)
	assert.Equal(t, "b", history[0].Target)
	assert.Equal(t, "d", history[2].Target)
}

func TestDeliveryMetrics_Snapshot(t *testing.T) {
	m := NewDeliveryMetrics(10)
	m.RecordTargeted("task:created", "u1", true, 40)
	m.RecordTargeted("task:created", "u2", false, 40)
	m.RecordUnreachable("task:created", "u3")
	m.RecordFanout("broadcast", "notification", "*", 2*time.Millisecond, 3, 1, 80)
	m.RecordEncodeFailure("task:created")
	m.RecordConnection("open", "u1")
	m.RecordConnection("close", "u1")
	m.RecordRejectedHandshake("Unauthenticated")

	snap := m.Snapshot()
	assert.Equal(t, 3, snap.TargetedSends)
	assert.Equal(t, 1, snap.Unreachable)
	assert.Equal(t, 1, snap.Fanouts)
	assert.Equal(t, 4, snap.FramesQueued)
	assert.Equal(t, 2, snap.FramesDropped)
	assert.Equal(t, 1, snap.EncodeFailures)
	assert.Equal(t, 1, snap.ConnectionsOpened)
	assert.Equal(t, 1, snap.ConnectionsClosed)
	assert.Equal(t, 1, snap.RejectedHandshake)
	assert.Equal(t, 4, snap.PeakFanout)
	assert.InDelta(t, 66.66, snap.SuccessRate, 0.1)

	m.Reset()
	assert.Equal(t, DeliverySnapshot{AvgFanoutTime: "0s", SuccessRate: 100}, m.Snapshot())
	assert.Len(t, m.History(), 8)
}

func TestDeliveryMetrics_ByType(t *testing.T) {
	m := NewDeliveryMetrics(10)
	m.RecordConnection("open", "u1")
	m.RecordRejectedHandshake("AccountDisabled")
	m.RecordConnection("close", "u1")

	conns := m.ByType(MetricConnection)
	require.Len(t, conns, 2)
	assert.Equal(t, "open", conns[0].Operation)
	assert.Equal(t, "close", conns[1].Operation)
	assert.Empty(t, m.ByType(MetricFanout))
}
