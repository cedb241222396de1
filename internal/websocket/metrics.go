package websocket

import (
	"sync"
	"time"
)

// MetricType groups delivery metrics by the operation that produced them.
type MetricType string

const (
	MetricTargeted   MetricType = "targeted"
	MetricFanout     MetricType = "fanout"
	MetricConnection MetricType = "connection"
	MetricHandshake  MetricType = "handshake"
)

// DeliveryMetric is one recorded broker or lifecycle operation.
type DeliveryMetric struct {
	Type         MetricType    `json:"type"`
	Operation    string        `json:"operation"`
	Event        string        `json:"event,omitempty"`
	Target       string        `json:"target,omitempty"`
	Duration     time.Duration `json:"duration"`
	SuccessCount int           `json:"successCount"`
	FailureCount int           `json:"failureCount"`
	FrameSize    int           `json:"frameSize,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

// DeliverySnapshot is the aggregated view exposed through the stats endpoint.
type DeliverySnapshot struct {
	TargetedSends     int     `json:"targetedSends"`
	Unreachable       int     `json:"unreachable"`
	Fanouts           int     `json:"fanouts"`
	FramesQueued      int     `json:"framesQueued"`
	FramesDropped     int     `json:"framesDropped"`
	EncodeFailures    int     `json:"encodeFailures"`
	ConnectionsOpened int     `json:"connectionsOpened"`
	ConnectionsClosed int     `json:"connectionsClosed"`
	RejectedHandshake int     `json:"rejectedHandshakes"`
	PeakFanout        int     `json:"peakFanout"`
	AvgFanoutTime     string  `json:"avgFanoutTime"`
	SuccessRate       float64 `json:"successRate"`
}

// DeliveryMetrics keeps a bounded history of recent operations plus running
// totals since start or the last Reset.
type DeliveryMetrics struct {
	historyMu   sync.RWMutex
	history     []DeliveryMetric
	historyPos  int
	historySize int

	aggMu          sync.RWMutex
	targeted       int
	unreachable    int
	fanouts        int
	fanoutTime     time.Duration
	queued         int
	dropped        int
	encodeFailures int
	opened         int
	closed         int
	rejected       int
	peakFanout     int
}

func NewDeliveryMetrics(historySize int) *DeliveryMetrics {
	if historySize <= 0 {
		historySize = 100
	}
	return &DeliveryMetrics{
		history:     make([]DeliveryMetric, historySize),
		historySize: historySize,
	}
}

// Record stores m in the history and folds it into the totals.
func (dm *DeliveryMetrics) Record(m DeliveryMetric) {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	dm.historyMu.Lock()
	dm.history[dm.historyPos] = m
	dm.historyPos = (dm.historyPos + 1) % dm.historySize
	dm.historyMu.Unlock()

	dm.aggMu.Lock()
	switch {
	case m.Operation == "encode_failed":
		dm.encodeFailures++
	case m.Type == MetricTargeted:
		dm.targeted++
		if m.Operation == "unreachable" {
			dm.unreachable++
		}
		dm.queued += m.SuccessCount
		dm.dropped += m.FailureCount
	case m.Type == MetricFanout:
		dm.fanouts++
		dm.fanoutTime += m.Duration
		dm.queued += m.SuccessCount
		dm.dropped += m.FailureCount
		if n := m.SuccessCount + m.FailureCount; n > dm.peakFanout {
			dm.peakFanout = n
		}
	case m.Type == MetricConnection:
		switch m.Operation {
		case "open":
			dm.opened++
		case "close":
			dm.closed++
		}
	case m.Type == MetricHandshake:
		dm.rejected += m.FailureCount
	}
	dm.aggMu.Unlock()
}

func (dm *DeliveryMetrics) RecordTargeted(event, userID string, delivered bool, frameSize int) {
	m := DeliveryMetric{
		Type:      MetricTargeted,
		Operation: "send_to_user",
		Event:     event,
		Target:    userID,
		FrameSize: frameSize,
	}
	if delivered {
		m.SuccessCount = 1
	} else {
		m.FailureCount = 1
	}
	dm.Record(m)
}

func (dm *DeliveryMetrics) RecordUnreachable(event, userID string) {
	dm.Record(DeliveryMetric{
		Type:      MetricTargeted,
		Operation: "unreachable",
		Event:     event,
		Target:    userID,
	})
}

func (dm *DeliveryMetrics) RecordFanout(operation, event, target string, duration time.Duration, success, failure, frameSize int) {
	dm.Record(DeliveryMetric{
		Type:         MetricFanout,
		Operation:    operation,
		Event:        event,
		Target:       target,
		Duration:     duration,
		SuccessCount: success,
		FailureCount: failure,
		FrameSize:    frameSize,
	})
}

func (dm *DeliveryMetrics) RecordEncodeFailure(event string) {
	dm.Record(DeliveryMetric{
		Type:      MetricTargeted,
		Operation: "encode_failed",
		Event:     event,
	})
}

func (dm *DeliveryMetrics) RecordConnection(operation, userID string) {
	dm.Record(DeliveryMetric{
		Type:      MetricConnection,
		Operation: operation,
		Target:    userID,
	})
}

func (dm *DeliveryMetrics) RecordRejectedHandshake(reason string) {
	dm.Record(DeliveryMetric{
		Type:         MetricHandshake,
		Operation:    "rejected",
		Target:       reason,
		FailureCount: 1,
	})
}

// History returns the recorded metrics oldest first.
func (dm *DeliveryMetrics) History() []DeliveryMetric {
	dm.historyMu.RLock()
	defer dm.historyMu.RUnlock()

	history := make([]DeliveryMetric, 0, dm.historySize)
	for i := 0; i < dm.historySize; i++ {
		pos := (dm.historyPos + i) % dm.historySize
		if !dm.history[pos].Timestamp.IsZero() {
			history = append(history, dm.history[pos])
		}
	}
	return history
}

// ByType returns recorded metrics of type t, oldest first.
func (dm *DeliveryMetrics) ByType(t MetricType) []DeliveryMetric {
	var out []DeliveryMetric
	for _, m := range dm.History() {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

func (dm *DeliveryMetrics) Snapshot() DeliverySnapshot {
	dm.aggMu.RLock()
	defer dm.aggMu.RUnlock()

	avg := time.Duration(0)
	if dm.fanouts > 0 {
		avg = dm.fanoutTime / time.Duration(dm.fanouts)
	}
	rate := float64(100)
	if total := dm.queued + dm.dropped; total > 0 {
		rate = float64(dm.queued) / float64(total) * 100
	}

	return DeliverySnapshot{
		TargetedSends:     dm.targeted,
		Unreachable:       dm.unreachable,
		Fanouts:           dm.fanouts,
		FramesQueued:      dm.queued,
		FramesDropped:     dm.dropped,
		EncodeFailures:    dm.encodeFailures,
		ConnectionsOpened: dm.opened,
		ConnectionsClosed: dm.closed,
		RejectedHandshake: dm.rejected,
		PeakFanout:        dm.peakFanout,
		AvgFanoutTime:     avg.String(),
		SuccessRate:       rate,
	}
}

// Reset clears the running totals. History is kept.
func (dm *DeliveryMetrics) Reset() {
	dm.aggMu.Lock()
	defer dm.aggMu.Unlock()

	dm.targeted = 0
	dm.unreachable = 0
	dm.fanouts = 0
	dm.fanoutTime = 0
	dm.queued = 0
	dm.dropped = 0
	dm.encodeFailures = 0
	dm.opened = 0
	dm.closed = 0
	dm.rejected = 0
	dm.peakFanout = 0
}
