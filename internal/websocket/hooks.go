package websocket

import (
	"log/slog"
	"sync"
	"time"
)

// ConnectionEventType distinguishes presence transitions.
type ConnectionEventType string

const (
	ConnectionOnline  ConnectionEventType = "online"
	ConnectionOffline ConnectionEventType = "offline"
)

// ConnectionEvent is passed to lifecycle hooks when a user becomes reachable
// or stops being reachable.
type ConnectionEvent struct {
	Type        ConnectionEventType `json:"type"`
	UserID      string              `json:"userId"`
	ClientID    string              `json:"clientId"`
	ConnectedAt time.Time           `json:"connectedAt"`
	Timestamp   time.Time           `json:"timestamp"`
}

// ConnectionHook observes presence transitions.
type ConnectionHook func(ConnectionEvent)

// ConnectionHooks holds the registered lifecycle observers.
type ConnectionHooks struct {
	mu      sync.RWMutex
	online  []ConnectionHook
	offline []ConnectionHook
	logger  *slog.Logger
}

func NewConnectionHooks(logger *slog.Logger) *ConnectionHooks {
	return &ConnectionHooks{logger: logger}
}

func (h *ConnectionHooks) AddOnlineHook(hook ConnectionHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.online = append(h.online, hook)
}

func (h *ConnectionHooks) AddOfflineHook(hook ConnectionHook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.offline = append(h.offline, hook)
}

// Trigger runs the hooks for event.Type in registration order on the calling
// goroutine. A panicking hook is logged and skipped.
func (h *ConnectionHooks) Trigger(event ConnectionEvent) {
	h.mu.RLock()
	var hooks []ConnectionHook
	switch event.Type {
	case ConnectionOnline:
		hooks = make([]ConnectionHook, len(h.online))
		copy(hooks, h.online)
	case ConnectionOffline:
		hooks = make([]ConnectionHook, len(h.offline))
		copy(hooks, h.offline)
	}
	h.mu.RUnlock()

	for _, hook := range hooks {
		h.run(hook, event)
	}
}

func (h *ConnectionHooks) run(hook ConnectionHook, event ConnectionEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("Connection hook panicked", "type", event.Type, "userID", event.UserID, "panic", r)
		}
	}()
	hook(event)
}

// hookQueue runs hooks on one goroutine in the order events were pushed.
// push never blocks on hook work.
type hookQueue struct {
	hooks *ConnectionHooks
	start sync.Once
	wake  chan struct{}

	mu      sync.Mutex
	pending []ConnectionEvent
}

func newHookQueue(hooks *ConnectionHooks) *hookQueue {
	return &hookQueue{hooks: hooks, wake: make(chan struct{}, 1)}
}

func (q *hookQueue) push(event ConnectionEvent) {
	q.start.Do(func() { go q.run() })

	q.mu.Lock()
	q.pending = append(q.pending, event)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *hookQueue) run() {
	for range q.wake {
		for {
			q.mu.Lock()
			batch := q.pending
			q.pending = nil
			q.mu.Unlock()
			if len(batch) == 0 {
				break
			}

			for _, event := range batch {
				q.hooks.Trigger(event)
			}
		}
	}
}
