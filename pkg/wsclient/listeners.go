package wsclient

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Listener handles one event payload. A returned error is logged and does not
// stop delivery to the other listeners.
type Listener func(data json.RawMessage) error

type registration struct {
	id string
	fn Listener
}

// Listeners is the per-event callback table of a client. Registration order is
// the dispatch order.
type Listeners struct {
	mu     sync.RWMutex
	byName map[string][]registration
	logger *slog.Logger
}

func NewListeners(logger *slog.Logger) *Listeners {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listeners{byName: make(map[string][]registration), logger: logger}
}

// AddListener registers fn for event and returns its id. Passing an id that
// is already registered for the event replaces that listener in place.
func (l *Listeners) AddListener(event string, fn Listener, id ...string) string {
	listenerID := ""
	if len(id) > 0 {
		listenerID = id[0]
	}
	if listenerID == "" {
		listenerID = fmt.Sprintf("%s_%d_%s", event, time.Now().UnixMilli(), uuid.NewString())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	regs := l.byName[event]
	for i := range regs {
		if regs[i].id == listenerID {
			out := append([]registration(nil), regs...)
			out[i].fn = fn
			l.byName[event] = out
			return listenerID
		}
	}
	l.byName[event] = append(regs, registration{id: listenerID, fn: fn})
	return listenerID
}

// RemoveListener is a no-op when the id is not registered.
func (l *Listeners) RemoveListener(event, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	regs := l.byName[event]
	for i := range regs {
		if regs[i].id != id {
			continue
		}
		out := make([]registration, 0, len(regs)-1)
		out = append(out, regs[:i]...)
		out = append(out, regs[i+1:]...)
		if len(out) == 0 {
			delete(l.byName, event)
		} else {
			l.byName[event] = out
		}
		return
	}
}

// Dispatch calls every listener of event in registration order. The table is
// copy-on-write, so listeners may add or remove listeners while running.
func (l *Listeners) Dispatch(event string, data json.RawMessage) {
	l.mu.RLock()
	regs := l.byName[event]
	l.mu.RUnlock()

	for _, reg := range regs {
		l.invoke(event, reg, data)
	}
}

func (l *Listeners) invoke(event string, reg registration, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Listener panicked", "event", event, "listenerID", reg.id, "panic", r)
		}
	}()

	if err := reg.fn(data); err != nil {
		l.logger.Error("Listener failed", "event", event, "listenerID", reg.id, "error", err)
	}
}

func (l *Listeners) Clear() {
	l.mu.Lock()
	l.byName = make(map[string][]registration)
	l.mu.Unlock()
}

// Count returns how many listeners are registered for event.
func (l *Listeners) Count(event string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byName[event])
}
