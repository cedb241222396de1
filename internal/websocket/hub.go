package websocket

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"taskplanner/internal/config"

	"github.com/google/uuid"
)

const DefaultDisconnectReason = "Desconectado por el servidor"

// Stats is the operator view of the hub.
type Stats struct {
	ConnectedUsers int `json:"connectedUsers"`
	TotalSockets   int `json:"totalSockets"`
	Rooms          int `json:"rooms"`
}

// ExtendedStats adds delivery counters and the most recent operations to Stats.
type ExtendedStats struct {
	Stats
	Delivery DeliverySnapshot `json:"delivery"`
	Recent   []DeliveryMetric `json:"recent"`
}

const recentDeliveries = 20

// Hub routes events to connections. It owns the registry of reachable users
// and the room membership map.
type Hub struct {
	cfg      config.WebSocketConfig
	registry *Registry
	rooms    *Rooms
	metrics  *DeliveryMetrics
	hooks    *ConnectionHooks
	events   *hookQueue
	logger   *slog.Logger

	// presenceMu orders registry transitions with the presence events they
	// emit. It only guards map updates; hooks run on the hook queue.
	presenceMu sync.Mutex

	socketsMu sync.Mutex
	sockets   map[*Client]struct{}

	shutdown atomic.Bool
}

func NewHub(cfg config.WebSocketConfig, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = 256
	}
	logger = logger.With("component", "websocket")

	hooks := NewConnectionHooks(logger)
	return &Hub{
		cfg:      cfg,
		registry: NewRegistry(),
		rooms:    NewRooms(),
		metrics:  NewDeliveryMetrics(200),
		hooks:    hooks,
		events:   newHookQueue(hooks),
		logger:   logger,
		sockets:  make(map[*Client]struct{}),
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) Rooms() *Rooms {
	return h.rooms
}

func (h *Hub) Metrics() *DeliveryMetrics {
	return h.metrics
}

// OnConnect registers a hook run when a user becomes reachable. Hooks run on
// a single goroutine, in the order the transitions happened.
func (h *Hub) OnConnect(hook ConnectionHook) {
	h.hooks.AddOnlineHook(hook)
}

// OnDisconnect registers a hook run when a user is no longer reachable.
func (h *Hub) OnDisconnect(hook ConnectionHook) {
	h.hooks.AddOfflineHook(hook)
}

// attach makes c reachable: personal room first, then the registry entry. A
// handle it supersedes leaves the personal room so room and targeted sends
// reach the same connection.
func (h *Hub) attach(c *Client) {
	userID := c.UserID()
	room := UserRoom(userID)

	h.socketsMu.Lock()
	h.sockets[c] = struct{}{}
	h.socketsMu.Unlock()

	h.presenceMu.Lock()
	h.rooms.Join(room, c)
	prev, superseded := h.registry.Lookup(userID)
	h.registry.Register(userID, c)
	if superseded && prev != c {
		h.rooms.Leave(room, prev)
	}
	h.events.push(ConnectionEvent{
		Type:        ConnectionOnline,
		UserID:      userID,
		ClientID:    c.ID(),
		ConnectedAt: c.ConnectedAt(),
		Timestamp:   time.Now(),
	})
	h.presenceMu.Unlock()

	h.metrics.RecordConnection("open", userID)
	h.logger.Info("Client registered", "clientID", c.ID(), "userID", userID, "connectedUsers", h.registry.Count())
}

// detach removes every trace of c. Safe to call more than once.
func (h *Hub) detach(c *Client) {
	c.detachOnce.Do(func() {
		h.presenceMu.Lock()
		removed := h.registry.Unregister(c)
		offline := !h.registry.IsConnected(c.UserID())
		if offline {
			h.events.push(ConnectionEvent{
				Type:        ConnectionOffline,
				UserID:      c.UserID(),
				ClientID:    c.ID(),
				ConnectedAt: c.ConnectedAt(),
				Timestamp:   time.Now(),
			})
		}
		h.presenceMu.Unlock()

		rooms := h.rooms.RoomsOf(c)
		h.rooms.LeaveAll(c)
		h.socketsMu.Lock()
		delete(h.sockets, c)
		h.socketsMu.Unlock()

		h.metrics.RecordConnection("close", c.UserID())
		h.logger.Info("Client unregistered",
			"clientID", c.ID(),
			"userID", c.UserID(),
			"removedMapping", removed,
			"userOffline", offline,
			"rooms", rooms,
			"duration", time.Since(c.ConnectedAt()).String(),
		)
	})
}

func (h *Hub) liveSockets() []*Client {
	h.socketsMu.Lock()
	defer h.socketsMu.Unlock()

	clients := make([]*Client, 0, len(h.sockets))
	for c := range h.sockets {
		clients = append(clients, c)
	}
	return clients
}

// SendToUser queues event for the user's registered connection. It reports
// false when the user is not connected or the frame could not be queued.
func (h *Hub) SendToUser(userID, event string, payload any) bool {
	c, ok := h.registry.Lookup(userID)
	if !ok {
		h.logger.Debug("User not connected, event dropped", "userID", userID, "event", event)
		h.metrics.RecordUnreachable(event, userID)
		return false
	}

	frame, err := EncodeEnvelope(event, payload)
	if err != nil {
		h.logger.Error("Failed to encode event", "event", event, "userID", userID, "error", err)
		h.metrics.RecordEncodeFailure(event)
		return false
	}

	err = c.enqueue(frame)
	h.metrics.RecordTargeted(event, userID, err == nil, len(frame))
	if err != nil {
		h.logger.Warn("Failed to queue event", "event", event, "clientID", c.ID(), "userID", userID, "error", err)
		return false
	}
	return true
}

// SendToRoom queues event for every member of room. Members that cannot take
// the frame are skipped.
func (h *Hub) SendToRoom(room, event string, payload any) {
	h.fanout("send_to_room", room, h.rooms.Members(room), event, payload)
}

// Broadcast queues event for every registered connection as of the call.
func (h *Hub) Broadcast(event string, payload any) {
	h.fanout("broadcast", "*", h.registry.Clients(), event, payload)
}

func (h *Hub) fanout(operation, target string, clients []*Client, event string, payload any) {
	if len(clients) == 0 {
		h.logger.Debug("No recipients for event", "operation", operation, "target", target, "event", event)
		return
	}

	frame, err := EncodeEnvelope(event, payload)
	if err != nil {
		h.logger.Error("Failed to encode event", "operation", operation, "target", target, "event", event, "error", err)
		h.metrics.RecordEncodeFailure(event)
		return
	}

	start := time.Now()
	success, failure := 0, 0
	for _, c := range clients {
		if err := c.enqueue(frame); err != nil {
			failure++
			h.logger.Debug("Skipping recipient", "clientID", c.ID(), "userID", c.UserID(), "event", event, "error", err)
			continue
		}
		success++
	}
	h.metrics.RecordFanout(operation, event, target, time.Since(start), success, failure, len(frame))
}

// Notify sends a notification event, filling id, type, data and timestamp
// when they are empty.
func (h *Hub) Notify(userID string, n Notification) bool {
	return h.SendToUser(userID, EventNotification.String(), completeNotification(n))
}

// NotifyAll broadcasts a notification to every registered connection.
func (h *Hub) NotifyAll(n Notification) {
	h.Broadcast(EventNotification.String(), completeNotification(n))
}

func completeNotification(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Type == "" {
		n.Type = "info"
	}
	if n.Data == nil {
		n.Data = map[string]any{}
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	return n
}

// DisconnectUser sends a force-disconnect advisory to the user's connection
// and then closes it. It reports whether the user was connected.
func (h *Hub) DisconnectUser(userID, reason string) bool {
	c, ok := h.registry.Lookup(userID)
	if !ok {
		return false
	}
	if reason == "" {
		reason = DefaultDisconnectReason
	}

	frame, err := EncodeEnvelope(EventForceDisconnect.String(), ForceDisconnectPayload{Reason: reason})
	if err == nil {
		if err := c.enqueue(frame); err != nil {
			h.logger.Debug("Advisory not queued", "clientID", c.ID(), "userID", userID, "error", err)
		}
	}

	h.registry.Unregister(c)
	c.Close()

	h.logger.Info("User disconnected by server", "userID", userID, "clientID", c.ID(), "reason", reason)
	return true
}

// ConnectedUsers returns the sorted ids of reachable users.
func (h *Hub) ConnectedUsers() []string {
	return h.registry.Snapshot()
}

func (h *Hub) IsUserConnected(userID string) bool {
	return h.registry.IsConnected(userID)
}

func (h *Hub) Stats() Stats {
	return Stats{
		ConnectedUsers: h.registry.Count(),
		TotalSockets:   len(h.liveSockets()),
		Rooms:          h.rooms.Count(),
	}
}

func (h *Hub) ExtendedStats() ExtendedStats {
	return ExtendedStats{
		Stats:    h.Stats(),
		Delivery: h.metrics.Snapshot(),
		Recent:   h.RecentDeliveries("", recentDeliveries),
	}
}

// RecentDeliveries returns up to limit recorded operations, newest last. An
// empty metricType selects every type.
func (h *Hub) RecentDeliveries(metricType MetricType, limit int) []DeliveryMetric {
	var history []DeliveryMetric
	if metricType == "" {
		history = h.metrics.History()
	} else {
		history = h.metrics.ByType(metricType)
	}
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	if history == nil {
		history = []DeliveryMetric{}
	}
	return history
}

// ResetMetrics clears the delivery totals. Recent history is kept.
func (h *Hub) ResetMetrics() {
	h.metrics.Reset()
	h.logger.Info("Delivery metrics reset")
}

// EmitToUser, EmitToRoom, EmitToAll and EmitNotification are the names used by
// producers outside the transport layer.
func (h *Hub) EmitToUser(userID, event string, data any) bool {
	return h.SendToUser(userID, event, data)
}

func (h *Hub) EmitToRoom(room, event string, data any) {
	h.SendToRoom(room, event, data)
}

func (h *Hub) EmitToAll(event string, data any) {
	h.Broadcast(event, data)
}

func (h *Hub) EmitNotification(userID string, n Notification) bool {
	return h.Notify(userID, n)
}

// Accepting reports whether new connections may be attached.
func (h *Hub) Accepting() bool {
	return !h.shutdown.Load()
}

// Shutdown stops accepting connections and closes every live one.
func (h *Hub) Shutdown() {
	if !h.shutdown.CompareAndSwap(false, true) {
		return
	}

	clients := h.liveSockets()
	for _, c := range clients {
		c.Close()
	}
	h.logger.Info("WebSocket hub shutting down", "closedClients", len(clients))
}
