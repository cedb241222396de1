package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"taskplanner/internal/auth"

	"github.com/gorilla/websocket"
)

// IdentityVerifier resolves the credential presented at handshake time.
type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Identity, error)
}

// Handler runs the connection lifecycle for every incoming upgrade request.
type Handler struct {
	hub      *Hub
	verifier IdentityVerifier
	upgrader *websocket.Upgrader
	logger   *slog.Logger
}

func NewHandler(hub *Hub, verifier IdentityVerifier) *Handler {
	return &Handler{
		hub:      hub,
		verifier: verifier,
		upgrader: NewUpgrader(hub.cfg.AllowedOrigins),
		logger:   hub.logger,
	}
}

type rejection struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ServeHTTP authenticates the handshake and, on success, upgrades the
// connection and attaches it to the hub. Rejected handshakes never reach the
// upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	state := StateConnecting
	remote := r.RemoteAddr

	if !h.hub.Accepting() {
		h.reject(w, http.StatusServiceUnavailable, "Server shutting down")
		return
	}

	token := TokenFromRequest(r)
	state = StateAuthenticating
	h.logger.Debug("Handshake received", "remote", remote, "state", state.String(), "hasToken", token != "")

	identity, err := h.verifier.Verify(r.Context(), token)
	if err != nil {
		reason := auth.RejectReason(err)
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrAccountDisabled) {
			status = http.StatusForbidden
		}
		state = StateClosed
		if errors.Is(err, auth.ErrUnauthenticated) || errors.Is(err, auth.ErrAccountDisabled) {
			h.logger.Info("Handshake rejected", "remote", remote, "state", state.String(), "reason", reason, "error", err)
		} else {
			h.logger.Error("Identity lookup failed", "remote", remote, "error", err)
		}
		h.hub.metrics.RecordRejectedHandshake(reason)
		h.reject(w, status, reason)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade WebSocket connection", "userID", identity.ID, "error", err)
		return
	}

	c := newClient(h.hub, conn, *identity)
	frame, err := EncodeEnvelope(EventConnected.String(), ConnectedPayload{
		Message:   "Conectado exitosamente",
		UserID:    identity.ID,
		Timestamp: time.Now().UTC(),
	})
	if err == nil {
		c.enqueue(frame)
	}

	h.hub.attach(c)
	if !h.hub.Accepting() {
		c.Close()
	}

	go c.writePump()
	go c.readPump()

	c.logger.Info("New WebSocket connection established", "username", identity.Username, "role", string(identity.Role))
}

func (h *Handler) reject(w http.ResponseWriter, status int, reason string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rejection{Success: false, Message: reason}); err != nil {
		h.logger.Debug("Failed to write rejection", "error", err)
	}
}

// TokenFromRequest reads the credential from the Authorization header, or
// from the token query parameter for clients that cannot set headers.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			return strings.TrimSpace(header[7:])
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// handleClientEvent processes one inbound envelope from an Active connection.
func (h *Hub) handleClientEvent(c *Client, env *Envelope) {
	switch EventName(env.Event) {
	case EventTaskSubscribe, EventTaskUnsubscribe, EventEventSubscribe, EventEventUnsubscribe:
		h.handleSubscription(c, EventName(env.Event), env.Data)

	case EventPing:
		frame, err := EncodeEnvelope(EventPong.String(), PongPayload{Timestamp: time.Now().UTC()})
		if err == nil {
			c.enqueue(frame)
		}

	case EventNotificationRead:
		c.logger.Info("Notification marked as read", "data", string(env.Data))

	default:
		c.logger.Debug("Ignoring unknown event", "event", env.Event)
	}
}

func (h *Hub) handleSubscription(c *Client, event EventName, data json.RawMessage) {
	id, err := ParseEntityID(data)
	if err != nil {
		c.logger.Debug("Invalid subscription payload", "event", event.String(), "error", err)
		return
	}

	var room string
	switch event {
	case EventTaskSubscribe, EventTaskUnsubscribe:
		room = TaskRoom(id)
	default:
		room = EventRoom(id)
	}

	switch event {
	case EventTaskSubscribe, EventEventSubscribe:
		h.rooms.Join(room, c)
		c.logger.Debug("Joined room", "room", room)
	default:
		h.rooms.Leave(room, c)
		c.logger.Debug("Left room", "room", room)
	}
}
