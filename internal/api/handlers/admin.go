package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"taskplanner/internal/api/middleware"
	"taskplanner/internal/models"
	"taskplanner/internal/repositories/postgres"
	"taskplanner/internal/services"
	"taskplanner/internal/websocket"
	"taskplanner/pkg/response"

	"github.com/gin-gonic/gin"
)

const adminDisconnectReason = "Desconectado por administrador"

// Broker is the part of the hub the admin surface drives.
type Broker interface {
	Stats() websocket.Stats
	ExtendedStats() websocket.ExtendedStats
	ConnectedUsers() []string
	DisconnectUser(userID, reason string) bool
	Notify(userID string, n websocket.Notification) bool
	NotifyAll(n websocket.Notification)
	RecentDeliveries(metricType websocket.MetricType, limit int) []websocket.DeliveryMetric
	ResetMetrics()
}

// PresenceMirror is the Redis view of who is online. It is nil when Redis is
// disabled.
type PresenceMirror interface {
	GetOnlineUsers(ctx context.Context) ([]string, error)
	IsUserOnline(ctx context.Context, userID string) (bool, error)
	Breaker() *services.RedisBreaker
}

// UserDirectory resolves user records for admin responses.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.User, error)
}

type AdminHandler struct {
	broker   Broker
	users    UserDirectory
	presence PresenceMirror
	logger   *slog.Logger
}

func NewAdminHandler(broker Broker, users UserDirectory, presence PresenceMirror, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{broker: broker, users: users, presence: presence, logger: logger.With("component", "admin")}
}

type DisconnectRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=200"`
}

type NotificationRequest struct {
	Title   string `json:"title" binding:"required,max=200"`
	Message string `json:"message" binding:"required,max=2000"`
	Type    string `json:"type" binding:"omitempty,oneof=info success warning error"`
}

type ConnectedUsersResponse struct {
	Count int                            `json:"count"`
	Users []models.ConnectedUserResponse `json:"users"`
}

// GetStats returns the hub counters. ?detail=true adds delivery metrics.
func (h *AdminHandler) GetStats(c *gin.Context) {
	if c.Query("detail") == "true" {
		response.OK(c, http.StatusOK, "", h.broker.ExtendedStats())
		return
	}
	response.OK(c, http.StatusOK, "", h.broker.Stats())
}

// GetDeliveries lists recent broker operations. ?type= filters by metric
// type, ?limit= caps the count (default 50).
func (h *AdminHandler) GetDeliveries(c *gin.Context) {
	metricType := websocket.MetricType(c.Query("type"))
	switch metricType {
	case "", websocket.MetricTargeted, websocket.MetricFanout, websocket.MetricConnection, websocket.MetricHandshake:
	default:
		response.Fail(c, http.StatusBadRequest, response.CodeParamInvalid, "unknown metric type")
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.Fail(c, http.StatusBadRequest, response.CodeParamInvalid, "limit must be a positive integer")
			return
		}
		limit = n
	}

	response.OK(c, http.StatusOK, "", h.broker.RecentDeliveries(metricType, limit))
}

func (h *AdminHandler) ResetMetrics(c *gin.Context) {
	h.broker.ResetMetrics()
	h.logger.Info("Delivery metrics reset by admin", "adminID", c.GetString(middleware.ContextUserID))
	response.OK(c, http.StatusOK, "Métricas reiniciadas", nil)
}

// GetPresence compares the Redis mirror with the live registry. ?user=<id>
// narrows it to one user.
func (h *AdminHandler) GetPresence(c *gin.Context) {
	if h.presence == nil {
		response.Fail(c, http.StatusServiceUnavailable, response.CodeUnavailable, "presence mirror disabled")
		return
	}
	ctx := c.Request.Context()
	breaker := h.presence.Breaker().Stats()

	if userID := c.Query("user"); userID != "" {
		online, err := h.presence.IsUserOnline(ctx, userID)
		if err != nil {
			h.logger.Warn("Presence lookup failed", "userID", userID, "error", err)
			response.Fail(c, http.StatusServiceUnavailable, response.CodeUnavailable, err.Error())
			return
		}
		connected := false
		for _, id := range h.broker.ConnectedUsers() {
			if id == userID {
				connected = true
				break
			}
		}
		response.OK(c, http.StatusOK, "", gin.H{
			"userId":    userID,
			"mirrored":  online,
			"connected": connected,
			"breaker":   breaker,
		})
		return
	}

	mirrored, err := h.presence.GetOnlineUsers(ctx)
	if err != nil {
		h.logger.Warn("Presence listing failed", "error", err)
		response.Fail(c, http.StatusServiceUnavailable, response.CodeUnavailable, err.Error())
		return
	}
	response.OK(c, http.StatusOK, "", gin.H{
		"mirrored":  mirrored,
		"connected": h.broker.ConnectedUsers(),
		"breaker":   breaker,
	})
}

func (h *AdminHandler) GetConnectedUsers(c *gin.Context) {
	users, err := h.users.FindByIDs(c.Request.Context(), h.broker.ConnectedUsers())
	if err != nil {
		h.logger.Error("Failed to load connected users", "error", err)
		response.Fail(c, http.StatusInternalServerError, response.CodeInternal, "")
		return
	}

	out := make([]models.ConnectedUserResponse, 0, len(users))
	for i := range users {
		out = append(out, users[i].ToConnectedUserResponse())
	}
	response.OK(c, http.StatusOK, "", ConnectedUsersResponse{Count: len(out), Users: out})
}

func (h *AdminHandler) DisconnectUser(c *gin.Context) {
	var req DisconnectRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Fail(c, http.StatusBadRequest, response.CodeParamInvalid, err.Error())
			return
		}
	}
	if req.Reason == "" {
		req.Reason = adminDisconnectReason
	}

	user, ok := h.lookupUser(c)
	if !ok {
		return
	}

	disconnected := h.broker.DisconnectUser(user.ID, req.Reason)
	h.logger.Info("User disconnected by admin", "userID", user.ID, "adminID", c.GetString(middleware.ContextUserID), "wasConnected", disconnected)

	message := "Usuario no estaba conectado"
	if disconnected {
		message = "Usuario desconectado exitosamente"
	}
	response.OK(c, http.StatusOK, message, gin.H{"wasConnected": disconnected})
}

func (h *AdminHandler) SendNotification(c *gin.Context) {
	var req NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.CodeParamInvalid, "Título y mensaje son requeridos")
		return
	}

	user, ok := h.lookupUser(c)
	if !ok {
		return
	}

	sent := h.broker.Notify(user.ID, h.notification(c, req, false))
	h.logger.Info("Notification sent by admin", "userID", user.ID, "title", req.Title, "delivered", sent)

	message := "Usuario no conectado, notificación no enviada"
	if sent {
		message = "Notificación enviada exitosamente"
	}
	response.OK(c, http.StatusOK, message, gin.H{"delivered": sent})
}

func (h *AdminHandler) BroadcastNotification(c *gin.Context) {
	var req NotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Fail(c, http.StatusBadRequest, response.CodeParamInvalid, "Título y mensaje son requeridos")
		return
	}

	h.broker.NotifyAll(h.notification(c, req, true))
	h.logger.Info("Broadcast notification sent by admin", "title", req.Title, "adminID", c.GetString(middleware.ContextUserID))

	response.OK(c, http.StatusOK, "Notificación broadcast enviada exitosamente", nil)
}

func (h *AdminHandler) notification(c *gin.Context, req NotificationRequest, broadcast bool) websocket.Notification {
	data := map[string]any{"from": "admin"}
	if identity, ok := middleware.IdentityFrom(c); ok {
		data["adminUser"] = identity.Username
	}
	if broadcast {
		data["broadcast"] = true
	}
	return websocket.Notification{
		Type:    req.Type,
		Title:   req.Title,
		Message: req.Message,
		Data:    data,
	}
}

func (h *AdminHandler) lookupUser(c *gin.Context) (*models.User, bool) {
	id := c.Param("id")
	if id == "" {
		response.Fail(c, http.StatusBadRequest, response.CodeParamInvalid, "user id is required")
		return nil, false
	}

	user, err := h.users.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			response.Fail(c, http.StatusNotFound, response.CodeNotFound, "Usuario no encontrado")
			return nil, false
		}
		h.logger.Error("Failed to load user", "userID", id, "error", err)
		response.Fail(c, http.StatusInternalServerError, response.CodeInternal, "")
		return nil, false
	}
	return user, true
}
