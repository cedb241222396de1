package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"taskplanner/internal/websocket"

	"github.com/redis/go-redis/v9"
)

const (
	onlineUsersKey    = "online_users"
	onlineStatusTTL   = 5 * time.Minute
	offlineStatusTTL  = 24 * time.Hour
	presenceOpTimeout = 2 * time.Second
)

// PresenceService mirrors hub presence into Redis for other services to read.
// The hub registry stays authoritative for delivery.
type PresenceService struct {
	client  redis.Cmdable
	breaker *RedisBreaker
	logger  *slog.Logger
}

func NewPresenceService(client redis.Cmdable, logger *slog.Logger) *PresenceService {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "presence")
	return &PresenceService{
		client:  client,
		breaker: NewRedisBreaker(3, 30*time.Second, logger),
		logger:  logger,
	}
}

func statusKey(userID string) string {
	return fmt.Sprintf("user:%s:status", userID)
}

// Observe registers the mirror as hub lifecycle hooks.
func (p *PresenceService) Observe(hub *websocket.Hub) {
	hub.OnConnect(func(ev websocket.ConnectionEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), presenceOpTimeout)
		defer cancel()
		if err := p.SetUserOnline(ctx, ev.UserID); err != nil {
			p.logger.Warn("Failed to mirror online status", "userID", ev.UserID, "error", err)
		}
	})
	hub.OnDisconnect(func(ev websocket.ConnectionEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), presenceOpTimeout)
		defer cancel()
		if err := p.SetUserOffline(ctx, ev.UserID); err != nil {
			p.logger.Warn("Failed to mirror offline status", "userID", ev.UserID, "error", err)
		}
	})
}

func (p *PresenceService) exec(ctx context.Context, fn func(pipe redis.Pipeliner)) error {
	if !p.breaker.Allow() {
		return ErrCircuitOpen
	}
	pipe := p.client.TxPipeline()
	fn(pipe)
	_, err := pipe.Exec(ctx)
	p.breaker.Record(err)
	return err
}

func (p *PresenceService) SetUserOnline(ctx context.Context, userID string) error {
	now := time.Now().Unix()
	err := p.exec(ctx, func(pipe redis.Pipeliner) {
		pipe.SAdd(ctx, onlineUsersKey, userID)
		pipe.HSet(ctx, statusKey(userID), map[string]interface{}{
			"status":     "online",
			"last_seen":  now,
			"updated_at": now,
		})
		pipe.Expire(ctx, statusKey(userID), onlineStatusTTL)
	})
	if err != nil {
		return fmt.Errorf("failed to set user %s online: %w", userID, err)
	}

	p.logger.Debug("User set to online", "userID", userID)
	return nil
}

func (p *PresenceService) SetUserOffline(ctx context.Context, userID string) error {
	now := time.Now().Unix()
	err := p.exec(ctx, func(pipe redis.Pipeliner) {
		pipe.SRem(ctx, onlineUsersKey, userID)
		pipe.HSet(ctx, statusKey(userID), map[string]interface{}{
			"status":     "offline",
			"last_seen":  now,
			"updated_at": now,
		})
		pipe.Expire(ctx, statusKey(userID), offlineStatusTTL)
	})
	if err != nil {
		return fmt.Errorf("failed to set user %s offline: %w", userID, err)
	}

	p.logger.Debug("User set to offline", "userID", userID)
	return nil
}

func (p *PresenceService) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	if !p.breaker.Allow() {
		return false, ErrCircuitOpen
	}
	online, err := p.client.SIsMember(ctx, onlineUsersKey, userID).Result()
	p.breaker.Record(err)
	if err != nil {
		return false, fmt.Errorf("failed to read presence for %s: %w", userID, err)
	}
	return online, nil
}

func (p *PresenceService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	if !p.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	users, err := p.client.SMembers(ctx, onlineUsersKey).Result()
	p.breaker.Record(err)
	if err != nil {
		return nil, fmt.Errorf("failed to list online users: %w", err)
	}
	return users, nil
}

// Reset replaces the mirrored online set with userIDs. Called at startup and
// by the refresh loop so entries left behind by a crash are dropped.
func (p *PresenceService) Reset(ctx context.Context, userIDs []string) error {
	err := p.exec(ctx, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, onlineUsersKey)
		if len(userIDs) == 0 {
			return
		}
		members := make([]interface{}, len(userIDs))
		for i, id := range userIDs {
			members[i] = id
		}
		pipe.SAdd(ctx, onlineUsersKey, members...)
		for _, id := range userIDs {
			pipe.Expire(ctx, statusKey(id), onlineStatusTTL)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to reset presence: %w", err)
	}
	return nil
}

// Run periodically resyncs the mirror from the hub until ctx is done.
func (p *PresenceService) Run(ctx context.Context, hub *websocket.Hub, interval time.Duration) {
	if interval <= 0 {
		interval = onlineStatusTTL / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, presenceOpTimeout)
			if err := p.Reset(opCtx, hub.ConnectedUsers()); err != nil {
				p.logger.Warn("Presence resync failed", "error", err)
			}
			cancel()
		}
	}
}

// Breaker exposes the circuit breaker state for diagnostics.
func (p *PresenceService) Breaker() *RedisBreaker {
	return p.breaker
}
