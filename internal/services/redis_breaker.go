package services

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCircuitOpen is returned while Redis calls are being short-circuited.
var ErrCircuitOpen = errors.New("redis circuit open")

// RedisBreaker stops issuing Redis calls after repeated connection failures
// and lets calls through again once the open timeout has passed.
type RedisBreaker struct {
	mu                sync.Mutex
	threshold         int
	openTimeout       time.Duration
	consecutiveErrors int
	errorCount        int
	lastError         error
	lastErrorTime     time.Time
	circuitOpen       bool
	circuitResetTime  time.Time
	logger            *slog.Logger

	now func() time.Time
}

func NewRedisBreaker(threshold int, openTimeout time.Duration, logger *slog.Logger) *RedisBreaker {
	if threshold <= 0 {
		threshold = 3
	}
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBreaker{
		threshold:   threshold,
		openTimeout: openTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Allow reports whether a call may proceed. Once the open timeout passes the
// circuit is half-open and calls are allowed until the next failure.
func (b *RedisBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.circuitOpen || !b.now().Before(b.circuitResetTime)
}

// Record feeds the outcome of a call into the breaker. Only connection-level
// failures count towards opening the circuit.
func (b *RedisBreaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil || errors.Is(err, redis.Nil) {
		if b.circuitOpen {
			b.logger.Info("Circuit breaker closed for Redis operations", "downtime", b.now().Sub(b.lastErrorTime).String())
		}
		b.circuitOpen = false
		b.consecutiveErrors = 0
		return
	}

	b.errorCount++
	b.lastError = err
	b.lastErrorTime = b.now()
	if !isRedisConnectionError(err) {
		return
	}

	b.consecutiveErrors++
	if b.consecutiveErrors >= b.threshold {
		if !b.circuitOpen {
			b.logger.Warn("Circuit breaker opened for Redis operations",
				"timeout", b.openTimeout.String(),
				"consecutiveErrors", b.consecutiveErrors,
				"error", err,
			)
		}
		b.circuitOpen = true
		b.circuitResetTime = b.now().Add(b.openTimeout)
	}
}

func (b *RedisBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.circuitOpen
}

// Stats returns the breaker counters for diagnostics.
func (b *RedisBreaker) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()

	stats := map[string]interface{}{
		"errorCount":        b.errorCount,
		"consecutiveErrors": b.consecutiveErrors,
		"circuitOpen":       b.circuitOpen,
	}
	if b.circuitOpen {
		stats["circuitResetTime"] = b.circuitResetTime
	}
	if b.lastError != nil {
		stats["lastError"] = b.lastError.Error()
		stats["lastErrorTime"] = b.lastErrorTime
	}
	return stats
}

func isRedisConnectionError(err error) bool {
	if errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
