package wsclient

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session supplies the credential a client connects with.
type Session interface {
	Token() string
	// IsAuthenticated reports whether the stored credential is still worth
	// reconnecting with.
	IsAuthenticated() bool
}

// TokenSession holds a bearer token in memory. Its validity check only reads
// the exp claim; the signature is verified by the server.
type TokenSession struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

func NewTokenSession(token string) *TokenSession {
	return &TokenSession{token: token, now: time.Now}
}

func (s *TokenSession) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *TokenSession) SetToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear forgets the token, as on logout.
func (s *TokenSession) Clear() {
	s.SetToken("")
}

func (s *TokenSession) IsAuthenticated() bool {
	token := s.Token()
	if token == "" {
		return false
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return true
	}
	return s.now().Before(claims.ExpiresAt.Time)
}
