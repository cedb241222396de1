package wsclient

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp *time.Time) string {
	t.Helper()
	claims := jwt.RegisteredClaims{Subject: "u1"}
	if exp != nil {
		claims.ExpiresAt = jwt.NewNumericDate(*exp)
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("any-secret"))
	require.NoError(t, err)
	return token
}

func TestTokenSession_IsAuthenticated(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Minute)

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{name: "empty", token: "", want: false},
		{name: "garbage", token: "not-a-jwt", want: false},
		{name: "unexpired", token: signedToken(t, &future), want: true},
		{name: "expired", token: signedToken(t, &past), want: false},
		{name: "no expiry", token: signedToken(t, nil), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewTokenSession(tt.token)
			s.now = func() time.Time { return now }
			assert.Equal(t, tt.want, s.IsAuthenticated())
		})
	}
}

func TestTokenSession_Clear(t *testing.T) {
	s := NewTokenSession(signedToken(t, nil))
	require.True(t, s.IsAuthenticated())

	s.Clear()

	assert.Empty(t, s.Token())
	assert.False(t, s.IsAuthenticated())
}
