package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"taskplanner/internal/auth"
	"taskplanner/internal/websocket"
	"taskplanner/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	ContextIdentity = "identity"
	ContextUserID   = "user_id"
)

// TokenVerifier resolves a bearer credential.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Identity, error)
}

type AuthMiddleware struct {
	verifier TokenVerifier
	logger   *slog.Logger
}

func NewAuthMiddleware(verifier TokenVerifier, logger *slog.Logger) *AuthMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthMiddleware{verifier: verifier, logger: logger}
}

// RequireAuth verifies the bearer token and stores the identity in the context.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := am.verifier.Verify(c.Request.Context(), websocket.TokenFromRequest(c.Request))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrAccountDisabled):
				response.Fail(c, http.StatusForbidden, response.CodeAccountDisabled, auth.RejectReason(err))
			case errors.Is(err, auth.ErrUnauthenticated):
				response.Fail(c, http.StatusUnauthorized, response.CodeUnauthenticated, auth.RejectReason(err))
			default:
				am.logger.Error("Identity lookup failed", "path", c.FullPath(), "error", err)
				response.Fail(c, http.StatusInternalServerError, response.CodeInternal, "")
			}
			return
		}

		c.Set(ContextIdentity, identity)
		c.Set(ContextUserID, identity.ID)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			response.Fail(c, http.StatusUnauthorized, response.CodeUnauthenticated, auth.ReasonUnauthenticated)
			return
		}
		if !identity.IsAdmin() {
			am.logger.Warn("Admin route denied", "userID", identity.ID, "path", c.FullPath())
			response.Fail(c, http.StatusForbidden, response.CodeForbidden, "")
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by RequireAuth.
func IdentityFrom(c *gin.Context) (*auth.Identity, bool) {
	v, ok := c.Get(ContextIdentity)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*auth.Identity)
	return identity, ok && identity != nil
}
