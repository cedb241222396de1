package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskplanner/internal/config"
	"taskplanner/internal/models"
	"taskplanner/internal/repositories/postgres"

	"github.com/golang-jwt/jwt/v5"
)

type Role = models.Role

const (
	RoleUser  = models.RoleUser
	RoleAdmin = models.RoleAdmin
)

// Identity is the snapshot of a verified user taken at handshake time.
type Identity struct {
	ID       string
	Username string
	Role     Role
	Active   bool
}

func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// UserStore resolves a user id carried by a credential.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// Claims is the payload of the login credential.
type Claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

type Verifier struct {
	store  UserStore
	secret []byte
	issuer string
	expire time.Duration
	logger *slog.Logger
}

func NewVerifier(cfg config.JWTConfig, store UserStore, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{
		store:  store,
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		expire: cfg.ExpirationTime,
		logger: logger.With("component", "auth"),
	}
}

// Verify checks the credential locally and then resolves the account it names.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := v.parse(tokenString)
	if err != nil {
		return nil, err
	}

	user, err := v.store.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			v.logger.Debug("Token references unknown user", "userID", claims.UserID)
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("failed to resolve user %s: %w", claims.UserID, err)
	}
	if user == nil {
		return nil, ErrUnauthenticated
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	return &Identity{
		ID:       user.ID,
		Username: user.Username,
		Role:     user.Role,
		Active:   user.IsActive,
	}, nil
}

func (v *Verifier) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// IssueToken mints a login credential for userID.
func (v *Verifier) IssueToken(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.expire)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}
