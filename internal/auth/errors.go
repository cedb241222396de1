package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated means no usable credential was presented.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidToken means the credential failed signature, issuer or claim checks.
	ErrInvalidToken = fmt.Errorf("invalid token: %w", ErrUnauthenticated)
	// ErrExpiredToken means the credential is past its expiry.
	ErrExpiredToken = fmt.Errorf("token expired: %w", ErrUnauthenticated)
	// ErrAccountDisabled means the credential is valid but the account is inactive.
	ErrAccountDisabled = errors.New("account disabled")
)

// Handshake rejection reasons sent back to the connecting client.
const (
	ReasonUnauthenticated = "Unauthenticated"
	ReasonInvalidToken    = "Token inválido"
	ReasonAccountDisabled = "AccountDisabled"
)

// RejectReason maps a Verify error to the textual reason reported to clients.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, ErrAccountDisabled):
		return ReasonAccountDisabled
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrExpiredToken):
		return ReasonInvalidToken
	default:
		return ReasonUnauthenticated
	}
}
