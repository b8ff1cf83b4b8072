// Package identity issues and verifies the role tokens that authenticate
// mint calls. Tokens are plain HMAC-signed JWTs carrying a participant id and
// one of the fixed supply-chain roles; there is deliberately no key-pair
// cryptography here — the ledger's signer field is a static role lookup, not
// a verifiable signature.
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleClaims are the JWT claims for a participant role token.
type RoleClaims struct {
	jwt.RegisteredClaims
	ParticipantID string `json:"participant_id"`
	Role          string `json:"role"`
}

// TokenIssuer issues and verifies role tokens with an HMAC secret.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer.
//
//	secret    — the HMAC signing secret shared by all service instances.
//	issuerURL — the "iss" claim value; matches the service's base URL.
//	ttl       — token lifetime (default: 24 hours).
func NewTokenIssuer(secret []byte, issuerURL string, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{secret: secret, issuer: issuerURL, ttl: ttl}
}

// Issue creates a signed role token for a participant.
func (t *TokenIssuer) Issue(participantID, role string) (string, error) {
	now := time.Now().UTC()
	claims := RoleClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   participantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		ParticipantID: participantID,
		Role:          role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign role token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a role token, returning its claims.
func (t *TokenIssuer) Verify(tokenStr string) (*RoleClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&RoleClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.secret, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify role token: %w", err)
	}
	claims, ok := token.Claims.(*RoleClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid role token claims")
	}
	if claims.Role == "" {
		return nil, fmt.Errorf("role token missing role claim")
	}
	return claims, nil
}
