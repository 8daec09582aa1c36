package rpc

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	tokenIssuer     = "offerkiosk"
	minSecretLength = 16
	tokenLeeway     = 30 * time.Second
)

// CapabilityClaims are carried by a capability bearer token. The subject is
// the hex capability id.
type CapabilityClaims struct {
	Kiosk string `json:"kiosk"`
	jwt.RegisteredClaims

	CapID [32]byte `json:"-"`
}

// CapabilityTokens issues and verifies HS256 capability tokens. A token only
// names a capability; the engine decides whether that capability still grants
// access.
type CapabilityTokens struct {
	secret []byte
	ttl    time.Duration
}

func NewCapabilityTokens(secret []byte, ttl time.Duration) (*CapabilityTokens, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("rpc: capability secret must be at least %d bytes", minSecretLength)
	}
	if ttl <= 0 {
		return nil, errors.New("rpc: capability token ttl must be positive")
	}
	return &CapabilityTokens{secret: append([]byte(nil), secret...), ttl: ttl}, nil
}

// Issue signs a token for capID bound to kioskID.
func (t *CapabilityTokens) Issue(capID, kioskID [32]byte, now time.Time) (string, time.Time, error) {
	expires := now.Add(t.ttl)
	claims := CapabilityClaims{
		Kiosk: hexutil.Encode(kioskID[:]),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   hexutil.Encode(capID[:]),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Verify checks the token signature and validity window and decodes the
// capability id.
func (t *CapabilityTokens) Verify(token string, now time.Time) (*CapabilityClaims, error) {
	claims := &CapabilityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("token invalid")
	}
	capID, err := parseHash32(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("subject: %w", err)
	}
	claims.CapID = capID
	return claims, nil
}
