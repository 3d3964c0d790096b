package main

import (
	"crypto/rand"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session tokens are convenience correlators, not a security boundary: they
// let a reconnecting browser find its player and room again. They are signed
// so a garbled or expired one can be told apart from a fresh join and
// cleared instead of trusted.
type tokenClaims struct {
	jwt.RegisteredClaims
	PlayerID   string `json:"player_uuid"`
	PlayerName string `json:"player_username"`
	SessionID  string `json:"session_id"`
}

type tokenIssuer struct {
	key []byte
	ttl time.Duration
}

func newTokenIssuer(cfg *Config) *tokenIssuer {
	key := []byte(cfg.tokenKey)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
	}

	return &tokenIssuer{
		key: key,
		ttl: cfg.tokenTTL,
	}
}

func (t *tokenIssuer) issue(id *Identity, sessionID string) (string, error) {
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.ttl)),
		},
		PlayerID:   id.ID,
		PlayerName: id.Name,
		SessionID:  sessionID,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
}

// parse returns the decoded claims, or errStaleToken for anything the core
// should treat as a fresh join.
func (t *tokenIssuer) parse(token string) (*tokenClaims, error) {
	if token == "" {
		return nil, errStaleToken
	}

	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.key, nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, errStaleToken
	}

	return &claims, nil
}
