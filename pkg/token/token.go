package token

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var DefaultTTL = time.Hour

type Claims struct {
	jwt.RegisteredClaims
}

// Issuer signs admin access tokens with an ES256 key that lives only in memory,
// so tokens do not survive a restart.
type Issuer struct {
	name       string
	ttl        time.Duration
	privateKey *ecdsa.PrivateKey
}

func NewIssuer(name string, ttl time.Duration) (*Issuer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{
		name:       name,
		ttl:        ttl,
		privateKey: key,
	}, nil
}

func (s *Issuer) Name() string {
	return s.name
}

func (s *Issuer) TTL() time.Duration {
	return s.ttl
}

func (s *Issuer) Issue(username string) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodES256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			Issuer:    s.name,
			Audience:  jwt.ClaimStrings{s.name},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}).SignedString(s.privateKey)
}

func (s *Issuer) Parse(tokenString string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		return s.privateKey.Public(), nil
	}, jwt.WithAudience(s.name), jwt.WithIssuer(s.name), jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	return &claims, nil
}
