package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	issuer, err := NewIssuer("vpnshield", time.Hour)
	require.NoError(t, err)

	testuserToken, err := issuer.Issue("testuser")
	require.NoError(t, err)

	claims, err := issuer.Parse(testuserToken)
	require.NoError(t, err)
	require.Equal(t, "testuser", claims.Subject)
}

func TestTokenFromOtherIssuer(t *testing.T) {
	a, err := NewIssuer("vpnshield", time.Hour)
	require.NoError(t, err)
	b, err := NewIssuer("vpnshield", time.Hour)
	require.NoError(t, err)

	tokenString, err := a.Issue("admin")
	require.NoError(t, err)

	_, err = b.Parse(tokenString)
	require.ErrorIs(t, err, jwt.ErrTokenSignatureInvalid)
}

func TestTokenWrongAudience(t *testing.T) {
	issuer, err := NewIssuer("vpnshield", time.Hour)
	require.NoError(t, err)
	other := &Issuer{name: "other", ttl: time.Hour, privateKey: issuer.privateKey}

	tokenString, err := other.Issue("admin")
	require.NoError(t, err)

	_, err = issuer.Parse(tokenString)
	require.ErrorIs(t, err, jwt.ErrTokenInvalidAudience)
}

func TestDefaultTTL(t *testing.T) {
	issuer, err := NewIssuer("vpnshield", 0)
	require.NoError(t, err)
	require.Equal(t, DefaultTTL, issuer.TTL())
}
