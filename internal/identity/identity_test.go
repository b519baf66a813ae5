package identity

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexcal/nexcal/internal/common"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestStatic(t *testing.T) {
	assert.Equal(t, "alice", Static{ID: "alice"}.UserID())
}

func TestNewTokenProvider_Subject(t *testing.T) {
	p, err := NewTokenProvider(signedToken(t, jwt.MapClaims{"sub": "alice"}))
	require.NoError(t, err)
	assert.Equal(t, "alice", p.UserID())
}

func TestNewTokenProvider_MissingSubject(t *testing.T) {
	_, err := NewTokenProvider(signedToken(t, jwt.MapClaims{"aud": "nexcal"}))
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}

func TestNewTokenProvider_Garbage(t *testing.T) {
	_, err := NewTokenProvider("not-a-jwt")
	assert.ErrorIs(t, err, common.ErrInvalidToken)
}
