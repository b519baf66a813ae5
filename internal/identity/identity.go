// Package identity supplies the acting user's stable identifier. Session
// management and token verification belong to the ambient auth layer; this
// package only extracts the identity the reconciliation engine needs for its
// taggers/attendees logic.
package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nexcal/nexcal/internal/common"
)

// Provider yields the acting user's identifier.
type Provider interface {
	UserID() string
}

// Static is a fixed identity, used by the CLI and by tests.
type Static struct {
	ID string
}

func (s Static) UserID() string { return s.ID }

// TokenProvider extracts the identity from a bearer token issued by the auth
// collaborator. The token's signature was already verified upstream; here we
// only read the subject claim.
type TokenProvider struct {
	subject string
}

// NewTokenProvider parses token and captures its subject.
func NewTokenProvider(token string) (*TokenProvider, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", common.ErrInvalidToken)
	}
	return &TokenProvider{subject: sub}, nil
}

func (p *TokenProvider) UserID() string { return p.subject }
