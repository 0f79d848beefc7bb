package auth

import (
	"context"
	"errors"
	"fmt"

	e "github.com/gartstein/worklog/internal/worklog/errors"
	"github.com/gartstein/worklog/internal/worklog/session"
	"github.com/google/uuid"
)

// Authenticator resolves bearer tokens to identities. A token is either an
// opaque session token issued by the session store or a signed JWT.
type Authenticator struct {
	jwtSecret string
	sessions  session.Store
}

// NewAuthenticator returns an Authenticator. sessions may be nil, in which
// case only JWTs are accepted.
func NewAuthenticator(jwtSecret string, sessions session.Store) *Authenticator {
	return &Authenticator{jwtSecret: jwtSecret, sessions: sessions}
}

// Authenticate returns the identity behind token, or an error wrapping ErrUnauthenticated.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if a.sessions != nil {
		if _, err := uuid.Parse(token); err == nil {
			return a.fromSession(ctx, token)
		}
	}
	return a.AuthenticateJWT(token)
}

// AuthenticateJWT accepts only signed JWTs.
func (a *Authenticator) AuthenticateJWT(token string) (*Identity, error) {
	id, err := validateToken(token, a.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", e.ErrUnauthenticated, err)
	}
	return id, nil
}

func (a *Authenticator) fromSession(ctx context.Context, token string) (*Identity, error) {
	s, err := a.sessions.Get(ctx, token)
	if err != nil {
		if errors.Is(err, e.ErrNotFound) {
			return nil, fmt.Errorf("%w: session expired or revoked", e.ErrUnauthenticated)
		}
		return nil, err
	}
	return &Identity{
		UserID:       s.UserID,
		CompanyID:    s.CompanyID,
		Role:         ParseRole(s.Role),
		Name:         s.Name,
		SessionToken: s.Token,
	}, nil
}

// OpenSession exchanges an authenticated JWT identity for a session token.
func (a *Authenticator) OpenSession(ctx context.Context, id *Identity) (*session.Session, error) {
	if a.sessions == nil {
		return nil, fmt.Errorf("%w: sessions are disabled", e.ErrInvalidInput)
	}
	return a.sessions.Create(ctx, session.Session{
		UserID:    id.UserID,
		CompanyID: id.CompanyID,
		Role:      string(id.Role),
		Name:      id.Name,
	})
}

// CloseSession revokes the session the identity authenticated with.
func (a *Authenticator) CloseSession(ctx context.Context, id *Identity) error {
	if a.sessions == nil || id.SessionToken == "" {
		return fmt.Errorf("%w: not a session token", e.ErrInvalidInput)
	}
	return a.sessions.Delete(ctx, id.SessionToken)
}
