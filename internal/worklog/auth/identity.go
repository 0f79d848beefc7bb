package auth

import (
	"context"
	"strings"
)

// Role is the caller's position within their company.
type Role string

const (
	RoleManager    Role = "manager"
	RoleOperative  Role = "operative"
	RoleSupervisor Role = "supervisor"
)

// ParseRole normalises a role claim. Unknown roles are returned as is and match no policy.
func ParseRole(s string) Role {
	return Role(strings.ToLower(strings.TrimSpace(s)))
}

// Identity is the authenticated caller.
type Identity struct {
	UserID    uint
	CompanyID uint
	Role      Role
	Name      string
	// SessionToken is set when the caller authenticated with a session token.
	SessionToken string
}

type contextKey string

const (
	identityContextKey contextKey = "identity"
)

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}

// FromContext returns the identity stored by the interceptor or middleware.
func FromContext(ctx context.Context) (*Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(*Identity)
	return id, ok && id != nil
}
