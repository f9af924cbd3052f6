package shared

import "context"

// Role distinguishes the two account kinds.
type Role string

const (
	RoleBoss   Role = "boss"
	RoleSeller Role = "seller"
)

// Identity is the authenticated caller attached to every request. For a
// seller, BossID carries the owning tenant; for a boss it is zero and the
// tenant root is ID itself.
type Identity struct {
	ID     int64
	Role   Role
	BossID int64
}

// TenantID returns the Boss ID that scopes all data visible to the caller.
func (i Identity) TenantID() int64 {
	if i.Role == RoleSeller {
		return i.BossID
	}
	return i.ID
}

type identityContextKey struct{}

// ContextWithIdentity stores the caller identity in context.
func ContextWithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, ident)
}

// IdentityFromContext extracts the caller identity from context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityContextKey{}).(Identity)
	return ident, ok
}
