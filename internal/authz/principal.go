package authz

import "context"

// Principal is the authenticated caller with its live claim set, resolved
// once per request by the authentication middleware and passed explicitly
// through the context. There is no ambient current-user accessor.
type Principal struct {
	UserID string
	Email  string
	Name   string
	Roles  []string
	Claims []Claim
}

// HasPermission evaluates the principal's claims against the policy a
// provider synthesized for a permission string.
func (p Principal) HasPermission(policy Policy) bool {
	return Evaluate(p.Claims, policy) == Allow
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
