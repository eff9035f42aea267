// Package authz implements permission-claim authorization: policies are
// derived on demand from canonical permission strings and evaluated against
// a principal's claim set at request time.
package authz

import (
	"errors"

	"github.com/shopcove/identity-service/internal/permission"
)

// ErrPolicyNotFound signals that the requested policy name is not a
// canonical permission string; the caller falls back to its default policy
// resolution.
var ErrPolicyNotFound = errors.New("authz: no policy for name")

// Policy requires exactly one claim on the principal.
type Policy struct {
	ClaimType  string
	ClaimValue string
	Issuer     string
}

// PolicyProvider synthesizes one policy per permission string instead of
// registering hundreds of policies up front.
type PolicyProvider struct {
	registry *permission.Registry
	issuer   string
}

// NewPolicyProvider builds a provider bound to the catalog and the trusted
// token issuer.
func NewPolicyProvider(registry *permission.Registry, issuer string) *PolicyProvider {
	return &PolicyProvider{registry: registry, issuer: issuer}
}

// GetPolicy returns the policy for a canonical permission string. Pure
// function of the catalog; no side effects.
func (p *PolicyProvider) GetPolicy(name string) (Policy, error) {
	if _, ok := p.registry.Lookup(name); !ok {
		return Policy{}, ErrPolicyNotFound
	}
	return Policy{
		ClaimType:  permission.ClaimType,
		ClaimValue: name,
		Issuer:     p.issuer,
	}, nil
}
