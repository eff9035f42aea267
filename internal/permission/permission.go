// Package permission holds the static catalog of assignable permissions.
// The catalog is built by explicit registration at init time and is the
// authoritative list of claim values: anything not registered here can be
// neither granted to a role nor required by a route.
package permission

import (
	"fmt"
	"sort"
)

// ClaimType is the claim type carried by every permission claim.
const ClaimType = "permission"

// Services.
const (
	ServiceIdentity = "Identity"
	ServiceShop     = "Shop"
)

// Features.
const (
	FeatureUsers      = "Users"
	FeatureRoles      = "Roles"
	FeatureRoleClaims = "RoleClaims"
	FeatureBrands     = "Brands"
	FeatureProducts   = "Products"
)

// Actions.
const (
	ActionCreate = "Create"
	ActionRead   = "Read"
	ActionUpdate = "Update"
	ActionDelete = "Delete"
)

// Permission is an immutable (service, feature, action) triple.
type Permission struct {
	Service     string
	Feature     string
	Action      string
	Description string
}

// Name renders the canonical dot-separated permission string, used
// identically as policy name and as claim value. Case-sensitive.
func (p Permission) Name() string {
	return Name(p.Service, p.Feature, p.Action)
}

// Name renders the canonical permission string for a triple.
func Name(service, feature, action string) string {
	return fmt.Sprintf("Permission.%s.%s.%s", service, feature, action)
}

// Registry is an enumerable permission catalog. It is append-only:
// registrations happen during initialization, after which the registry is
// read-only and safe for concurrent use.
type Registry struct {
	byName  map[string]Permission
	ordered []Permission
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]Permission)}
}

// Register adds one (service, feature, action) triple to the catalog.
// Registering the same triple twice is a programming error.
func (r *Registry) Register(service, feature, action, description string) {
	p := Permission{Service: service, Feature: feature, Action: action, Description: description}
	name := p.Name()
	if _, exists := r.byName[name]; exists {
		panic(fmt.Sprintf("permission %s registered twice", name))
	}
	r.byName[name] = p
	r.ordered = append(r.ordered, p)
	sort.Slice(r.ordered, func(i, j int) bool {
		return r.ordered[i].Name() < r.ordered[j].Name()
	})
}

// RegisterCRUD registers the four standard actions for a feature.
func (r *Registry) RegisterCRUD(service, feature string) {
	for _, action := range []string{ActionCreate, ActionRead, ActionUpdate, ActionDelete} {
		r.Register(service, feature, action,
			fmt.Sprintf("%s %s in the %s service", action, feature, service))
	}
}

// All returns the catalog ordered by canonical name, stable across the
// process lifetime.
func (r *Registry) All() []Permission {
	out := make([]Permission, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Lookup resolves a canonical permission string.
func (r *Registry) Lookup(name string) (Permission, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Names returns every canonical permission string in catalog order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	for i, p := range r.ordered {
		names[i] = p.Name()
	}
	return names
}

// Default builds the full application catalog.
func Default() *Registry {
	r := NewRegistry()
	r.RegisterCRUD(ServiceIdentity, FeatureUsers)
	r.RegisterCRUD(ServiceIdentity, FeatureRoles)
	r.Register(ServiceIdentity, FeatureRoleClaims, ActionRead, "Read role permission assignments")
	r.Register(ServiceIdentity, FeatureRoleClaims, ActionUpdate, "Update role permission assignments")
	r.RegisterCRUD(ServiceShop, FeatureBrands)
	r.RegisterCRUD(ServiceShop, FeatureProducts)
	return r
}
