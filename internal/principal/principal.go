// Package principal models the authenticated identity making a request.
//
// Authentication happens upstream; this package only carries the attributes
// a PrincipalSource supplies and answers privilege questions about them.
package principal

import (
	"context"
	"errors"
	"slices"
)

// Sentinel errors.
var (
	// ErrUnknownPrincipal is returned when a source cannot resolve an ID.
	ErrUnknownPrincipal = errors.New("unknown principal")

	// ErrInvalidTier is returned for tier strings outside the known set.
	ErrInvalidTier = errors.New("invalid privilege tier")
)

// Tier is the privilege tier of a principal.
type Tier string

const (
	TierAdmin   Tier = "admin"
	TierPremium Tier = "premium"
	TierBasic   Tier = "basic"
	TierGuest   Tier = "guest"
)

// ParseTier parses a tier string. Unknown or empty strings resolve to
// TierGuest with ErrInvalidTier so callers fail toward least privilege.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierAdmin, TierPremium, TierBasic, TierGuest:
		return Tier(s), nil
	default:
		return TierGuest, ErrInvalidTier
	}
}

// Principal is the authenticated identity for one request. Supplied per
// request, immutable, never persisted by this service.
type Principal struct {
	// ID uniquely identifies the principal.
	ID string

	// TenantID is the owning tenant, if any.
	TenantID string

	// WorkspaceID is the owning workspace, if any.
	WorkspaceID string

	// Tier is the privilege tier.
	Tier Tier

	// Roles are role names granted upstream.
	Roles []string

	// Dirty marks the snapshot as stale (role just changed); consumers
	// bypass caches keyed on this principal for the current request.
	Dirty bool
}

// Validate checks the minimum attributes are present.
func (p *Principal) Validate() error {
	if p == nil || p.ID == "" {
		return ErrUnknownPrincipal
	}
	if _, err := ParseTier(string(p.Tier)); err != nil {
		return err
	}
	return nil
}

// IsAdmin reports whether the principal holds admin privilege, either via
// tier or via membership in the configured admin role set. The result is
// snapshotted by callers at request start.
func (p *Principal) IsAdmin(adminRoles []string) bool {
	if p == nil {
		return false
	}
	if p.Tier == TierAdmin {
		return true
	}
	for _, role := range p.Roles {
		if slices.Contains(adminRoles, role) {
			return true
		}
	}
	return false
}

// HasRole reports whether the principal holds the given role.
func (p *Principal) HasRole(role string) bool {
	return p != nil && slices.Contains(p.Roles, role)
}

// Source supplies already-authenticated principal attributes.
type Source interface {
	// Lookup returns the principal for an ID, or ErrUnknownPrincipal.
	Lookup(ctx context.Context, id string) (*Principal, error)
}
