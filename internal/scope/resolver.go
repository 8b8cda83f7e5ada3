package scope

import (
	"context"

	"github.com/fyrsmithlabs/retrievald/internal/config"
	"github.com/fyrsmithlabs/retrievald/internal/invalidation"
	"github.com/fyrsmithlabs/retrievald/internal/logging"
	"github.com/fyrsmithlabs/retrievald/internal/principal"
	"go.uber.org/zap"
)

// Resolver computes the minimal retrieval scope for (principal, collection).
//
// Resolution rules, in order:
//  1. Admin (tier or configured admin role, snapshotted per request):
//     unrestricted, empty filters. The only bypass path.
//  2. The designated "self" collection: non-admins are restricted to their
//     own record regardless of tenant/workspace attributes.
//  3. Tenant and/or workspace attributes become equality filter clauses.
//  4. A non-admin with neither attribute gets owner-only scope. Never wider.
//
// Scopes are cached per (principalID, collection, configVersion) with a TTL;
// a dirty principal snapshot bypasses the cache for its request.
type Resolver struct {
	store  *config.Store
	cache  *cache
	logger *logging.Logger
}

// NewResolver creates a resolver and subscribes it to invalidation events.
func NewResolver(store *config.Store, bus *invalidation.Bus, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg := store.Current().Access

	r := &Resolver{
		store:  store,
		cache:  newCache(cfg.CacheTTL, cfg.CacheMaxEntries),
		logger: logger.Named("scope"),
	}

	if bus != nil {
		bus.Subscribe(func(event invalidation.Event) {
			r.cache.invalidateCollection(event.Collection)
		})
	}

	return r
}

// Resolve computes the retrieval scope for the principal on one collection.
//
// Resolve never fails open: an absent, unvalidated, or attribute-less
// principal yields owner-only scope (which matches nothing for an empty
// principal ID).
func (r *Resolver) Resolve(ctx context.Context, p *principal.Principal, collection string) Scope {
	cfg := r.store.Current().Access
	version := r.store.Version()

	if p == nil || p.ID == "" {
		r.logger.Warn(ctx, "scope resolution without principal, failing closed",
			zap.String("collection", collection),
		)
		return Scope{Filters: map[string]interface{}{cfg.OwnerField: ""}}
	}

	key := cacheKey(p.ID, collection, version)
	if !p.Dirty {
		if cached, ok := r.cache.get(key); ok {
			return cached
		}
	}

	s := r.compute(ctx, p, collection, &cfg)
	r.cache.set(key, collection, s)
	return s
}

func (r *Resolver) compute(ctx context.Context, p *principal.Principal, collection string, cfg *config.AccessConfig) Scope {
	// Admin status is snapshotted here, once per resolution.
	if p.IsAdmin(cfg.AdminRoles) {
		return Scope{Unrestricted: true}
	}

	// Principal records: always own-record only for non-admins.
	if collection == cfg.SelfCollection {
		return Scope{Filters: map[string]interface{}{cfg.SelfIDField: p.ID}}
	}

	filters := make(map[string]interface{}, 2)
	if p.TenantID != "" {
		filters[cfg.TenantField] = p.TenantID
	}
	if p.WorkspaceID != "" {
		filters[cfg.WorkspaceField] = p.WorkspaceID
	}

	if len(filters) == 0 {
		// Missing tenancy attributes on a non-admin: owner-only.
		r.logger.Debug(ctx, "principal has no tenancy attributes, using owner-only scope",
			zap.String("collection", collection),
		)
		filters[cfg.OwnerField] = p.ID
	}

	return Scope{Filters: filters}
}

// ResolveAll resolves scopes for a set of collections.
func (r *Resolver) ResolveAll(ctx context.Context, p *principal.Principal, collections []string) Set {
	set := make(Set, len(collections))
	for _, collection := range collections {
		set[collection] = r.Resolve(ctx, p, collection)
	}
	return set
}
