package store

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// UnionStore fans a Find out across multiple upstreams concurrently and
// returns the first success, cancelling the rest (spec §4.4). A fast
// authoritative miss on one upstream never suppresses a slower hit on
// another: only a Success result triggers cancellation.
type UnionStore struct {
	upstreams []Store
}

// NewUnionStore composes upstreams, in priority order for result selection
// when more than one succeeds.
func NewUnionStore(upstreams ...Store) *UnionStore {
	return &UnionStore{upstreams: upstreams}
}

// Name always returns "Union".
func (u *UnionStore) Name() string { return "Union" }

// FileIdentity always returns nil: identity is not knowable before dispatch.
func (u *UnionStore) FileIdentity(key string) *string { return nil }

// Find implements Store.
func (u *UnionStore) Find(ctx context.Context, key string, policy CacheValidityPolicy) (SearchResult, error) {
	if _, err := SanitizeKey(key); err != nil {
		return SearchResult{}, err
	}
	if len(u.upstreams) == 0 {
		return SearchResult{OpenStream: emptyStream}, nil
	}

	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]SearchResult, len(u.upstreams))
	errs := make([]error, len(u.upstreams))

	g, gctx := errgroup.WithContext(childCtx)
	for i, upstream := range u.upstreams {
		i, upstream := i, upstream
		g.Go(func() error {
			r, err := upstream.Find(gctx, key, policy)
			results[i] = r
			errs[i] = err
			if err == nil && r.Diagnostics != nil && r.Diagnostics.Outcome == OutcomeSuccess {
				cancel()
			}
			return nil
		})
	}
	// Intentionally ignore errgroup's own error: each goroutine above
	// always returns nil so its members finish concurrently; we collect
	// per-upstream errors ourselves and wait for every one before
	// returning, satisfying spec §5's "wait for all children" rule.
	_ = g.Wait()

	for i := range u.upstreams {
		if errs[i] != nil {
			return SearchResult{}, errs[i]
		}
	}
	for i := range u.upstreams {
		if results[i].Diagnostics != nil && results[i].Diagnostics.Outcome == OutcomeSuccess {
			return results[i], nil
		}
	}
	// No success: report the first non-empty result if present, otherwise
	// an empty result with nil Diagnostics (no diagnostics are fabricated).
	for i := range u.upstreams {
		if results[i].Diagnostics != nil {
			return results[i], nil
		}
	}
	return SearchResult{OpenStream: emptyStream}, nil
}
