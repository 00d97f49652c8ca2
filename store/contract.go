package store

import (
	"context"
	"time"
)

// Store is the abstract query surface every layer of the cache hierarchy
// implements: local caches, the HTTP symbol-server client and its
// Microsoft variant, and the union of multiple upstreams.
type Store interface {
	// Name is a human-meaningful identifier: a base URL, a cache root path,
	// or "Union".
	Name() string

	// FileIdentity is a pure function (no I/O) naming which concrete file
	// would answer key, when that can be known before querying. It returns
	// nil when identity is unpredictable before dispatch.
	FileIdentity(key string) *string

	// Find looks up key, respecting ctx for cooperative cancellation and
	// policy for backoff/TTL behavior. It always returns a SearchResult;
	// transport or protocol failure is encoded as OutcomeUnreachable,
	// absence as OutcomeNotFound, presence as OutcomeSuccess. A non-nil
	// error indicates a programming or environment failure, never an
	// ordinary outcome.
	Find(ctx context.Context, key string, policy CacheValidityPolicy) (SearchResult, error)
}

// makeResult builds a SearchResult tagged with storeName's diagnostics
// frame, wrapping an optional upstream diagnostics chain. Every store uses
// this to construct its results so that the per-layer diagnostics frame is
// built consistently.
func makeResult(openStream OpenStreamFunc, outcome Outcome, identity *string, filePath string, queryTime time.Time, storeName string, upstream *Diagnostics) SearchResult {
	if openStream == nil {
		openStream = emptyStream
	}
	return SearchResult{
		Identity: identity,
		Diagnostics: &Diagnostics{
			Outcome:   outcome,
			FilePath:  filePath,
			QueryTime: queryTime,
			StoreName: storeName,
			Upstream:  upstream,
		},
		OpenStream: openStream,
	}
}

func strPtr(s string) *string { return &s }
