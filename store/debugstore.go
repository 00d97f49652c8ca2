package store

import (
	"context"
	"fmt"
	"os"
	"time"
)

// DebugStore wraps any Store and writes one line per Find to stderr,
// unconditionally, regardless of the ambient slog level. Ported from the
// teacher's backends/debug.go for operators who want raw tracing without
// reconfiguring logging. Prefer an injected *slog.Logger everywhere else.
type DebugStore struct {
	upstream Store
}

// NewDebugStore wraps upstream with stderr tracing.
func NewDebugStore(upstream Store) *DebugStore {
	return &DebugStore{upstream: upstream}
}

// Name delegates to the wrapped store.
func (d *DebugStore) Name() string { return d.upstream.Name() }

// FileIdentity delegates to the wrapped store.
func (d *DebugStore) FileIdentity(key string) *string { return d.upstream.FileIdentity(key) }

// Find delegates to upstream, logging the request and outcome to stderr.
func (d *DebugStore) Find(ctx context.Context, key string, policy CacheValidityPolicy) (SearchResult, error) {
	fmt.Fprintf(os.Stderr, "[DEBUG] Find: store=%s key=%s\n", d.upstream.Name(), key)

	start := time.Now()
	r, err := d.upstream.Find(ctx, key, policy)
	duration := time.Since(start)

	if err != nil {
		fmt.Fprintf(os.Stderr, "[DEBUG] Find: store=%s key=%s ERROR: %v (duration: %v)\n",
			d.upstream.Name(), key, err, duration)
		return r, err
	}

	outcome := OutcomeUnreachable
	if r.Diagnostics != nil {
		outcome = r.Diagnostics.Outcome
	}
	fmt.Fprintf(os.Stderr, "[DEBUG] Find: store=%s key=%s outcome=%s (duration: %v)\n",
		d.upstream.Name(), key, outcome, duration)

	return r, nil
}
