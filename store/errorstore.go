package store

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// ErrorStore wraps any Store and randomly reports OutcomeUnreachable at a
// configured rate, for testing caller resilience to transport failure.
// Ported from the teacher's backends/error.go, adapted to the Store
// contract: injected failures are outcomes, not Go errors, since a real
// transport failure from an upstream is itself an outcome (spec §7).
type ErrorStore struct {
	upstream  Store
	errorRate float64

	rng   *rand.Rand
	rngMu sync.Mutex

	injectedErrors atomic.Int64
}

// NewErrorStore wraps upstream; errorRate is clamped to [0, 1].
func NewErrorStore(upstream Store, errorRate float64) *ErrorStore {
	if errorRate < 0 {
		errorRate = 0
	}
	if errorRate > 1 {
		errorRate = 1
	}
	return &ErrorStore{
		upstream:  upstream,
		errorRate: errorRate,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (e *ErrorStore) shouldError() bool {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64() < e.errorRate
}

// Name delegates to the wrapped store.
func (e *ErrorStore) Name() string { return e.upstream.Name() }

// FileIdentity delegates to the wrapped store.
func (e *ErrorStore) FileIdentity(key string) *string { return e.upstream.FileIdentity(key) }

// Find delegates to upstream, occasionally substituting OutcomeUnreachable.
func (e *ErrorStore) Find(ctx context.Context, key string, policy CacheValidityPolicy) (SearchResult, error) {
	if e.shouldError() {
		e.injectedErrors.Add(1)
		identity := e.upstream.FileIdentity(key)
		return makeResult(nil, OutcomeUnreachable, identity, "", time.Now(), e.Name(),
			nil), nil
	}
	return e.upstream.Find(ctx, key, policy)
}

// InjectedErrors returns how many Find calls have had their outcome
// substituted so far. Thread-safe.
func (e *ErrorStore) InjectedErrors() int64 { return e.injectedErrors.Load() }
