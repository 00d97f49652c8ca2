// Package dedupe deduplicates concurrent cache-ingest attempts for the
// same key. FileCacheBase (see cachefile) can wrap the "delegate upstream,
// then write sidecar and content" sequence of a miss in a Group so that
// concurrent misses on the same key only hit the upstream and disk once.
// This addresses the Open Question in spec §9 on whether concurrent cache
// writes should be serialized: leaving the cache's Group unset preserves
// the spec's documented default of not serializing; NoOpGroup makes that
// explicit for callers that want it named.
package dedupe

// Group is an interface for deduplicating concurrent requests.
// It ensures that only one execution is in-flight for a given key at a time.
type Group interface {
	// Do executes and returns the results of the given function, making sure that
	// only one execution is in-flight for a given key at a time. If a duplicate
	// comes in, the duplicate caller waits for the original to complete and
	// receives the same results. The return value shared indicates whether v was
	// given to multiple callers.
	Do(key string, fn func() (interface{}, error)) (v interface{}, err error, shared bool)
}
