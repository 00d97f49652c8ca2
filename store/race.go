package store

import "context"

// raceFunc is one probe in a fan-out: it runs under ctx and returns a
// non-nil result on a hit, nil on a miss, or an error on failure.
type raceFunc func(ctx context.Context) (*SearchResult, error)

// race runs every fn concurrently under a child context derived from ctx.
// The first fn to return a non-nil result cancels its siblings. race waits
// for every fn to return before returning itself, so no goroutine is ever
// left running past the call (spec §5: "wait for all children to observe
// completion"). It returns the first non-nil result in fns order when more
// than one hit, or the first error if no fn produced a result and at least
// one failed.
func race(ctx context.Context, fns ...raceFunc) (*SearchResult, error) {
	childCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		idx    int
		result *SearchResult
		err    error
	}

	results := make(chan outcome, len(fns))
	for i, fn := range fns {
		go func(i int, fn raceFunc) {
			r, err := fn(childCtx)
			if r != nil {
				cancel()
			}
			results <- outcome{idx: i, result: r, err: err}
		}(i, fn)
	}

	collected := make([]outcome, len(fns))
	for range fns {
		o := <-results
		collected[o.idx] = o
	}

	for _, o := range collected {
		if o.result != nil {
			return o.result, nil
		}
	}
	for _, o := range collected {
		if o.err != nil {
			return nil, o.err
		}
	}
	return nil, nil
}
