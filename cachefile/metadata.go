// Package cachefile implements the read-through local-disk cache algorithm
// (FileCacheBase) and its two on-disk layout policies: the flat legacy
// layout and the identity-partitioned layout with persisted sidecar
// metadata.
package cachefile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richardartoul-symcache/symcache/store"
)

// UpstreamQuery is one flattened step of the upstream diagnostics chain at
// ingest time: {storeName, filePath, lastQueryTime}. Outcomes are not
// recorded — only Success steps are ever cached (spec §3).
type UpstreamQuery struct {
	StoreName     string
	FilePath      string
	LastQueryTime time.Time
}

// CacheFileInfo is the persisted sidecar: a flattened projection of the
// upstream diagnostics chain at ingest time.
type CacheFileInfo struct {
	FileIdentity    string
	UpstreamQueries []UpstreamQuery
}

// ErrMalformedSidecar is returned by ParseMetadata when any group of three
// lines fails to parse; a torn or corrupted sidecar invalidates the whole
// file and degrades to a legacy-style hit.
var ErrMalformedSidecar = errors.New("cachefile: malformed sidecar")

// FormatMetadata renders info in the textual grammar spec §6 defines:
// a "File Identity:" line followed by repeating groups of three lines
// ("Store:", "File Path:", "Last Query Time:").
func FormatMetadata(info CacheFileInfo) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "File Identity: %s\n", info.FileIdentity)
	for _, q := range info.UpstreamQueries {
		fmt.Fprintf(&b, "Store: %s\n", q.StoreName)
		fmt.Fprintf(&b, "File Path: %s\n", q.FilePath)
		fmt.Fprintf(&b, "Last Query Time: %s\n", q.LastQueryTime.Format(time.RFC3339Nano))
	}
	return []byte(b.String())
}

// ParseMetadata parses the textual sidecar grammar. The first non-empty
// line fixes FileIdentity; every three non-empty lines after it form one
// UpstreamQuery. Any malformed group invalidates the whole file.
func ParseMetadata(data []byte) (CacheFileInfo, error) {
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return CacheFileInfo{}, ErrMalformedSidecar
	}

	const identityPrefix = "File Identity: "
	if !strings.HasPrefix(lines[0], identityPrefix) {
		return CacheFileInfo{}, ErrMalformedSidecar
	}
	info := CacheFileInfo{FileIdentity: strings.TrimPrefix(lines[0], identityPrefix)}

	rest := lines[1:]
	if len(rest)%3 != 0 {
		return CacheFileInfo{}, ErrMalformedSidecar
	}
	for i := 0; i < len(rest); i += 3 {
		storeLine, pathLine, timeLine := rest[i], rest[i+1], rest[i+2]

		const storePrefix = "Store: "
		const pathPrefix = "File Path: "
		const timePrefix = "Last Query Time: "
		if !strings.HasPrefix(storeLine, storePrefix) ||
			!strings.HasPrefix(pathLine, pathPrefix) ||
			!strings.HasPrefix(timeLine, timePrefix) {
			return CacheFileInfo{}, ErrMalformedSidecar
		}

		queryTime, err := time.Parse(time.RFC3339Nano, strings.TrimPrefix(timeLine, timePrefix))
		if err != nil {
			return CacheFileInfo{}, ErrMalformedSidecar
		}

		info.UpstreamQueries = append(info.UpstreamQueries, UpstreamQuery{
			StoreName:     strings.TrimPrefix(storeLine, storePrefix),
			FilePath:      strings.TrimPrefix(pathLine, pathPrefix),
			LastQueryTime: queryTime,
		})
	}

	return info, nil
}

// flattenDiagnostics walks an upstream diagnostics chain depth-first
// (outer to inner) and appends one UpstreamQuery per node, per spec §4.5.1.
// The walk is explicit and iterative per spec §9's note that the
// flatten/unflatten must be bounded by chain length.
func flattenDiagnostics(d *store.Diagnostics) []UpstreamQuery {
	var queries []UpstreamQuery
	for node := d; node != nil; node = node.Upstream {
		queries = append(queries, UpstreamQuery{
			StoreName:     node.StoreName,
			FilePath:      node.FilePath,
			LastQueryTime: node.QueryTime,
		})
	}
	return queries
}

// unflattenDiagnostics folds a flat query list in reverse into a new
// diagnostics chain: the last entry becomes the deepest upstream node, each
// preceding entry wraps it. Every reconstructed node's outcome is Success
// (spec §4.5.1: only successes are ever cached).
func unflattenDiagnostics(queries []UpstreamQuery) *store.Diagnostics {
	var chain *store.Diagnostics
	for i := len(queries) - 1; i >= 0; i-- {
		q := queries[i]
		chain = &store.Diagnostics{
			Outcome:   store.OutcomeSuccess,
			FilePath:  q.FilePath,
			QueryTime: q.LastQueryTime,
			StoreName: q.StoreName,
			Upstream:  chain,
		}
	}
	return chain
}
