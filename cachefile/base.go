package cachefile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/richardartoul-symcache/symcache/dedupe"
	"github.com/richardartoul-symcache/symcache/store"
)

// cacheLayout is the on-disk layout policy a cache variant supplies to
// FileCacheBase: where a key's content and sidecar live, and how the
// sidecar is read and written. LegacyFileCache and IdentityFileCache are
// the two variants spec §4.6 and §4.7 describe.
type cacheLayout interface {
	// lookupPath returns the absolute path content for key is stored at.
	lookupPath(key string) string
	// sidecarPath returns the path of key's metadata sidecar, or "" if this
	// layout does not persist one (legacy).
	sidecarPath(contentPath string) string
	// readInfo reads and parses the sidecar for contentPath. ok is false
	// when no sidecar is persisted by this layout, or it failed to parse.
	readInfo(contentPath string) (info CacheFileInfo, ok bool)
	// writeInfo persists info for contentPath. A no-op layout (legacy)
	// returns nil without writing anything.
	writeInfo(contentPath string, info CacheFileInfo) error
	// fileIdentity is the cache's own FileIdentity(key), falling back when
	// the upstream does not report one.
	fileIdentity(key string) string
}

// FileCacheBase implements the read-through caching algorithm of spec
// §4.5, parameterized by a cacheLayout. LegacyFileCache and
// IdentityFileCache embed it with their own layout.
type FileCacheBase struct {
	root     string
	upstream store.Store
	layout   cacheLayout
	logger   *slog.Logger

	// dedupeGroup, when non-nil, serializes the upstream-delegate-then-
	// ingest sequence per key (see package dedupe's doc comment). Left nil
	// by default, preserving spec's documented non-serializing behavior.
	dedupeGroup dedupe.Group
}

// SetDedupeGroup installs g to serialize concurrent misses on the same key.
func (c *FileCacheBase) SetDedupeGroup(g dedupe.Group) { c.dedupeGroup = g }

// Name returns the cache's root directory.
func (c *FileCacheBase) Name() string { return c.root }

// FileIdentity delegates to the layout. The identity layout consults the
// upstream's own FileIdentity; the legacy layout returns its cache path.
func (c *FileCacheBase) FileIdentity(key string) *string {
	id := c.layout.fileIdentity(key)
	return &id
}

// Find implements the read-through algorithm of spec §4.5.
func (c *FileCacheBase) Find(ctx context.Context, key string, policy store.CacheValidityPolicy) (store.SearchResult, error) {
	if _, err := store.SanitizeKey(key); err != nil {
		return store.SearchResult{}, err
	}

	localPath := c.layout.lookupPath(key)
	queryTime := time.Now()

	if _, err := os.Stat(localPath); err == nil {
		return c.serveFromCache(localPath, queryTime), nil
	}

	miss := func() (interface{}, error) {
		return c.missAndIngest(ctx, key, localPath, policy)
	}

	var (
		v   interface{}
		err error
	)
	if c.dedupeGroup != nil {
		v, err, _ = c.dedupeGroup.Do(key, miss)
	} else {
		v, err = miss()
	}
	if err != nil {
		return store.SearchResult{}, err
	}
	return v.(store.SearchResult), nil
}

// serveFromCache reconstructs a diagnostics chain from the sidecar (or
// falls back to a sidecar-less hit) and returns a Success result reading
// the on-disk content lazily (spec §4.5 step 2, §4.5.1).
func (c *FileCacheBase) serveFromCache(localPath string, queryTime time.Time) store.SearchResult {
	info, ok := c.layout.readInfo(localPath)

	identity := localPath
	var upstream *store.Diagnostics
	if ok {
		identity = info.FileIdentity
		upstream = unflattenDiagnostics(info.UpstreamQueries)
	}

	return store.SearchResult{
		Identity: &identity,
		Diagnostics: &store.Diagnostics{
			Outcome:   store.OutcomeSuccess,
			FilePath:  localPath,
			QueryTime: queryTime,
			StoreName: c.root,
			Upstream:  upstream,
		},
		OpenStream: func() (io.ReadCloser, error) { return os.Open(localPath) },
	}
}

// missAndIngest delegates to the upstream and, on success, spools its
// stream to disk and writes the sidecar before the commit-point rename
// (spec §4.5 steps 3-4).
func (c *FileCacheBase) missAndIngest(ctx context.Context, key, localPath string, policy store.CacheValidityPolicy) (store.SearchResult, error) {
	r, err := c.upstream.Find(ctx, key, policy)
	if err != nil {
		return store.SearchResult{}, err
	}

	queryTime := time.Now()
	if r.Diagnostics == nil || r.Diagnostics.Outcome != store.OutcomeSuccess {
		return store.SearchResult{
			Identity: &localPath,
			Diagnostics: &store.Diagnostics{
				Outcome:   store.OutcomeNotFound,
				FilePath:  localPath,
				QueryTime: queryTime,
				StoreName: c.root,
				Upstream:  r.Diagnostics,
			},
			OpenStream: func() (io.ReadCloser, error) { return nil, nil },
		}, nil
	}

	identity := localPath
	if r.Identity != nil {
		identity = *r.Identity
	}
	info := CacheFileInfo{
		FileIdentity:    identity,
		UpstreamQueries: flattenDiagnostics(r.Diagnostics),
	}

	sidecarPath := c.layout.sidecarPath(localPath)
	if sidecarPath != "" {
		if err := c.layout.writeInfo(localPath, info); err != nil {
			c.logger.Warn("cachefile: failed to write sidecar", "key", key, "error", err)
		}
	}

	if err := c.spoolToDisk(r, localPath); err != nil {
		return store.SearchResult{}, fmt.Errorf("cachefile: ingesting %s: %w", key, err)
	}

	return store.SearchResult{
		Identity: &identity,
		Diagnostics: &store.Diagnostics{
			Outcome:   store.OutcomeSuccess,
			FilePath:  localPath,
			QueryTime: queryTime,
			StoreName: c.root,
			Upstream:  unflattenDiagnostics(info.UpstreamQueries),
		},
		OpenStream: func() (io.ReadCloser, error) { return os.Open(localPath) },
	}, nil
}

// spoolToDisk writes r's stream to a temp file in the OS temp directory and
// renames it onto localPath, the commit point (spec §4.5 step 4b). This is
// grounded directly on the teacher's localcache.go Write method.
func (c *FileCacheBase) spoolToDisk(r store.SearchResult, localPath string) error {
	stream, err := r.OpenStream()
	if err != nil {
		return fmt.Errorf("opening upstream stream: %w", err)
	}
	if stream == nil {
		return fmt.Errorf("upstream reported success with no stream")
	}
	defer stream.Close()

	destDir := filepath.Dir(localPath)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(os.TempDir(), "symcache-ingest-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmpFile, stream); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		return fmt.Errorf("renaming into cache: %w", err)
	}
	return nil
}
