package cachefile

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richardartoul-symcache/symcache/store"
)

// mockUpstream is a fixed-content Store used across cachefile tests,
// mirroring the teacher's pattern of small in-package test doubles.
type mockUpstream struct {
	name    string
	content map[string][]byte // key -> content; absent key means not found
}

func (m *mockUpstream) Name() string { return m.name }

func (m *mockUpstream) FileIdentity(key string) *string {
	id := m.name + "/" + key
	return &id
}

func (m *mockUpstream) Find(ctx context.Context, key string, policy store.CacheValidityPolicy) (store.SearchResult, error) {
	content, ok := m.content[key]
	identity := m.name + "/" + key
	now := time.Now()
	if !ok {
		return store.SearchResult{
			Identity: &identity,
			Diagnostics: &store.Diagnostics{
				Outcome:   store.OutcomeNotFound,
				QueryTime: now,
				StoreName: m.name,
			},
			OpenStream: func() (io.ReadCloser, error) { return nil, nil },
		}, nil
	}
	return store.SearchResult{
		Identity: &identity,
		Diagnostics: &store.Diagnostics{
			Outcome:   store.OutcomeSuccess,
			FilePath:  identity,
			QueryTime: now,
			StoreName: m.name,
		},
		OpenStream: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(string(content))), nil
		},
	}, nil
}

func TestIdentityFileCache_MultipleFilesPerKeySameRoot(t *testing.T) {
	root := t.TempDir()
	mock1 := &mockUpstream{name: "Mock1", content: map[string][]byte{"a/b/c": {1, 2, 3}}}
	mock2 := &mockUpstream{name: "Mock2", content: map[string][]byte{"a/b/c": {4, 5, 6}}}

	cache1 := NewIdentityFileCache(root, mock1, nil)
	cache2 := NewIdentityFileCache(root, mock2, nil)

	readFirstByte := func(c *IdentityFileCache) byte {
		r, err := c.Find(context.Background(), "a/b/c", store.DefaultCacheValidityPolicy)
		require.NoError(t, err)
		require.Equal(t, store.OutcomeSuccess, r.Diagnostics.Outcome)
		stream, err := r.OpenStream()
		require.NoError(t, err)
		defer stream.Close()
		buf := make([]byte, 1)
		_, err = stream.Read(buf)
		require.NoError(t, err)
		return buf[0]
	}

	assert.Equal(t, byte(1), readFirstByte(cache1))
	assert.Equal(t, byte(4), readFirstByte(cache2))
	assert.Equal(t, byte(1), readFirstByte(cache1))
}

func TestIdentityFileCache_DiagnosticsReconstruction(t *testing.T) {
	root := t.TempDir()
	mock1 := &mockUpstream{name: "Mock1", content: map[string][]byte{"a/b/c": {1, 2, 3}}}
	cache := NewIdentityFileCache(root, mock1, nil)

	r1, err := cache.Find(context.Background(), "a/b/c", store.DefaultCacheValidityPolicy)
	require.NoError(t, err)
	require.Equal(t, store.OutcomeSuccess, r1.Diagnostics.Outcome)
	assert.Equal(t, root, r1.Diagnostics.StoreName)
	require.NotNil(t, r1.Diagnostics.Upstream)
	assert.Equal(t, "Mock1", r1.Diagnostics.Upstream.StoreName)
	assert.Equal(t, "Mock1/a/b/c", r1.Diagnostics.Upstream.FilePath)

	sum := sha1.Sum([]byte("Mock1/a/b/c"))
	expectedHash := hex.EncodeToString(sum[:8])
	expectedPath := filepath.Join(root, "a", "b", expectedHash, "c")
	assert.Equal(t, expectedPath, r1.Diagnostics.FilePath)

	nestedQueryTime := r1.Diagnostics.Upstream.QueryTime

	r2, err := cache.Find(context.Background(), "a/b/c", store.DefaultCacheValidityPolicy)
	require.NoError(t, err)
	require.NotNil(t, r2.Diagnostics.Upstream)
	assert.True(t, nestedQueryTime.Equal(r2.Diagnostics.Upstream.QueryTime),
		"nested upstream queryTime must be stable across hits")
	assert.False(t, r1.Diagnostics.QueryTime.Equal(r2.Diagnostics.QueryTime),
		"outer queryTime must reflect current wall clock on each query")
}

func TestIdentityHashLiteral(t *testing.T) {
	hash := identityDirName(strPtr("Mock1/a/b/c"))
	assert.Equal(t, "cf2da09ef5f2261e", hash)
}

func TestIdentityFileCache_LegacyFallbackWhenIdentityUnknown(t *testing.T) {
	root := t.TempDir()
	upstream := &noIdentityUpstream{mockUpstream{name: "Mock1", content: map[string][]byte{"a/b/c": {9}}}}
	cache := NewIdentityFileCache(root, upstream, nil)

	r, err := cache.Find(context.Background(), "a/b/c", store.DefaultCacheValidityPolicy)
	require.NoError(t, err)
	require.Equal(t, store.OutcomeSuccess, r.Diagnostics.Outcome)
	assert.Equal(t, filepath.Join(root, "a", "b", "c"), r.Diagnostics.FilePath)

	// Sidecar must still be written and parseable even without an identity
	// directory.
	info, ok := identityLayout{root: root, upstream: upstream}.readInfo(r.Diagnostics.FilePath)
	require.True(t, ok)
	assert.Equal(t, "Mock1/a/b/c", info.FileIdentity)
}

type noIdentityUpstream struct{ mockUpstream }

func (n *noIdentityUpstream) FileIdentity(key string) *string { return nil }

func TestLegacyFileCache_NoDiagnosticsChainOnHit(t *testing.T) {
	root := t.TempDir()
	mock1 := &mockUpstream{name: "Mock1", content: map[string][]byte{"a/b/c": {1}}}
	cache := NewLegacyFileCache(root, mock1, nil)

	r1, err := cache.Find(context.Background(), "a/b/c", store.DefaultCacheValidityPolicy)
	require.NoError(t, err)
	require.Equal(t, store.OutcomeSuccess, r1.Diagnostics.Outcome)

	r2, err := cache.Find(context.Background(), "a/b/c", store.DefaultCacheValidityPolicy)
	require.NoError(t, err)
	assert.Nil(t, r2.Diagnostics.Upstream, "legacy cache hits have no upstream diagnostics chain")
}

func TestFileCacheBase_MissPropagatesNotFound(t *testing.T) {
	root := t.TempDir()
	mock1 := &mockUpstream{name: "Mock1", content: map[string][]byte{}}
	cache := NewIdentityFileCache(root, mock1, nil)

	r, err := cache.Find(context.Background(), "does/not/exist", store.DefaultCacheValidityPolicy)
	require.NoError(t, err)
	assert.Equal(t, store.OutcomeNotFound, r.Diagnostics.Outcome)
	require.NotNil(t, r.Diagnostics.Upstream)
	assert.Equal(t, store.OutcomeNotFound, r.Diagnostics.Upstream.Outcome)
}

func TestMetadataRoundTrip(t *testing.T) {
	info := CacheFileInfo{
		FileIdentity: "Mock1/a/b/c",
		UpstreamQueries: []UpstreamQuery{
			{StoreName: "Mock1", FilePath: "Mock1/a/b/c", LastQueryTime: time.Now().Truncate(time.Second).UTC()},
		},
	}
	data := FormatMetadata(info)
	got, err := ParseMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, info.FileIdentity, got.FileIdentity)
	require.Len(t, got.UpstreamQueries, 1)
	assert.Equal(t, info.UpstreamQueries[0].StoreName, got.UpstreamQueries[0].StoreName)
	assert.True(t, info.UpstreamQueries[0].LastQueryTime.Equal(got.UpstreamQueries[0].LastQueryTime))
}

// erringAfterNBytesReader fails with a mid-stream read error after
// yielding n bytes, simulating a crash between temp-write and rename.
type erringAfterNBytesReader struct {
	remaining []byte
}

func (r *erringAfterNBytesReader) Read(p []byte) (int, error) {
	if len(r.remaining) == 0 {
		return 0, errors.New("simulated mid-copy failure")
	}
	n := copy(p, r.remaining)
	r.remaining = r.remaining[n:]
	return n, nil
}

func (r *erringAfterNBytesReader) Close() error { return nil }

type crashingUpstream struct{ name string }

func (c *crashingUpstream) Name() string { return c.name }

func (c *crashingUpstream) FileIdentity(key string) *string {
	id := c.name + "/" + key
	return &id
}

func (c *crashingUpstream) Find(ctx context.Context, key string, policy store.CacheValidityPolicy) (store.SearchResult, error) {
	identity := c.name + "/" + key
	return store.SearchResult{
		Identity: &identity,
		Diagnostics: &store.Diagnostics{
			Outcome:   store.OutcomeSuccess,
			FilePath:  identity,
			QueryTime: time.Now(),
			StoreName: c.name,
		},
		OpenStream: func() (io.ReadCloser, error) {
			return &erringAfterNBytesReader{remaining: []byte("partial")}, nil
		},
	}, nil
}

func TestFileCacheBase_NoPartialFileLeftOnMidCopyFailure(t *testing.T) {
	root := t.TempDir()
	cache := NewIdentityFileCache(root, &crashingUpstream{name: "Mock1"}, nil)

	_, err := cache.Find(context.Background(), "a/b/c", store.DefaultCacheValidityPolicy)
	require.Error(t, err)

	localPath := identityLayout{root: root, upstream: &crashingUpstream{name: "Mock1"}}.lookupPath("a/b/c")
	_, statErr := os.Stat(localPath)
	assert.True(t, os.IsNotExist(statErr), "no partial content file should exist at the commit path after a mid-copy failure")

	entries, err := os.ReadDir(filepath.Dir(localPath))
	if err == nil {
		for _, e := range entries {
			assert.NotContains(t, e.Name(), "symcache-ingest-", "no leftover temp file should remain under the cache root")
		}
	}
}

func TestMetadataRejectsTornFile(t *testing.T) {
	_, err := ParseMetadata([]byte("File Identity: x\nStore: a\nFile Path: b\n"))
	assert.ErrorIs(t, err, ErrMalformedSidecar)
}

func strPtr(s string) *string { return &s }
