package cachefile

import (
	"log/slog"
	"path/filepath"

	"github.com/richardartoul-symcache/symcache/store"
)

// LegacyFileCache is the flat on-disk layout of spec §4.6: content lives at
// root/key (separators normalized to the platform separator) with no
// persisted metadata, so a hit has no upstream diagnostics chain.
type LegacyFileCache struct {
	FileCacheBase
}

type legacyLayout struct {
	root     string
	upstream store.Store
}

func (l legacyLayout) lookupPath(key string) string {
	return filepath.Join(l.root, filepath.FromSlash(key))
}

func (l legacyLayout) sidecarPath(contentPath string) string { return "" }

func (l legacyLayout) readInfo(contentPath string) (CacheFileInfo, bool) {
	return CacheFileInfo{}, false
}

func (l legacyLayout) writeInfo(contentPath string, info CacheFileInfo) error {
	return nil
}

func (l legacyLayout) fileIdentity(key string) string {
	return l.lookupPath(key)
}

// NewLegacyFileCache wraps upstream with the flat legacy layout, rooted at
// root. logger defaults to slog.Default() when nil.
func NewLegacyFileCache(root string, upstream store.Store, logger *slog.Logger) *LegacyFileCache {
	if logger == nil {
		logger = slog.Default()
	}
	layout := legacyLayout{root: root, upstream: upstream}
	return &LegacyFileCache{
		FileCacheBase: FileCacheBase{
			root:     root,
			upstream: upstream,
			layout:   layout,
			logger:   logger,
		},
	}
}
