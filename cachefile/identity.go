package cachefile

import (
	"crypto/sha1"
	"encoding/hex"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/richardartoul-symcache/symcache/store"
)

// IdentityFileCache is the identity-partitioned on-disk layout of spec
// §4.7: content lives at root/dir(key)/identityDirName(identity)/file(key),
// with a ".cache_info" sidecar at the same path, so that multiple
// upstreams that legitimately serve different files for the same key do
// not collide.
type IdentityFileCache struct {
	FileCacheBase
}

type identityLayout struct {
	root     string
	upstream store.Store
}

// identityDirName is the lowercase hex of the first 8 bytes of the SHA-1 of
// the UTF-8 encoding of identity (spec §4.7, §6): a 16-character directory
// name. Returns "" when identity is nil (legacy fallback).
func identityDirName(identity *string) string {
	if identity == nil {
		return ""
	}
	sum := sha1.Sum([]byte(*identity))
	return hex.EncodeToString(sum[:8])
}

func (l identityLayout) lookupPath(key string) string {
	identity := l.upstream.FileIdentity(key)
	dirName := identityDirName(identity)
	if dirName == "" {
		return filepath.Join(l.root, filepath.FromSlash(key))
	}

	dir, file := path.Split(key)
	return filepath.Join(l.root, filepath.FromSlash(dir), dirName, file)
}

func (l identityLayout) sidecarPath(contentPath string) string {
	return contentPath + ".cache_info"
}

func (l identityLayout) readInfo(contentPath string) (CacheFileInfo, bool) {
	data, err := os.ReadFile(l.sidecarPath(contentPath))
	if err != nil {
		return CacheFileInfo{}, false
	}
	info, err := ParseMetadata(data)
	if err != nil {
		return CacheFileInfo{}, false
	}
	return info, true
}

func (l identityLayout) writeInfo(contentPath string, info CacheFileInfo) error {
	sidecarPath := l.sidecarPath(contentPath)
	if err := os.MkdirAll(filepath.Dir(sidecarPath), 0755); err != nil {
		return err
	}

	tmpPath := sidecarPath + ".tmp"
	if err := os.WriteFile(tmpPath, FormatMetadata(info), 0644); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, sidecarPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func (l identityLayout) fileIdentity(key string) string {
	if id := l.upstream.FileIdentity(key); id != nil {
		return *id
	}
	return l.lookupPath(key)
}

// NewIdentityFileCache wraps upstream with the identity-partitioned
// layout, rooted at root. logger defaults to slog.Default() when nil.
func NewIdentityFileCache(root string, upstream store.Store, logger *slog.Logger) *IdentityFileCache {
	if logger == nil {
		logger = slog.Default()
	}
	layout := identityLayout{root: root, upstream: upstream}
	return &IdentityFileCache{
		FileCacheBase: FileCacheBase{
			root:     root,
			upstream: upstream,
			layout:   layout,
			logger:   logger,
		},
	}
}
