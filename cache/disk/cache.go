// Package disk implements an on-disk extraction cache.
package disk

import (
	_ "crypto/sha256" // registers the algorithm behind cache key validation
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/raf/cache"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
)

// Cache implements cache.Cache using the local filesystem.
// Files are stored under <dir>/<algorithm>/<shard>/<encoded digest>.
// The cache is safe for concurrent use.
type Cache struct {
	dir            string       // root directory for cached files
	shardPrefixLen int          // number of hex chars for subdirectory sharding
	dirPerm        os.FileMode  // permissions for created directories
	maxBytes       int64        // maximum cache size (0 = unlimited)
	bytes          atomic.Int64 // current total size of cached files
	pruneMu        sync.Mutex   // serializes prune operations
}

var _ cache.Cache = (*Cache)(nil)

// Option configures a disk cache.
type Option func(*Cache)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the directory permissions used for cache directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithMaxBytes sets the maximum cache size in bytes.
// Values < 0 are invalid. Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// New creates a disk-backed cache rooted at dir.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	c := &Cache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.shardPrefixLen < 0 {
		return nil, errors.New("shard prefix length must be >= 0")
	}
	if c.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(dir)
	if err != nil {
		return nil, err
	}
	c.bytes.Store(size)
	return c, nil
}

// Get returns cached content for key.
func (c *Cache) Get(key digest.Digest) ([]byte, bool) {
	path, err := c.path(key)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is derived from a validated digest
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores content under key. Writes are atomic: a reader sees either no
// file or the complete content.
// Content larger than the size limit is silently not cached.
func (c *Cache) Put(key digest.Digest, content []byte) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	size := int64(len(content))
	ok, err := c.ensureCapacity(size)
	if err != nil || !ok {
		return err
	}
	written, err := c.writeAtomic(path, content)
	if err != nil {
		return err
	}
	if written {
		c.bytes.Add(size)
	}
	return nil
}

// writeAtomic renames a fully written temp file into place. It reports false
// when another writer installed path first.
func (c *Cache) writeAtomic(path string, content []byte) (bool, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(dir, "cache-*")
	if err != nil {
		return false, err
	}
	_, err = tmp.Write(content)
	err = errors.Join(err, tmp.Close())
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err == nil {
		return true, nil
	}
	_ = os.Remove(tmp.Name())
	if _, statErr := os.Stat(path); statErr == nil {
		return false, nil
	}
	return false, err
}

// Delete removes cached content for key. Missing entries are not an error.
func (c *Cache) Delete(key digest.Digest) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	info, err := os.Lstat(path)
	if err == nil {
		err = os.Remove(path)
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("delete %s: %w", key, err)
	}
	c.bytes.Add(-info.Size())
	return nil
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the current cache size in bytes.
func (c *Cache) SizeBytes() int64 {
	return c.bytes.Load()
}

// Prune removes the oldest cached entries until the cache is at or below
// targetBytes. Returns the number of bytes freed.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.dir, targetBytes)
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

func (c *Cache) path(key digest.Digest) (string, error) {
	if err := key.Validate(); err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	encoded := key.Encoded()
	algDir := filepath.Join(c.dir, key.Algorithm().String())
	if c.shardPrefixLen <= 0 {
		return filepath.Join(algDir, encoded), nil
	}
	prefixLen := min(c.shardPrefixLen, len(encoded))
	return filepath.Join(algDir, encoded[:prefixLen], encoded), nil
}

func (c *Cache) ensureCapacity(need int64) (bool, error) {
	if c.maxBytes <= 0 {
		return true, nil
	}
	if need > c.maxBytes {
		return false, nil
	}
	if c.SizeBytes()+need <= c.maxBytes {
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - need); err != nil {
		return false, err
	}
	return c.SizeBytes()+need <= c.maxBytes, nil
}
