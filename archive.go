package raf

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/raf/cache"
	"github.com/meigma/raf/internal/binio"
	"github.com/meigma/raf/internal/index"
	"github.com/meigma/raf/internal/raftype"
)

// Entry describes one file in the archive.
type Entry = raftype.Entry

// Archive provides access to the entries of an open RAF archive.
//
// The index is read-only after Open. Reads from the data file are
// serialized internally, so an Archive is safe for concurrent use.
type Archive struct {
	metaFile     *os.File
	dataFile     *os.File
	data         *binio.Locked
	entries      []Entry
	byPath       map[string]int
	dataID       string
	dataSize     uint64
	maxEntrySize uint64
	cache        cache.Cache        // nil = no caching
	readGroup    singleflight.Group // zero value is valid
	logger       *slog.Logger
	closed       atomic.Bool
}

// Open opens the metadata and data files of an archive and parses its index.
//
// Both files stay open until Close. If the index cannot be read or fails
// verification, Open closes whatever it opened and returns the error.
func Open(metadataPath, dataPath string, opts ...Option) (a *Archive, err error) {
	cfg := newConfig(opts)

	metaFile, err := binio.OpenFile(metadataPath, cfg.mode)
	if err != nil {
		return nil, fmt.Errorf("open metadata file: %w", err)
	}
	defer func() {
		if err != nil {
			metaFile.Close()
		}
	}()

	dataFile, err := binio.OpenFile(dataPath, cfg.mode)
	if err != nil {
		return nil, fmt.Errorf("open data file: %w", err)
	}
	defer func() {
		if err != nil {
			dataFile.Close()
		}
	}()

	dataID, dataSize, err := sourceID(dataFile, dataPath)
	if err != nil {
		return nil, err
	}

	entries, err := index.Parse(binio.NewReader(metaFile),
		index.WithLogger(cfg.logger),
		index.WithMaxEntries(cfg.maxEntries),
	)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", metadataPath, err)
	}

	byPath := make(map[string]int, len(entries))
	for i, e := range entries {
		key := strings.ToLower(e.Path)
		if _, dup := byPath[key]; dup {
			cfg.logger.Debug("duplicate archive path", "path", e.Path, "index", i)
			continue
		}
		byPath[key] = i
	}

	cfg.logger.Debug("opened archive",
		"metadata", metadataPath,
		"data", dataPath,
		"mode", cfg.mode.String(),
		"entries", len(entries))

	return &Archive{
		metaFile:     metaFile,
		dataFile:     dataFile,
		data:         binio.NewLocked(dataFile),
		entries:      entries,
		byPath:       byPath,
		dataID:       dataID,
		dataSize:     dataSize,
		maxEntrySize: cfg.maxEntrySize,
		cache:        cfg.cache,
		logger:       cfg.logger,
	}, nil
}

// sourceID identifies the data file's current contents for cache keys and
// reports its size.
func sourceID(f *os.File, path string) (string, uint64, error) {
	info, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("%w: stat data file: %w", ErrIO, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	id := abs + "\x00" + strconv.FormatInt(info.Size(), 10) +
		"\x00" + strconv.FormatInt(info.ModTime().UnixNano(), 10)
	return id, uint64(info.Size()), nil //nolint:gosec // file sizes are non-negative
}

// Entries returns a copy of all entries in file-list order.
func (a *Archive) Entries() []Entry {
	return slices.Clone(a.entries)
}

// All returns an iterator over all entries in file-list order.
func (a *Archive) All() iter.Seq[Entry] {
	return slices.Values(a.entries)
}

// Len returns the number of entries in the archive.
func (a *Archive) Len() int {
	return len(a.entries)
}

// Lookup returns the entry stored under path.
//
// Matching ignores ASCII case, like the archive's path checksum. When the
// archive lists a path more than once the first entry wins.
func (a *Archive) Lookup(path string) (Entry, bool) {
	i, ok := a.byPath[strings.ToLower(path)]
	if !ok {
		return Entry{}, false
	}
	return a.entries[i], true
}

// ReadEntry returns the raw bytes of e from the data file.
//
// Entries larger than the configured size limit fail with ErrSizeLimit
// before the data file is touched. Entries that extend past the end of the
// data file, as sized when the archive was opened, fail with ErrIO without
// allocating. The bytes are not decompressed.
func (a *Archive) ReadEntry(e Entry) ([]byte, error) {
	if e.DataSize > a.maxEntrySize {
		return nil, fmt.Errorf("read %s: %w: %d bytes, limit %d", e.Path, ErrSizeLimit, e.DataSize, a.maxEntrySize)
	}
	if a.closed.Load() {
		return nil, fmt.Errorf("read %s: %w", e.Path, ErrClosed)
	}
	if e.DataOffset > a.dataSize || e.DataSize > a.dataSize-e.DataOffset {
		return nil, fmt.Errorf("read %s: %w: range %d+%d exceeds data file size %d: %w",
			e.Path, ErrIO, e.DataOffset, e.DataSize, a.dataSize, io.ErrUnexpectedEOF)
	}

	if a.cache == nil {
		return a.readRange(e)
	}

	key := a.cacheKey(e)
	if content, ok := a.cachedEntry(e, key); ok {
		a.logger.Debug("entry cache hit", "path", e.Path)
		return content, nil
	}
	a.logger.Debug("entry cache miss", "path", e.Path)

	result, err, shared := a.readGroup.Do(key.String(), func() (any, error) {
		if content, ok := a.cachedEntry(e, key); ok {
			return content, nil
		}
		content, err := a.readRange(e)
		if err != nil {
			return nil, err
		}
		if err := a.cache.Put(key, sealCached(content)); err != nil {
			a.logger.Warn("entry cache put failed", "path", e.Path, "error", err)
		}
		return content, nil
	})
	if err != nil {
		return nil, err
	}
	content := result.([]byte) //nolint:errcheck // type assertion always succeeds when err is nil
	if shared {
		content = slices.Clone(content)
	}
	return content, nil
}

func (a *Archive) readRange(e Entry) ([]byte, error) {
	content, err := a.data.ReadRange(e.DataOffset, uint32(e.DataSize)) //nolint:gosec // bounded by maxEntrySize
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.Path, err)
	}
	return content, nil
}

// cacheKey identifies an entry's byte range within this data file.
func (a *Archive) cacheKey(e Entry) digest.Digest {
	return digest.FromString(a.dataID + "\x00" +
		strconv.FormatUint(e.DataOffset, 10) + "\x00" +
		strconv.FormatUint(e.DataSize, 10))
}

// EntryDigest returns the sha256 digest of e's raw bytes.
func (a *Archive) EntryDigest(e Entry) (digest.Digest, error) {
	content, err := a.ReadEntry(e)
	if err != nil {
		return "", err
	}
	return digest.FromBytes(content), nil
}

// Close closes both archive files. Calling Close more than once is a no-op.
func (a *Archive) Close() error {
	if a.closed.Swap(true) {
		return nil
	}
	return errors.Join(a.metaFile.Close(), a.dataFile.Close())
}

// String returns the names of the archive's files.
func (a *Archive) String() string {
	return fmt.Sprintf("raf.Archive{%q, %q}", a.metaFile.Name(), a.dataFile.Name())
}
