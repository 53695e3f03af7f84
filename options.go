package raf

import (
	"log/slog"
	"math"

	"github.com/meigma/raf/cache"
	"github.com/meigma/raf/internal/binio"
)

// AccessMode selects how the archive files are opened.
type AccessMode = binio.AccessMode

// Access modes, named after the legacy handle modes "r", "rw", "rws" and "rwd".
const (
	ModeRead              = binio.ModeRead
	ModeReadWrite         = binio.ModeReadWrite
	ModeReadWriteSync     = binio.ModeReadWriteSync
	ModeReadWriteDataSync = binio.ModeReadWriteDataSync
)

// MaxEntrySize is the largest entry ReadEntry will extract.
const MaxEntrySize = math.MaxUint32

type config struct {
	mode         AccessMode
	logger       *slog.Logger
	maxEntrySize uint64
	maxEntries   int
	cache        cache.Cache
}

func newConfig(opts []Option) config {
	cfg := config{
		mode:         ModeReadWrite,
		maxEntrySize: MaxEntrySize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	return cfg
}

// Option configures Open.
type Option func(*config)

// WithAccessMode sets how both archive files are opened.
//
// The default is ModeReadWrite, which fails on read-only files; use ModeRead
// for archives on read-only media.
func WithAccessMode(mode AccessMode) Option {
	return func(c *config) {
		c.mode = mode
	}
}

// WithLogger sets the logger for index parsing and cache diagnostics.
// By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMaxEntrySize lowers the largest entry ReadEntry will extract.
// Zero, or any value above MaxEntrySize, means MaxEntrySize.
func WithMaxEntrySize(limit uint64) Option {
	return func(c *config) {
		if limit == 0 || limit > MaxEntrySize {
			limit = MaxEntrySize
		}
		c.maxEntrySize = limit
	}
}

// WithMaxEntries rejects archives whose file list declares more than n entries.
// Set to 0 to disable the limit.
func WithMaxEntries(n int) Option {
	return func(c *config) {
		c.maxEntries = n
	}
}

// WithCache enables the extraction cache.
//
// Extracted bytes are stored after the first read and served from the cache
// afterwards. Concurrent misses for the same entry are deduplicated.
func WithCache(c cache.Cache) Option {
	return func(cfg *config) {
		cfg.cache = c
	}
}
