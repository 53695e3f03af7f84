package index

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/meigma/raf/internal/binio"
	"github.com/meigma/raf/internal/pathhash"
	"github.com/meigma/raf/internal/raftype"
)

// Layout constants for the metadata file.
const (
	// HeaderSize covers magic, version, manager index and the two table offsets.
	HeaderSize = 20

	// FileRecordSize is the size of one file-list record.
	FileRecordSize = 16

	// PathListHeaderSize is the region skipped at the start of the path list.
	PathListHeaderSize = 8

	// PathRecordSize is the size of one path-list record.
	PathRecordSize = 8

	// maxPrealloc bounds the up-front slice allocation for untrusted counts.
	maxPrealloc = 4096
)

// Header holds the table offsets read from the start of the metadata file.
type Header struct {
	FileListOffset uint64
	PathListOffset uint64
}

// Option configures Parse.
type Option func(*parser)

// WithLogger sets the logger for parse diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(p *parser) {
		p.logger = logger
	}
}

// WithMaxEntries rejects file lists that declare more than n entries.
// Set to 0 to disable the limit.
func WithMaxEntries(n int) Option {
	return func(p *parser) {
		p.maxEntries = n
	}
}

type parser struct {
	r          *binio.Reader
	size       uint64
	hdr        Header
	logger     *slog.Logger
	maxEntries int
}

// Parse reads the header and all three tables from r and returns the
// verified entries in file-list order.
//
// Counts and lengths read from the file are checked against the size of r
// before anything is allocated for them; a value that points past the end
// fails with ErrIO wrapping io.ErrUnexpectedEOF.
//
// Parse moves r's cursor; its final position is unspecified.
func Parse(r *binio.Reader, opts ...Option) ([]raftype.Entry, error) {
	p := &parser{r: r}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}

	size, err := r.Size()
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}
	p.size = size

	hdr, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}
	p.hdr = hdr
	p.logger.Debug("read metadata header",
		"size", size,
		"file_list_offset", hdr.FileListOffset,
		"path_list_offset", hdr.PathListOffset)

	return p.readFileList()
}

// ReadHeader reads the metadata header from the start of r.
func ReadHeader(r *binio.Reader) (Header, error) {
	if err := r.SetPosition(0); err != nil {
		return Header{}, fmt.Errorf("read header: %w", err)
	}
	// Magic, format version and manager index are not used.
	for range 3 {
		if _, err := r.ReadUint32LE(); err != nil {
			return Header{}, fmt.Errorf("read header: %w", err)
		}
	}
	fileList, err := r.ReadUint32LE()
	if err != nil {
		return Header{}, fmt.Errorf("read file list offset: %w", err)
	}
	pathList, err := r.ReadUint32LE()
	if err != nil {
		return Header{}, fmt.Errorf("read path list offset: %w", err)
	}
	return Header{
		FileListOffset: uint64(fileList),
		PathListOffset: uint64(pathList),
	}, nil
}

func (p *parser) readFileList() ([]raftype.Entry, error) {
	if err := p.r.SetPosition(p.hdr.FileListOffset); err != nil {
		return nil, fmt.Errorf("seek file list: %w", err)
	}
	count, err := p.r.ReadInt32LE()
	if err != nil {
		return nil, fmt.Errorf("read entry count: %w", err)
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative entry count %d", raftype.ErrCorruptIndex, count)
	}
	if p.maxEntries > 0 && int(count) > p.maxEntries {
		return nil, fmt.Errorf("%w: %d > %d", raftype.ErrTooManyEntries, count, p.maxEntries)
	}

	if !p.fits(p.hdr.FileListOffset+4, uint64(count)*FileRecordSize) {
		return nil, fmt.Errorf("%w: %d entries of %d bytes at %d exceed metadata size %d: %w",
			raftype.ErrIO, count, FileRecordSize, p.hdr.FileListOffset+4, p.size, io.ErrUnexpectedEOF)
	}

	entries := make([]raftype.Entry, 0, min(int(count), maxPrealloc))
	for i := range int(count) {
		entry, err := p.readRecord(i)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	p.logger.Debug("parsed file list", "entries", len(entries))
	return entries, nil
}

func (p *parser) readRecord(i int) (raftype.Entry, error) {
	hash, err := p.r.ReadInt32LE()
	if err != nil {
		return raftype.Entry{}, fmt.Errorf("read entry %d: %w", i, err)
	}
	dataOffset, err := p.r.ReadUint32LE()
	if err != nil {
		return raftype.Entry{}, fmt.Errorf("read entry %d: %w", i, err)
	}
	dataSize, err := p.r.ReadUint32LE()
	if err != nil {
		return raftype.Entry{}, fmt.Errorf("read entry %d: %w", i, err)
	}
	pathIndex, err := p.r.ReadInt32LE()
	if err != nil {
		return raftype.Entry{}, fmt.Errorf("read entry %d: %w", i, err)
	}
	if pathIndex < 0 {
		return raftype.Entry{}, &raftype.CorruptIndexError{
			Index:  i,
			Stored: hash,
			Err:    fmt.Errorf("negative path index %d", pathIndex),
		}
	}

	next, err := p.r.Position()
	if err != nil {
		return raftype.Entry{}, fmt.Errorf("read entry %d: %w", i, err)
	}

	path, err := p.resolvePath(uint64(pathIndex))
	if err != nil {
		return raftype.Entry{}, &raftype.CorruptIndexError{Index: i, Stored: hash, Err: err}
	}

	if computed := pathhash.Hash(path); computed != hash {
		return raftype.Entry{}, &raftype.CorruptIndexError{
			Index:    i,
			Path:     path,
			Stored:   hash,
			Computed: computed,
		}
	}

	if err := p.r.SetPosition(next); err != nil {
		return raftype.Entry{}, fmt.Errorf("read entry %d: %w", i, err)
	}

	return raftype.Entry{
		Path:       path,
		DataOffset: uint64(dataOffset),
		DataSize:   uint64(dataSize),
		Hash:       hash,
		Index:      i,
	}, nil
}

// resolvePath follows a path-list index to the padded path string it names.
func (p *parser) resolvePath(pathIndex uint64) (string, error) {
	record := p.hdr.PathListOffset + PathListHeaderSize + pathIndex*PathRecordSize
	if err := p.r.SetPosition(record); err != nil {
		return "", fmt.Errorf("seek path record %d: %w", pathIndex, err)
	}
	pathOffset, err := p.r.ReadUint32LE()
	if err != nil {
		return "", fmt.Errorf("read path record %d: %w", pathIndex, err)
	}
	pathSize, err := p.r.ReadInt32LE()
	if err != nil {
		return "", fmt.Errorf("read path record %d: %w", pathIndex, err)
	}
	if pathSize < 0 {
		return "", fmt.Errorf("path record %d: negative path size %d", pathIndex, pathSize)
	}

	start := p.hdr.PathListOffset + uint64(pathOffset)
	if !p.fits(start, uint64(pathSize)) {
		return "", fmt.Errorf("%w: path %d: %d bytes at %d exceed metadata size %d: %w",
			raftype.ErrIO, pathIndex, pathSize, start, p.size, io.ErrUnexpectedEOF)
	}
	if err := p.r.SetPosition(start); err != nil {
		return "", fmt.Errorf("seek path %d: %w", pathIndex, err)
	}
	raw, err := p.r.ReadFixedString(uint32(pathSize))
	if err != nil {
		return "", fmt.Errorf("read path %d: %w", pathIndex, err)
	}
	return TrimPath(raw), nil
}

// fits reports whether n bytes starting at off lie within the metadata file.
func (p *parser) fits(off, n uint64) bool {
	return off <= p.size && n <= p.size-off
}

// TrimPath strips leading and trailing padding: NUL, spaces and any other
// control byte up to 0x20.
func TrimPath(s string) string {
	return strings.TrimFunc(s, func(r rune) bool { return r <= ' ' })
}
