// Package testutil builds synthetic RAF archives for tests.
package testutil

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/meigma/raf/internal/pathhash"
)

// Magic is the metadata magic number written by Builder. Readers ignore it.
const Magic = 0x18be0ef0

// Encoded sizes of the metadata structures written by Builder. They mirror
// the parser's layout constants, which this package cannot import.
const (
	HeaderSize         = 20
	FileRecordSize     = 16
	PathListHeaderSize = 8
	PathRecordSize     = 8
)

// File is a named payload added to a Builder.
type File struct {
	Path    string
	Content []byte
}

// Layout records where Builder placed each structure in the metadata file
// so tests can tamper with specific fields.
type Layout struct {
	FileListOffset uint32
	PathListOffset uint32
	// DataOffsets holds each file's offset in the data file, in file-list order.
	DataOffsets []uint32
	// PathIndexes holds the path-list index assigned to each file.
	PathIndexes []int32
}

// RecordOffset returns the metadata offset of file-list record i.
func (l Layout) RecordOffset(i int) int {
	return int(l.FileListOffset) + 4 + i*FileRecordSize
}

// HashOffset returns the metadata offset of record i's stored hash.
func (l Layout) HashOffset(i int) int { return l.RecordOffset(i) }

// DataOffsetOffset returns the metadata offset of record i's data offset.
func (l Layout) DataOffsetOffset(i int) int { return l.RecordOffset(i) + 4 }

// DataSizeOffset returns the metadata offset of record i's data size.
func (l Layout) DataSizeOffset(i int) int { return l.RecordOffset(i) + 8 }

// PathIndexOffset returns the metadata offset of record i's path-list index.
func (l Layout) PathIndexOffset(i int) int { return l.RecordOffset(i) + 12 }

// PathRecordOffset returns the metadata offset of path-list record slot.
func (l Layout) PathRecordOffset(slot int) int {
	return int(l.PathListOffset) + PathListHeaderSize + slot*PathRecordSize
}

// PathSizeOffset returns the metadata offset of path-list record slot's size.
func (l Layout) PathSizeOffset(slot int) int { return l.PathRecordOffset(slot) + 4 }

// Builder assembles a metadata file and its data file.
//
// Path records are written in reverse file order so every lookup goes
// through a real indirection, and path strings are NUL-terminated with the
// terminator counted in the stored size.
type Builder struct {
	files      []File
	padding    int
	dataPrefix []byte
}

// NewBuilder creates an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a file. Files keep insertion order in the file list.
func (b *Builder) Add(path string, content []byte) *Builder {
	b.files = append(b.files, File{Path: path, Content: content})
	return b
}

// WithPathPadding appends n spaces after each path before its terminator.
func (b *Builder) WithPathPadding(n int) *Builder {
	b.padding = n
	return b
}

// WithDataPrefix writes prefix at the start of the data file before any payload.
func (b *Builder) WithDataPrefix(prefix []byte) *Builder {
	b.dataPrefix = prefix
	return b
}

// Files returns the files added so far.
func (b *Builder) Files() []File {
	return b.files
}

// Build returns the encoded metadata and data files.
func (b *Builder) Build() (meta, data []byte, layout Layout) {
	n := len(b.files)
	le := binary.LittleEndian

	layout.FileListOffset = HeaderSize
	layout.PathListOffset = layout.FileListOffset + 4 + uint32(n)*FileRecordSize
	layout.DataOffsets = make([]uint32, n)
	layout.PathIndexes = make([]int32, n)

	data = append(data, b.dataPrefix...)
	for i, f := range b.files {
		layout.DataOffsets[i] = uint32(len(data))
		layout.PathIndexes[i] = int32(n - 1 - i)
		data = append(data, f.Content...)
	}

	// Path list: header, records, then strings.
	pathList := make([]byte, PathListHeaderSize+n*PathRecordSize)
	for slot := range n {
		f := b.files[n-1-slot]
		raw := []byte(f.Path)
		for range b.padding {
			raw = append(raw, ' ')
		}
		raw = append(raw, 0)
		rec := PathListHeaderSize + slot*PathRecordSize
		le.PutUint32(pathList[rec:], uint32(len(pathList)))
		le.PutUint32(pathList[rec+4:], uint32(len(raw)))
		pathList = append(pathList, raw...)
	}
	le.PutUint32(pathList[0:], uint32(len(pathList)))
	le.PutUint32(pathList[4:], uint32(n))

	meta = make([]byte, layout.PathListOffset)
	le.PutUint32(meta[0:], Magic)
	le.PutUint32(meta[4:], 1)
	le.PutUint32(meta[8:], 0)
	le.PutUint32(meta[12:], layout.FileListOffset)
	le.PutUint32(meta[16:], layout.PathListOffset)
	le.PutUint32(meta[20:], uint32(n))
	for i, f := range b.files {
		off := layout.RecordOffset(i)
		le.PutUint32(meta[off:], uint32(pathhash.Hash(f.Path)))
		le.PutUint32(meta[off+4:], layout.DataOffsets[i])
		le.PutUint32(meta[off+8:], uint32(len(f.Content)))
		le.PutUint32(meta[off+12:], uint32(layout.PathIndexes[i]))
	}
	meta = append(meta, pathList...)
	return meta, data, layout
}

// WriteFiles writes meta and data into dir and returns their paths.
func WriteFiles(tb testing.TB, dir string, meta, data []byte) (metaPath, dataPath string) {
	tb.Helper()
	metaPath = filepath.Join(dir, "archive.raf")
	dataPath = filepath.Join(dir, "archive.raf.dat")
	if err := os.WriteFile(metaPath, meta, 0o600); err != nil {
		tb.Fatalf("write metadata: %v", err)
	}
	if err := os.WriteFile(dataPath, data, 0o600); err != nil {
		tb.Fatalf("write data: %v", err)
	}
	return metaPath, dataPath
}

// Write builds the archive into a fresh temp directory.
func (b *Builder) Write(tb testing.TB) (metaPath, dataPath string, layout Layout) {
	tb.Helper()
	meta, data, layout := b.Build()
	metaPath, dataPath = WriteFiles(tb, tb.TempDir(), meta, data)
	return metaPath, dataPath, layout
}

// PutUint32 overwrites the little-endian field at off.
func PutUint32(b []byte, off int, v uint32) {
	binary.LittleEndian.PutUint32(b[off:], v)
}
