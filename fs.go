package raf

import (
	"bytes"
	"io"
	"io/fs"
	"path"
	"time"
)

// Interface compliance.
var (
	_ fs.FS         = (*Archive)(nil)
	_ fs.StatFS     = (*Archive)(nil)
	_ fs.ReadFileFS = (*Archive)(nil)
)

// Open implements fs.FS for file entries.
//
// The entry is read in full when opened. Directories are not synthesized,
// so only names of stored entries can be opened: Open(".") and any directory
// prefix such as "DATA" fail with fs.ErrNotExist. As a consequence fs.WalkDir,
// fs.Glob and testing/fstest.TestFS cannot enumerate an Archive; use Entries
// or All to list it.
func (a *Archive) Open(name string) (fs.File, error) {
	e, err := a.lookupFS("open", name)
	if err != nil {
		return nil, err
	}
	content, err := a.ReadEntry(e)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &openFile{Reader: bytes.NewReader(content), info: newFileInfo(e)}, nil
}

// Stat implements fs.StatFS without reading entry content.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	e, err := a.lookupFS("stat", name)
	if err != nil {
		return nil, err
	}
	return newFileInfo(e), nil
}

// ReadFile implements fs.ReadFileFS.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	e, err := a.lookupFS("readfile", name)
	if err != nil {
		return nil, err
	}
	content, err := a.ReadEntry(e)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return content, nil
}

func (a *Archive) lookupFS(op, name string) (Entry, error) {
	if !fs.ValidPath(name) {
		return Entry{}, &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	e, ok := a.Lookup(name)
	if !ok {
		return Entry{}, &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return e, nil
}

// openFile is an fs.File over an entry's extracted bytes.
type openFile struct {
	*bytes.Reader
	info fileInfo
}

var (
	_ fs.File     = (*openFile)(nil)
	_ io.ReaderAt = (*openFile)(nil)
)

func (f *openFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *openFile) Close() error               { return nil }

// fileInfo implements fs.FileInfo for an entry. Sys returns the Entry.
type fileInfo struct {
	entry Entry
}

func newFileInfo(e Entry) fileInfo {
	return fileInfo{entry: e}
}

func (fi fileInfo) Name() string       { return path.Base(fi.entry.Path) }
func (fi fileInfo) Size() int64        { return int64(fi.entry.DataSize) } //nolint:gosec // sizes are 32-bit on disk
func (fi fileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi fileInfo) ModTime() time.Time { return time.Time{} }
func (fi fileInfo) IsDir() bool        { return false }
func (fi fileInfo) Sys() any           { return fi.entry }
