package raftype

import (
	"errors"
	"fmt"
)

// Sentinel errors for archive operations.
var (
	// ErrIO is returned when an underlying open, seek, or read fails.
	ErrIO = errors.New("raf: i/o error")

	// ErrCorruptIndex is returned when the metadata file fails verification.
	ErrCorruptIndex = errors.New("raf: corrupt index")

	// ErrSizeLimit is returned when an entry is larger than the extraction limit.
	ErrSizeLimit = errors.New("raf: entry exceeds size limit")

	// ErrTooManyEntries is returned when the file list declares more entries than allowed.
	ErrTooManyEntries = errors.New("raf: too many entries")

	// ErrClosed is returned when an archive is used after Close.
	ErrClosed = errors.New("raf: archive closed")
)

// CorruptIndexError describes a file-list record that could not be trusted.
//
// Err is set when resolving the record's path failed at the I/O level;
// otherwise the stored and computed hashes disagree.
type CorruptIndexError struct {
	Index    int
	Path     string
	Stored   int32
	Computed int32
	Err      error
}

func (e *CorruptIndexError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("raf: corrupt index: entry %d: %v", e.Index, e.Err)
	}
	if e.Path == "" {
		return fmt.Sprintf("raf: corrupt index: entry %d: hash mismatch (stored %#x, computed %#x)",
			e.Index, uint32(e.Stored), uint32(e.Computed))
	}
	return fmt.Sprintf("raf: corrupt index: entry %d %q: hash mismatch (stored %#x, computed %#x)",
		e.Index, e.Path, uint32(e.Stored), uint32(e.Computed))
}

// Unwrap reports both ErrCorruptIndex and the underlying cause, if any.
func (e *CorruptIndexError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCorruptIndex}
	}
	return []error{ErrCorruptIndex, e.Err}
}
