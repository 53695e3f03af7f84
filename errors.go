package raf

import "github.com/meigma/raf/internal/raftype"

// CorruptIndexError is returned when a file-list record fails verification.
// errors.Is(err, ErrCorruptIndex) reports true for it.
type CorruptIndexError = raftype.CorruptIndexError

// Sentinel errors re-exported from internal/raftype.
var (
	// ErrIO is returned when opening, seeking, or reading an archive file fails.
	// The operating system's error remains available through errors.Is.
	ErrIO = raftype.ErrIO

	// ErrCorruptIndex is returned when the metadata file cannot be trusted.
	ErrCorruptIndex = raftype.ErrCorruptIndex

	// ErrSizeLimit is returned when an entry exceeds the extraction size limit.
	ErrSizeLimit = raftype.ErrSizeLimit

	// ErrTooManyEntries is returned when the file list is larger than WithMaxEntries allows.
	ErrTooManyEntries = raftype.ErrTooManyEntries

	// ErrClosed is returned when reading from a closed archive.
	ErrClosed = raftype.ErrClosed
)
