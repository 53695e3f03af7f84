package binio

import (
	"fmt"
	"os"

	"github.com/meigma/raf/internal/raftype"
)

// AccessMode selects how archive files are opened.
type AccessMode uint8

// Access modes. The read-write modes mirror the historical "rw", "rws" and
// "rwd" handle modes; none of them create missing files.
const (
	ModeRead AccessMode = iota
	ModeReadWrite
	ModeReadWriteSync
	ModeReadWriteDataSync
)

// String returns the legacy mode string.
func (m AccessMode) String() string {
	switch m {
	case ModeRead:
		return "r"
	case ModeReadWrite:
		return "rw"
	case ModeReadWriteSync:
		return "rws"
	case ModeReadWriteDataSync:
		return "rwd"
	default:
		return fmt.Sprintf("AccessMode(%d)", uint8(m))
	}
}

func (m AccessMode) flags() (int, error) {
	switch m {
	case ModeRead:
		return os.O_RDONLY, nil
	case ModeReadWrite:
		return os.O_RDWR, nil
	case ModeReadWriteSync:
		return os.O_RDWR | os.O_SYNC, nil
	case ModeReadWriteDataSync:
		return os.O_RDWR | dataSyncFlag, nil
	default:
		return 0, fmt.Errorf("unknown access mode %d", uint8(m))
	}
}

// OpenFile opens path with the given access mode.
func OpenFile(path string, mode AccessMode) (*os.File, error) {
	flags, err := mode.flags()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", raftype.ErrIO, path, err)
	}
	f, err := os.OpenFile(path, flags, 0) //nolint:gosec // User-provided path is intentional
	if err != nil {
		return nil, fmt.Errorf("%w: open %s (%s): %w", raftype.ErrIO, path, mode, err)
	}
	return f, nil
}
