// Package binio provides positioned decoding of little-endian fields from
// seekable files.
package binio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/meigma/raf/internal/raftype"
)

// Handle is a seekable byte stream. *os.File satisfies it.
type Handle interface {
	io.Reader
	io.Seeker
}

// eagerReadLimit is the largest ReadBytes length allocated up front.
const eagerReadLimit = 64 << 10

// Reader decodes fields at the handle's current position.
//
// Every successful read advances the cursor by the number of bytes consumed.
// A Reader is not safe for concurrent use; see Locked.
type Reader struct {
	h   Handle
	buf [4]byte
}

// NewReader creates a Reader over h.
func NewReader(h Handle) *Reader {
	return &Reader{h: h}
}

// ReadInt32LE reads a little-endian signed 32-bit integer.
func (r *Reader) ReadInt32LE() (int32, error) {
	v, err := r.ReadUint32LE()
	return int32(v), err //nolint:gosec // reinterpretation is the point
}

// ReadUint32LE reads a little-endian 32-bit integer without sign extension.
// Use it for offsets and lengths that the format stores unsigned.
func (r *Reader) ReadUint32LE() (uint32, error) {
	if err := r.readFull(r.buf[:], "read uint32"); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(r.buf[:]), nil
}

// ReadFixedString reads exactly length bytes and returns them as a string.
// Padding is not trimmed and bytes >= 0x80 are kept as-is.
func (r *Reader) ReadFixedString(length uint32) (string, error) {
	b, err := r.ReadBytes(length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadNullTerminatedString reads up to and consumes the first NUL byte.
// The NUL is not part of the result. Reaching end of stream before the
// terminator is reported as io.ErrUnexpectedEOF.
func (r *Reader) ReadNullTerminatedString() (string, error) {
	var sb strings.Builder
	b := r.buf[:1]
	for {
		if _, err := io.ReadFull(r.h, b); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return "", fmt.Errorf("%w: read string after %d bytes: %w", raftype.ErrIO, sb.Len(), err)
		}
		if b[0] == 0 {
			return sb.String(), nil
		}
		sb.WriteByte(b[0])
	}
}

// ReadBytes reads exactly length bytes.
//
// Lengths above a small threshold are read incrementally, so a length that
// exceeds what the stream holds fails without allocating the full amount.
func (r *Reader) ReadBytes(length uint32) ([]byte, error) {
	if length <= eagerReadLimit {
		b := make([]byte, length)
		if err := r.readFull(b, "read bytes"); err != nil {
			return nil, err
		}
		return b, nil
	}

	var buf bytes.Buffer
	buf.Grow(eagerReadLimit)
	n, err := io.CopyN(&buf, r.h, int64(length))
	if err != nil {
		if errors.Is(err, io.EOF) && n > 0 {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("%w: read bytes: got %d of %d bytes: %w", raftype.ErrIO, n, length, err)
	}
	return buf.Bytes(), nil
}

// Size returns the length of the stream. The cursor is left where it was.
func (r *Reader) Size() (uint64, error) {
	cur, err := r.h.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("%w: get size: %w", raftype.ErrIO, err)
	}
	end, err := r.h.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, fmt.Errorf("%w: get size: %w", raftype.ErrIO, err)
	}
	if _, err := r.h.Seek(cur, io.SeekStart); err != nil {
		return 0, fmt.Errorf("%w: get size: %w", raftype.ErrIO, err)
	}
	return uint64(end), nil //nolint:gosec // Seek never reports a negative offset
}

// Position returns the absolute cursor offset.
func (r *Reader) Position() (uint64, error) {
	pos, err := r.h.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, fmt.Errorf("%w: get position: %w", raftype.ErrIO, err)
	}
	return uint64(pos), nil //nolint:gosec // Seek never reports a negative offset
}

// SetPosition moves the cursor to pos bytes from the start of the stream.
// Seeking beyond the end of the stream succeeds; the next read fails.
func (r *Reader) SetPosition(pos uint64) error {
	if pos > math.MaxInt64 {
		return fmt.Errorf("%w: seek to %d: offset out of range", raftype.ErrIO, pos)
	}
	if _, err := r.h.Seek(int64(pos), io.SeekStart); err != nil {
		return fmt.Errorf("%w: seek to %d: %w", raftype.ErrIO, pos, err)
	}
	return nil
}

func (r *Reader) readFull(p []byte, op string) error {
	n, err := io.ReadFull(r.h, p)
	if err != nil {
		return fmt.Errorf("%w: %s: got %d of %d bytes: %w", raftype.ErrIO, op, n, len(p), err)
	}
	return nil
}
