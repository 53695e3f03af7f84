package binio

import "sync"

// Locked serializes positioned reads on a shared handle.
//
// Each call performs its seek and read under one lock, so concurrent callers
// never observe each other's cursor movement.
type Locked struct {
	mu sync.Mutex
	r  *Reader
}

// NewLocked wraps h for concurrent positioned reads.
func NewLocked(h Handle) *Locked {
	return &Locked{r: NewReader(h)}
}

// ReadRange reads exactly length bytes starting at off.
func (l *Locked) ReadRange(off uint64, length uint32) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.r.SetPosition(off); err != nil {
		return nil, err
	}
	return l.r.ReadBytes(length)
}
