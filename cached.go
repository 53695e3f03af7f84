package raf

import (
	"bytes"
	_ "crypto/sha256" // registers the digest algorithm used for cache verification

	"github.com/opencontainers/go-digest"
)

// Cached entries are stored as "<digest>\n<content>". Keys name a byte range,
// not its content, so the embedded digest is what lets a hit be trusted.

func sealCached(content []byte) []byte {
	d := digest.FromBytes(content).String()
	sealed := make([]byte, 0, len(d)+1+len(content))
	sealed = append(sealed, d...)
	sealed = append(sealed, '\n')
	return append(sealed, content...)
}

// openCached returns the content of a sealed cache value if it has e's size
// and matches its embedded digest.
func openCached(e Entry, sealed []byte) ([]byte, bool) {
	i := bytes.IndexByte(sealed, '\n')
	if i < 0 {
		return nil, false
	}
	d, err := digest.Parse(string(sealed[:i]))
	if err != nil {
		return nil, false
	}
	content := sealed[i+1:]
	if uint64(len(content)) != e.DataSize {
		return nil, false
	}
	v := d.Verifier()
	if _, err := v.Write(content); err != nil {
		return nil, false
	}
	if !v.Verified() {
		return nil, false
	}
	return content, true
}

// cachedEntry looks up e in the cache and evicts values that fail verification.
func (a *Archive) cachedEntry(e Entry, key digest.Digest) ([]byte, bool) {
	sealed, ok := a.cache.Get(key)
	if !ok {
		return nil, false
	}
	content, ok := openCached(e, sealed)
	if !ok {
		a.logger.Warn("discarding invalid cache entry", "path", e.Path, "key", key.String())
		if err := a.cache.Delete(key); err != nil {
			a.logger.Warn("entry cache delete failed", "path", e.Path, "error", err)
		}
		return nil, false
	}
	return content, true
}
