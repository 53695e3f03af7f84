// Package raf reads RAF archives: a metadata index file (*.raf) paired with
// a raw data file (*.raf.dat).
//
// The index is parsed and verified once, when the archive is opened. Each
// entry's path is resolved through the file list and path list tables and
// checked against the checksum stored beside it; any mismatch rejects the
// whole archive.
//
// # Quick Start
//
//	a, err := raf.Open("Archive_1.raf", "Archive_1.raf.dat")
//	if err != nil {
//	    return err
//	}
//	defer a.Close()
//
//	for _, e := range a.Entries() {
//	    fmt.Println(e.Path, e.DataSize)
//	}
//
//	e, ok := a.Lookup("DATA/Characters/Annie/Annie.skn")
//	if !ok {
//	    return fs.ErrNotExist
//	}
//	content, err := a.ReadEntry(e)
//
// Entry bytes are returned exactly as stored. Many entries are zlib streams;
// [IsZlib] reports the marker, and decompression is left to the caller.
//
// # File system view
//
// An [Archive] is an [io/fs.FS] over its stored entries. There are no
// directories: Open(".") fails, so fs.WalkDir and fstest.TestFS do not apply.
//
// # Caching
//
// Use [WithCache] to keep extracted bytes in an extraction cache such as
// [github.com/meigma/raf/cache/disk]. Concurrent misses for the same entry
// share a single read of the data file. Cached values carry the digest of
// their content and are checked on every hit; a value that fails the check
// is deleted and the entry is read again.
package raf
