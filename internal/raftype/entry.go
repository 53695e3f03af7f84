package raftype

// Entry represents a file in the archive.
type Entry struct {
	// Path is the archive path as stored in the path table, with padding trimmed
	// (e.g., "DATA/Characters/Annie/Annie.skn").
	Path string

	// DataOffset is the byte offset in the data file where this file's content begins.
	DataOffset uint64

	// DataSize is the size in bytes of the file's content in the data file.
	// Compressed payloads are stored as-is, so this is the stored size.
	DataSize uint64

	// Hash is the path checksum recorded in the file list.
	// It has already been verified against Path.
	Hash int32

	// Index is the position of the entry in the on-disk file list.
	Index int
}
