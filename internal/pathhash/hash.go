// Package pathhash implements the path checksum stored in RAF file lists.
package pathhash

// Hash returns the checksum of path.
//
// The path is lowercased and encoded as 7-bit ASCII; any byte outside that
// range hashes as '?'. The mixing step is the classic ELF string hash, with
// h kept unsigned so the top-nibble fold shifts in zeros.
func Hash(path string) int32 {
	var h uint32
	for i := 0; i < len(path); i++ {
		h = h<<4 + uint32(fold(path[i]))
		if t := h & 0xF0000000; t != 0 {
			h ^= t >> 24
			h ^= t
		}
	}
	return int32(h) //nolint:gosec // stored field is signed
}

func fold(b byte) byte {
	switch {
	case b >= 0x80:
		return '?'
	case 'A' <= b && b <= 'Z':
		return b + ('a' - 'A')
	default:
		return b
	}
}
