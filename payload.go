package raf

// zlib stream header: CMF 0x78 (deflate, 32K window) followed by an FLG
// byte for one of the common compression levels.
const zlibCMF = 0x78

// IsZlib reports whether b starts with a zlib stream header.
//
// Archives commonly store entries deflated; IsZlib only inspects the first
// two bytes and never decompresses.
func IsZlib(b []byte) bool {
	if len(b) < 2 || b[0] != zlibCMF {
		return false
	}
	switch b[1] {
	case 0x01, 0x9c, 0xda:
		return true
	default:
		return false
	}
}
