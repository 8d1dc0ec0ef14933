package vmtree

import "encoding/binary"

// Comparator orders two fixed-size key byte slices, returning <0, 0, >0 the
// way bytes.Compare does. The engine is polymorphic over {size, compare};
// it never interprets key bytes itself.
type Comparator func(a, b []byte) int

// Uint32Comparator treats keys as 4-byte little-endian unsigned integers,
// comparing the decoded values directly rather than subtracting them (a
// subtraction can overflow and flip the sign for values far apart).
func Uint32Comparator(a, b []byte) int {
	va := binary.LittleEndian.Uint32(a)
	vb := binary.LittleEndian.Uint32(b)
	if va > vb {
		return 1
	}
	if va < vb {
		return -1
	}
	return 0
}

// ByteComparator orders keys lexicographically, for variable-content (but
// still fixed-size) key payloads.
func ByteComparator(a, b []byte) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
