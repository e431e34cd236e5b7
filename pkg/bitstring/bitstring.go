// Package bitstring implements the packed bit vectors used to encode a
// mirror's block-selection request. A bitstring is a big-endian packed
// byte slice of length ceil(n/8): bit i lives at byte i/8, bit position
// 7-(i mod 8) within that byte, so bit 0 is the most significant bit of
// byte 0. Mirror and client must agree on this layout bit-for-bit.
package bitstring

import "github.com/uppir/uppir/pkg/upirerr"

// LengthFor returns the number of bytes needed to hold n bits.
func LengthFor(n int) int {
	return (n + 7) / 8
}

// New returns a zeroed bitstring sized to hold n bits.
func New(n int) []byte {
	return make([]byte, LengthFor(n))
}

// Get returns the value (0 or 1) of bit i in bs.
func Get(bs []byte, i int) (int, error) {
	if err := checkRange(bs, i); err != nil {
		return 0, err
	}
	byteVal := bs[i/8]
	bitPos := uint(7 - (i % 8))
	return int((byteVal >> bitPos) & 1), nil
}

// Set returns a copy of bs with bit i set to v (0 or 1). bs is not mutated.
func Set(bs []byte, i int, v int) ([]byte, error) {
	if err := checkRange(bs, i); err != nil {
		return nil, err
	}
	out := append([]byte(nil), bs...)
	bitPos := uint(7 - (i % 8))
	mask := byte(1) << bitPos
	if v != 0 {
		out[i/8] |= mask
	} else {
		out[i/8] &^= mask
	}
	return out, nil
}

// Flip returns a copy of bs with bit i toggled. bs is not mutated.
func Flip(bs []byte, i int) ([]byte, error) {
	cur, err := Get(bs, i)
	if err != nil {
		return nil, err
	}
	return Set(bs, i, 1-cur)
}

// XOR returns the bitwise XOR of a and b, which must be the same length.
func XOR(a, b []byte) ([]byte, error) {
	if len(a) != len(b) {
		return nil, upirerr.New(upirerr.BadArgument, "bitstrings must be the same length to XOR")
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out, nil
}

func checkRange(bs []byte, i int) error {
	if i < 0 || i >= 8*len(bs) {
		return upirerr.New(upirerr.BadArgument, "bit index out of range")
	}
	return nil
}
