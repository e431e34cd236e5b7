// Package datastore implements the XOR datastore (spec §4.2): a fixed
// contiguous buffer of blockCount blocks of blockSize bytes, exposing
// random-access read/write and the PIR primitive XORSelected, which
// returns the XOR of every block whose bit is set in a bitstring.
//
// Two interchangeable backends are provided, selected at construction time
// rather than via reflection, per the design note "statically select
// between a reference datastore and an optimized one... both implement the
// same trait": Reference does a byte-at-a-time XOR (simplexordatastore in
// the original); Fast processes each block in machine-word chunks
// (fastsimplexordatastore).
package datastore

import (
	"github.com/uppir/uppir/pkg/bitstring"
	"github.com/uppir/uppir/pkg/upirerr"
)

// Store is the XOR datastore contract. Implementations are safe for
// concurrent readers; writers (SetData) must not run concurrently with any
// reader, per spec §3's "no write occurs concurrently with any XOR query."
type Store interface {
	BlockSize() int
	BlockCount() int

	// SetData writes data at offset, used only during population.
	SetData(offset int, data []byte) error

	// GetData returns a copy of buf[offset : offset+length).
	GetData(offset, length int) ([]byte, error)

	// XORSelected returns the XOR of every block whose bit is set in bs.
	// len(bs) must equal bitstring.LengthFor(BlockCount()).
	XORSelected(bs []byte) ([]byte, error)
}

// Backend names the two selectable Store implementations.
type Backend int

const (
	// Reference is the simple, portable byte-at-a-time implementation.
	Reference Backend = iota
	// Fast is the word-parallel implementation required by the
	// performance contract in spec §4.2.
	Fast
)

// New allocates a zeroed Store of the given backend. blockSize must be a
// positive multiple of 64 (spec §4.2: "allows word-wide XOR without a tail
// loop per block"); blockCount must be positive.
func New(backend Backend, blockSize, blockCount int) (Store, error) {
	if blockSize <= 0 || blockCount <= 0 {
		return nil, upirerr.New(upirerr.BadArgument, "block_size and block_count must be positive")
	}
	if blockSize%64 != 0 {
		return nil, upirerr.New(upirerr.BadArgument, "block_size must be a multiple of 64")
	}

	switch backend {
	case Fast:
		return newFastStore(blockSize, blockCount), nil
	default:
		return newReferenceStore(blockSize, blockCount), nil
	}
}

func validateRange(bufLen, offset, length int) error {
	if offset < 0 || length < 0 || offset+length > bufLen {
		return upirerr.New(upirerr.BadArgument, "offset/length out of range")
	}
	return nil
}

func validateBitstring(bs []byte, blockCount int) error {
	if len(bs) != bitstring.LengthFor(blockCount) {
		return upirerr.New(upirerr.BadRequestLength, "bitstring length %d does not match expected %d", len(bs), bitstring.LengthFor(blockCount))
	}
	return nil
}
