package requestor

import (
	"crypto/rand"
	"io"

	"github.com/uppir/uppir/pkg/bitstring"
	"github.com/uppir/uppir/pkg/upirerr"
)

// buildBitstrings constructs the k correlated bitstrings for every block in
// blockList (spec §4.3). The result is indexed [slot][blockIndexInList]:
// for slots 0..k-2 each entry is an independent uniform-random bitstring
// (high padding bits zeroed); for slot k-1 each entry is the XOR of the
// other k-1 bitstrings for that block with bit blockList[i] flipped, so
// that XORing all k slots' bitstrings for a given block yields the unit
// vector e_t.
func buildBitstrings(rng io.Reader, k int, blockCount int, blockList []int) ([][][]byte, error) {
	if k < 1 {
		return nil, upirerr.New(upirerr.BadArgument, "privacy threshold k must be at least 1")
	}

	bsLen := bitstring.LengthFor(blockCount)
	result := make([][][]byte, k)
	for s := range result {
		result[s] = make([][]byte, len(blockList))
	}

	for i, target := range blockList {
		accumulated := bitstring.New(blockCount)
		for s := 0; s < k-1; s++ {
			random, err := randomBitstring(rng, bsLen, blockCount)
			if err != nil {
				return nil, err
			}
			result[s][i] = random
			accumulated, _ = bitstring.XOR(accumulated, random)
		}

		derived, err := bitstring.Flip(accumulated, target)
		if err != nil {
			return nil, upirerr.Wrap(upirerr.BadArgument, err, "failed to flip target bit %d", target)
		}
		result[k-1][i] = derived
	}

	return result, nil
}

// randomBitstring draws bsLen bytes from rng and zeroes any bits at or
// beyond blockCount, so selected-block indices never exceed the datastore's
// block count (spec §4.3).
func randomBitstring(rng io.Reader, bsLen, blockCount int) ([]byte, error) {
	buf := make([]byte, bsLen)
	if _, err := io.ReadFull(rng, buf); err != nil {
		return nil, upirerr.Wrap(upirerr.InternalError, err, "failed to read randomness")
	}
	for i := blockCount; i < bsLen*8; i++ {
		byteIdx, bitPos := i/8, uint(7-(i%8))
		buf[byteIdx] &^= 1 << bitPos
	}
	return buf, nil
}

// cryptoRand is the default random source: crypto/rand.Reader, a
// concurrency-safe cryptographic RNG (spec §5 "random source").
var cryptoRand io.Reader = rand.Reader
