package datastore

import (
	"encoding/binary"
	"sync"
)

const wordSize = 8 // bytes per uint64 word

// fastStore is the word-parallel Store required by the performance
// contract in spec §4.2: it processes each selected block in 64-bit word
// chunks rather than byte-at-a-time, skips unselected blocks branch-free
// via the bit test, and performs exactly one linear pass over each
// selected block. blockSize is required to be a multiple of 64 bits'
// worth of bytes (checked by New), so there is never a tail loop.
type fastStore struct {
	mu         sync.RWMutex
	blockSize  int
	blockCount int
	buf        []byte
}

func newFastStore(blockSize, blockCount int) *fastStore {
	return &fastStore{
		blockSize:  blockSize,
		blockCount: blockCount,
		buf:        make([]byte, blockSize*blockCount),
	}
}

func (s *fastStore) BlockSize() int  { return s.blockSize }
func (s *fastStore) BlockCount() int { return s.blockCount }

func (s *fastStore) SetData(offset int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := validateRange(len(s.buf), offset, len(data)); err != nil {
		return err
	}
	copy(s.buf[offset:], data)
	return nil
}

func (s *fastStore) GetData(offset, length int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := validateRange(len(s.buf), offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, s.buf[offset:offset+length])
	return out, nil
}

// XORSelected is the CPU-critical kernel. Blocks are guaranteed a multiple
// of 64 bytes long (New enforces blockSize % 64 == 0), so each block is an
// exact multiple of wordSize and needs no byte-at-a-time tail.
func (s *fastStore) XORSelected(bs []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := validateBitstring(bs, s.blockCount); err != nil {
		return nil, err
	}

	words := s.blockSize / wordSize
	result := make([]uint64, words)

	for block := 0; block < s.blockCount; block++ {
		byteIdx, bitPos := block/8, uint(7-(block%8))
		selected := (bs[byteIdx] >> bitPos) & 1
		// mask is all-ones if selected, all-zeros otherwise: XORing with a
		// masked word is a no-op for unselected blocks without branching
		// inside the per-word loop.
		mask := -uint64(selected)

		start := block * s.blockSize
		blockBytes := s.buf[start : start+s.blockSize]
		for w := 0; w < words; w++ {
			result[w] ^= binary.LittleEndian.Uint64(blockBytes[w*wordSize:]) & mask
		}
	}

	out := make([]byte, s.blockSize)
	for w, v := range result {
		binary.LittleEndian.PutUint64(out[w*wordSize:], v)
	}
	return out, nil
}
