package datastore

import "sync"

// referenceStore is the simple, portable Store: a flat buffer XORed one
// byte at a time. It favors clarity and is used as the correctness oracle
// for Fast in tests (spec §8 property 2).
type referenceStore struct {
	mu         sync.RWMutex
	blockSize  int
	blockCount int
	buf        []byte
}

func newReferenceStore(blockSize, blockCount int) *referenceStore {
	return &referenceStore{
		blockSize:  blockSize,
		blockCount: blockCount,
		buf:        make([]byte, blockSize*blockCount),
	}
}

func (s *referenceStore) BlockSize() int  { return s.blockSize }
func (s *referenceStore) BlockCount() int { return s.blockCount }

func (s *referenceStore) SetData(offset int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := validateRange(len(s.buf), offset, len(data)); err != nil {
		return err
	}
	copy(s.buf[offset:], data)
	return nil
}

func (s *referenceStore) GetData(offset, length int) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := validateRange(len(s.buf), offset, length); err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, s.buf[offset:offset+length])
	return out, nil
}

func (s *referenceStore) XORSelected(bs []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := validateBitstring(bs, s.blockCount); err != nil {
		return nil, err
	}

	result := make([]byte, s.blockSize)
	for block := 0; block < s.blockCount; block++ {
		byteIdx, bitPos := block/8, uint(7-(block%8))
		if bs[byteIdx]&(1<<bitPos) == 0 {
			continue
		}
		start := block * s.blockSize
		blockData := s.buf[start : start+s.blockSize]
		for i, b := range blockData {
			result[i] ^= b
		}
	}
	return result, nil
}
