// Package requestor implements the multi-mirror XOR requestor (spec §4.4):
// the concurrent state machine that builds k correlated PIR bitstrings per
// requested block, hands work to worker tasks, tolerates mirror failure by
// substitution from a reserve pool, reconstructs blocks by XOR across k
// responses, and verifies each reconstructed block's hash.
//
// The concurrency model (spec §5) is a single coarse mutex guarding all
// state, following the same pattern as noisefs's p2p.PeerInfo: short
// critical sections, reconstruction done inside the lock since it runs at
// most once per block.
package requestor

import (
	"math/rand"
	"sync"
	"time"

	"github.com/multiformats/go-multiaddr"

	"github.com/uppir/uppir/pkg/manifest"
	"github.com/uppir/uppir/pkg/upirerr"
)

// DefaultPollInterval is the bounded-wait interval used by NextRequest
// when every active slot is busy (spec §5).
const DefaultPollInterval = 100 * time.Millisecond

// MirrorDescriptor identifies a mirror (spec §3). Opaque holds extension
// fields beyond ip/port - for instance a multiaddr.Multiaddr listen address
// (see SPEC_FULL.md §12). The vendor's advertisement and mirror-list wire
// shape (wire.MirrorInfo) carries only ip and port, so descriptors built
// from a vendor's mirror list have no Opaque fields.
type MirrorDescriptor struct {
	IP     string
	Port   int
	Opaque map[string]string
}

// Equal reports whether two descriptors name the same mirror.
func (d MirrorDescriptor) Equal(other MirrorDescriptor) bool {
	return d.IP == other.IP && d.Port == other.Port
}

// validateOpaque rejects a descriptor whose "multiaddr" opaque field, if
// present, is not well-formed. New calls it for every mirror and fails
// with BadArgument on the first malformed one, so no State is built from a
// mirror list that contains one.
func validateOpaque(d MirrorDescriptor) error {
	addr, ok := d.Opaque["multiaddr"]
	if !ok {
		return nil
	}
	if _, err := multiaddr.NewMultiaddr(addr); err != nil {
		return upirerr.Wrap(upirerr.BadArgument, err, "mirror %s:%d advertised an invalid multiaddr %q", d.IP, d.Port, addr)
	}
	return nil
}

// RequestTuple is handed to a worker by NextRequest and returned (unchanged)
// to NotifySuccess/NotifyFailure.
type RequestTuple struct {
	Mirror     MirrorDescriptor
	BlockIndex int
	Bitstring  []byte
}

type slot struct {
	mirror            MirrorDescriptor
	serving           bool
	pendingBlocks     []int
	pendingBitstrings [][]byte
}

type partialResponse struct {
	bitstring []byte
	mirror    MirrorDescriptor
	xorBlock  []byte
}

// State is one client request's requestor state (spec §3
// "RequestorState"), exclusively owned by one coordination entity and
// shared across worker tasks under mu.
type State struct {
	mu sync.Mutex

	manifest     *manifest.Manifest
	k            int
	pollInterval time.Duration

	active  []*slot
	reserve []MirrorDescriptor

	partial  map[int][]partialResponse
	finished map[int][]byte

	abortErr error
}

// New constructs a RequestorState for blockList over mirrors, requiring
// privacy threshold k. It shuffles mirrors uniformly, takes the first k as
// active slots, the rest as reserve, and pre-computes every slot's
// correlated PIR bitstring sequence (spec §4.4).
func New(mirrors []MirrorDescriptor, blockList []int, m *manifest.Manifest, k int, pollInterval time.Duration) (*State, error) {
	if len(mirrors) < k {
		return nil, upirerr.New(upirerr.InsufficientMirrors, "requested %d mirrors but only %d are available", k, len(mirrors))
	}
	for _, d := range mirrors {
		if err := validateOpaque(d); err != nil {
			return nil, err
		}
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	shuffled := make([]MirrorDescriptor, len(mirrors))
	copy(shuffled, mirrors)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	bitstringsPerSlot, err := buildBitstrings(cryptoRand, k, m.BlockCount, blockList)
	if err != nil {
		return nil, err
	}

	active := make([]*slot, k)
	for i := 0; i < k; i++ {
		active[i] = &slot{
			mirror:            shuffled[i],
			pendingBlocks:     append([]int(nil), blockList...),
			pendingBitstrings: bitstringsPerSlot[i],
		}
	}

	partial := make(map[int][]partialResponse, len(blockList))
	for _, b := range blockList {
		partial[b] = nil
	}

	return &State{
		manifest:     m,
		k:            k,
		pollInterval: pollInterval,
		active:       active,
		reserve:      append([]MirrorDescriptor(nil), shuffled[k:]...),
		partial:      partial,
		finished:     make(map[int][]byte),
	}, nil
}

// NextRequest returns the next request tuple for an idle active slot with
// pending work, blocking (polling at pollInterval) while every active slot
// is serving but unfinished. It returns ok=false once every slot's pending
// queue is empty and none is serving (spec §4.4).
func (s *State) NextRequest() (tuple RequestTuple, ok bool) {
	for {
		tuple, ok, stillServing := s.tryNextRequest()
		if ok || !stillServing {
			return tuple, ok
		}
		time.Sleep(s.pollInterval)
	}
}

func (s *State) tryNextRequest() (RequestTuple, bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.abortErr != nil {
		return RequestTuple{}, false, false
	}

	stillServing := false
	for _, sl := range s.active {
		if sl.serving {
			stillServing = true
			continue
		}
		if len(sl.pendingBlocks) == 0 {
			continue
		}
		sl.serving = true
		return RequestTuple{Mirror: sl.mirror, BlockIndex: sl.pendingBlocks[0], Bitstring: sl.pendingBitstrings[0]}, true, false
	}
	return RequestTuple{}, false, stillServing
}

func (s *State) findActiveSlot(mirror MirrorDescriptor) (*slot, error) {
	for _, sl := range s.active {
		if sl.mirror.Equal(mirror) {
			return sl, nil
		}
	}
	return nil, upirerr.New(upirerr.InternalError, "unknown mirror %+v", mirror)
}

// NotifySuccess records that tuple's mirror returned xorBlock. Once k
// responses have accumulated for a block it is reconstructed by XOR,
// hash-checked against the manifest, and moved to finished (spec §4.4).
func (s *State) NotifySuccess(tuple RequestTuple, xorBlock []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, err := s.findActiveSlot(tuple.Mirror)
	if err != nil {
		return err
	}
	if len(sl.pendingBlocks) == 0 || sl.pendingBlocks[0] != tuple.BlockIndex {
		return upirerr.New(upirerr.InternalError, "response for block %d does not match head-of-queue", tuple.BlockIndex)
	}
	if !bytesEqual(sl.pendingBitstrings[0], tuple.Bitstring) {
		return upirerr.New(upirerr.InternalError, "response bitstring does not match head-of-queue for block %d", tuple.BlockIndex)
	}

	blockIndex := sl.pendingBlocks[0]
	sl.pendingBlocks = sl.pendingBlocks[1:]
	sl.pendingBitstrings = sl.pendingBitstrings[1:]
	sl.serving = false

	s.partial[blockIndex] = append(s.partial[blockIndex], partialResponse{
		bitstring: tuple.Bitstring,
		mirror:    tuple.Mirror,
		xorBlock:  xorBlock,
	})

	if len(s.partial[blockIndex]) != s.k {
		return nil
	}

	return s.reconstruct(blockIndex)
}

// reconstruct XORs all k partial responses for blockIndex together,
// verifies the result's hash against the manifest, and moves it to
// finished. Caller must hold s.mu.
func (s *State) reconstruct(blockIndex int) error {
	responses := s.partial[blockIndex]
	result := append([]byte(nil), responses[0].xorBlock...)
	for _, r := range responses[1:] {
		for i := range result {
			result[i] ^= r.xorBlock[i]
		}
	}

	gotHash, err := manifest.FindHash(result, s.manifest.HashAlgorithm)
	if err != nil {
		return err
	}
	if gotHash != s.manifest.BlockHashes[blockIndex] {
		return upirerr.New(upirerr.CorruptData, "block %d failed hash verification after reconstruction; a mirror lied or the manifest is wrong", blockIndex)
	}

	s.finished[blockIndex] = result
	delete(s.partial, blockIndex)
	return nil
}

// NotifyFailure handles a mirror's failure to answer tuple's request. If a
// reserve mirror is available it is swapped into the failed slot,
// preserving that slot's pending queue untouched - the slot, not the
// mirror, owns the outstanding correlated bitstrings (spec §4.4).
func (s *State) NotifyFailure(tuple RequestTuple) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.reserve) == 0 {
		return upirerr.New(upirerr.InsufficientMirrors, "no replacement mirrors remain in the reserve pool")
	}

	sl, err := s.findActiveSlot(tuple.Mirror)
	if err != nil {
		return err
	}

	next := s.reserve[0]
	s.reserve = s.reserve[1:]
	sl.mirror = next
	sl.serving = false
	return nil
}

// Abort records a fatal error for the whole retrieval - a corrupt
// reconstruction or an exhausted reserve pool (spec §4.4/§7, CorruptData
// is "fatal for this request") - and causes every blocked NextRequest
// caller, across all worker goroutines, to return promptly with ok=false
// instead of polling forever against a slot that will never make
// progress. Only the first abort reason is kept.
func (s *State) Abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abortErr == nil {
		s.abortErr = err
	}
}

// Err returns the error passed to Abort, if any.
func (s *State) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abortErr
}

// ReturnBlock returns the reconstructed, verified bytes for blockIndex.
func (s *State) ReturnBlock(blockIndex int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	block, ok := s.finished[blockIndex]
	if !ok {
		return nil, upirerr.New(upirerr.NotFound, "block %d is not yet finished", blockIndex)
	}
	return block, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
