package requestor

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uppir/uppir/pkg/bitstring"
	"github.com/uppir/uppir/pkg/manifest"
	"github.com/uppir/uppir/pkg/upirerr"
)

const testBlockSize = 64

// buildTestManifest creates a manifest for blockCount blocks of distinct,
// deterministic content hashed with "sha256-hex", and returns that content
// alongside it as the plaintext each block should reconstruct to.
func buildTestManifest(t *testing.T, blockCount int) (*manifest.Manifest, [][]byte) {
	t.Helper()
	blocks := make([][]byte, blockCount)
	hashes := make([]string, blockCount)
	for i := range blocks {
		block := make([]byte, testBlockSize)
		for j := range block {
			block[j] = byte(i*7 + j)
		}
		blocks[i] = block
		h, err := manifest.FindHash(block, "sha256-hex")
		require.NoError(t, err)
		hashes[i] = h
	}
	return &manifest.Manifest{
		Version:       "1.0",
		BlockSize:     testBlockSize,
		BlockCount:    blockCount,
		BlockHashes:   hashes,
		HashAlgorithm: "sha256-hex",
	}, blocks
}

func testMirrors(n int) []MirrorDescriptor {
	mirrors := make([]MirrorDescriptor, n)
	for i := range mirrors {
		mirrors[i] = MirrorDescriptor{IP: "10.0.0.1", Port: 9000 + i}
	}
	return mirrors
}

// mirrorXORResponse computes what a well-behaved mirror would answer for a
// given request bitstring: the XOR, across every block selected by a set
// bit, of that block's plaintext.
func mirrorXORResponse(blocks [][]byte, bs []byte) []byte {
	result := make([]byte, testBlockSize)
	for b := range blocks {
		v, _ := bitstring.Get(bs, b)
		if v == 1 {
			for i := range result {
				result[i] ^= blocks[b][i]
			}
		}
	}
	return result
}

// driveToCompletion runs NextRequest/NotifySuccess in a single goroutine
// until every block in blockList is finished, simulating honest mirrors
// that always answer correctly.
func driveToCompletion(t *testing.T, s *State, blocks [][]byte) {
	t.Helper()
	for {
		tuple, ok := s.NextRequest()
		if !ok {
			return
		}
		resp := mirrorXORResponse(blocks, tuple.Bitstring)
		require.NoError(t, s.NotifySuccess(tuple, resp))
	}
}

func TestRequestorReconstructsRequestedBlocks(t *testing.T) {
	m, blocks := buildTestManifest(t, 8)
	s, err := New(testMirrors(3), []int{2, 5}, m, 3, time.Millisecond)
	require.NoError(t, err)

	driveToCompletion(t, s, blocks)

	for _, want := range []int{2, 5} {
		got, err := s.ReturnBlock(want)
		require.NoError(t, err)
		require.Equal(t, blocks[want], got)
	}
}

func TestRequestorRejectsInsufficientMirrors(t *testing.T) {
	m, _ := buildTestManifest(t, 4)
	_, err := New(testMirrors(2), []int{0}, m, 3, time.Millisecond)
	require.Error(t, err)
}

func TestRequestorXOROfAllKBitstringsIsUnitVector(t *testing.T) {
	m, _ := buildTestManifest(t, 16)
	blockList := []int{0, 3, 15}
	k := 4
	s, err := New(testMirrors(k), blockList, m, k, time.Millisecond)
	require.NoError(t, err)

	for i, target := range blockList {
		acc := bitstring.New(m.BlockCount)
		for _, sl := range s.active {
			acc, err = bitstring.XOR(acc, sl.pendingBitstrings[i])
			require.NoError(t, err)
		}
		want := bitstring.New(m.BlockCount)
		want, err = bitstring.Flip(want, target)
		require.NoError(t, err)
		require.Equal(t, want, acc)
	}
}

func TestRequestorMirrorFailureSubstitutesFromReserve(t *testing.T) {
	m, blocks := buildTestManifest(t, 4)
	mirrors := testMirrors(4) // k=2 active, 2 in reserve
	s, err := New(mirrors, []int{0, 1}, m, 2, time.Millisecond)
	require.NoError(t, err)

	tuple, ok := s.NextRequest()
	require.True(t, ok)

	failedMirror := tuple.Mirror
	require.NoError(t, s.NotifyFailure(tuple))

	// The slot should now be served by a reserve mirror, not the failed one,
	// and should re-offer the same block since it was never marked done.
	retried, ok := s.NextRequest()
	require.True(t, ok)
	require.False(t, retried.Mirror.Equal(failedMirror))
	require.Equal(t, tuple.BlockIndex, retried.BlockIndex)

	resp := mirrorXORResponse(blocks, retried.Bitstring)
	require.NoError(t, s.NotifySuccess(retried, resp))

	// Drive remaining work to completion with honest responses.
	driveToCompletion(t, s, blocks)
	got, err := s.ReturnBlock(0)
	require.NoError(t, err)
	require.Equal(t, blocks[0], got)
}

func TestRequestorFailureWithEmptyReserveIsAnError(t *testing.T) {
	m, _ := buildTestManifest(t, 4)
	s, err := New(testMirrors(2), []int{0}, m, 2, time.Millisecond)
	require.NoError(t, err)

	tuple, ok := s.NextRequest()
	require.True(t, ok)
	require.Error(t, s.NotifyFailure(tuple))
}

func TestRequestorDetectsCorruptResponse(t *testing.T) {
	m, blocks := buildTestManifest(t, 4)
	s, err := New(testMirrors(2), []int{1}, m, 2, time.Millisecond)
	require.NoError(t, err)

	tuple1, ok := s.NextRequest()
	require.True(t, ok)
	resp1 := mirrorXORResponse(blocks, tuple1.Bitstring)
	require.NoError(t, s.NotifySuccess(tuple1, resp1))

	tuple2, ok := s.NextRequest()
	require.True(t, ok)
	corrupted := mirrorXORResponse(blocks, tuple2.Bitstring)
	corrupted[0] ^= 0xFF

	err = s.NotifySuccess(tuple2, corrupted)
	require.Error(t, err)
}

func TestRequestorReturnBlockBeforeReadyIsAnError(t *testing.T) {
	m, _ := buildTestManifest(t, 2)
	s, err := New(testMirrors(2), []int{0}, m, 2, time.Millisecond)
	require.NoError(t, err)

	_, err = s.ReturnBlock(0)
	require.Error(t, err)
}

func TestRequestorAbortStopsFurtherRequests(t *testing.T) {
	m, blocks := buildTestManifest(t, 4)
	s, err := New(testMirrors(2), []int{0, 1}, m, 2, time.Millisecond)
	require.NoError(t, err)

	tuple, ok := s.NextRequest()
	require.True(t, ok)
	resp := mirrorXORResponse(blocks, tuple.Bitstring)
	_ = resp

	abortErr := upirerr.New(upirerr.CorruptData, "simulated fatal corruption")
	s.Abort(abortErr)
	require.Equal(t, abortErr, s.Err())

	// A second abort must not overwrite the first reason.
	s.Abort(upirerr.New(upirerr.InternalError, "should be ignored"))
	require.Equal(t, abortErr, s.Err())

	// Once aborted, NextRequest must return promptly with ok=false even
	// though the slot from the first request above is still "serving" and
	// would otherwise make tryNextRequest report stillServing=true forever.
	_, ok = s.NextRequest()
	require.False(t, ok)
}

func TestBuildBitstringsWithKOneIsExactUnitVector(t *testing.T) {
	result, err := buildBitstrings(rand.Reader, 1, 10, []int{3, 7})
	require.NoError(t, err)
	require.Len(t, result, 1)

	want0 := bitstring.New(10)
	want0, _ = bitstring.Flip(want0, 3)
	require.Equal(t, want0, result[0][0])

	want1 := bitstring.New(10)
	want1, _ = bitstring.Flip(want1, 7)
	require.Equal(t, want1, result[0][1])
}
