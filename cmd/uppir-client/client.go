package main

import (
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/uppir/uppir/pkg/logging"
	"github.com/uppir/uppir/pkg/manifest"
	"github.com/uppir/uppir/pkg/requestor"
	"github.com/uppir/uppir/pkg/upirerr"
	"github.com/uppir/uppir/pkg/wire"
)

// fetchManifestAndMirrors connects to the vendor at addr and returns its
// current manifest and mirror list.
func fetchManifestAndMirrors(addr string) (*manifest.Manifest, []requestor.MirrorDescriptor, error) {
	m, err := fetchManifest(addr)
	if err != nil {
		return nil, nil, err
	}
	mirrors, err := fetchMirrorList(addr)
	if err != nil {
		return nil, nil, err
	}
	return m, mirrors, nil
}

func fetchManifest(addr string) (*manifest.Manifest, error) {
	raw, err := roundTrip(addr, []byte(wire.VendorGetManifest))
	if err != nil {
		return nil, err
	}
	return manifest.Parse(raw)
}

func fetchMirrorList(addr string) ([]requestor.MirrorDescriptor, error) {
	raw, err := roundTrip(addr, []byte(wire.VendorGetMirrorList))
	if err != nil {
		return nil, err
	}

	infos, err := wire.DecodeMirrorList(raw)
	if err != nil {
		return nil, err
	}

	mirrors := make([]requestor.MirrorDescriptor, len(infos))
	for i, info := range infos {
		mirrors[i] = requestor.MirrorDescriptor{IP: info.IP, Port: info.Port}
	}
	return mirrors, nil
}

func roundTrip(addr string, request []byte) ([]byte, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, upirerr.Wrap(upirerr.TransportFailure, err, "failed to connect to %s", addr)
	}
	defer conn.Close()

	if err := wire.WriteMessage(conn, request); err != nil {
		return nil, err
	}
	return wire.ReadMessage(conn)
}

// retrieveFile drives a RequestorState to completion for every block in
// the named file, using one worker goroutine per mirror slot, and
// assembles the file's bytes (spec §4.4 "worker loop drains next_request").
func retrieveFile(m *manifest.Manifest, mirrors []requestor.MirrorDescriptor, fileName string, k int, pollInterval time.Duration, log *logging.Logger) ([]byte, error) {
	blockList, err := m.BlockListForFile(fileName)
	if err != nil {
		return nil, err
	}

	state, err := requestor.New(mirrors, blockList, m, k, pollInterval)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	workers := k
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(state, m.BlockSize, log)
		}()
	}
	wg.Wait()

	if err := state.Err(); err != nil {
		return nil, err
	}

	blocks := make(map[int][]byte, len(blockList))
	for _, b := range blockList {
		block, err := state.ReturnBlock(b)
		if err != nil {
			return nil, err
		}
		blocks[b] = block
	}

	return m.ExtractFile(fileName, blocks)
}

// runWorker repeatedly pulls a request tuple, performs the mirror
// round-trip, and reports success or failure, until next_request signals
// there is no more work (spec §4.4).
func runWorker(state *requestor.State, blockSize int, log *logging.Logger) {
	for {
		tuple, ok := state.NextRequest()
		if !ok {
			return
		}

		resp, err := xorBlockRoundTrip(tuple, blockSize)
		if err != nil {
			log.Warnf("mirror %s:%d failed for block %d: %v", tuple.Mirror.IP, tuple.Mirror.Port, tuple.BlockIndex, err)
			if err := state.NotifyFailure(tuple); err != nil {
				log.Errorf("no replacement mirror available: %v", err)
				state.Abort(err)
				return
			}
			continue
		}

		if err := state.NotifySuccess(tuple, resp); err != nil {
			log.Errorf("block %d failed reconstruction/verification: %v", tuple.BlockIndex, err)
			state.Abort(err)
			return
		}
	}
}

func xorBlockRoundTrip(tuple requestor.RequestTuple, blockSize int) ([]byte, error) {
	addr := net.JoinHostPort(tuple.Mirror.IP, strconv.Itoa(tuple.Mirror.Port))
	raw, err := roundTrip(addr, wire.EncodeXORBlockRequest(tuple.Bitstring))
	if err != nil {
		return nil, err
	}

	resp := wire.DecodeMirrorResponse(raw, blockSize)
	if resp.ErrorText != "" {
		return nil, upirerr.New(upirerr.BadRequestLength, "mirror protocol error: %s", resp.ErrorText)
	}
	return resp.Block, nil
}
