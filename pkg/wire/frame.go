// Package wire implements the length-prefixed message framing and the six
// request verbs upPIR's mirror and vendor daemons speak (spec §6). The
// framing itself is deliberately simple and symmetric: a 4-byte big-endian
// length prefix followed by that many payload bytes, mirroring the
// original session library's recvmessage/sendmessage pair.
package wire

import (
	"encoding/binary"
	"io"

	"github.com/uppir/uppir/pkg/upirerr"
)

// MaxMessageSize bounds a single framed message to guard against a peer
// claiming an unbounded length prefix.
const MaxMessageSize = 64 * 1024 * 1024

// WriteMessage frames payload with a 4-byte big-endian length prefix and
// writes it to w.
func WriteMessage(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return upirerr.Wrap(upirerr.TransportFailure, err, "failed to write message length prefix")
	}
	if _, err := w.Write(payload); err != nil {
		return upirerr.Wrap(upirerr.TransportFailure, err, "failed to write message payload")
	}
	return nil
}

// ReadMessage reads one length-prefixed message from r.
func ReadMessage(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, upirerr.Wrap(upirerr.TransportFailure, err, "failed to read message length prefix")
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > MaxMessageSize {
		return nil, upirerr.New(upirerr.TransportFailure, "message length %d exceeds maximum of %d", length, MaxMessageSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, upirerr.Wrap(upirerr.TransportFailure, err, "failed to read message payload of length %d", length)
	}
	return payload, nil
}
