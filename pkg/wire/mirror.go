package wire

import (
	"bytes"

	"github.com/uppir/uppir/pkg/upirerr"
)

// Mirror request verbs (spec §6).
const (
	MirrorHello    = "HELLO"
	MirrorXORBlock = "XORBLOCK"
)

// Mirror response literals (spec §6).
const (
	MirrorHelloReply          = "HI!"
	MirrorInvalidRequestLen   = "Invalid request length"
	MirrorInvalidRequestType  = "Invalid request type"
)

// MirrorRequest is a parsed mirror-verb request.
type MirrorRequest struct {
	Verb      string
	Bitstring []byte // only set for MirrorXORBlock
}

// ParseMirrorRequest decodes a raw mirror request payload.
func ParseMirrorRequest(raw []byte) MirrorRequest {
	switch {
	case bytes.Equal(raw, []byte(MirrorHello)):
		return MirrorRequest{Verb: MirrorHello}
	case bytes.HasPrefix(raw, []byte(MirrorXORBlock)):
		return MirrorRequest{Verb: MirrorXORBlock, Bitstring: raw[len(MirrorXORBlock):]}
	default:
		return MirrorRequest{Verb: ""}
	}
}

// EncodeXORBlockRequest builds the raw XORBLOCK request payload for bs.
func EncodeXORBlockRequest(bs []byte) []byte {
	return append([]byte(MirrorXORBlock), bs...)
}

// MirrorResponse is what a mirror sends back: either a data block or one
// of the two protocol-error strings defined by the wire protocol. Keeping
// both possibilities in one tagged value lets a client distinguish "this
// is a block of known length" from "this is a diagnostic string" without
// relying on content sniffing (spec §6 "tagged sum").
type MirrorResponse struct {
	Block     []byte
	ErrorText string // non-empty iff this response is a protocol error
}

// DecodeMirrorResponse interprets a mirror's raw reply. expectedBlockLength
// is the block_size a valid XORBLOCK reply must have; a reply of any other
// length is treated as a protocol error string.
func DecodeMirrorResponse(raw []byte, expectedBlockLength int) MirrorResponse {
	if len(raw) == expectedBlockLength {
		return MirrorResponse{Block: raw}
	}
	return MirrorResponse{ErrorText: string(raw)}
}

// HandleMirrorRequest dispatches a parsed request to produce the raw
// response bytes a mirror daemon should write back, given a function that
// computes the XOR-selected block for a validated bitstring.
func HandleMirrorRequest(req MirrorRequest, expectedBitstringLength int, xorSelected func([]byte) ([]byte, error)) ([]byte, error) {
	switch req.Verb {
	case MirrorHello:
		return []byte(MirrorHelloReply), nil
	case MirrorXORBlock:
		if len(req.Bitstring) != expectedBitstringLength {
			return []byte(MirrorInvalidRequestLen), nil
		}
		block, err := xorSelected(req.Bitstring)
		if err != nil {
			return nil, upirerr.Wrap(upirerr.InternalError, err, "failed to compute XOR-selected block")
		}
		return block, nil
	default:
		return []byte(MirrorInvalidRequestType), nil
	}
}
