package wire

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/uppir/uppir/pkg/upirerr"
)

// Vendor request verbs (spec §6).
const (
	VendorHello           = "HELLO"
	VendorGetManifest     = "GET MANIFEST"
	VendorGetMirrorList   = "GET MIRRORLIST"
	VendorMirrorAdvertise = "MIRRORADVERTISE"
)

// VendorHelloReply is the vendor's distinct HELLO reply, deliberately
// different from a mirror's so a client can tell the two services apart
// on a misconfigured port (spec §6).
const VendorHelloReply = "VENDORHI!"

// DefaultAdvertiseSizeCap and DefaultAdvertiseTTL are the vendor's default
// advertisement limits (spec §6).
const (
	DefaultAdvertiseSizeCap = 10 * 1024
	DefaultAdvertiseTTL     = 300 * time.Second
)

// MirrorInfo is the JSON shape of a mirror descriptor as advertised to and
// listed by the vendor.
type MirrorInfo struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// VendorRequest is a parsed vendor-verb request.
type VendorRequest struct {
	Verb      string
	Advertise []byte // raw JSON payload, only set for VendorMirrorAdvertise
}

// ParseVendorRequest decodes a raw vendor request payload.
func ParseVendorRequest(raw []byte) VendorRequest {
	switch {
	case bytes.Equal(raw, []byte(VendorHello)):
		return VendorRequest{Verb: VendorHello}
	case bytes.Equal(raw, []byte(VendorGetManifest)):
		return VendorRequest{Verb: VendorGetManifest}
	case bytes.Equal(raw, []byte(VendorGetMirrorList)):
		return VendorRequest{Verb: VendorGetMirrorList}
	case bytes.HasPrefix(raw, []byte(VendorMirrorAdvertise)):
		return VendorRequest{Verb: VendorMirrorAdvertise, Advertise: raw[len(VendorMirrorAdvertise):]}
	default:
		return VendorRequest{Verb: ""}
	}
}

// DecodeMirrorList decodes a GET MIRRORLIST response body.
func DecodeMirrorList(raw []byte) ([]MirrorInfo, error) {
	var list []MirrorInfo
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, upirerr.Wrap(upirerr.CorruptData, err, "failed to decode mirror list")
	}
	return list, nil
}

// ParseMirrorAdvertisement validates an advertisement payload against the
// size cap and the peer's observed source IP, per spec §6's
// MIRRORADVERTISE rules. peerIP is the address the connection was actually
// observed from, independent of whatever the payload claims.
func ParseMirrorAdvertisement(raw []byte, peerIP string, sizeCap int) (MirrorInfo, error) {
	if len(raw) > sizeCap {
		return MirrorInfo{}, upirerr.New(upirerr.BadArgument, "Error: advertisement payload of %d bytes exceeds the %d byte cap", len(raw), sizeCap)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return MirrorInfo{}, upirerr.Wrap(upirerr.BadArgument, err, "Error: advertisement is not a JSON object")
	}

	var info MirrorInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return MirrorInfo{}, upirerr.Wrap(upirerr.BadArgument, err, "Error: advertisement could not be decoded")
	}
	if _, ok := decoded["ip"]; !ok {
		return MirrorInfo{}, upirerr.New(upirerr.BadArgument, "Error: advertisement is missing \"ip\"")
	}
	if _, ok := decoded["port"]; !ok {
		return MirrorInfo{}, upirerr.New(upirerr.BadArgument, "Error: advertisement is missing \"port\"")
	}
	if info.IP != peerIP {
		return MirrorInfo{}, upirerr.New(upirerr.BadArgument, "Error: advertised ip %q does not match peer address %q", info.IP, peerIP)
	}

	return info, nil
}
