package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello, mirror")
	require.NoError(t, WriteMessage(&buf, payload))

	got, err := ReadMessage(&buf)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestReadMessageRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	header := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	buf.Write(header)
	_, err := ReadMessage(&buf)
	require.Error(t, err)
}

func TestMirrorHelloRoundTrip(t *testing.T) {
	req := ParseMirrorRequest([]byte(MirrorHello))
	require.Equal(t, MirrorHello, req.Verb)

	resp, err := HandleMirrorRequest(req, 2, nil)
	require.NoError(t, err)
	require.Equal(t, MirrorHelloReply, string(resp))
}

func TestMirrorXORBlockValidLength(t *testing.T) {
	bs := []byte{0x01, 0x02}
	raw := EncodeXORBlockRequest(bs)
	req := ParseMirrorRequest(raw)
	require.Equal(t, MirrorXORBlock, req.Verb)
	require.Equal(t, bs, req.Bitstring)

	called := false
	resp, err := HandleMirrorRequest(req, len(bs), func(got []byte) ([]byte, error) {
		called = true
		require.Equal(t, bs, got)
		return []byte("the-xor-result"), nil
	})
	require.NoError(t, err)
	require.True(t, called)
	require.Equal(t, "the-xor-result", string(resp))
}

func TestMirrorXORBlockWrongLength(t *testing.T) {
	raw := EncodeXORBlockRequest([]byte{0x01})
	req := ParseMirrorRequest(raw)

	resp, err := HandleMirrorRequest(req, 4, func([]byte) ([]byte, error) {
		t.Fatal("xorSelected should not be called for a malformed request")
		return nil, nil
	})
	require.NoError(t, err)
	require.Equal(t, MirrorInvalidRequestLen, string(resp))
}

func TestMirrorUnknownVerb(t *testing.T) {
	req := ParseMirrorRequest([]byte("BOGUS"))
	resp, err := HandleMirrorRequest(req, 4, nil)
	require.NoError(t, err)
	require.Equal(t, MirrorInvalidRequestType, string(resp))
}

func TestDecodeMirrorResponseDistinguishesBlockFromError(t *testing.T) {
	block := DecodeMirrorResponse([]byte{0x01, 0x02, 0x03, 0x04}, 4)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, block.Block)
	require.Empty(t, block.ErrorText)

	errResp := DecodeMirrorResponse([]byte(MirrorInvalidRequestLen), 4)
	require.Nil(t, errResp.Block)
	require.Equal(t, MirrorInvalidRequestLen, errResp.ErrorText)
}

func TestParseVendorRequestVerbs(t *testing.T) {
	require.Equal(t, VendorHello, ParseVendorRequest([]byte(VendorHello)).Verb)
	require.Equal(t, VendorGetManifest, ParseVendorRequest([]byte(VendorGetManifest)).Verb)
	require.Equal(t, VendorGetMirrorList, ParseVendorRequest([]byte(VendorGetMirrorList)).Verb)

	req := ParseVendorRequest([]byte(VendorMirrorAdvertise + `{"ip":"1.2.3.4","port":62294}`))
	require.Equal(t, VendorMirrorAdvertise, req.Verb)
	require.JSONEq(t, `{"ip":"1.2.3.4","port":62294}`, string(req.Advertise))
}

func TestParseMirrorAdvertisementAcceptsMatchingIP(t *testing.T) {
	info, err := ParseMirrorAdvertisement([]byte(`{"ip":"5.6.7.8","port":62294}`), "5.6.7.8", DefaultAdvertiseSizeCap)
	require.NoError(t, err)
	require.Equal(t, "5.6.7.8", info.IP)
	require.Equal(t, 62294, info.Port)
}

func TestParseMirrorAdvertisementRejectsMismatchedIP(t *testing.T) {
	_, err := ParseMirrorAdvertisement([]byte(`{"ip":"1.2.3.4","port":62294}`), "5.6.7.8", DefaultAdvertiseSizeCap)
	require.Error(t, err)
}

func TestParseMirrorAdvertisementRejectsOversizedPayload(t *testing.T) {
	_, err := ParseMirrorAdvertisement([]byte(`{"ip":"5.6.7.8","port":62294}`), "5.6.7.8", 4)
	require.Error(t, err)
}

func TestParseMirrorAdvertisementRejectsNonObject(t *testing.T) {
	_, err := ParseMirrorAdvertisement([]byte(`[1,2,3]`), "5.6.7.8", DefaultAdvertiseSizeCap)
	require.Error(t, err)
}

func TestParseMirrorAdvertisementRejectsMissingFields(t *testing.T) {
	_, err := ParseMirrorAdvertisement([]byte(`{"ip":"5.6.7.8"}`), "5.6.7.8", DefaultAdvertiseSizeCap)
	require.Error(t, err)
}
