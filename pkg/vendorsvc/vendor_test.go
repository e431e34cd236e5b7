package vendorsvc

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uppir/uppir/pkg/manifest"
	"github.com/uppir/uppir/pkg/wire"
)

func writeTestManifest(t *testing.T, dir string) string {
	t.Helper()
	m := &manifest.Manifest{
		Version:       "1.0",
		BlockSize:     64,
		BlockCount:    1,
		BlockHashes:   []string{"x"},
		HashAlgorithm: "noop",
		VendorHost:    "vendor.example",
	}
	raw, err := manifest.Marshal(m)
	require.NoError(t, err)
	path := filepath.Join(dir, "manifest.json")
	require.NoError(t, os.WriteFile(path, raw, 0644))
	return path
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	dir := t.TempDir()
	path := writeTestManifest(t, dir)
	s, err := New(Config{ManifestPath: path, AdvertiseTTL: 50 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestVendorServesLoadedManifest(t *testing.T) {
	s := newTestServer(t)
	m, raw := s.Manifest()
	require.Equal(t, "vendor.example", m.VendorHost)
	require.NotEmpty(t, raw)
}

func TestVendorAdvertiseRequiresMatchingIP(t *testing.T) {
	s := newTestServer(t)
	payload, err := json.Marshal(wire.MirrorInfo{IP: "9.9.9.9", Port: 1})
	require.NoError(t, err)
	require.Error(t, s.HandleAdvertise(payload, "1.2.3.4"))
}

func TestVendorAdvertiseAndList(t *testing.T) {
	s := newTestServer(t)
	payload, err := json.Marshal(wire.MirrorInfo{IP: "1.2.3.4", Port: 9001})
	require.NoError(t, err)
	require.NoError(t, s.HandleAdvertise(payload, "1.2.3.4"))

	list := s.HandleMirrorList()
	require.Len(t, list, 1)
	require.Equal(t, "1.2.3.4", list[0].IP)
	require.Equal(t, 9001, list[0].Port)
}

func TestVendorAdvertisementExpiresAfterTTL(t *testing.T) {
	s := newTestServer(t)
	payload, err := json.Marshal(wire.MirrorInfo{IP: "1.2.3.4", Port: 9001})
	require.NoError(t, err)
	require.NoError(t, s.HandleAdvertise(payload, "1.2.3.4"))
	require.Len(t, s.HandleMirrorList(), 1)

	time.Sleep(100 * time.Millisecond)
	require.Empty(t, s.HandleMirrorList())
}

func TestVendorAdvertiseOverwritesSameIP(t *testing.T) {
	s := newTestServer(t)
	first, _ := json.Marshal(wire.MirrorInfo{IP: "1.2.3.4", Port: 9001})
	second, _ := json.Marshal(wire.MirrorInfo{IP: "1.2.3.4", Port: 9002})

	require.NoError(t, s.HandleAdvertise(first, "1.2.3.4"))
	require.NoError(t, s.HandleAdvertise(second, "1.2.3.4"))

	list := s.HandleMirrorList()
	require.Len(t, list, 1)
	require.Equal(t, 9002, list[0].Port)
}

// TestVendorServeTCPAdvertiseFailureStartsWithError exercises the actual
// bytes serveConn writes back for a rejected MIRRORADVERTISE, per spec §6
// scenario S6: the reply must begin with the literal string "Error", not
// the *upirerr.Error's "<KIND>: ..." log formatting.
func TestVendorServeTCPAdvertiseFailureStartsWithError(t *testing.T) {
	s := newTestServer(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go s.ServeTCP(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	host, _, err := net.SplitHostPort(conn.LocalAddr().String())
	require.NoError(t, err)
	payload, err := json.Marshal(wire.MirrorInfo{IP: "9.9.9.9", Port: 1})
	require.NoError(t, err)
	require.NotEqual(t, host, "9.9.9.9")

	req := append([]byte(wire.VendorMirrorAdvertise), payload...)
	require.NoError(t, wire.WriteMessage(conn, req))

	resp, err := wire.ReadMessage(conn)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(string(resp), "Error"), "got %q", resp)
}
