package main

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/uppir/uppir/pkg/logging"
	"github.com/uppir/uppir/pkg/manifest"
	"github.com/uppir/uppir/pkg/mirrorsvc"
	"github.com/uppir/uppir/pkg/requestor"
	"github.com/uppir/uppir/pkg/vendorsvc"
)

// startMirror spins up a mirror daemon serving the same manifest/data
// directory, returning its listen address.
func startMirror(t *testing.T, manifestPath, dataRoot string) string {
	t.Helper()
	srv, err := mirrorsvc.New(mirrorsvc.Config{ManifestPath: manifestPath, DataRoot: dataRoot})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go srv.ServeTCP(ln)
	return ln.Addr().String()
}

func startVendor(t *testing.T, manifestPath string) string {
	t.Helper()
	srv, err := vendorsvc.New(vendorsvc.Config{ManifestPath: manifestPath})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	go srv.ServeTCP(ln)
	return ln.Addr().String()
}

func TestRetrieveFileEndToEnd(t *testing.T) {
	dataRoot := t.TempDir()
	want := []byte("this is the full content of the secret file the client wants")
	require.NoError(t, os.WriteFile(filepath.Join(dataRoot, "secret.txt"), want, 0644))

	m, err := manifest.CreateManifest(manifest.CreateOptions{
		RootDir: dataRoot, BlockSize: 64, VendorHost: "vendor.example",
	})
	require.NoError(t, err)
	raw, err := manifest.Marshal(m)
	require.NoError(t, err)
	manifestPath := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(manifestPath, raw, 0644))

	vendorAddr := startVendor(t, manifestPath)
	fetched, _, err := fetchManifestAndMirrors(vendorAddr)
	require.NoError(t, err)
	require.Equal(t, m.BlockCount, fetched.BlockCount)

	const k = 3
	mirrorAddrs := make([]requestor.MirrorDescriptor, k)
	for i := 0; i < k; i++ {
		addr := startMirror(t, manifestPath, dataRoot)
		host, portStr, err := net.SplitHostPort(addr)
		require.NoError(t, err)
		port, err := strconv.Atoi(portStr)
		require.NoError(t, err)
		mirrorAddrs[i] = requestor.MirrorDescriptor{IP: host, Port: port}
	}

	log := logging.New(logging.DefaultConfig())
	got, err := retrieveFile(fetched, mirrorAddrs, "secret.txt", k, 5*time.Millisecond, log)
	require.NoError(t, err)
	require.Equal(t, want, got)
}
