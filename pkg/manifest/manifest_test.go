package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, contents []byte) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, contents, 0644))
}

func TestCreateManifestZeroFiles(t *testing.T) {
	dir := t.TempDir()
	m, err := CreateManifest(CreateOptions{RootDir: dir, BlockSize: 64, VendorHost: "vendor.example"})
	require.NoError(t, err)
	require.Equal(t, 0, m.BlockCount)
	require.Empty(t, m.BlockHashes)
}

func TestCreateManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", []byte("hello world"))
	writeFile(t, dir, "sub/b.txt", []byte("this file crosses a block boundary if block size is small enough"))

	m, err := CreateManifest(CreateOptions{RootDir: dir, BlockSize: 64, VendorHost: "vendor.example", VendorPort: 62293})
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	raw, err := Marshal(m)
	require.NoError(t, err)
	parsed, err := Parse(raw)
	require.NoError(t, err)
	require.Equal(t, m, parsed)
}

func TestValidateRejectsOverlap(t *testing.T) {
	m := &Manifest{
		Version: "1.0", BlockSize: 64, BlockCount: 1, BlockHashes: []string{"x"},
		HashAlgorithm: "noop",
		Files: []FileInfo{
			{Name: "a", Offset: 0, Length: 10},
			{Name: "b", Offset: 5, Length: 10},
		},
	}
	require.Error(t, m.Validate())
}

func TestValidateRejectsPathEscape(t *testing.T) {
	m := &Manifest{
		Version: "1.0", BlockSize: 64, BlockCount: 1, BlockHashes: []string{"x"},
		HashAlgorithm: "noop",
		Files:         []FileInfo{{Name: "../escape", Offset: 0, Length: 1}},
	}
	require.Error(t, m.Validate())
}

func TestValidateRejectsBlockHashesLengthMismatch(t *testing.T) {
	m := &Manifest{
		Version: "1.0", BlockSize: 64, BlockCount: 2, BlockHashes: []string{"x"},
		HashAlgorithm: "sha256-hex",
	}
	require.Error(t, m.Validate())
}

func TestValidateRejectsBlockSizeNotAMultipleOf64(t *testing.T) {
	m := &Manifest{
		Version: "1.0", BlockSize: 100, BlockCount: 1, BlockHashes: []string{"x"},
		HashAlgorithm: "sha256-hex",
	}
	require.Error(t, m.Validate())
}

func TestExtractFileSameBlockAndCrossBlock(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "aligned.bin", []byte("0123456789abcdef")) // 16 bytes, fits one block if blockSize=64
	writeFile(t, dir, "crossing.bin", make([]byte, 100))         // crosses a 64-byte block boundary

	m, err := CreateManifest(CreateOptions{RootDir: dir, BlockSize: 64, VendorHost: "v"})
	require.NoError(t, err)

	store := make(map[int][]byte)
	// Re-derive the raw datastore bytes by reading files back and placing
	// them at their assigned offsets, simulating a populated mirror.
	buf := make([]byte, m.BlockSize*m.BlockCount)
	for _, f := range m.Files {
		contents, err := os.ReadFile(filepath.Join(dir, f.Name))
		require.NoError(t, err)
		copy(buf[f.Offset:], contents)
	}
	for b := 0; b < m.BlockCount; b++ {
		store[b] = buf[b*m.BlockSize : (b+1)*m.BlockSize]
	}

	for _, f := range m.Files {
		want, err := os.ReadFile(filepath.Join(dir, f.Name))
		require.NoError(t, err)
		got, err := m.ExtractFile(f.Name, store)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestBlockListForFile(t *testing.T) {
	m := &Manifest{BlockSize: 10}
	m.Files = []FileInfo{{Name: "f", Offset: 5, Length: 20}}
	blocks, err := m.BlockListForFile("f")
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, blocks)
}

func TestFindHashNoop(t *testing.T) {
	h, err := FindHash([]byte("anything"), "noop")
	require.NoError(t, err)
	require.Equal(t, "", h)
}

func TestFindHashRawVsHex(t *testing.T) {
	hexHash, err := FindHash([]byte("data"), "sha256-hex")
	require.NoError(t, err)
	rawHash, err := FindHash([]byte("data"), "sha256-raw")
	require.NoError(t, err)
	require.Len(t, hexHash, 64)
	require.Len(t, rawHash, 32)
}

func TestPackOffsetsNoGaps(t *testing.T) {
	files := []FileInfo{{Name: "a", Length: 10}, {Name: "b", Length: 7}, {Name: "c", Length: 3}}
	PackOffsetsNoGaps(files, 64)
	require.Equal(t, 0, files[0].Offset)
	require.Equal(t, 10, files[1].Offset)
	require.Equal(t, 17, files[2].Offset)
	total := files[2].Offset + files[2].Length
	require.Equal(t, 20, total)
}
