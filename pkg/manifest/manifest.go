// Package manifest implements the upPIR release manifest (spec §3, §6):
// block geometry, per-block hashes, and the file layout needed to map
// file byte ranges onto datastore blocks. The on-disk/wire form is JSON,
// byte-identical between the vendor's GET MANIFEST response and the
// manifest file, following the shape of noisefs's descriptors.Descriptor.
package manifest

import (
	"encoding/json"
	"sort"

	"github.com/uppir/uppir/pkg/upirerr"
)

// FileInfo describes one file's placement within the datastore.
type FileInfo struct {
	Name   string `json:"name"`
	Hash   string `json:"hash"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// Manifest is the release's immutable metadata, shared by vendor, mirror,
// and client.
type Manifest struct {
	Version       string     `json:"version"`
	BlockSize     int        `json:"block_size"`
	BlockCount    int        `json:"block_count"`
	BlockHashes   []string   `json:"block_hashes"`
	HashAlgorithm string     `json:"hash_algorithm"`
	VendorHost    string     `json:"vendor_host"`
	VendorPort    int        `json:"vendor_port"`
	ManifestHash  string     `json:"manifest_hash"`
	Files         []FileInfo `json:"files"`
}

// Marshal serializes m to the canonical JSON wire/file form.
func Marshal(m *Manifest) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, upirerr.Wrap(upirerr.CorruptManifest, err, "failed to serialize manifest")
	}
	return data, nil
}

// Parse deserializes raw manifest bytes and validates the result.
func Parse(raw []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, upirerr.Wrap(upirerr.CorruptManifest, err, "manifest is not valid JSON")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the structural and semantic invariants of spec §3:
// block_hashes length, disjoint file intervals, and a supported hash
// algorithm.
func (m *Manifest) Validate() error {
	if m.BlockSize <= 0 {
		return upirerr.New(upirerr.CorruptManifest, "block_size must be positive")
	}
	if m.BlockSize%64 != 0 {
		return upirerr.New(upirerr.CorruptManifest, "block_size (%d) must be a multiple of 64", m.BlockSize)
	}
	if m.BlockCount < 0 {
		return upirerr.New(upirerr.CorruptManifest, "block_count must not be negative")
	}
	if len(m.BlockHashes) != m.BlockCount {
		return upirerr.New(upirerr.CorruptManifest, "block_hashes length (%d) must equal block_count (%d)", len(m.BlockHashes), m.BlockCount)
	}
	if !isSupportedAlgorithm(m.HashAlgorithm) {
		return upirerr.New(upirerr.CorruptManifest, "unsupported hash_algorithm %q", m.HashAlgorithm)
	}

	type interval struct {
		offset, end int
		name        string
	}
	intervals := make([]interval, 0, len(m.Files))
	maxEnd := 0
	for _, f := range m.Files {
		if f.Offset < 0 {
			return upirerr.New(upirerr.CorruptManifest, "file %q has negative offset", f.Name)
		}
		if f.Offset+f.Length > m.BlockSize*m.BlockCount {
			return upirerr.New(upirerr.CorruptManifest, "file %q extends past the end of the datastore", f.Name)
		}
		if isUnsafeRelativePath(f.Name) {
			return upirerr.New(upirerr.CorruptManifest, "file name %q is not a safe relative path", f.Name)
		}
		end := f.Offset + f.Length
		intervals = append(intervals, interval{f.Offset, end, f.Name})
		if end > maxEnd {
			maxEnd = end
		}
	}

	sort.Slice(intervals, func(i, j int) bool { return intervals[i].offset < intervals[j].offset })
	for i := 1; i < len(intervals); i++ {
		if intervals[i].offset < intervals[i-1].end {
			return upirerr.New(upirerr.CorruptManifest, "files %q and %q overlap", intervals[i-1].name, intervals[i].name)
		}
	}

	return nil
}

// isUnsafeRelativePath rejects absolute paths and paths that can escape the
// mirror root via "..".
func isUnsafeRelativePath(name string) bool {
	if name == "" {
		return true
	}
	if len(name) > 0 && (name[0] == '/' || name[0] == '\\') {
		return true
	}
	depth := 0
	for _, seg := range splitPath(name) {
		switch seg {
		case "", ".":
			continue
		case "..":
			depth--
			if depth < 0 {
				return true
			}
		default:
			depth++
		}
	}
	return false
}

func splitPath(name string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '/' || name[i] == '\\' {
			parts = append(parts, name[start:i])
			start = i + 1
		}
	}
	parts = append(parts, name[start:])
	return parts
}
