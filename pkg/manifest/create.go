package manifest

import (
	"math"
	"os"
	"path/filepath"

	"github.com/uppir/uppir/pkg/datastore"
	"github.com/uppir/uppir/pkg/upirerr"
)

// CreateOptions configures CreateManifest.
type CreateOptions struct {
	RootDir       string
	BlockSize     int
	HashAlgorithm string // defaults to DefaultHashAlgorithm if empty
	VendorHost    string
	VendorPort    int
	Assigner      OffsetAssigner // defaults to PackOffsetsNoGaps if nil
}

// CreateManifest walks rootDir, hashes every file found, lays them out
// with the configured OffsetAssigner, and builds the manifest (adapted
// from uppirlib.create_manifest). Backing file bytes are also loaded into
// a throwaway datastore so the per-block hash list can be computed; a real
// mirror later repopulates its own datastore from these same files.
func CreateManifest(opts CreateOptions) (*Manifest, error) {
	if opts.VendorHost == "" {
		return nil, upirerr.New(upirerr.BadArgument, "must specify a vendor host")
	}
	if opts.BlockSize <= 0 {
		return nil, upirerr.New(upirerr.BadArgument, "block_size must be positive")
	}
	hashAlgorithm := opts.HashAlgorithm
	if hashAlgorithm == "" {
		hashAlgorithm = DefaultHashAlgorithm
	}
	assigner := opts.Assigner
	if assigner == nil {
		assigner = PackOffsetsNoGaps
	}

	files, err := walkFiles(opts.RootDir, hashAlgorithm)
	if err != nil {
		return nil, err
	}
	assigner(files, opts.BlockSize)

	m := &Manifest{
		Version:       "1.0",
		BlockSize:     opts.BlockSize,
		HashAlgorithm: hashAlgorithm,
		VendorHost:    opts.VendorHost,
		VendorPort:    opts.VendorPort,
		Files:         files,
	}

	end := 0
	for _, f := range files {
		if e := f.Offset + f.Length; e > end {
			end = e
		}
	}
	m.BlockCount = int(math.Ceil(float64(end) / float64(opts.BlockSize)))

	if err := m.Validate(); err != nil {
		return nil, err
	}

	if m.BlockCount > 0 {
		store, err := datastore.New(datastore.Reference, opts.BlockSize, m.BlockCount)
		if err != nil {
			return nil, err
		}
		if err := PopulateDatastore(m, store, opts.RootDir); err != nil {
			return nil, err
		}
		hashes, err := computeBlockHashes(store, m.BlockCount, opts.BlockSize, hashAlgorithm)
		if err != nil {
			return nil, err
		}
		m.BlockHashes = hashes
	} else {
		m.BlockHashes = nil
	}

	raw, err := Marshal(m)
	if err != nil {
		return nil, err
	}
	manifestHash, err := FindHash(raw, hashAlgorithm)
	if err != nil {
		return nil, err
	}
	m.ManifestHash = manifestHash

	return m, nil
}

func walkFiles(rootDir, hashAlgorithm string) ([]FileInfo, error) {
	var files []FileInfo
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			return err
		}
		contents, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		h, err := FindHash(contents, hashAlgorithm)
		if err != nil {
			return err
		}
		files = append(files, FileInfo{
			Name:   filepath.ToSlash(rel),
			Hash:   h,
			Length: len(contents),
		})
		return nil
	})
	if err != nil {
		return nil, upirerr.Wrap(upirerr.FileNotFound, err, "failed to walk root directory %q", rootDir)
	}
	return files, nil
}

func computeBlockHashes(store datastore.Store, blockCount, blockSize int, hashAlgorithm string) ([]string, error) {
	hashes := make([]string, blockCount)
	for b := 0; b < blockCount; b++ {
		block, err := store.GetData(b*blockSize, blockSize)
		if err != nil {
			return nil, err
		}
		h, err := FindHash(block, hashAlgorithm)
		if err != nil {
			return nil, err
		}
		hashes[b] = h
	}
	return hashes, nil
}
