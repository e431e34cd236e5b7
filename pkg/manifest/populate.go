package manifest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/uppir/uppir/pkg/datastore"
	"github.com/uppir/uppir/pkg/upirerr"
)

// PopulateDatastore reads every file the manifest lists from rootDir,
// verifies its size and hash, and writes its bytes into store at the
// file's recorded offset (adapted from uppirlib._add_data_to_datastore /
// populate_xordatastore). It then verifies that the populated store's
// per-block hashes match the manifest, catching a dirty store or a
// corrupt manifest before the mirror starts serving.
func PopulateDatastore(m *Manifest, store datastore.Store, rootDir string) error {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return upirerr.Wrap(upirerr.FileNotFound, err, "cannot resolve mirror root %q", rootDir)
	}

	for _, f := range m.Files {
		path := filepath.Join(rootDir, filepath.FromSlash(f.Name))

		absPath, err := filepath.Abs(path)
		if err != nil || !strings.HasPrefix(absPath, absRoot) {
			return upirerr.New(upirerr.BadArgument, "file %q in manifest escapes the mirror root", f.Name)
		}

		contents, err := os.ReadFile(path)
		if err != nil {
			return upirerr.Wrap(upirerr.FileNotFound, err, "file %q listed in manifest cannot be found under %q", f.Name, rootDir)
		}
		if len(contents) != f.Length {
			return upirerr.New(upirerr.IncorrectFileContents, "file %q has the wrong size", f.Name)
		}
		gotHash, err := FindHash(contents, m.HashAlgorithm)
		if err != nil {
			return err
		}
		if gotHash != f.Hash {
			return upirerr.New(upirerr.IncorrectFileContents, "file %q has the wrong hash", f.Name)
		}

		if err := store.SetData(f.Offset, contents); err != nil {
			return err
		}
	}

	return verifyBlockHashes(m, store)
}

func verifyBlockHashes(m *Manifest, store datastore.Store) error {
	for b := 0; b < m.BlockCount; b++ {
		block, err := store.GetData(b*m.BlockSize, m.BlockSize)
		if err != nil {
			return err
		}
		got, err := FindHash(block, m.HashAlgorithm)
		if err != nil {
			return err
		}
		if got != m.BlockHashes[b] {
			return upirerr.New(upirerr.CorruptManifest, "block %d has an invalid hash despite matching file hashes; corrupt manifest or dirty datastore", b)
		}
	}
	return nil
}
