package manifest

import (
	"os"

	"github.com/uppir/uppir/pkg/upirerr"
)

// LoadFile reads and parses the manifest file at path, returning both the
// raw bytes (byte-identical to what GET MANIFEST should serve) and the
// parsed value.
func LoadFile(path string) ([]byte, *Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, upirerr.Wrap(upirerr.FileNotFound, err, "cannot read manifest file %q", path)
	}
	m, err := Parse(raw)
	if err != nil {
		return nil, nil, err
	}
	return raw, m, nil
}
