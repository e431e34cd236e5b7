package manifest

import "github.com/uppir/uppir/pkg/upirerr"

// findFile returns the FileInfo named name, or an error if absent.
func (m *Manifest) findFile(name string) (*FileInfo, error) {
	for i := range m.Files {
		if m.Files[i].Name == name {
			return &m.Files[i], nil
		}
	}
	return nil, upirerr.New(upirerr.FileNotFound, "file %q is not in the manifest", name)
}

// BlockListForFile returns the ordered block indices spanning the named
// file's byte range (adapted from uppirlib.get_blocklist_for_file).
func (m *Manifest) BlockListForFile(name string) ([]int, error) {
	f, err := m.findFile(name)
	if err != nil {
		return nil, err
	}
	if f.Length == 0 {
		return nil, nil
	}
	start := f.Offset / m.BlockSize
	end := (f.Offset + f.Length - 1) / m.BlockSize
	blocks := make([]int, 0, end-start+1)
	for b := start; b <= end; b++ {
		blocks = append(blocks, b)
	}
	return blocks, nil
}

// FileNames returns every file name listed in the manifest, in order.
func (m *Manifest) FileNames() []string {
	names := make([]string, len(m.Files))
	for i, f := range m.Files {
		names[i] = f.Name
	}
	return names
}

// ExtractFile reconstitutes a file's bytes from a map of block index to
// block contents (adapted from uppirlib.extract_file_from_blockdict),
// handling both the same-block and cross-block cases.
func (m *Manifest) ExtractFile(name string, blocks map[int][]byte) ([]byte, error) {
	f, err := m.findFile(name)
	if err != nil {
		return nil, err
	}

	startBlock, startOffset := f.Offset/m.BlockSize, f.Offset%m.BlockSize
	endBlock, endOffset := (f.Offset+f.Length)/m.BlockSize, (f.Offset+f.Length)%m.BlockSize

	getBlock := func(idx int) ([]byte, error) {
		b, ok := blocks[idx]
		if !ok {
			return nil, upirerr.New(upirerr.InternalError, "missing reconstructed block %d needed for file %q", idx, name)
		}
		return b, nil
	}

	if startBlock == endBlock {
		b, err := getBlock(startBlock)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), b[startOffset:endOffset]...), nil
	}

	first, err := getBlock(startBlock)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), first[startOffset:]...)

	for idx := startBlock + 1; idx < endBlock; idx++ {
		b, err := getBlock(idx)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}

	if endOffset > 0 {
		last, err := getBlock(endBlock)
		if err != nil {
			return nil, err
		}
		out = append(out, last[:endOffset]...)
	}

	return out, nil
}
