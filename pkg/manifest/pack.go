package manifest

// OffsetAssigner lays a set of files out as byte ranges within the
// datastore. PackOffsetsNoGaps, adapted from uppirlib.py's
// nogaps_offset_assignment_function, is the only assigner shipped; the
// interface is kept open so an alternative (e.g. block-aligned) packer
// could be added without touching CreateManifest's callers.
type OffsetAssigner func(files []FileInfo, blockSize int)

// PackOffsetsNoGaps lays files back-to-back with no padding between them,
// mutating each FileInfo's Offset field in place and leaving Length
// untouched. This is the default and only assigner; it does not use
// blockSize (most real packers would, to avoid straddling blocks, but the
// original left this as a documented simplification).
func PackOffsetsNoGaps(files []FileInfo, blockSize int) {
	offset := 0
	for i := range files {
		files[i].Offset = offset
		offset += files[i].Length
	}
}
