package vmtree

// BufferPoolStats counts reads, fresh writes, in-place overwrites, frame
// cache hits, and pages moved by block reclamation.
type BufferPoolStats struct {
	Reads      uint64
	Writes     uint64
	OverWrites uint64
	BufferHits uint64
	Moves      uint64
}

// TreeStats aggregates BufferPoolStats with the mapping table's compare
// counter and the tree's own shape counters, for monitoring and the
// printNode/stats debug surface.
type TreeStats struct {
	BufferPoolStats
	NumMappingCompare uint64
	MappingCount      uint32
	Levels            uint32
	NumNodes          uint32
}
