package vmtree

// emptyMapping is the all-ones u32 sentinel marking a free MappingTable
// slot, and the value a prev-page column never legitimately holds.
const emptyMapping uint32 = 0xFFFFFFFF

// MappingTable is a fixed-capacity linear-probed hash from a page's
// previous physical id to its current physical id. It is the mechanism
// that lets an interior node keep referencing a child by an old physical
// id after the child has been rewritten elsewhere, avoiding a cascading
// rewrite of the whole root-to-leaf path on every split.
type MappingTable struct {
	prev []uint32
	curr []uint32

	maxTries uint32
	stride   uint32
	count    uint32

	numCompare uint64

	// savedPrev/savedCurr hold a not-yet-committed prev->curr edge during
	// a fixMappings cascade, so Resolve sees the pending edge before
	// Upsert actually lands it in the table.
	savedPrev uint32
	savedCurr uint32
}

// NewMappingTable allocates a table with room for maxMappings entries and
// a probe budget of maxTries per operation (defaults to 1 when zero).
func NewMappingTable(maxMappings, maxTries uint32) *MappingTable {
	if maxTries == 0 {
		maxTries = 1
	}
	if maxMappings == 0 {
		maxMappings = 1
	}
	m := &MappingTable{
		prev:      make([]uint32, maxMappings),
		curr:      make([]uint32, maxMappings),
		maxTries:  maxTries,
		stride:    7, // relatively prime to common table sizes
		savedPrev: emptyMapping,
	}
	for i := range m.prev {
		m.prev[i] = emptyMapping
	}
	return m
}

func (m *MappingTable) Cap() uint32   { return uint32(len(m.prev)) }
func (m *MappingTable) Count() uint32 { return m.count }

// index probes the chain for prevPage. found reports an exact match;
// freeSlot is the first empty slot seen along the chain, or -1 if the
// chain was full of other keys within the probe budget.
func (m *MappingTable) index(prevPage uint32) (slot int, found bool, freeSlot int) {
	capN := uint32(len(m.prev))
	loc := prevPage % capN
	freeSlot = -1
	for try := uint32(0); try < m.maxTries; try++ {
		idx := loc % capN
		m.numCompare++
		if m.prev[idx] == prevPage {
			return int(idx), true, freeSlot
		}
		if m.prev[idx] == emptyMapping && freeSlot == -1 {
			freeSlot = int(idx)
		}
		loc += m.stride
	}
	return -1, false, freeSlot
}

// Resolve returns the current physical id standing in for p, or p itself
// when no mapping exists. Never fails.
func (m *MappingTable) Resolve(p uint32) uint32 {
	if m.savedPrev != emptyMapping && p == m.savedPrev {
		return m.savedCurr
	}
	if slot, found, _ := m.index(p); found {
		return m.curr[slot]
	}
	return p
}

// Upsert installs or updates a prev->curr mapping. It returns
// ErrOutOfMappingSpace when the probe chain of length maxTries holds no
// matching or empty slot; the caller (TreeEngine.fixMappings) reacts by
// cascading writes up the tree until updatePointers frees room.
func (m *MappingTable) Upsert(prev, curr uint32) error {
	slot, found, freeSlot := m.index(prev)
	if found {
		m.curr[slot] = curr
		return nil
	}
	if freeSlot == -1 {
		return ErrOutOfMappingSpace
	}
	m.prev[freeSlot] = prev
	m.curr[freeSlot] = curr
	m.count++
	return nil
}

// Remove deletes the mapping for prev, if any.
func (m *MappingTable) Remove(prev uint32) {
	if slot, found, _ := m.index(prev); found {
		m.prev[slot] = emptyMapping
		m.count--
	}
}

// SavePending records a pending edge so Resolve honors it mid-cascade.
func (m *MappingTable) SavePending(prev, curr uint32) {
	m.savedPrev = prev
	m.savedCurr = curr
}

// ClearPending drops the pending edge once it has actually been Upserted.
func (m *MappingTable) ClearPending() {
	m.savedPrev = emptyMapping
}

// Scan invokes fn for every occupied slot; debugging/printMappings only.
func (m *MappingTable) Scan(fn func(prev, curr uint32)) {
	for i, p := range m.prev {
		if p != emptyMapping {
			fn(p, m.curr[i])
		}
	}
}

func (m *MappingTable) NumCompares() uint64 { return m.numCompare }
