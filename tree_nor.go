package vmtree

import "sort"

// maxKeySentinel is the all-ones key value standing in for "no upper
// bound" on a NOR interior page's rightmost entry, matching the all-ones
// bytes an erased (never-written) page already reads as.
func maxKeySentinel(keySize uint32) []byte {
	b := make([]byte, keySize)
	for i := range b {
		b[i] = 0xFF
	}
	return b
}

// putNor implements the NOR-overwrite insert path: append into the first
// free leaf slot when one exists (a pure 1->0 bitmap transition, no erase
// needed); otherwise compact the leaf's live records into sorted order and
// split it like a plain leaf, propagating upward via insertInteriorNor.
func (t *Tree) putNor(key, data []byte) error {
	leafBuf, err := t.descend(key)
	if err != nil {
		return err
	}
	leafID := t.activePath[t.leafLevel()]

	if slot, ok := t.findFreeLeafSlot(leafBuf); ok {
		copy(t.layout.NorLeafKey(leafBuf, slot), key)
		copy(t.layout.NorLeafData(leafBuf, slot), data)
		t.layout.SetLeafFreeBit(leafBuf, slot, 0)
		t.layout.SetLeafValidBit(leafBuf, slot, 1)
		return t.buf.OverWritePage(leafBuf, leafID)
	}

	return t.splitNorLeafAndPropagate(leafBuf, leafID, key, data)
}

func (t *Tree) findFreeLeafSlot(buf []byte) (uint32, bool) {
	for i := uint32(0); i < t.layout.MaxLeafRecs; i++ {
		if t.layout.LeafFreeBit(buf, i) == 1 {
			return i, true
		}
	}
	return 0, false
}

func (t *Tree) findFreeInteriorSlot(buf []byte, exclude int) (uint32, bool) {
	for i := uint32(0); i < t.layout.MaxInteriorRecs; i++ {
		if exclude >= 0 && i == uint32(exclude) {
			continue
		}
		if t.layout.InteriorFreeBit(buf, i) == 1 {
			return i, true
		}
	}
	return 0, false
}

// splitNorLeafAndPropagate compacts a full NOR leaf's live records plus the
// new one into sorted order, splits them at the midpoint into two fresh
// NOR leaf pages (each rewritten with a clean set of bitmaps), frees the
// old physical page, and propagates the promoted separator (the smallest
// key of the right half) upward.
func (t *Tree) splitNorLeafAndPropagate(leafBuf []byte, leafID uint32, key, data []byte) error {
	recs := t.validLeafRecords(leafBuf)
	nk := make([]byte, t.layout.KeySize)
	nd := make([]byte, t.layout.DataSize)
	copy(nk, key)
	copy(nd, data)
	recs = append(recs, kv{nk, nd})
	sort.Slice(recs, func(i, j int) bool { return t.cmp(recs[i].key, recs[j].key) < 0 })

	mid := len(recs) / 2

	left := make([]byte, t.layout.PageSize)
	right := make([]byte, t.layout.PageSize)
	initErasedPage(left)
	initErasedPage(right)
	setPrevID(left, PrevIDConstant)
	setPrevID(right, PrevIDConstant)
	for _, p := range [][]byte{left, right} {
		setRootFlag(p, false)
		setInteriorFlag(p, false)
		setNorInteriorFlag(p, false)
	}

	for i, r := range recs[:mid] {
		copy(t.layout.NorLeafKey(left, uint32(i)), r.key)
		copy(t.layout.NorLeafData(left, uint32(i)), r.data)
		t.layout.SetLeafFreeBit(left, uint32(i), 0)
		t.layout.SetLeafValidBit(left, uint32(i), 1)
	}
	for i, r := range recs[mid:] {
		copy(t.layout.NorLeafKey(right, uint32(i)), r.key)
		copy(t.layout.NorLeafData(right, uint32(i)), r.data)
		t.layout.SetLeafFreeBit(right, uint32(i), 0)
		t.layout.SetLeafValidBit(right, uint32(i), 1)
	}

	sepKey := make([]byte, t.layout.KeySize)
	copy(sepKey, recs[mid].key)
	t.numNodes++

	t.buf.SetFree(leafID)
	leftID, err := t.buf.WritePage(left)
	if err != nil {
		return err
	}
	rightID, err := t.buf.WritePage(right)
	if err != nil {
		return err
	}
	return t.propagateSplitNor(leftID, rightID, sepKey)
}

// propagateSplitNor walks the active path upward trying, at each level, to
// splice the new (sepKey, leftID, rightID) triple into the ancestor
// in place (insertInteriorNor); only when that page genuinely has no room
// for two more entries does it fall back to a compacted sort-and-split,
// continuing the cascade. Unlike the plain path, a successful in-place
// splice never changes the page's physical id, so no mapping entry is ever
// needed for this case -- the entire point of the NOR layout.
func (t *Tree) propagateSplitNor(leftID, rightID uint32, sepKey []byte) error {
	level := int(t.leafLevel()) - 1
	for level >= 0 {
		parentOldID := t.activePath[level]
		parentBuf, err := t.buf.ReadInto(parentOldID, 0)
		if err != nil {
			return err
		}

		if t.insertInteriorNor(parentBuf, sepKey, leftID, rightID) {
			return t.buf.OverWritePage(parentBuf, parentOldID)
		}

		newLeft, newRight, newSep, serr := t.splitInteriorNor(parentBuf, leftID, rightID, sepKey)
		if serr != nil {
			return serr
		}
		t.buf.SetFree(parentOldID)
		leftID, rightID, sepKey = newLeft, newRight, newSep
		level--
	}
	return t.newRootNor(leftID, rightID, sepKey)
}

// insertInteriorNor splices (sepKey, left) and (oldBoundary, right) into
// two free slots of buf, replacing the single entry that used to route to
// the page now split into left/right. It finds the smallest valid key
// strictly greater than sepKey (the old boundary, whose pointer served the
// pre-split child) and, if two free slots are available, writes both new
// entries and invalidates the old one. Returns false (leaving buf
// unmodified) when fewer than two free slots exist, so the caller falls
// back to a compaction split.
func (t *Tree) insertInteriorNor(buf []byte, sepKey []byte, left, right uint32) bool {
	kIdx := t.searchInteriorNor(buf, sepKey)
	if kIdx < 0 {
		return false
	}
	slotA, okA := t.findFreeInteriorSlot(buf, -1)
	if !okA {
		return false
	}
	slotB, okB := t.findFreeInteriorSlot(buf, int(slotA))
	if !okB {
		return false
	}

	oldKey := make([]byte, t.layout.KeySize)
	copy(oldKey, t.layout.NorInteriorKey(buf, uint32(kIdx)))

	copy(t.layout.NorInteriorKey(buf, slotA), sepKey)
	t.layout.SetNorInteriorPointer(buf, slotA, left)
	t.layout.SetInteriorFreeBit(buf, slotA, 0)
	t.layout.SetInteriorValidBit(buf, slotA, 1)

	copy(t.layout.NorInteriorKey(buf, slotB), oldKey)
	t.layout.SetNorInteriorPointer(buf, slotB, right)
	t.layout.SetInteriorFreeBit(buf, slotB, 0)
	t.layout.SetInteriorValidBit(buf, slotB, 1)

	t.layout.SetInteriorValidBit(buf, uint32(kIdx), 0)
	return true
}

// splitInteriorNor is the interior compaction-split fallback: it gathers
// every live entry of buf (substituting the replaced-and-split entry for
// two), sorts by boundary key, and divides the result across two fresh NOR
// interior pages. The promoted separator is the upper bound of the left
// half (entries[mid-1].key): every NOR interior entry's key is an exclusive
// upper bound on the keys its pointer serves, so the left half collectively
// serves everything below its largest boundary.
func (t *Tree) splitInteriorNor(buf []byte, leftChild, rightChild uint32, sepKey []byte) (uint32, uint32, []byte, error) {
	kIdx := t.searchInteriorNor(buf, sepKey)

	type entry struct {
		key []byte
		ptr uint32
	}
	var entries []entry
	for i := uint32(0); i < t.layout.MaxInteriorRecs; i++ {
		if t.layout.InteriorFreeBit(buf, i) == 1 || t.layout.InteriorValidBit(buf, i) == 0 {
			continue
		}
		if kIdx >= 0 && i == uint32(kIdx) {
			continue
		}
		k := make([]byte, t.layout.KeySize)
		copy(k, t.layout.NorInteriorKey(buf, i))
		entries = append(entries, entry{k, t.layout.NorInteriorPointer(buf, i)})
	}

	sk := make([]byte, t.layout.KeySize)
	copy(sk, sepKey)
	if kIdx >= 0 {
		oldKey := make([]byte, t.layout.KeySize)
		copy(oldKey, t.layout.NorInteriorKey(buf, uint32(kIdx)))
		entries = append(entries, entry{sk, leftChild}, entry{oldKey, rightChild})
	} else {
		entries = append(entries, entry{sk, leftChild}, entry{maxKeySentinel(t.layout.KeySize), rightChild})
	}
	sort.Slice(entries, func(i, j int) bool { return t.cmp(entries[i].key, entries[j].key) < 0 })

	mid := len(entries) / 2
	if mid == 0 {
		mid = 1
	}

	left := make([]byte, t.layout.PageSize)
	right := make([]byte, t.layout.PageSize)
	initErasedPage(left)
	initErasedPage(right)
	setPrevID(left, PrevIDConstant)
	setPrevID(right, PrevIDConstant)
	setNorInteriorFlag(left, true)
	setNorInteriorFlag(right, true)

	for i, e := range entries[:mid] {
		copy(t.layout.NorInteriorKey(left, uint32(i)), e.key)
		t.layout.SetNorInteriorPointer(left, uint32(i), e.ptr)
		t.layout.SetInteriorFreeBit(left, uint32(i), 0)
		t.layout.SetInteriorValidBit(left, uint32(i), 1)
	}
	for i, e := range entries[mid:] {
		copy(t.layout.NorInteriorKey(right, uint32(i)), e.key)
		t.layout.SetNorInteriorPointer(right, uint32(i), e.ptr)
		t.layout.SetInteriorFreeBit(right, uint32(i), 0)
		t.layout.SetInteriorValidBit(right, uint32(i), 1)
	}

	promoted := make([]byte, t.layout.KeySize)
	copy(promoted, entries[mid-1].key)
	t.numNodes++

	leftID, err := t.buf.WritePage(left)
	if err != nil {
		return 0, 0, nil, err
	}
	rightID, err := t.buf.WritePage(right)
	if err != nil {
		return 0, 0, nil, err
	}
	return leftID, rightID, promoted, nil
}

// newRootNor allocates a brand-new NOR interior root holding exactly two
// entries: (sepKey, leftID) and (maxKeySentinel, rightID), raising the
// tree's height by one.
func (t *Tree) newRootNor(leftID, rightID uint32, sepKey []byte) error {
	root := make([]byte, t.layout.PageSize)
	initErasedPage(root)
	setRootFlag(root, true)
	setNorInteriorFlag(root, true)
	setPrevID(root, PrevIDConstant)

	copy(t.layout.NorInteriorKey(root, 0), sepKey)
	t.layout.SetNorInteriorPointer(root, 0, leftID)
	t.layout.SetInteriorFreeBit(root, 0, 0)
	t.layout.SetInteriorValidBit(root, 0, 1)

	copy(t.layout.NorInteriorKey(root, 1), maxKeySentinel(t.layout.KeySize))
	t.layout.SetNorInteriorPointer(root, 1, rightID)
	t.layout.SetInteriorFreeBit(root, 1, 0)
	t.layout.SetInteriorValidBit(root, 1, 1)

	newID, err := t.buf.WritePage(root)
	if err != nil {
		return err
	}
	t.levels++
	t.numNodes++
	t.activePath = t.activePath[:1]
	t.activePath[0] = newID
	t.buf.SetActiveRoot(newID)
	return nil
}
