package vmtree

// putPlain implements the plain (sequential or overwrite) insert path:
// shift-and-insert when the leaf has room, split-and-propagate otherwise.
func (t *Tree) putPlain(key, data []byte) error {
	leafBuf, err := t.descend(key)
	if err != nil {
		return err
	}
	leafID := t.activePath[t.leafLevel()]
	count := pageCount(leafBuf)

	if count < uint16(t.layout.MaxLeafRecs) {
		idx := t.leafInsertPos(leafBuf, key)
		t.shiftLeafRight(leafBuf, idx, count)
		copy(t.layout.LeafKey(leafBuf, uint32(idx)), key)
		copy(t.layout.LeafData(leafBuf, uint32(idx)), data)
		setPageCount(leafBuf, count+1)

		if t.params.Mode == ModeOverwrite {
			return t.buf.OverWritePage(leafBuf, leafID)
		}

		t.buf.SetFree(leafID)
		if t.levels == 1 {
			newID, werr := t.buf.WritePage(leafBuf)
			if werr != nil {
				return werr
			}
			t.activePath[0] = newID
			t.buf.SetActiveRoot(newID)
			return nil
		}
		newPrev := t.touchPrev(leafBuf, leafID)
		newID, werr := t.buf.WritePage(leafBuf)
		if werr != nil {
			return werr
		}
		t.activePath[t.leafLevel()] = newID
		return t.fixMappings(newPrev, newID, int(t.leafLevel())-1)
	}

	return t.splitLeafAndPropagate(leafBuf, leafID, key, data)
}

func (t *Tree) leafInsertPos(buf []byte, key []byte) uint16 {
	c := pageCount(buf)
	lo, hi := uint16(0), c
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(key, t.layout.LeafKey(buf, uint32(mid))) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (t *Tree) shiftLeafRight(buf []byte, idx, count uint16) {
	for i := count; i > idx; i-- {
		copy(t.layout.LeafKey(buf, uint32(i)), t.layout.LeafKey(buf, uint32(i-1)))
		copy(t.layout.LeafData(buf, uint32(i)), t.layout.LeafData(buf, uint32(i-1)))
	}
}

func (t *Tree) shiftInteriorRight(buf []byte, idx uint32, count uint16) {
	for i := uint32(count); i > idx; i-- {
		copy(t.layout.InteriorKey(buf, i), t.layout.InteriorKey(buf, i-1))
	}
	for i := uint32(count) + 1; i > idx+1; i-- {
		t.layout.SetInteriorPointer(buf, i, t.layout.InteriorPointer(buf, i-1))
	}
}

// splitLeafAndPropagate splits a full leaf at mid = count/2, merging in the
// new record in sorted position, resets each half's prev chain (splits
// always break the chain), and propagates the promoted separator key
// upward.
func (t *Tree) splitLeafAndPropagate(leafBuf []byte, leafID uint32, key, data []byte) error {
	c := pageCount(leafBuf)
	mid := c / 2
	insertPos := t.leafInsertPos(leafBuf, key)

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

	writeRec := func(dst []byte, dstIdx uint16, k, d []byte) {
		copy(t.layout.LeafKey(dst, uint32(dstIdx)), k)
		copy(t.layout.LeafData(dst, uint32(dstIdx)), d)
	}

	var midKey []byte
	leftCount, rightCount := uint16(0), uint16(0)
	src, inserted := uint16(0), false
	total := c + 1
	for i := uint16(0); i < total; i++ {
		var k, d []byte
		if !inserted && src == insertPos {
			k, d = key, data
			inserted = true
		} else {
			k, d = t.layout.LeafKey(leafBuf, uint32(src)), t.layout.LeafData(leafBuf, uint32(src))
			src++
		}
		if i < mid {
			writeRec(left, leftCount, k, d)
			leftCount++
		} else {
			if rightCount == 0 {
				mk := make([]byte, t.layout.KeySize)
				copy(mk, k)
				midKey = mk
			}
			writeRec(right, rightCount, k, d)
			rightCount++
		}
	}
	setPageCount(left, leftCount)
	setPageCount(right, rightCount)
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
	return t.propagateSplit(leftID, rightID, midKey, key)
}

// propagateSplit walks the active path upward from the split leaf's
// parent, splicing in (sepKey, leftID, rightID) where the parent's pointer
// to the old child used to be (found via probeKey, which locates the same
// child slot the original descent chose). If a parent is itself full, it
// is split the same way and the cascade continues; if the cascade climbs
// past the root, a fresh root is created.
func (t *Tree) propagateSplit(leftID, rightID uint32, sepKey, probeKey []byte) error {
	level := int(t.leafLevel()) - 1
	for level >= 0 {
		parentOldID := t.activePath[level]
		parentBuf, err := t.buf.ReadInto(parentOldID, 0)
		if err != nil {
			return err
		}
		count := pageCount(parentBuf)

		if count < uint16(t.layout.MaxInteriorRecs) {
			t.updatePointers(parentBuf, 0, uint32(count))
			idx := t.searchInteriorPlain(parentBuf, probeKey)
			t.shiftInteriorRight(parentBuf, idx, count)
			copy(t.layout.InteriorKey(parentBuf, idx), sepKey)
			t.layout.SetInteriorPointer(parentBuf, idx, leftID)
			t.layout.SetInteriorPointer(parentBuf, idx+1, rightID)
			setPageCount(parentBuf, count+1)
			setInteriorFlag(parentBuf, true)

			t.buf.SetFree(parentOldID)
			newPrev := t.touchPrev(parentBuf, parentOldID)
			newID, werr := t.buf.WritePage(parentBuf)
			if werr != nil {
				return werr
			}

			if level == 0 {
				t.activePath[0] = newID
				t.buf.SetActiveRoot(newID)
				return nil
			}
			t.activePath[level] = newID
			return t.fixMappings(newPrev, newID, level-1)
		}

		newLeft, newRight, newSep, serr := t.splitInterior(parentBuf, count, leftID, rightID, sepKey, probeKey)
		if serr != nil {
			return serr
		}
		t.buf.SetFree(parentOldID)
		leftID, rightID, sepKey = newLeft, newRight, newSep
		level--
	}
	return t.newRoot(leftID, rightID, sepKey)
}

// splitInterior merges the existing (count keys, count+1 pointers) with
// the new (sepKey, leftChild, rightChild) triple replacing the pointer at
// the slot probeKey resolves to, then splits the combined sequence at
// mid = count/2, mirroring the leaf split's memmove dance one level up.
func (t *Tree) splitInterior(buf []byte, count uint16, leftChild, rightChild uint32, sepKey, probeKey []byte) (uint32, uint32, []byte, error) {
	idx := t.searchInteriorPlain(buf, probeKey)
	totalKeys := int(count) + 1
	mid := uint32(count) / 2

	left := make([]byte, t.layout.PageSize)
	right := make([]byte, t.layout.PageSize)
	initErasedPage(left)
	initErasedPage(right)
	setPrevID(left, PrevIDConstant)
	setPrevID(right, PrevIDConstant)
	setInteriorFlag(left, true)
	setInteriorFlag(right, true)

	getKey := func(i int) []byte {
		switch {
		case i < int(idx):
			return t.layout.InteriorKey(buf, uint32(i))
		case i == int(idx):
			return sepKey
		default:
			return t.layout.InteriorKey(buf, uint32(i-1))
		}
	}
	getPtr := func(i int) uint32 {
		switch {
		case i < int(idx):
			return t.layout.InteriorPointer(buf, uint32(i))
		case i == int(idx):
			return leftChild
		case i == int(idx)+1:
			return rightChild
		default:
			return t.layout.InteriorPointer(buf, uint32(i-1))
		}
	}

	var promoted []byte
	leftCount, rightCount := uint32(0), uint32(0)
	for i := 0; i < totalKeys; i++ {
		switch {
		case uint32(i) < mid:
			copy(t.layout.InteriorKey(left, leftCount), getKey(i))
			t.layout.SetInteriorPointer(left, leftCount, getPtr(i))
			leftCount++
		case uint32(i) == mid:
			pk := make([]byte, t.layout.KeySize)
			copy(pk, getKey(i))
			promoted = pk
			t.layout.SetInteriorPointer(left, leftCount, getPtr(i))
		default:
			copy(t.layout.InteriorKey(right, rightCount), getKey(i))
			t.layout.SetInteriorPointer(right, rightCount, getPtr(i))
			rightCount++
		}
	}
	t.layout.SetInteriorPointer(right, rightCount, getPtr(totalKeys))

	setPageCount(left, uint16(leftCount))
	setPageCount(right, uint16(rightCount))
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

// newRoot allocates a brand-new interior root with a single key and two
// children, raising the tree's height by one.
func (t *Tree) newRoot(leftID, rightID uint32, sepKey []byte) error {
	root := make([]byte, t.layout.PageSize)
	initErasedPage(root)
	setRootFlag(root, true)
	setInteriorFlag(root, true)
	setPrevID(root, PrevIDConstant)
	copy(t.layout.InteriorKey(root, 0), sepKey)
	t.layout.SetInteriorPointer(root, 0, leftID)
	t.layout.SetInteriorPointer(root, 1, rightID)
	setPageCount(root, 1)

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
