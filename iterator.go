package vmtree

import "sort"

// kv is a materialized (key, data) pair copied out of a page buffer, used
// by both the split paths and the iterator so neither holds a reference
// into a frame that a later operation may evict or overwrite.
type kv struct {
	key  []byte
	data []byte
}

// childEntry is a materialized (boundary key, child pointer) pair from an
// interior page. A nil key marks the rightmost plain-layout pointer, which
// has no upper bound.
type childEntry struct {
	key []byte
	ptr uint32
}

// validLeafRecords scans every live slot of a leaf page into a kv slice, in
// on-page order (plain: already sorted; NOR: arbitrary, since NOR records
// are appended wherever a free slot lands rather than kept sorted).
func (t *Tree) validLeafRecords(buf []byte) []kv {
	if t.params.Mode == ModeNorOverwrite {
		out := make([]kv, 0, t.layout.MaxLeafRecs)
		for i := uint32(0); i < t.layout.MaxLeafRecs; i++ {
			if t.layout.LeafFreeBit(buf, i) == 1 || t.layout.LeafValidBit(buf, i) == 0 {
				continue
			}
			k := make([]byte, t.layout.KeySize)
			d := make([]byte, t.layout.DataSize)
			copy(k, t.layout.NorLeafKey(buf, i))
			copy(d, t.layout.NorLeafData(buf, i))
			out = append(out, kv{k, d})
		}
		return out
	}
	c := pageCount(buf)
	out := make([]kv, c)
	for i := uint32(0); i < uint32(c); i++ {
		k := make([]byte, t.layout.KeySize)
		d := make([]byte, t.layout.DataSize)
		copy(k, t.layout.LeafKey(buf, i))
		copy(d, t.layout.LeafData(buf, i))
		out[i] = kv{k, d}
	}
	return out
}

// sortedLeafRecords is validLeafRecords in ascending comparator order,
// needed for iteration (and cheap enough at maxLeafRecs scale that a plain
// page pays only a no-op sort.Slice over already-sorted input).
func (t *Tree) sortedLeafRecords(buf []byte) []kv {
	recs := t.validLeafRecords(buf)
	sort.Slice(recs, func(i, j int) bool { return t.cmp(recs[i].key, recs[j].key) < 0 })
	return recs
}

// sortedChildren returns every interior pointer as a (boundary key, child)
// pair in ascending boundary-key order, uniformly across plain and NOR
// layouts: in the plain layout child i serves keys < key[i] and the last
// child (nil key, no bound) serves the rest; in the NOR layout every valid
// slot already carries its own exclusive upper bound (the maxKeySentinel
// entry standing in for "no bound").
func (t *Tree) sortedChildren(buf []byte) []childEntry {
	var out []childEntry
	if t.params.Mode == ModeNorOverwrite {
		out = make([]childEntry, 0, t.layout.MaxInteriorRecs)
		for i := uint32(0); i < t.layout.MaxInteriorRecs; i++ {
			if t.layout.InteriorFreeBit(buf, i) == 1 || t.layout.InteriorValidBit(buf, i) == 0 {
				continue
			}
			k := make([]byte, t.layout.KeySize)
			copy(k, t.layout.NorInteriorKey(buf, i))
			out = append(out, childEntry{k, t.layout.NorInteriorPointer(buf, i)})
		}
	} else {
		c := pageCount(buf)
		out = make([]childEntry, 0, c+1)
		for i := uint32(0); i < uint32(c); i++ {
			k := make([]byte, t.layout.KeySize)
			copy(k, t.layout.InteriorKey(buf, i))
			out = append(out, childEntry{k, t.layout.InteriorPointer(buf, i)})
		}
		out = append(out, childEntry{nil, t.layout.InteriorPointer(buf, uint32(c))})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].key == nil {
			return false
		}
		if out[j].key == nil {
			return true
		}
		return t.cmp(out[i].key, out[j].key) < 0
	})
	return out
}

// iterFrame is one level of the iterator's root-to-leaf path: the
// page's children in ascending order and the index of the one currently
// being (or about to be) descended into.
type iterFrame struct {
	children []childEntry
	idx      int
}

// Iterator is a restartable, lazy ascending walk over [minKey, maxKey]. Its
// progress is entirely captured by stack (one frame per interior level) and
// leafKV/leafPos (the current leaf's materialized, sorted records). It does
// not tolerate concurrent mutation of the tree it was built from.
type Iterator struct {
	t      *Tree
	maxKey []byte

	stack   []iterFrame
	leafKV  []kv
	leafPos int
	done    bool
}

// NewIterator builds an iterator positioned at the first record >= minKey
// (or the leftmost record when minKey is nil). A nil maxKey means no upper
// bound.
func (t *Tree) NewIterator(minKey, maxKey []byte) (*Iterator, error) {
	it := &Iterator{t: t, maxKey: maxKey}
	rootID := t.resolve(t.activePath[0])
	if err := it.appendDescent(rootID, minKey); err != nil {
		return nil, err
	}
	return it, nil
}

// appendDescent walks from pageID down to a leaf, pushing one iterFrame per
// interior level visited onto the existing stack (it does not reset it),
// picking at each level the leftmost child whose range could still hold a
// key >= minKey (or the absolute leftmost child when minKey is nil).
func (it *Iterator) appendDescent(pageID uint32, minKey []byte) error {
	t := it.t
	id := pageID
	for {
		buf, err := t.buf.Read(id)
		if err != nil {
			return err
		}
		if !isInteriorPage(buf) && !isNorInteriorPage(buf) {
			recs := t.sortedLeafRecords(buf)
			start := 0
			if minKey != nil {
				for start < len(recs) && t.cmp(recs[start].key, minKey) < 0 {
					start++
				}
			}
			it.leafKV = recs
			it.leafPos = start
			return nil
		}

		children := t.sortedChildren(buf)
		childIdx := 0
		if minKey != nil {
			for childIdx < len(children)-1 {
				k := children[childIdx].key
				if k == nil || t.cmp(k, minKey) > 0 {
					break
				}
				childIdx++
			}
		}
		it.stack = append(it.stack, iterFrame{children: children, idx: childIdx})
		id = t.resolve(children[childIdx].ptr)
	}
}

// ascendAndDescend climbs the stack looking for the next not-yet-visited
// sibling subtree, descending to its leftmost leaf once found. Returns
// false once the whole tree has been exhausted.
func (it *Iterator) ascendAndDescend() bool {
	t := it.t
	for len(it.stack) > 0 {
		top := &it.stack[len(it.stack)-1]
		top.idx++
		if top.idx < len(top.children) {
			id := t.resolve(top.children[top.idx].ptr)
			if err := it.appendDescent(id, nil); err != nil {
				return false
			}
			return true
		}
		it.stack = it.stack[:len(it.stack)-1]
	}
	return false
}

// Next returns the next (key, data) pair in ascending order, or
// ErrNotFound once the iterator is exhausted or has passed maxKey.
func (it *Iterator) Next() ([]byte, []byte, error) {
	if it.done {
		return nil, nil, ErrNotFound
	}
	t := it.t
	for {
		if it.leafPos < len(it.leafKV) {
			rec := it.leafKV[it.leafPos]
			it.leafPos++
			if it.maxKey != nil && t.cmp(rec.key, it.maxKey) > 0 {
				it.done = true
				return nil, nil, ErrNotFound
			}
			return rec.key, rec.data, nil
		}
		if !it.ascendAndDescend() {
			it.done = true
			return nil, nil, ErrNotFound
		}
	}
}
