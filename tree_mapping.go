package vmtree

import pkgerrors "github.com/pkg/errors"

// fixMappings is the cascade that guarantees the mapping table never grows
// past its bound: it tries to record prevId->currId; if the table is full
// along that probe chain, it walks one level up the active path, rewrites
// that ancestor (fixing up any pointers that had gone stale, which frees
// their mapping entries via updatePointers), and retries. If the cascade
// reaches above the root, the root pointer itself is simply swung in
// place.
func (t *Tree) fixMappings(prevID, currID uint32, level int) error {
	for {
		err := t.mapping.Upsert(prevID, currID)
		if err == nil {
			return nil
		}
		if err != ErrOutOfMappingSpace {
			return err
		}
		if level < 0 {
			t.activePath[0] = currID
			t.buf.SetActiveRoot(currID)
			return nil
		}

		frame, rerr := t.buf.ReadInto(t.activePath[level], 0)
		if rerr != nil {
			return rerr
		}

		t.mapping.SavePending(prevID, currID)
		newPrev := t.touchPrev(frame, t.activePath[level])
		t.updatePointers(frame, 0, uint32(pageCount(frame)))
		t.mapping.ClearPending()

		t.buf.SetFree(t.activePath[level])
		newCurr, werr := t.buf.WritePage(frame)
		if werr != nil {
			return werr
		}

		prevID, currID = newPrev, newCurr
		if level == 0 {
			t.activePath[0] = currID
			t.buf.SetActiveRoot(currID)
			return nil
		}
		t.activePath[level] = currID
		level--
	}
}

// touchPrev returns the prev-chain id a rewritten page should carry
// forward: if the existing prev field is already stale (it no longer
// resolves to this page) or unset, it resets to the page's own current id,
// breaking the chain; otherwise the existing prev id is preserved.
func (t *Tree) touchPrev(buf []byte, currID uint32) uint32 {
	p := prevID(buf)
	if p >= PrevIDConstant || t.resolve(p) != currID {
		setPrevID(buf, currID)
		return currID
	}
	return p
}

// updatePointers scans interior pointer slots [start, end] in buf, routing
// each through resolve (honoring any pending mapping saved by fixMappings)
// and rewriting the slot plus removing the satisfied mapping whenever the
// resolved id differs from what was stored. Returns the number of edits.
// This is the garbage collector that keeps the mapping table bounded.
func (t *Tree) updatePointers(buf []byte, start, end uint32) uint32 {
	edits := uint32(0)
	nor := t.params.Mode == ModeNorOverwrite
	for i := start; i <= end; i++ {
		var c uint32
		if nor {
			if t.layout.InteriorFreeBit(buf, i) == 1 || t.layout.InteriorValidBit(buf, i) == 0 {
				continue
			}
			c = t.layout.NorInteriorPointer(buf, i)
		} else {
			c = t.layout.InteriorPointer(buf, i)
		}
		resolved := t.resolve(c)
		if resolved != c {
			if nor {
				t.layout.SetNorInteriorPointer(buf, i, resolved)
			} else {
				t.layout.SetInteriorPointer(buf, i, resolved)
			}
			t.mapping.Remove(c)
			edits++
		}
	}
	return edits
}

// isValid is the BufferPool.ensureSpace collaborator: -1 dead (already
// free), 1 live only through a mapping (no copy needed, the allocator
// just can't reuse the slot yet), 0 live directly at this physical id.
func (t *Tree) isValid(pageID uint32) int8 {
	if t.buf.IsFree(pageID) {
		return -1
	}
	if t.resolve(pageID) != pageID {
		return 1
	}
	return 0
}

// movePage is invoked by the block reclaimer after it rewrites a live page.
// If the page is an interior node, its own pointers are fixed up first; if
// it was the root, the root pointer is swung directly. The reclaimer only
// ever rewrites a page back to its own physical id (reclaimBlock copies
// live pages out, erases the block, and writes them back to the same
// slots), so prev == curr always holds here; installing a mapping for an
// actual relocation would need the moved page's real tree level, which
// this callback is never given, so relocation to a new id is rejected
// rather than cascaded from a guessed level.
func (t *Tree) movePage(prev, curr uint32, buf []byte) error {
	if isInteriorPage(buf) || isNorInteriorPage(buf) {
		last := uint32(pageCount(buf))
		if t.params.Mode == ModeNorOverwrite {
			last = t.layout.MaxInteriorRecs - 1
		}
		t.updatePointers(buf, 0, last)
	}
	if prev == t.activePath[0] {
		t.activePath[0] = curr
		t.buf.SetActiveRoot(curr)
		return nil
	}
	if prev != curr {
		return pkgerrors.Wrap(ErrInvariant, "movePage: relocation to a new physical id is not supported")
	}
	return nil
}
