package vmtree

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/ubco-db/vmtree-go/interfaces"

	pkgerrors "github.com/pkg/errors"
)

// TreeCallbacks is the small capability record BufferPool depends on from
// TreeEngine: two functions rather than a pointer back into the tree
// type, keeping the buffer pool free of any dependency on tree internals.
type TreeCallbacks struct {
	// IsValid reports whether physical page id is dead (-1), live only
	// through a mapping (1), or live directly (0).
	IsValid func(pageID uint32) (status int8)
	// MovePage is invoked when the reclaimer relocates a live page from
	// prev to curr, handing over its current contents for the callee to
	// fix up parent pointers or mapping entries.
	MovePage func(prev, curr uint32, buf []byte) error
}

type frame struct {
	buf    []byte
	status uint32 // resident physical page id, or InvalidPageID when empty
}

// BufferPool is the fixed set of in-RAM frames caching pages, the
// allocator for the next physical write location, and the wear-aware block
// reclaimer.
type BufferPool struct {
	dev    interfaces.BlockDevice
	layout *Layout
	log    interfaces.Logger

	frames      []frame
	hashBuckets []int32 // xxhash-bucketed residency index, linear-probed
	lastHit     uint32
	nextBuf     uint32
	rootPageID  uint32

	freePages        *BitArray
	eraseSizeInPages uint32
	endDataPage      uint32
	erasedStartPage  uint32
	erasedEndPage    uint32
	nextPageID       uint32
	nextPageWriteID  uint32

	blockBuffer []byte

	mapping   *MappingTable
	callbacks TreeCallbacks

	stats BufferPoolStats
}

// NewBufferPool builds a pool of numFrames page-sized frames backed by dev,
// erases the first two blocks per invariant 7, and establishes the
// sequential write head at physical page 0.
func NewBufferPool(dev interfaces.BlockDevice, layout *Layout, numFrames, eraseSizeInPages, storageSizePages uint32, mapping *MappingTable, log interfaces.Logger) (*BufferPool, error) {
	if log == nil {
		log = interfaces.NopLogger{}
	}
	frames := make([]frame, numFrames)
	for i := range frames {
		frames[i].buf = make([]byte, layout.PageSize)
		frames[i].status = InvalidPageID
	}
	buckets := nextPow2(numFrames*2 + 1)
	hashBuckets := make([]int32, buckets)
	for i := range hashBuckets {
		hashBuckets[i] = -1
	}

	endDataPage := (storageSizePages/eraseSizeInPages)*eraseSizeInPages - 1

	bp := &BufferPool{
		dev:              dev,
		layout:           layout,
		log:              log,
		frames:           frames,
		hashBuckets:      hashBuckets,
		freePages:        NewBitArray(storageSizePages, 1),
		eraseSizeInPages: eraseSizeInPages,
		endDataPage:      endDataPage,
		blockBuffer:      make([]byte, eraseSizeInPages*layout.PageSize),
		mapping:          mapping,
	}

	if err := bp.erasePages(0, eraseSizeInPages*2-1); err != nil {
		return nil, err
	}
	bp.erasedStartPage = 0
	bp.erasedEndPage = eraseSizeInPages*2 - 1
	bp.nextPageWriteID = 0
	return bp, nil
}

func nextPow2(n uint32) uint32 {
	p := uint32(1)
	for p < n {
		p <<= 1
	}
	return p
}

func (bp *BufferPool) SetCallbacks(cb TreeCallbacks) { bp.callbacks = cb }
func (bp *BufferPool) SetActiveRoot(id uint32)       { bp.rootPageID = id }
func (bp *BufferPool) Stats() BufferPoolStats        { return bp.stats }
func (bp *BufferPool) IsFree(pageID uint32) bool     { return bp.freePages.Get(pageID) == 1 }
func (bp *BufferPool) SetFree(pageID uint32)         { bp.freePages.Set(pageID, 1) }
func (bp *BufferPool) SetValid(pageID uint32)        { bp.freePages.Set(pageID, 0) }

func (bp *BufferPool) bucketFor(pageID uint32) uint32 {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], pageID)
	return uint32(xxhash.Sum64(b[:]) % uint64(len(bp.hashBuckets)))
}

func (bp *BufferPool) findResident(pageID uint32) (int, bool) {
	n := uint32(len(bp.hashBuckets))
	start := bp.bucketFor(pageID)
	for i := uint32(0); i < n; i++ {
		b := (start + i) % n
		fi := bp.hashBuckets[b]
		if fi < 0 {
			return -1, false
		}
		if bp.frames[fi].status == pageID {
			return int(fi), true
		}
	}
	return -1, false
}

func (bp *BufferPool) hashInsert(pageID uint32, frameIdx int) {
	n := uint32(len(bp.hashBuckets))
	start := bp.bucketFor(pageID)
	for i := uint32(0); i < n; i++ {
		b := (start + i) % n
		if bp.hashBuckets[b] < 0 {
			bp.hashBuckets[b] = int32(frameIdx)
			return
		}
	}
}

func (bp *BufferPool) hashRemove(pageID uint32) {
	n := uint32(len(bp.hashBuckets))
	start := bp.bucketFor(pageID)
	for i := uint32(0); i < n; i++ {
		b := (start + i) % n
		fi := bp.hashBuckets[b]
		if fi < 0 {
			return
		}
		if bp.frames[fi].status == pageID {
			bp.hashBuckets[b] = -1
			return
		}
	}
}

func (bp *BufferPool) assignFrame(fi int, pageID uint32) {
	old := bp.frames[fi].status
	if old != InvalidPageID {
		bp.hashRemove(old)
	}
	bp.frames[fi].status = pageID
	bp.hashInsert(pageID, fi)
}

// pickFrame chooses a target frame for pageID: root pins frame 1 (when
// there are enough frames to spare it), three-frame pools always land
// victims in frame 2, otherwise scan for an empty frame, otherwise
// round-robin skipping the most recently hit frame.
func (bp *BufferPool) pickFrame(pageID uint32) int {
	n := len(bp.frames)
	if n >= 3 && pageID == bp.rootPageID {
		return 1
	}
	if n == 3 {
		return 2
	}
	for i := 2; i < n; i++ {
		if bp.frames[i].status == InvalidPageID {
			return i
		}
	}
	victims := n - 2
	if victims <= 0 {
		return 0
	}
	for i := 0; i < victims; i++ {
		idx := 2 + int((bp.nextBuf+uint32(i))%uint32(victims))
		bp.nextBuf = (bp.nextBuf + uint32(i) + 1) % uint32(victims)
		if uint32(idx) == bp.lastHit && victims > 1 {
			continue
		}
		return idx
	}
	return 2
}

// Read returns the frame contents for pageID, fetching from the device on
// a miss. Frame 0 is never considered resident: it's the scratch/pinned-
// for-call frame, so a hit there would hand back a buffer the caller may
// be about to overwrite for an unrelated page.
func (bp *BufferPool) Read(pageID uint32) ([]byte, error) {
	if fi, ok := bp.findResident(pageID); ok && fi != 0 {
		bp.stats.BufferHits++
		bp.lastHit = uint32(fi)
		return bp.frames[fi].buf, nil
	}
	fi := bp.pickFrame(pageID)
	if err := bp.dev.ReadPage(pageID, bp.frames[fi].buf); err != nil {
		return nil, pkgerrors.Wrapf(ErrIO, "read page %d", pageID)
	}
	bp.assignFrame(fi, pageID)
	bp.stats.Reads++
	bp.lastHit = uint32(fi)
	return bp.frames[fi].buf, nil
}

// ReadInto forces a read into a specific frame (typically 0) regardless of
// residency, for callers that need a stable writable frame.
func (bp *BufferPool) ReadInto(pageID uint32, frameIdx int) ([]byte, error) {
	if err := bp.dev.ReadPage(pageID, bp.frames[frameIdx].buf); err != nil {
		return nil, pkgerrors.Wrapf(ErrIO, "readInto page %d frame %d", pageID, frameIdx)
	}
	bp.assignFrame(frameIdx, pageID)
	bp.stats.Reads++
	return bp.frames[frameIdx].buf, nil
}

// InitFrame fills frameIdx with all-1 bytes (the state NOR media must be in
// before any insert) and marks it not resident for any page id.
func (bp *BufferPool) InitFrame(frameIdx int) []byte {
	buf := bp.frames[frameIdx].buf
	initErasedPage(buf)
	old := bp.frames[frameIdx].status
	if old != InvalidPageID {
		bp.hashRemove(old)
	}
	bp.frames[frameIdx].status = InvalidPageID
	return buf
}

// WritePage allocates the next valid physical write location, stamps the
// logical id into buf, and persists it.
func (bp *BufferPool) WritePage(buf []byte) (uint32, error) {
	p, err := bp.nextValidWriteID()
	if err != nil {
		return 0, err
	}
	return p, bp.writePageDirect(buf, p)
}

func (bp *BufferPool) writePageDirect(buf []byte, p uint32) error {
	setPageID(buf, bp.nextPageID)
	bp.nextPageID++
	if err := bp.dev.WritePage(p, buf); err != nil {
		return pkgerrors.Wrapf(ErrIO, "write page %d", p)
	}
	bp.freePages.Set(p, 0)
	bp.stats.Writes++
	if fi, ok := bp.findResident(p); ok {
		copy(bp.frames[fi].buf, buf)
	}
	return nil
}

// OverWritePage writes buf back to the same physical address p. Caller is
// responsible for knowing the overwrite is legal given current contents
// (NOR 1->0 transitions only).
func (bp *BufferPool) OverWritePage(buf []byte, p uint32) error {
	if err := bp.dev.WritePage(p, buf); err != nil {
		return pkgerrors.Wrapf(ErrIO, "overwrite page %d", p)
	}
	bp.stats.OverWrites++
	if fi, ok := bp.findResident(p); ok {
		copy(bp.frames[fi].buf, buf)
	}
	return nil
}

// nextValidWriteID returns the current write head as the next physical
// write target if it is free and not the target of a live mapping
// (invariant 6), advancing the head (wrapping at endDataPage) for next
// time; otherwise it advances past it and keeps scanning. If a full lap
// finds nothing it asks EnsureSpace to reclaim a block before continuing.
func (bp *BufferPool) nextValidWriteID() (uint32, error) {
	scanned := uint32(0)
	for {
		p := bp.nextPageWriteID
		advance := func() {
			bp.nextPageWriteID++
			if bp.nextPageWriteID > bp.endDataPage {
				bp.nextPageWriteID = 0
			}
		}
		if bp.freePages.Get(p) == 1 && bp.mapping.Resolve(p) == p {
			advance()
			return p, nil
		}
		advance()
		scanned++
		if scanned > bp.endDataPage {
			if err := bp.EnsureSpace(1); err != nil {
				return 0, err
			}
			scanned = 0
		}
	}
}

// EnsureSpace is the core wear-aware reclamation routine: if the current
// write window doesn't already hold pages free pages, reclaim the next
// candidate erase block, copying out any still-live pages and writing them
// back to the same physical ids after the erase. Blocks are reclaimed one
// after another until the window holds enough free pages or the whole
// storage region has been scanned (ErrOutOfSpace).
func (bp *BufferPool) EnsureSpace(pages uint32) error {
	if bp.countFreeInWindow() >= pages {
		return nil
	}
	return bp.reclaimBlock(pages, 0)
}

func (bp *BufferPool) countFreeInWindow() uint32 {
	var n uint32
	p := bp.nextPageWriteID
	for {
		if bp.freePages.Get(p) == 1 {
			n++
		}
		if p == bp.erasedEndPage {
			break
		}
		p++
		if p > bp.endDataPage {
			p = 0
		}
	}
	return n
}

func (bp *BufferPool) reclaimBlock(pages, scanned uint32) error {
	if scanned >= bp.endDataPage {
		return ErrOutOfSpace
	}

	start := bp.erasedEndPage + 1
	end := start + bp.eraseSizeInPages - 1
	if end > bp.endDataPage {
		start, end = 0, bp.eraseSizeInPages-1
	}

	moved := uint32(0)
	moveIDs := make([]int64, 0, bp.eraseSizeInPages)
	for i := start; i <= end; i++ {
		switch bp.callbacks.IsValid(i) {
		case -1:
			// dead, nothing to preserve
		case 1:
			// live only through a mapping: no data copy needed, the
			// allocator simply won't reuse this slot until the mapping
			// clears at the next natural parent rewrite.
			moveIDs = append(moveIDs, -1)
			moved++
		default:
			buf, err := bp.Read(i)
			if err != nil {
				return err
			}
			copy(bp.blockBuffer[moved*bp.layout.PageSize:(moved+1)*bp.layout.PageSize], buf)
			moveIDs = append(moveIDs, int64(i))
			moved++
		}
	}

	if moved >= bp.eraseSizeInPages {
		bp.log.Debugf("ensureSpace: block %d-%d fully live, skipping", start, end)
		bp.erasedEndPage = end
		return bp.reclaimBlock(pages, scanned+bp.eraseSizeInPages)
	}

	if err := bp.erasePages(start, end); err != nil {
		return err
	}
	bp.log.Infof("ensureSpace: erased block %d-%d, migrated %d live pages", start, end, moved)

	for i, id := range moveIDs {
		if id < 0 {
			continue
		}
		buf := bp.blockBuffer[uint32(i)*bp.layout.PageSize : (uint32(i)+1)*bp.layout.PageSize]
		if bp.callbacks.MovePage != nil {
			// Same physical id before and after: no mapping entry is
			// needed, but interior pages still get a chance to fix up
			// any pointers that went stale through an unrelated cascade
			// before the page is written back.
			if err := bp.callbacks.MovePage(uint32(id), uint32(id), buf); err != nil {
				return err
			}
		}
		if err := bp.writePageDirect(buf, uint32(id)); err != nil {
			return err
		}
	}
	bp.erasedEndPage = end
	bp.stats.Moves += uint64(moved)

	if bp.countFreeInWindow() >= pages {
		return nil
	}
	return bp.reclaimBlock(pages, scanned+bp.eraseSizeInPages)
}

func (bp *BufferPool) erasePages(start, end uint32) error {
	if err := bp.dev.ErasePages(start, end); err != nil {
		return pkgerrors.Wrapf(ErrIO, "erase pages %d-%d", start, end)
	}
	for i := start; i <= end; i++ {
		bp.freePages.Set(i, 1)
	}
	return nil
}
