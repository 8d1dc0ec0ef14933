package vmtree

import (
	"github.com/ubco-db/vmtree-go/interfaces"

	pkgerrors "github.com/pkg/errors"
)

// Params configures a Tree at construction. Comparator and the three size
// fields are fixed for the life of the tree; there is no online resize.
type Params struct {
	PageSize          uint32
	NumBufferPages    uint32
	EraseSizeInPages  uint32
	KeySize           uint32
	DataSize          uint32
	MappingBufferSize uint32
	Mode              Mode
	Comparator        Comparator
	StorageSizePages  uint32
	// MaxMappingTries overrides the mapping table's probe budget; the
	// source defaults this to 1.
	MaxMappingTries uint32
}

const pageIDSize = 4

// Tree is the B+-tree engine: page-structured search/insert/split,
// descent bookkeeping (ActivePath), and the glue wiring BufferPool's
// callbacks back into mapping-table maintenance.
type Tree struct {
	params  Params
	layout  *Layout
	cmp     Comparator
	dev     interfaces.BlockDevice
	log     interfaces.Logger
	mapping *MappingTable
	buf     *BufferPool

	activePath []uint32
	levels     uint32
	numNodes   uint32
}

// New constructs an empty tree: an empty leaf is written as the root at
// physical page 0.
func New(params Params, dev interfaces.BlockDevice, logger interfaces.Logger) (*Tree, error) {
	if logger == nil {
		logger = interfaces.NopLogger{}
	}
	if params.Comparator == nil {
		params.Comparator = Uint32Comparator
	}
	if params.NumBufferPages < 2 {
		return nil, pkgerrors.New("vmtree: numBufferPages must be >= 2")
	}

	layout := NewLayout(params.PageSize, params.KeySize, params.DataSize, params.Mode)
	maxMappings := params.MappingBufferSize / (2 * pageIDSize)
	mapping := NewMappingTable(maxMappings, params.MaxMappingTries)

	bp, err := NewBufferPool(dev, layout, params.NumBufferPages, params.EraseSizeInPages, params.StorageSizePages, mapping, logger)
	if err != nil {
		return nil, err
	}

	t := &Tree{
		params:     params,
		layout:     layout,
		cmp:        params.Comparator,
		dev:        dev,
		log:        logger,
		mapping:    mapping,
		buf:        bp,
		activePath: make([]uint32, 1, 8),
		levels:     1,
		numNodes:   1,
	}
	bp.SetCallbacks(TreeCallbacks{IsValid: t.isValid, MovePage: t.movePage})

	root := bp.InitFrame(0)
	setRootFlag(root, true)
	setInteriorFlag(root, false)
	setNorInteriorFlag(root, false)
	setPageCount(root, 0)
	setPrevID(root, PrevIDConstant)
	rootID, err := bp.WritePage(root)
	if err != nil {
		return nil, err
	}
	t.activePath[0] = rootID
	bp.SetActiveRoot(rootID)
	return t, nil
}

func (t *Tree) resolve(p uint32) uint32 { return t.mapping.Resolve(p) }

// Stats reports the combined buffer-pool and mapping-table counters.
func (t *Tree) Stats() TreeStats {
	return TreeStats{
		BufferPoolStats:   t.buf.Stats(),
		NumMappingCompare: t.mapping.NumCompares(),
		MappingCount:      t.mapping.Count(),
		Levels:            t.levels,
		NumNodes:          t.numNodes,
	}
}

func (t *Tree) Close() error { return t.dev.Close() }
func (t *Tree) Flush() error { return t.dev.Flush() }

// --- search within a node ---

// searchLeafPlain returns the exact-match slot for key, or -1 if absent.
func (t *Tree) searchLeafPlain(buf []byte, key []byte) int {
	c := int(pageCount(buf))
	lo, hi := 0, c-1
	for lo <= hi {
		mid := (lo + hi) / 2
		cmp := t.cmp(key, t.layout.LeafKey(buf, uint32(mid)))
		switch {
		case cmp == 0:
			return mid
		case cmp < 0:
			hi = mid - 1
		default:
			lo = mid + 1
		}
	}
	return -1
}

// searchInteriorPlain returns the child index whose subtree may hold key:
// the first key index i with key < InteriorKey(i), else count (last child).
func (t *Tree) searchInteriorPlain(buf []byte, key []byte) uint32 {
	c := pageCount(buf)
	if c == 0 {
		return 0
	}
	lo, hi := uint32(0), uint32(c)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.cmp(key, t.layout.InteriorKey(buf, mid)) < 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (t *Tree) searchLeafNor(buf []byte, key []byte) int {
	for i := uint32(0); i < t.layout.MaxLeafRecs; i++ {
		if t.layout.LeafFreeBit(buf, i) == 1 || t.layout.LeafValidBit(buf, i) == 0 {
			continue
		}
		if t.cmp(key, t.layout.NorLeafKey(buf, i)) == 0 {
			return int(i)
		}
	}
	return -1
}

// searchInteriorNor returns the slot holding the smallest valid key
// strictly greater than key (the child to descend into), or -1 if none
// (meaning: descend into whatever pointer the caller treats as rightmost).
func (t *Tree) searchInteriorNor(buf []byte, key []byte) int {
	loc := -1
	for i := uint32(0); i < t.layout.MaxInteriorRecs; i++ {
		if t.layout.InteriorFreeBit(buf, i) == 1 || t.layout.InteriorValidBit(buf, i) == 0 {
			continue
		}
		k := t.layout.NorInteriorKey(buf, i)
		if t.cmp(key, k) < 0 {
			if loc == -1 || t.cmp(k, t.layout.NorInteriorKey(buf, uint32(loc))) < 0 {
				loc = int(i)
			}
		}
	}
	return loc
}

// --- descent ---

// descend walks from the root to the leaf that should hold key, recording
// every visited physical id (post-resolve) into activePath. Returns the
// leaf's frame buffer.
func (t *Tree) descend(key []byte) ([]byte, error) {
	t.activePath = t.activePath[:1]
	t.activePath[0] = t.resolve(t.activePath[0])
	t.buf.SetActiveRoot(t.activePath[0])

	id := t.activePath[0]
	for level := uint32(0); level < t.levels-1; level++ {
		buf, err := t.buf.Read(id)
		if err != nil {
			return nil, err
		}
		var child uint32
		if t.params.Mode == ModeNorOverwrite {
			idx := t.searchInteriorNor(buf, key)
			if idx < 0 {
				// No boundary exceeds key: take the largest-boundary entry.
				for i := uint32(0); i < t.layout.MaxInteriorRecs; i++ {
					if t.layout.InteriorFreeBit(buf, i) == 1 || t.layout.InteriorValidBit(buf, i) == 0 {
						continue
					}
					if idx < 0 || t.cmp(t.layout.NorInteriorKey(buf, i), t.layout.NorInteriorKey(buf, uint32(idx))) > 0 {
						idx = int(i)
					}
				}
			}
			child = t.layout.NorInteriorPointer(buf, uint32(idx))
		} else {
			idx := t.searchInteriorPlain(buf, key)
			child = t.layout.InteriorPointer(buf, idx)
		}
		id = t.resolve(child)
		t.activePath = append(t.activePath, id)
	}
	return t.buf.Read(id)
}

// --- point get ---

// Get returns the data for key, or ErrNotFound.
func (t *Tree) Get(key []byte) ([]byte, error) {
	buf, err := t.descend(key)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "get: descend")
	}
	if t.params.Mode == ModeNorOverwrite {
		idx := t.searchLeafNor(buf, key)
		if idx < 0 {
			return nil, ErrNotFound
		}
		out := make([]byte, t.layout.DataSize)
		copy(out, t.layout.NorLeafData(buf, uint32(idx)))
		return out, nil
	}
	idx := t.searchLeafPlain(buf, key)
	if idx < 0 {
		return nil, ErrNotFound
	}
	out := make([]byte, t.layout.DataSize)
	copy(out, t.layout.LeafData(buf, uint32(idx)))
	return out, nil
}

// --- put ---

// Put inserts key->data. A record already stored under an equal key is not
// replaced; the new record is stored alongside it.
func (t *Tree) Put(key, data []byte) error {
	if err := t.buf.EnsureSpace(8); err != nil {
		return pkgerrors.Wrap(err, "put: ensureSpace")
	}
	if t.params.Mode == ModeNorOverwrite {
		return t.putNor(key, data)
	}
	return t.putPlain(key, data)
}

func (t *Tree) leafLevel() uint32 { return t.levels - 1 }
