package vmtree

import (
	"fmt"
	"io"

	pkgerrors "github.com/pkg/errors"

	"github.com/ubco-db/vmtree-go/interfaces"
)

// PrintNode writes a human-readable dump of the page at pageID to w: its
// header flags, prev id, and every live record. Debug/test tool only, not
// on any hot path.
func (t *Tree) PrintNode(w io.Writer, pageID uint32) error {
	buf, err := t.buf.Read(t.resolve(pageID))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "page %d (resolved from %d): root=%v interior=%v norInterior=%v prev=%d count=%d\n",
		t.resolve(pageID), pageID, isRootPage(buf), isInteriorPage(buf), isNorInteriorPage(buf), prevID(buf), pageCount(buf))

	if isInteriorPage(buf) || isNorInteriorPage(buf) {
		for _, c := range t.sortedChildren(buf) {
			if c.key == nil {
				fmt.Fprintf(w, "  child %d: <no upper bound>\n", c.ptr)
			} else {
				fmt.Fprintf(w, "  child %d: key < %x\n", c.ptr, c.key)
			}
		}
		return nil
	}
	for _, rec := range t.validLeafRecords(buf) {
		fmt.Fprintf(w, "  %x -> %x\n", rec.key, rec.data)
	}
	return nil
}

// PrintMappings writes every live prev->curr mapping table entry to w, one
// per line. Debug/test tool only.
func (t *Tree) PrintMappings(w io.Writer) {
	t.mapping.Scan(func(prev, curr uint32) {
		fmt.Fprintf(w, "%d -> %d\n", prev, curr)
	})
}

// Recover is meant to reattach to an existing on-disk tree after a restart,
// scanning the device for the current root rather than rebuilding from
// Params alone.
//
// TODO: the recovery scan is ambiguous about direction when more than one
// page reads as ROOT-flagged (stale roots left behind by a split that was
// interrupted before its parent's write landed) -- whether to take the
// first root found scanning from page 0, or the one with the highest
// physical/logical id. Left unimplemented rather than guessed; callers
// needing persistence today should keep their own root-page bookkeeping
// alongside the device.
func Recover(dev interfaces.BlockDevice, params Params, logger interfaces.Logger) (*Tree, error) {
	return nil, pkgerrors.Wrap(ErrInvariant, "vmtree: Recover is not implemented (see TODO in debug.go)")
}
