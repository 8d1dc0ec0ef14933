package vmtree

import (
	"testing"

	"github.com/ubco-db/vmtree-go/interfaces"
	"github.com/ubco-db/vmtree-go/storage/device"
)

// newTestBufferPool builds a small pool directly (bypassing Tree) so the
// reclamation algorithm can be exercised and inspected at the field level.
func newTestBufferPool(t *testing.T, storageSizePages, eraseSizeInPages uint32) (*BufferPool, *Layout) {
	t.Helper()
	layout := NewLayout(128, 4, 8, ModeSequential)
	dev := device.NewMemDevice(storageSizePages, layout.PageSize)
	mapping := NewMappingTable(16, 1)
	bp, err := NewBufferPool(dev, layout, 4, eraseSizeInPages, storageSizePages, mapping, interfaces.NopLogger{})
	if err != nil {
		t.Fatalf("NewBufferPool: %v", err)
	}
	// Every page is live directly at its own id, and movePage is a no-op:
	// enough to drive reclaimBlock's bookkeeping without a real tree.
	bp.SetCallbacks(TreeCallbacks{
		IsValid:  func(pageID uint32) int8 { return 0 },
		MovePage: func(prev, curr uint32, buf []byte) error { return nil },
	})
	return bp, layout
}

func TestBufferPoolWriteReadRoundTrip(t *testing.T) {
	bp, layout := newTestBufferPool(t, 64, 4)
	buf := bp.InitFrame(0)
	setPageCount(buf, 0)
	copy(layout.LeafKey(buf, 0), []byte{1, 2, 3, 4})

	id, err := bp.WritePage(buf)
	if err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	got, err := bp.Read(id)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(layout.LeafKey(got, 0)) != string([]byte{1, 2, 3, 4}) {
		t.Fatalf("round trip corrupted page contents")
	}
}

func TestBufferPoolEnsureSpaceReclaims(t *testing.T) {
	// A tiny data region (16 pages, 4 per erase block) that fills up fast:
	// the first 16 writes take every page, and the next one finds no free
	// page in a full lap, so the allocator calls EnsureSpace. All pages are
	// reported live, so every block is skipped and nothing is freed; the
	// only error accepted once storage is full is ErrOutOfSpace.
	bp, layout := newTestBufferPool(t, 16, 4)

	written := 0
	var lastErr error
	for i := 0; i < 64; i++ {
		buf := bp.InitFrame(0)
		setPageCount(buf, 0)
		if _, err := bp.WritePage(buf); err != nil {
			lastErr = err
			break
		}
		written++
	}
	_ = layout
	if written == 0 {
		t.Fatalf("expected at least one page to be written before exhaustion")
	}
	if lastErr != nil && lastErr != ErrOutOfSpace {
		t.Fatalf("unexpected error once storage fills: %v", lastErr)
	}
}

func TestBufferPoolEnsureSpaceWithDeadPages(t *testing.T) {
	bp, layout := newTestBufferPool(t, 32, 4)

	// Report every page dead, so any block the reclaimer visits could be
	// erased without relocating anything, then confirm EnsureSpace succeeds
	// and the write window holds free pages. The two blocks erased at
	// construction already satisfy a request for one page.
	bp.SetCallbacks(TreeCallbacks{
		IsValid:  func(pageID uint32) int8 { return -1 },
		MovePage: func(prev, curr uint32, buf []byte) error { return nil },
	})
	before := bp.erasedEndPage
	if err := bp.EnsureSpace(1); err != nil {
		t.Fatalf("EnsureSpace: %v", err)
	}
	if bp.countFreeInWindow() == 0 {
		t.Fatalf("EnsureSpace should leave free pages in the write window")
	}
	_ = before
	_ = layout
}
