package vmtree

import "testing"

func TestLayoutPlainDerivation(t *testing.T) {
	l := NewLayout(128, 4, 8, ModeSequential)
	if l.MaxLeafRecs == 0 || l.MaxInteriorRecs == 0 {
		t.Fatalf("expected nonzero capacity, got leaf=%d interior=%d", l.MaxLeafRecs, l.MaxInteriorRecs)
	}
	// Every leaf record and the interior pointer array must fit in the page.
	lastLeafEnd := l.LeafHeaderSize + l.MaxLeafRecs*(l.KeySize+l.DataSize)
	if lastLeafEnd > l.PageSize {
		t.Fatalf("leaf layout overflows page: %d > %d", lastLeafEnd, l.PageSize)
	}
	lastPtrEnd := l.interiorPointersOffset() + (l.MaxInteriorRecs+1)*pointerSize
	if lastPtrEnd > l.PageSize {
		t.Fatalf("interior layout overflows page: %d > %d", lastPtrEnd, l.PageSize)
	}
}

func TestLayoutNorDerivationFitsBitmaps(t *testing.T) {
	l := NewLayout(128, 4, 8, ModeNorOverwrite)
	leafEnd := l.norLeafDataOffset() + l.MaxLeafRecs*l.DataSize
	if leafEnd > l.PageSize {
		t.Fatalf("nor leaf layout overflows page: %d > %d", leafEnd, l.PageSize)
	}
	interiorEnd := l.norInteriorPointersOffset() + l.MaxInteriorRecs*pointerSize
	if interiorEnd > l.PageSize {
		t.Fatalf("nor interior layout overflows page: %d > %d", interiorEnd, l.PageSize)
	}
}

func TestPageFlagBitsIndependent(t *testing.T) {
	buf := make([]byte, 32)
	initErasedPage(buf)
	setPrevID(buf, 123)

	setRootFlag(buf, true)
	setInteriorFlag(buf, true)
	setNorInteriorFlag(buf, false)

	if !isRootPage(buf) || !isInteriorPage(buf) || isNorInteriorPage(buf) {
		t.Fatalf("flag bits not independent: root=%v interior=%v norInterior=%v",
			isRootPage(buf), isInteriorPage(buf), isNorInteriorPage(buf))
	}
	if prevID(buf) != 123 {
		t.Fatalf("prevID clobbered by flag bits: got %d, want 123", prevID(buf))
	}

	setRootFlag(buf, false)
	if isRootPage(buf) {
		t.Fatalf("root flag did not clear")
	}
	if !isInteriorPage(buf) {
		t.Fatalf("clearing root flag should not affect interior flag")
	}
}

func TestBitmapRoundTrip(t *testing.T) {
	l := NewLayout(128, 4, 8, ModeNorOverwrite)
	buf := make([]byte, l.PageSize)
	initErasedPage(buf)

	// Freshly erased: every free bit reads 1 (erased media convention).
	if l.LeafFreeBit(buf, 0) != 1 {
		t.Fatalf("freshly erased leaf slot should read free=1")
	}
	l.SetLeafFreeBit(buf, 3, 0)
	l.SetLeafValidBit(buf, 3, 1)
	if l.LeafFreeBit(buf, 3) != 0 || l.LeafValidBit(buf, 3) != 1 {
		t.Fatalf("bitmap write did not round-trip for slot 3")
	}
	// Unrelated slots must be untouched.
	if l.LeafFreeBit(buf, 2) != 1 || l.LeafFreeBit(buf, 4) != 1 {
		t.Fatalf("bit write leaked into a neighboring slot")
	}
}
