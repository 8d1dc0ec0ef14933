package interfaces

// BlockDevice is the page-granular, synchronous storage collaborator the
// engine reads from and writes to. Implementations model SRAM, a single
// file, a set of striped files, or raw dataflash; the engine never assumes
// anything about the medium beyond page-aligned read/write/erase.
type BlockDevice interface {
	// ReadPage fills dst (len(dst) == page size) with the contents of the
	// given physical page.
	ReadPage(pageID uint32, dst []byte) error

	// WritePage writes src to the given physical page. The caller is
	// responsible for knowing whether the target has been erased or is
	// being overwritten in place (NOR mode); the device does not enforce
	// erase-before-write.
	WritePage(pageID uint32, src []byte) error

	// ErasePages resets every bit of physical pages [start, end] (inclusive)
	// to 1. start/end are assumed block-aligned by the caller.
	ErasePages(start, end uint32) error

	// Flush has no buffered-write semantics to guarantee beyond what the
	// device itself already persists synchronously; devices that wrap an
	// OS file descriptor should still sync here.
	Flush() error

	Close() error
}
