// Package device provides BlockDevice implementations: an in-memory SRAM-
// style device for tests, a direct-I/O single-file device, and a
// multi-file striped device built on top of it.
package device

import (
	"io"

	"github.com/dsnet/golib/memfile"
	pkgerrors "github.com/pkg/errors"

	"github.com/ubco-db/vmtree-go/interfaces"
)

// MemDevice is a BlockDevice backed entirely by memory via memfile, the
// SRAM-style backend used by every unit test. Erase resets the block's
// bytes to 0xFF, mirroring what an actual NOR erase does to the medium.
type MemDevice struct {
	f        *memfile.File
	pageSize uint32
}

var _ interfaces.BlockDevice = (*MemDevice)(nil)

// NewMemDevice allocates a backing array sized for numPages pages of
// pageSize bytes each, filled with 0xFF like freshly erased media.
func NewMemDevice(numPages, pageSize uint32) *MemDevice {
	buf := make([]byte, uint64(numPages)*uint64(pageSize))
	for i := range buf {
		buf[i] = 0xFF
	}
	return &MemDevice{f: memfile.New(buf), pageSize: pageSize}
}

func (d *MemDevice) ReadPage(pageID uint32, dst []byte) error {
	off := int64(pageID) * int64(d.pageSize)
	if _, err := d.f.Seek(off, io.SeekStart); err != nil {
		return pkgerrors.Wrapf(err, "memdevice: seek page %d", pageID)
	}
	if _, err := io.ReadFull(d.f, dst); err != nil {
		return pkgerrors.Wrapf(err, "memdevice: read page %d", pageID)
	}
	return nil
}

func (d *MemDevice) WritePage(pageID uint32, src []byte) error {
	off := int64(pageID) * int64(d.pageSize)
	if _, err := d.f.Seek(off, io.SeekStart); err != nil {
		return pkgerrors.Wrapf(err, "memdevice: seek page %d", pageID)
	}
	if _, err := d.f.Write(src); err != nil {
		return pkgerrors.Wrapf(err, "memdevice: write page %d", pageID)
	}
	return nil
}

func (d *MemDevice) ErasePages(start, end uint32) error {
	blank := make([]byte, d.pageSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	for p := start; p <= end; p++ {
		if err := d.WritePage(p, blank); err != nil {
			return err
		}
	}
	return nil
}

func (d *MemDevice) Flush() error { return nil }
func (d *MemDevice) Close() error { return d.f.Close() }
