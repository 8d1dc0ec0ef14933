package device

import (
	"os"

	"github.com/ncw/directio"
	pkgerrors "github.com/pkg/errors"

	"github.com/ubco-db/vmtree-go/interfaces"
)

var _ interfaces.BlockDevice = (*FileDevice)(nil)

// FileDevice is a BlockDevice backed by a single file opened with O_DIRECT,
// the closest a POSIX file can come to modeling raw NOR/dataflash access
// without the OS page cache lying about what has actually reached the
// medium. Every read/write goes through an aligned scratch buffer sized to
// pageSize, as directio.OpenFile requires aligned buffers.
type FileDevice struct {
	f        *os.File
	pageSize uint32
	scratch  []byte
}

// NewFileDevice opens (creating if absent) path as a direct-I/O file and
// preallocates it to hold numPages pages of pageSize bytes, erased to
// all-ones.
func NewFileDevice(path string, numPages, pageSize uint32) (*FileDevice, error) {
	f, err := directio.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "filedevice: open %s", path)
	}
	d := &FileDevice{f: f, pageSize: pageSize, scratch: directio.AlignedBlock(int(pageSize))}

	blank := directio.AlignedBlock(int(pageSize))
	for i := range blank {
		blank[i] = 0xFF
	}
	for p := uint32(0); p < numPages; p++ {
		if _, err := d.f.WriteAt(blank, int64(p)*int64(pageSize)); err != nil {
			d.f.Close()
			return nil, pkgerrors.Wrapf(err, "filedevice: preallocate page %d", p)
		}
	}
	return d, nil
}

func (d *FileDevice) ReadPage(pageID uint32, dst []byte) error {
	if _, err := d.f.ReadAt(d.scratch, int64(pageID)*int64(d.pageSize)); err != nil {
		return pkgerrors.Wrapf(err, "filedevice: read page %d", pageID)
	}
	copy(dst, d.scratch)
	return nil
}

func (d *FileDevice) WritePage(pageID uint32, src []byte) error {
	copy(d.scratch, src)
	if _, err := d.f.WriteAt(d.scratch, int64(pageID)*int64(d.pageSize)); err != nil {
		return pkgerrors.Wrapf(err, "filedevice: write page %d", pageID)
	}
	return nil
}

func (d *FileDevice) ErasePages(start, end uint32) error {
	blank := directio.AlignedBlock(int(d.pageSize))
	for i := range blank {
		blank[i] = 0xFF
	}
	for p := start; p <= end; p++ {
		if _, err := d.f.WriteAt(blank, int64(p)*int64(d.pageSize)); err != nil {
			return pkgerrors.Wrapf(err, "filedevice: erase page %d", p)
		}
	}
	return nil
}

func (d *FileDevice) Flush() error { return d.f.Sync() }
func (d *FileDevice) Close() error { return d.f.Close() }
