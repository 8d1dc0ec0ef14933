package device

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/ubco-db/vmtree-go/interfaces"
)

var _ interfaces.BlockDevice = (*StripedDevice)(nil)

// StripedDevice fans page traffic out across N FileDevice values, striping
// by pageID / pagesPerFile, for storage larger than a single filesystem
// file should hold.
type StripedDevice struct {
	files        []*FileDevice
	pagesPerFile uint32
}

// NewStripedDevice opens (or creates) len(paths) files, each holding
// pagesPerFile pages of pageSize bytes.
func NewStripedDevice(paths []string, pagesPerFile, pageSize uint32) (*StripedDevice, error) {
	files := make([]*FileDevice, len(paths))
	for i, p := range paths {
		fd, err := NewFileDevice(p, pagesPerFile, pageSize)
		if err != nil {
			for _, opened := range files[:i] {
				opened.Close()
			}
			return nil, pkgerrors.Wrapf(err, "stripeddevice: open file %d (%s)", i, p)
		}
		files[i] = fd
	}
	return &StripedDevice{files: files, pagesPerFile: pagesPerFile}, nil
}

func (d *StripedDevice) locate(pageID uint32) (*FileDevice, uint32) {
	fileIdx := pageID / d.pagesPerFile
	return d.files[fileIdx], pageID % d.pagesPerFile
}

func (d *StripedDevice) ReadPage(pageID uint32, dst []byte) error {
	f, local := d.locate(pageID)
	return f.ReadPage(local, dst)
}

func (d *StripedDevice) WritePage(pageID uint32, src []byte) error {
	f, local := d.locate(pageID)
	return f.WritePage(local, src)
}

// ErasePages requires [start, end] to fall within a single file and
// returns an error for a range that crosses a file boundary. The buffer
// pool does not check stripe boundaries when it picks a block to erase.
func (d *StripedDevice) ErasePages(start, end uint32) error {
	startFile := start / d.pagesPerFile
	endFile := end / d.pagesPerFile
	if startFile != endFile {
		return pkgerrors.Errorf("stripeddevice: erase range %d-%d straddles a file boundary", start, end)
	}
	f, localStart := d.locate(start)
	_, localEnd := d.locate(end)
	return f.ErasePages(localStart, localEnd)
}

func (d *StripedDevice) Flush() error {
	for _, f := range d.files {
		if err := f.Flush(); err != nil {
			return err
		}
	}
	return nil
}

func (d *StripedDevice) Close() error {
	var first error
	for _, f := range d.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
