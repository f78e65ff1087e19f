// Package cardopen wires the concrete hardware collaborators (a real
// PCI BAR0 mmap, a BarCardOps, and a Ready-FIFO view carved out of the
// same BAR) into a rocchannel.Channel. It is the one place in the
// module that touches a real sysfs resource file; everything below it
// is collaborator contracts that don't know whether they're talking to
// silicon or a fake.
package cardopen

import (
	"fmt"
	"os"

	"readoutcard.example/rocdma/pkg/bar"
	"readoutcard.example/rocdma/pkg/busmap"
	"readoutcard.example/rocdma/pkg/cardops"
	"readoutcard.example/rocdma/pkg/chanlock"
	"readoutcard.example/rocdma/pkg/firmware"
	"readoutcard.example/rocdma/pkg/params"
	"readoutcard.example/rocdma/pkg/readyfifo"
	"readoutcard.example/rocdma/pkg/rocchannel"
	"readoutcard.example/rocdma/pkg/rocerr"
)

// readyFifoOffset is the BAR offset the Ready-FIFO ring is hosted at.
// Real deployments read this from the card's resource layout; fixed
// here since no datasheet offset was available to this module.
const readyFifoOffset = 0x1000

// barSize is the minimum BAR0 window this module maps; real cards
// report their resource size via sysfs and that value should be
// preferred when larger.
const barSize = 0x2000

// Open resolves a PCI address to its resource0 file, mmaps BAR0,
// constructs a BarCardOps, and opens a rocchannel.Channel against it.
// bufferBase/bufferBusBase are the client's already-registered DMA
// buffer (see pkg/busmap.Register); cardopen only owns the card side.
func Open(p params.ChannelParams, pciAddress string, lockMode chanlock.Mode, bufferBase uintptr, bufferBusBase uint64) (*rocchannel.Channel, func() error, error) {
	resourcePath := fmt.Sprintf("/sys/bus/pci/devices/%s/resource0", pciAddress)
	f, err := os.OpenFile(resourcePath, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, rocerr.Wrap(rocerr.KindCard, "open "+resourcePath, rocerr.Context{PciBus: pciAddress}, err)
	}

	b, err := bar.OpenMmapBar(int(f.Fd()), barSize)
	if err != nil {
		f.Close()
		return nil, nil, err
	}

	region, err := b.Region(readyFifoOffset, readyfifo.Entries*8)
	if err != nil {
		b.Close()
		f.Close()
		return nil, nil, err
	}
	fifo, err := readyfifo.NewView(region)
	if err != nil {
		b.Close()
		f.Close()
		return nil, nil, err
	}

	card := cardops.NewBarCardOps(b)
	diu, err := card.InitDiuVersion()
	if err != nil {
		b.Close()
		f.Close()
		return nil, nil, err
	}
	fwVersion, _ := firmware.DecodeRFID(diu.Version)

	// The SDH patch target is an offset into the client's registered
	// DMA buffer (front.Page.Offset), not into the Ready-FIFO's BAR
	// window carved out above — reconstruct that buffer's []byte view
	// from the base address the caller already registered it at.
	clientBuffer := busmap.BytesAt(bufferBase, p.Buffer.Size)
	patchPage := rocchannel.BuildSDHPatcher(clientBuffer, fwVersion)

	ch, err := rocchannel.Open(p, pciAddress, lockMode, b, card, fifo, bufferBase, bufferBusBase, patchPage)
	if err != nil {
		b.Close()
		f.Close()
		return nil, nil, err
	}

	closeFn := func() error {
		ch.Close()
		closeErr := b.Close()
		if fileErr := f.Close(); closeErr == nil {
			closeErr = fileErr
		}
		return closeErr
	}

	return ch, closeFn, nil
}
