// Package busmap provides host-physical bus-address translation for DMA
// buffers registered by a client. It is the "Bus Mapper" collaborator
// from spec.md §1: given a user buffer it yields the scatter/gather
// entries the card will DMA into.
package busmap

import (
	"readoutcard.example/rocdma/pkg/rocerr"
)

// SGEntry is one scatter/gather segment of a registered buffer.
type SGEntry struct {
	UserAddress uintptr
	BusAddress  uint64
	Size        uint64
}

// Mapper resolves a registered buffer to its scatter/gather layout.
// A real implementation pins the buffer and asks the IOMMU/driver for
// its bus-space mapping; tests use a single-segment fake.
type Mapper interface {
	Map(userAddr uintptr, size uint64) ([]SGEntry, error)
	Unmap(userAddr uintptr) error
}

// RegisteredBuffer is a buffer that has been mapped for DMA and reduced
// to the single contiguous bus-space segment the engine requires
// (spec.md §4.3 Bus-address translation).
type RegisteredBuffer struct {
	UserBase  uintptr
	BusBase   uint64
	Size      uint64
}

// Register maps a buffer and validates it is usable by the engine: the
// engine's core contract requires a single contiguous bus-space segment
// at least as large as the Ready-FIFO needs to be able to address
// (readyFifoSize), since it treats bus_address(offset) = busBase + offset.
//
// If the mapper reports more than one segment, only buffers whose first
// segment is at least readyFifoSize bytes are accepted, and the
// RegisteredBuffer is clipped to that first segment — the remainder of
// the client's buffer is not usable for DMA and callers must not
// register superpages that extend past it.
func Register(m Mapper, userAddr uintptr, size uint64, readyFifoSize uint64) (*RegisteredBuffer, error) {
	entries, err := m.Map(userAddr, size)
	if err != nil {
		return nil, rocerr.Wrap(rocerr.KindFifo, "bus mapper failed", rocerr.Context{}, err)
	}
	if len(entries) == 0 {
		return nil, rocerr.New(rocerr.KindFifo, "bus mapper returned no segments", rocerr.Context{})
	}

	first := entries[0]
	if len(entries) > 1 && first.Size < readyFifoSize {
		return nil, rocerr.New(rocerr.KindFifo,
			"first scatter/gather segment smaller than ready-fifo size", rocerr.Context{})
	}

	usable := first.Size
	if len(entries) > 1 {
		// Clip to the single first segment; the engine only ever
		// addresses buffer offsets within [0, usable).
		usable = first.Size
	} else {
		usable = size
	}

	return &RegisteredBuffer{
		UserBase: first.UserAddress,
		BusBase:  first.BusAddress,
		Size:     usable,
	}, nil
}

// BusAddress translates a buffer-relative offset to a bus address under
// the single-segment contiguity assumption.
func (r *RegisteredBuffer) BusAddress(offset uint64) uint64 {
	return r.BusBase + offset
}
