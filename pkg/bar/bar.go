// Package bar abstracts the PCI Base Address Register window used to
// program card registers and host the Ready-FIFO. It hides volatile MMIO
// access behind a plain interface so the DMA engine never touches unsafe
// pointers directly.
package bar

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"readoutcard.example/rocdma/pkg/rocerr"
)

// Bar is a memory-mapped register window. Reads and writes are single
// 32-bit word operations with volatile (non-cached, non-reordered)
// semantics, matching how the card's FIFO status words are observed.
type Bar interface {
	ReadRegister(offset uint32) (uint32, error)
	WriteRegister(offset uint32, value uint32) error
	// Region exposes a byte slice over [offset, offset+size) for
	// higher-level volatile word access (e.g. the Ready-FIFO view).
	Region(offset uint32, size uint32) ([]byte, error)
	Close() error
}

// MmapBar maps a PCI sysfs resource file (or, for tests, any file/ shared
// memory segment sized like one) into the process.
type MmapBar struct {
	mu   sync.Mutex
	data []byte
	size uint32
}

// OpenMmapBar mmaps size bytes starting at offset 0 of the given file
// descriptor. fd must be open for read/write (e.g. an fd returned from
// opening /sys/bus/pci/devices/<addr>/resource0).
func OpenMmapBar(fd int, size uint32) (*MmapBar, error) {
	if size == 0 {
		return nil, rocerr.New(rocerr.KindParameter, "bar size must be non-zero", rocerr.Context{})
	}
	data, err := unix.Mmap(fd, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, rocerr.Wrap(rocerr.KindCard, "mmap bar failed", rocerr.Context{}, err)
	}
	return &MmapBar{data: data, size: size}, nil
}

// ReadRegister performs a volatile 32-bit load at offset.
func (b *MmapBar) ReadRegister(offset uint32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkBounds(offset); err != nil {
		return 0, err
	}
	word := (*uint32)(unsafe.Pointer(&b.data[offset]))
	return atomic.LoadUint32(word), nil
}

// WriteRegister performs a volatile 32-bit store at offset.
func (b *MmapBar) WriteRegister(offset uint32, value uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkBounds(offset); err != nil {
		return err
	}
	word := (*uint32)(unsafe.Pointer(&b.data[offset]))
	atomic.StoreUint32(word, value)
	return nil
}

// Region returns the raw byte window for a range of the BAR. Callers
// reading Ready-FIFO slots through this window must go through volatile
// word accessors (see pkg/readyfifo), never a plain slice index for the
// status word.
func (b *MmapBar) Region(offset uint32, size uint32) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.checkBounds(offset); err != nil {
		return nil, err
	}
	end := uint64(offset) + uint64(size)
	if end > uint64(b.size) {
		return nil, rocerr.New(rocerr.KindOutOfRange, "bar region exceeds mapped size", rocerr.Context{})
	}
	return b.data[offset:end], nil
}

func (b *MmapBar) checkBounds(offset uint32) error {
	if uint64(offset)+4 > uint64(b.size) {
		return rocerr.New(rocerr.KindOutOfRange, fmt.Sprintf("register offset 0x%x out of bounds", offset), rocerr.Context{})
	}
	return nil
}

// Close unmaps the BAR.
func (b *MmapBar) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.data == nil {
		return nil
	}
	err := unix.Munmap(b.data)
	b.data = nil
	if err != nil {
		return rocerr.Wrap(rocerr.KindCard, "munmap bar failed", rocerr.Context{}, err)
	}
	return nil
}
