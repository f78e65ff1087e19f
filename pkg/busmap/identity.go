package busmap

import "unsafe"

// IdentityMapper is a Mapper for host-only demos and tests: it treats
// the process's own virtual address as the bus address, which is only
// meaningful when nothing is actually going to DMA into the buffer
// (cmd/roc-readout's default run mode when no IOMMU mapping is wired).
type IdentityMapper struct{}

func (IdentityMapper) Map(userAddr uintptr, size uint64) ([]SGEntry, error) {
	return []SGEntry{{UserAddress: userAddr, BusAddress: uint64(userAddr), Size: size}}, nil
}

func (IdentityMapper) Unmap(userAddr uintptr) error { return nil }

// AddrOf returns the virtual address of a byte slice's backing array,
// for use as IdentityMapper's userAddr argument.
func AddrOf(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

// BytesAt is AddrOf's inverse: it reconstructs a []byte view over an
// already-registered buffer from its base address and size, for
// collaborators (e.g. the SDH patcher) that were only handed the
// address at construction time.
func BytesAt(addr uintptr, size uint64) []byte {
	if addr == 0 || size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}
