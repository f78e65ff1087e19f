// Package readyfifo is a typed view over the card-shared descriptor ring
// through which the hardware reports completed DMA pages (spec.md §3
// "ReadyFifoEntry", §4.1 "Ready-FIFO view").
package readyfifo

import (
	"sync/atomic"
	"unsafe"

	"readoutcard.example/rocdma/pkg/rocerr"
)

// Entries is READYFIFO_ENTRIES, the fixed depth of the hardware ring.
const Entries = 128

// entrySize is the size in bytes of one {length, status} slot.
const entrySize = 8

// StatusEmpty marks a slot with no data yet.
const StatusEmpty int32 = -1

// StatusPartial marks a slot whose page has only partially arrived.
const StatusPartial int32 = 0

// StatusDTSWMask is applied to status to extract the descriptor-trailer
// magic byte. DTSW itself is a vendor constant; no datasheet value is
// given in this spec, so it is exposed as a configurable constant rather
// than hard-coded into the comparison.
const StatusDTSWMask = 0xff

// StatusErrorBit, when set in status, flags a hardware error on an
// otherwise-whole (DTSW) arrival.
const StatusErrorBit = 1 << 31

// DefaultDTSW is the assumed magic trailer byte. Real firmware may use a
// different value; callers constructing a View for a real card should
// pass the value read from their datasheet via NewViewWithDTSW.
const DefaultDTSW = 0x01

// View wraps a byte region (backed by a bar.Bar or shared memory) as
// Entries slots of {length uint32, status int32}, with volatile access
// to defeat caching/reordering of hardware-written words.
type View struct {
	region []byte
	dtsw   byte
}

// NewView wraps region, which must be exactly Entries*8 bytes.
func NewView(region []byte) (*View, error) {
	return NewViewWithDTSW(region, DefaultDTSW)
}

// NewViewWithDTSW is NewView with an explicit DTSW magic byte.
func NewViewWithDTSW(region []byte, dtsw byte) (*View, error) {
	if len(region) != Entries*entrySize {
		return nil, rocerr.New(rocerr.KindFifo, "ready-fifo region has wrong size", rocerr.Context{})
	}
	return &View{region: region, dtsw: dtsw}, nil
}

// Kind classifies a slot's current status word.
type Kind int

const (
	KindEmpty Kind = iota
	KindPartial
	KindWhole
	KindWholeError
	KindInvalid
)

// Peek performs a volatile read of slot and classifies it.
func (v *View) Peek(slot int) (length uint32, status int32, kind Kind) {
	base := slot * entrySize
	lengthWord := (*uint32)(unsafe.Pointer(&v.region[base]))
	statusWord := (*int32)(unsafe.Pointer(&v.region[base+4]))

	length = atomic.LoadUint32(lengthWord)
	status = atomic.LoadInt32(statusWord)

	switch {
	case status == StatusEmpty:
		kind = KindEmpty
	case status == StatusPartial:
		kind = KindPartial
	case status&StatusDTSWMask == int32(v.dtsw):
		if uint32(status)&StatusErrorBit != 0 {
			kind = KindWholeError
		} else {
			kind = KindWhole
		}
	default:
		kind = KindInvalid
	}
	return length, status, kind
}

// Reset marks slot as consumed: status=-1, length=0. The slot is later
// re-armed by pushing a fresh descriptor (pkg/cardops.PushRxFreeFifo).
func (v *View) Reset(slot int) {
	base := slot * entrySize
	lengthWord := (*uint32)(unsafe.Pointer(&v.region[base]))
	statusWord := (*int32)(unsafe.Pointer(&v.region[base+4]))
	atomic.StoreUint32(lengthWord, 0)
	atomic.StoreInt32(statusWord, StatusEmpty)
}
