// Package rocchannel implements the Channel facade (spec.md §4.1): the
// public API a client calls, backed by the DMA superpage engine.
package rocchannel

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"unsafe"

	"readoutcard.example/rocdma/pkg/bar"
	"readoutcard.example/rocdma/pkg/cardops"
	"readoutcard.example/rocdma/pkg/cardtype"
	"readoutcard.example/rocdma/pkg/chanlock"
	"readoutcard.example/rocdma/pkg/dmaengine"
	"readoutcard.example/rocdma/pkg/firmware"
	"readoutcard.example/rocdma/pkg/params"
	"readoutcard.example/rocdma/pkg/readyfifo"
	"readoutcard.example/rocdma/pkg/rocerr"
	"readoutcard.example/rocdma/pkg/superpage"
)

// Channel is the public, single-threaded handle a client holds for one
// card channel. All operations are synchronous and perform no blocking
// I/O beyond what the engine itself does during start_dma/reset.
type Channel struct {
	params params.ChannelParams
	cardID string // resolved PCI address, for error context and lock naming

	lock   *chanlock.ChannelLock
	engine *dmaengine.Engine
	queue  *superpage.Queue
	card   cardops.CardOps

	bufferBase    uintptr
	bufferBusBase uint64
}

// Open acquires the channel lock and constructs a Channel bound to the
// given hardware collaborators. cardID is the resolved PCI address used
// for lock paths and error context.
func Open(
	p params.ChannelParams,
	cardID string,
	lockMode chanlock.Mode,
	b bar.Bar,
	card cardops.CardOps,
	fifo *readyfifo.View,
	bufferBase uintptr,
	bufferBusBase uint64,
	patchPage func(offset uint64, length uint32),
) (*Channel, error) {
	p.CardType = cardtype.CardTypeCRORC
	if err := p.Validate(p.ChannelNumber); err != nil {
		return nil, err
	}

	lock := chanlock.New(cardID, p.ChannelNumber)
	if err := lock.Acquire(lockMode); err != nil {
		return nil, err
	}

	queue := superpage.NewQueue(transferQueueSize, readyQueueSize)

	cfg := dmaengine.Config{
		CardType:          cardtype.CardTypeCRORC,
		PageSize:          p.DmaPageSize,
		GeneratorEnabled:  p.GeneratorEnabled,
		GeneratorPattern:  p.GeneratorPattern,
		GeneratorLoopback: p.GeneratorLoopback,
		GeneratorDataSize: p.GeneratorDataSize,
		ReadoutMode:       p.ReadoutMode,
		NoRDYRX:           p.ReadoutMode != cardtype.ReadoutTriggered, // trigger commands only apply to Triggered readout
	}

	engine := dmaengine.New(cfg, dmaengine.Deps{
		Bar:       b,
		Card:      card,
		Fifo:      fifo,
		Queue:     queue,
		BusBase:   func() uint64 { return bufferBusBase },
		UserBase:  func() uintptr { return bufferBase },
		PatchPage: patchPage,
	})

	return &Channel{
		params:        p,
		cardID:        cardID,
		lock:          lock,
		engine:        engine,
		queue:         queue,
		card:          card,
		bufferBase:    bufferBase,
		bufferBusBase: bufferBusBase,
	}, nil
}

// transferQueueSize and readyQueueSize are the superpage-queue
// capacities. 128 matches the hardware ring depth the deferred-start
// primer requires the first entry to cover.
const (
	transferQueueSize = 128
	readyQueueSize    = 128
)

// Close releases the channel lock. It does not stop an in-progress DMA;
// call StopDma first.
func (c *Channel) Close() {
	c.lock.Release()
}

// pageGranule returns the superpage size granularity this channel
// enforces: the C-RORC granule of 1 MiB (spec.md §3).
func (c *Channel) pageGranule() uint64 {
	return cardtype.CardTypeCRORC.PageGranule()
}

// PushSuperpage validates and enqueues a new superpage (spec.md §4.1).
func (c *Channel) PushSuperpage(sp superpage.Superpage) error {
	if sp.Size == 0 {
		return rocerr.New(rocerr.KindParameter, "superpage size must be non-zero", rocerr.Context{})
	}
	if sp.Size%c.pageGranule() != 0 {
		return rocerr.New(rocerr.KindParameter, "superpage size must be a multiple of the page granule", rocerr.Context{})
	}
	if sp.Offset%4 != 0 {
		return rocerr.New(rocerr.KindAlignment, "superpage offset must be 4-byte aligned", rocerr.Context{})
	}
	if sp.Offset+sp.Size > c.params.Buffer.Size {
		return rocerr.New(rocerr.KindOutOfRange, "superpage extends past the registered buffer", rocerr.Context{})
	}

	entry := superpage.NewEntry(sp, c.bufferBusBase+sp.Offset, c.params.DmaPageSize)
	return c.queue.Add(entry)
}

// PopSuperpage removes and returns the head of Filled.
func (c *Channel) PopSuperpage() (superpage.Superpage, error) {
	return c.queue.PopFilled()
}

// GetSuperpage peeks the front of the aggregate queue.
func (c *Channel) GetSuperpage() (superpage.Superpage, bool) {
	return c.queue.Peek()
}

// GetTransferQueueAvailable returns remaining slack on Pushing+Arrivals.
func (c *Channel) GetTransferQueueAvailable() int {
	return c.queue.TransferQueueAvailable()
}

// GetReadyQueueSize returns |Filled|.
func (c *Channel) GetReadyQueueSize() int {
	return c.queue.ReadyQueueSize()
}

// FillSuperpages runs one engine tick.
func (c *Channel) FillSuperpages() error {
	return c.engine.FillSuperpages()
}

// StartDma begins the deferred-start protocol.
func (c *Channel) StartDma() error {
	return c.engine.StartDma()
}

// StopDma stops DMA, idempotently.
func (c *Channel) StopDma() error {
	return c.engine.StopDma()
}

// ResetChannel delegates to Card Ops at the requested level.
func (c *Channel) ResetChannel(level cardtype.ResetLevel) error {
	return c.engine.ResetChannel(level, c.params.GeneratorLoopback)
}

// GetCardType reports the card family backing this channel.
func (c *Channel) GetCardType() cardtype.CardType {
	return cardtype.CardTypeCRORC
}

// GetSerial reads the card's serial number, if firmware exposes one.
func (c *Channel) GetSerial() (int32, bool, error) {
	return c.card.GetSerial()
}

// GetFirmwareInfo renders the card's decoded firmware version.
func (c *Channel) GetFirmwareInfo() (string, error) {
	return c.card.GetFirmwareInfo()
}

// GetTemperature reads the card's on-die temperature sensor, scaled
// from the raw register the way the C-RORC datasheet's linear formula
// specifies (12-bit reading, 0.0625 degrees C per count).
func (c *Channel) GetTemperature() (float32, error) {
	raw, err := c.card.ReadRegister(regTemperature)
	if err != nil {
		return 0, err
	}
	return float32(raw&0xfff) * 0.0625, nil
}

// GetPciAddress returns the bus/device/function this channel is bound
// to, as resolved at Open time.
func (c *Channel) GetPciAddress() string {
	return c.cardID
}

// PciBusDeviceFunction splits cardID ("bus:device.function", e.g.
// "03:00.0") into its three components.
func (c *Channel) PciBusDeviceFunction() (bus, device, function int, err error) {
	parts := strings.FieldsFunc(c.cardID, func(r rune) bool { return r == ':' || r == '.' })
	if len(parts) != 3 {
		return 0, 0, 0, rocerr.New(rocerr.KindParameter,
			fmt.Sprintf("pci address %q is not in bus:device.function form", c.cardID), rocerr.Context{})
	}
	busVal, errBus := strconv.ParseInt(parts[0], 16, 32)
	devVal, errDev := strconv.ParseInt(parts[1], 16, 32)
	fnVal, errFn := strconv.ParseInt(parts[2], 16, 32)
	if errBus != nil || errDev != nil || errFn != nil {
		return 0, 0, 0, rocerr.New(rocerr.KindParameter,
			fmt.Sprintf("pci address %q has a non-hex component", c.cardID), rocerr.Context{})
	}
	return int(busVal), int(devVal), int(fnVal), nil
}

// GetNumaNode reads the NUMA node the card's PCI device is attached to
// from sysfs, the same source `lspci -vv` and the kernel's own
// /proc/iomem attribution use. Returns -1 if the platform reports none
// (single-NUMA-node or non-Linux hosts).
func (c *Channel) GetNumaNode() (int, error) {
	raw, err := os.ReadFile("/sys/bus/pci/devices/" + c.cardID + "/numa_node")
	if err != nil {
		return -1, rocerr.Wrap(rocerr.KindCard, "read numa_node", rocerr.Context{}, err)
	}
	n, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return -1, rocerr.Wrap(rocerr.KindCard, "parse numa_node", rocerr.Context{}, err)
	}
	return n, nil
}

// regTemperature mirrors pkg/cardops's private register offset; kept
// local because GetTemperature is a facade concern, not a Card Ops
// operation (the generic ReadRegister is).
const regTemperature = 0x64

// BuildSDHPatcher returns the PatchPage closure Open needs, conditioned
// on firmware version: firmware at or above the 3.20 boundary writes
// the Sub-event Data Header itself, so software patching would stomp a
// value the card already wrote (spec.md §9 SDH open question). buffer
// must be a view of the client's registered DMA buffer — patchSDH's
// offset is relative to that buffer (front.Page.Offset), not to any
// BAR window.
func BuildSDHPatcher(buffer []byte, fwVersion firmware.Version) func(offset uint64, length uint32) {
	if !firmware.RequiresSDHPatch(fwVersion) {
		return func(offset uint64, length uint32) {}
	}
	return func(offset uint64, length uint32) {
		if uint64(len(buffer)) < offset+16 {
			return
		}
		words := [4]uint32{0, 0, 0, length}
		for i, w := range words {
			o := offset + uint64(i*4)
			word := (*uint32)(unsafe.Pointer(&buffer[o]))
			atomic.StoreUint32(word, w)
		}
	}
}
