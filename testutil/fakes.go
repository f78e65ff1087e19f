package testutil

import (
	"sync"

	"readoutcard.example/rocdma/pkg/cardops"
	"readoutcard.example/rocdma/pkg/cardtype"
	"readoutcard.example/rocdma/pkg/readyfifo"
	"readoutcard.example/rocdma/pkg/rocerr"
)

// FakeBar is an in-memory Bar backing for tests: a plain byte slice
// standing in for an mmap'd BAR window, with no real MMIO semantics
// beyond what pkg/bar's volatile accessors already provide on top of
// it.
type FakeBar struct {
	mu   sync.Mutex
	data []byte
}

// NewFakeBar allocates a zeroed region of size bytes.
func NewFakeBar(size uint32) *FakeBar {
	return &FakeBar{data: make([]byte, size)}
}

func (b *FakeBar) ReadRegister(offset uint32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if uint64(offset)+4 > uint64(len(b.data)) {
		return 0, rocerr.New(rocerr.KindOutOfRange, "fake bar register out of bounds", rocerr.Context{})
	}
	return uint32(b.data[offset]) | uint32(b.data[offset+1])<<8 | uint32(b.data[offset+2])<<16 | uint32(b.data[offset+3])<<24, nil
}

func (b *FakeBar) WriteRegister(offset uint32, value uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if uint64(offset)+4 > uint64(len(b.data)) {
		return rocerr.New(rocerr.KindOutOfRange, "fake bar register out of bounds", rocerr.Context{})
	}
	b.data[offset] = byte(value)
	b.data[offset+1] = byte(value >> 8)
	b.data[offset+2] = byte(value >> 16)
	b.data[offset+3] = byte(value >> 24)
	return nil
}

func (b *FakeBar) Region(offset uint32, size uint32) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	end := uint64(offset) + uint64(size)
	if end > uint64(len(b.data)) {
		return nil, rocerr.New(rocerr.KindOutOfRange, "fake bar region out of bounds", rocerr.Context{})
	}
	return b.data[offset:end], nil
}

func (b *FakeBar) Close() error { return nil }

// FakeCardOps is a programmable CardOps double with failure injection,
// the same shape as a hardware-free test double for any synchronous
// hardware-programming contract: toggle a Fail* flag instead of wiring
// a real register round-trip.
type FakeCardOps struct {
	mu sync.Mutex

	Serial      int32
	HasSerial   bool
	RFID        uint32
	LinkUp      bool
	FreeFifoOK  bool
	FailOnStart bool
	FailOnPush  bool

	ReceiverStarted   bool
	GeneratorStarted  bool
	TriggerStarted    bool
	PushedDescriptors []FakeDescriptor
	ResetCalls        []cardtype.ResetLevel
}

// FakeDescriptor records one push_rx_free_fifo call for assertions.
type FakeDescriptor struct {
	BusAddr   uint64
	Words     uint32
	SlotIndex int
}

// NewFakeCardOps returns a card that reports link up, an empty free
// FIFO, and firmware 3.20 (the SDH-patch boundary) by default.
func NewFakeCardOps() *FakeCardOps {
	return &FakeCardOps{
		LinkUp:     true,
		FreeFifoOK: true,
		// reserved=0x2, major=3, minor=20, year offset=20 (2020), month=3, day=5:
		// matches the "3.20:2020-3-5" GetFirmwareInfo returns below.
		RFID: uint32(0x2)<<24 | uint32(3)<<21 | uint32(20)<<14 | uint32(20)<<9 | uint32(3)<<5 | uint32(5),
	}
}

func (f *FakeCardOps) InitDiuVersion() (cardops.DiuConfig, error) {
	return cardops.DiuConfig{Version: f.RFID}, nil
}

func (f *FakeCardOps) Reset(level cardtype.ResetLevel, diu cardops.DiuConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResetCalls = append(f.ResetCalls, level)
	return nil
}

func (f *FakeCardOps) ArmDdl(target cardops.DdlTarget, diu cardops.DiuConfig) error { return nil }

func (f *FakeCardOps) StartDataReceiver(readyFifoBusAddr uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailOnStart {
		return rocerr.New(rocerr.KindCard, "fake start_data_receiver failure", rocerr.Context{})
	}
	f.ReceiverStarted = true
	return nil
}

func (f *FakeCardOps) StopDataReceiver() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReceiverStarted = false
	return nil
}

func (f *FakeCardOps) PushRxFreeFifo(busAddr uint64, words uint32, slotIndex int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailOnPush {
		return rocerr.New(rocerr.KindCard, "fake push_rx_free_fifo failure", rocerr.Context{SlotIndex: slotIndex})
	}
	f.PushedDescriptors = append(f.PushedDescriptors, FakeDescriptor{busAddr, words, slotIndex})
	return nil
}

func (f *FakeCardOps) ArmDataGenerator(initValue, initWord uint32, pattern cardtype.GeneratorPattern, dataSize, seed uint32) error {
	return nil
}

func (f *FakeCardOps) StartDataGenerator(maxEvents uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GeneratorStarted = true
	return nil
}

func (f *FakeCardOps) StopDataGenerator() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GeneratorStarted = false
	return nil
}

func (f *FakeCardOps) StartTrigger(diu cardops.DiuConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TriggerStarted = true
	return nil
}

func (f *FakeCardOps) StopTrigger(diu cardops.DiuConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TriggerStarted = false
	return nil
}

func (f *FakeCardOps) SetLoopbackInternal() error { return nil }

func (f *FakeCardOps) SetLoopbackSiu(diu cardops.DiuConfig) error { return nil }

func (f *FakeCardOps) AssertLinkUp() error {
	if !f.LinkUp {
		return rocerr.New(rocerr.KindCard, "fake link is down", rocerr.Context{})
	}
	return nil
}

func (f *FakeCardOps) SiuCommand(op cardops.SiuOp) error { return nil }

func (f *FakeCardOps) DiuCommand(op cardops.DiuOp) error { return nil }

func (f *FakeCardOps) AssertFreeFifoEmpty() error {
	if !f.FreeFifoOK {
		return rocerr.New(rocerr.KindCard, "fake free fifo not empty", rocerr.Context{})
	}
	return nil
}

func (f *FakeCardOps) ReadRegister(addr uint32) (uint32, error) { return 0, nil }

func (f *FakeCardOps) GetSerial() (int32, bool, error) { return f.Serial, f.HasSerial, nil }

func (f *FakeCardOps) GetFirmwareInfo() (string, error) { return "3.20:2020-3-5", nil }

var _ cardops.CardOps = (*FakeCardOps)(nil)

// FakeReadyFifoRegion allocates a zeroed region sized for
// readyfifo.View and returns it alongside the view, so tests can drive
// arrivals directly with WriteReadyFifoSlot.
func FakeReadyFifoRegion() ([]byte, *readyfifo.View) {
	region := make([]byte, readyfifo.Entries*8)
	view, err := readyfifo.NewView(region)
	if err != nil {
		panic(err) // region is sized exactly right above; only a programmer error reaches here
	}
	return region, view
}

// WriteReadyFifoSlot writes a {length, status} pair into slot using
// plain (non-atomic) stores, sufficient for single-goroutine tests that
// don't race the engine.
func WriteReadyFifoSlot(region []byte, slot int, length uint32, status int32) {
	base := slot * 8
	region[base] = byte(length)
	region[base+1] = byte(length >> 8)
	region[base+2] = byte(length >> 16)
	region[base+3] = byte(length >> 24)
	u := uint32(status)
	region[base+4] = byte(u)
	region[base+5] = byte(u >> 8)
	region[base+6] = byte(u >> 16)
	region[base+7] = byte(u >> 24)
}
