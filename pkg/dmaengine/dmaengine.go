// Package dmaengine implements the DMA superpage engine: the state
// machine and ring-management algorithm that sit between the channel
// facade's push/pop calls and the card's hardware Ready-FIFO (spec.md
// §4.3). It is the core of the system; every other package in this
// module exists to serve it a typed view of hardware state.
package dmaengine

import (
	"time"

	"readoutcard.example/rocdma/pkg/bar"
	"readoutcard.example/rocdma/pkg/cardops"
	"readoutcard.example/rocdma/pkg/cardtype"
	"readoutcard.example/rocdma/pkg/readyfifo"
	"readoutcard.example/rocdma/pkg/rocerr"
	"readoutcard.example/rocdma/pkg/superpage"
)

// State is one of the four engine states (spec.md §4.3 state machine).
type State int

const (
	Stopped State = iota
	PendingStart
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case PendingStart:
		return "PendingStart"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	default:
		return "Stopped"
	}
}

// FifoQueueMax bounds outstanding descriptors; it is set equal to the
// hardware ring depth. spec.md §4.3 ring-budget invariant requires
// fifo_size <= FifoQueueMax <= readyfifo.Entries.
const FifoQueueMax = readyfifo.Entries

// sdhEventSizeOffset locates the SDH patch target within an arrived
// page (spec.md §4.3 arrival phase step 3).
const sdhEventSizeOffset = 16

// Config bundles the construction-time parameters the engine needs
// beyond what superpage.Queue and cardops.CardOps already carry.
type Config struct {
	CardType          cardtype.CardType
	PageSize          uint64 // bytes per hardware page, default 8192
	GeneratorEnabled  bool
	GeneratorPattern  cardtype.GeneratorPattern
	GeneratorLoopback cardtype.LoopbackMode
	GeneratorDataSize uint32
	GeneratorSeed     uint32
	ReadoutMode       cardtype.ReadoutMode
	// NoRDYRX suppresses the RDYRX/EOBTR trigger commands, whether or
	// not the generator is enabled. rocchannel.Open sets it for every
	// readout mode except Triggered.
	NoRDYRX bool
}

// Deps are the engine's external collaborators.
type Deps struct {
	Bar      bar.Bar
	Card     cardops.CardOps
	Fifo     *readyfifo.View
	Queue    *superpage.Queue
	BusBase  func() uint64 // buffer_base_bus
	UserBase func() uintptr
	// PatchPage writes the SDH patch to the arrived page at the given
	// buffer-relative offset. Abstracted so tests can run without a
	// real mmap'd client buffer.
	PatchPage func(offset uint64, length uint32)
	Sleep     func(time.Duration)
}

// Engine is the DMA superpage engine. It is not safe for concurrent use
// from more than one goroutine (spec.md §5: strictly single-threaded
// cooperative per channel).
type Engine struct {
	cfg  Config
	deps Deps

	state State

	fifoBack uint32 // oldest unread descriptor index
	fifoSize uint32 // outstanding descriptors

	pendingDmaStart bool
	diu             cardops.DiuConfig

	failed    bool
	failErr   error
}

// New constructs a stopped engine.
func New(cfg Config, deps Deps) *Engine {
	if cfg.PageSize == 0 {
		cfg.PageSize = 8192
	}
	if deps.Sleep == nil {
		deps.Sleep = time.Sleep
	}
	return &Engine{cfg: cfg, deps: deps, state: Stopped}
}

// State returns the engine's current state.
func (e *Engine) State() State { return e.state }

// FifoSize returns the number of outstanding hardware descriptors.
func (e *Engine) FifoSize() uint32 { return e.fifoSize }

// Failed reports whether the channel has failed (a DataArrivalError
// occurred); per spec.md §7 the only recovery is reset_channel then
// start_dma.
func (e *Engine) Failed() (bool, error) { return e.failed, e.failErr }

// StartDma transitions Stopped -> PendingStart: clears queues, resets
// ring bookkeeping, and defers all hardware traffic to the first tick.
func (e *Engine) StartDma() error {
	if e.state != Stopped {
		return nil
	}
	e.deps.Queue.Reset()
	e.fifoBack = 0
	e.fifoSize = 0
	e.pendingDmaStart = true
	e.failed = false
	e.failErr = nil
	e.state = PendingStart
	return nil
}

// StopDma transitions Running/Stopping/PendingStart -> Stopped. Errors
// from Card Ops are swallowed so shutdown always completes (spec.md §5
// Cancellation, §8 invariant 6 idempotent stop).
func (e *Engine) StopDma() error {
	if e.state == Stopped {
		return nil
	}
	e.state = Stopping

	if e.cfg.GeneratorEnabled {
		_ = e.deps.Card.StopDataGenerator()
	}
	if !e.cfg.NoRDYRX {
		_ = e.deps.Card.StopTrigger(e.diu)
	}
	_ = e.deps.Card.StopDataReceiver()

	e.state = Stopped
	return nil
}

// ResetChannel delegates to Card Ops at the requested level. Permitted
// in any state (spec.md §4.3).
func (e *Engine) ResetChannel(level cardtype.ResetLevel, loopback cardtype.LoopbackMode) error {
	if level == cardtype.ResetNothing {
		return nil
	}
	if err := e.deps.Card.Reset(level, e.diu); err != nil {
		return rocerr.Wrap(rocerr.KindCard, "reset_channel", rocerr.Context{ResetLevel: level.String()}, err)
	}
	if level.AtLeast(cardtype.ResetInternalDiuSiu) {
		switch loopback {
		case cardtype.LoopbackInternal:
			if err := e.deps.Card.SetLoopbackInternal(); err != nil {
				return rocerr.Wrap(rocerr.KindCard, "reset_channel: set loopback", rocerr.Context{LoopbackMode: loopback.String()}, err)
			}
		case cardtype.LoopbackSiu:
			if err := e.deps.Card.SetLoopbackSiu(e.diu); err != nil {
				return rocerr.Wrap(rocerr.KindCard, "reset_channel: set loopback", rocerr.Context{LoopbackMode: loopback.String()}, err)
			}
		}
	}
	return nil
}

// FillSuperpages is the engine tick: at most one push phase and one
// arrival phase per call (spec.md §4.3 Tick algorithm).
func (e *Engine) FillSuperpages() error {
	if e.failed {
		return e.failErr
	}
	if err := e.pushPhase(); err != nil {
		return err
	}
	return e.arrivalPhase()
}

func (e *Engine) pushPhase() error {
	front := e.deps.Queue.FrontPushing()
	if front == nil {
		return nil
	}

	if e.pendingDmaStart {
		return e.deferredStart(front)
	}

	freeSlots := uint64(FifoQueueMax - e.fifoSize)
	unpushed := front.MaxPages - front.PushedPages
	n := unpushed
	if freeSlots < n {
		n = freeSlots
	}

	for i := uint64(0); i < n; i++ {
		slot := (e.fifoBack + e.fifoSize) % readyfifo.Entries
		busAddr := front.NextPushBusAddress()
		words := uint32(e.cfg.PageSize / 4)
		if err := e.deps.Card.PushRxFreeFifo(busAddr, words, int(slot)); err != nil {
			return rocerr.Wrap(rocerr.KindCard, "push_rx_free_fifo", rocerr.Context{SlotIndex: int(slot)}, err)
		}
		e.fifoSize++
		front.PushedPages++
	}

	if front.FullyPushed() {
		e.deps.Queue.AdvancePushingToArrivals()
	}
	return nil
}

// deferredStart runs the PendingStart -> Running transition: arms the
// card, primes a full ring from the first pushed entry, and waits briefly
// for initial arrivals. It does not credit the entry's Received count;
// arrivalPhase does that slot by slot.
func (e *Engine) deferredStart(front *superpage.Entry) error {
	if front.MaxPages < readyfifo.Entries {
		return rocerr.New(rocerr.KindParameter,
			"first pushed superpage cannot supply a full ring of initial pages", rocerr.Context{})
	}

	diu, err := e.deps.Card.InitDiuVersion()
	if err != nil {
		return rocerr.Wrap(rocerr.KindCard, "init_diu_version", rocerr.Context{}, err)
	}
	e.diu = diu

	readyFifoBusAddr := e.readyFifoBusAddress()
	if err := e.deps.Card.StartDataReceiver(readyFifoBusAddr); err != nil {
		return rocerr.Wrap(rocerr.KindCard, "start_data_receiver", rocerr.Context{}, err)
	}

	if e.cfg.GeneratorEnabled {
		if err := e.deps.Card.ArmDataGenerator(0, 0, e.cfg.GeneratorPattern, e.cfg.GeneratorDataSize, e.cfg.GeneratorSeed); err != nil {
			return rocerr.Wrap(rocerr.KindCard, "arm_data_generator", rocerr.Context{}, err)
		}
		if err := e.deps.Card.StartDataGenerator(0); err != nil {
			return rocerr.Wrap(rocerr.KindCard, "start_data_generator", rocerr.Context{}, err)
		}
	}
	if !e.cfg.NoRDYRX {
		if err := e.deps.Card.StartTrigger(e.diu); err != nil {
			return rocerr.Wrap(rocerr.KindCard, "start_trigger", rocerr.Context{}, err)
		}
	}

	for i := uint32(0); i < readyfifo.Entries; i++ {
		busAddr := front.NextPushBusAddress()
		words := uint32(e.cfg.PageSize / 4)
		if err := e.deps.Card.PushRxFreeFifo(busAddr, words, int(i)); err != nil {
			return rocerr.Wrap(rocerr.KindCard, "push_rx_free_fifo(prime)", rocerr.Context{SlotIndex: int(i)}, err)
		}
		front.PushedPages++
	}
	e.fifoBack = 0
	e.fifoSize = readyfifo.Entries

	// Bounded wait for the primer's initial pages to land, rather than
	// the fixed unconditional 10ms sleep the source used (open
	// question in spec.md §9, resolved in favor of a bounded-polling
	// CardError on timeout).
	const pollInterval = 10 * time.Millisecond
	const pollAttempts = 5
	lastSlot := uint32(readyfifo.Entries - 1)
	arrived := false
	for attempt := 0; attempt < pollAttempts; attempt++ {
		_, _, kind := e.deps.Fifo.Peek(int(lastSlot))
		if kind == readyfifo.KindWhole || kind == readyfifo.KindWholeError {
			arrived = true
			break
		}
		e.deps.Sleep(pollInterval)
	}
	if !arrived {
		return rocerr.New(rocerr.KindCard,
			"timed out waiting for initial ring of pages to arrive during deferred start",
			rocerr.Context{})
	}

	// The poll above only confirms the hardware has begun producing
	// data; it does not credit any pages. Crediting stays the sole
	// responsibility of arrivalPhase's per-slot accounting, which runs
	// immediately after this call returns and consumes the same 128
	// primed slots from fifoBack=0 onward.
	if front.FullyPushed() {
		e.deps.Queue.AdvancePushingToArrivals()
	}

	e.pendingDmaStart = false
	e.state = Running
	return nil
}

func (e *Engine) arrivalPhase() error {
	if e.deps.Queue.ArrivalsEmpty() {
		return nil
	}

	for e.fifoSize > 0 {
		length, status, kind := e.deps.Fifo.Peek(int(e.fifoBack))

		switch kind {
		case readyfifo.KindEmpty, readyfifo.KindPartial:
			return nil
		case readyfifo.KindWholeError:
			e.failed = true
			e.failErr = rocerr.New(rocerr.KindDataArrival, "hardware reported an errored descriptor",
				rocerr.Context{Status: uint32(status), Length: length, SlotIndex: int(e.fifoBack)})
			return e.failErr
		case readyfifo.KindWhole:
			front := e.deps.Queue.FrontArrivals()
			if front == nil {
				return nil
			}
			willComplete := front.Page.Received+e.cfg.PageSize == front.Page.Size
			if willComplete && e.deps.Queue.ReadyQueueFull() {
				// Back-pressure: the client hasn't drained Filled, so
				// leave this descriptor's data on the ring rather than
				// consume it into a Filled slot that doesn't exist.
				return nil
			}
			e.patchSDH(front, length)
			e.deps.Fifo.Reset(int(e.fifoBack))
			e.fifoSize--
			e.fifoBack = (e.fifoBack + 1) % readyfifo.Entries
			front.Page.Received += e.cfg.PageSize
			if front.Page.Received == front.Page.Size {
				front.Page.Ready = true
				e.deps.Queue.AdvanceArrivalsToFilled()
			}
		default:
			e.failed = true
			e.failErr = rocerr.New(rocerr.KindDataArrival, "descriptor reported an unrecognized status value",
				rocerr.Context{Status: uint32(status), Length: length, SlotIndex: int(e.fifoBack)})
			return e.failErr
		}
	}
	return nil
}

func (e *Engine) patchSDH(front *superpage.Entry, length uint32) {
	if e.cfg.CardType != cardtype.CardTypeCRORC {
		return
	}
	offset := front.Page.Offset + front.Page.Received + sdhEventSizeOffset
	e.deps.PatchPage(offset, length)
}

func (e *Engine) readyFifoBusAddress() uint64 {
	// The Ready-FIFO is hosted inside the same BAR-mapped region the
	// card DMAs the ring into; its bus address is supplied by the Card
	// Ops collaborator's own configuration, not derived here. Real
	// wiring passes this through cardops at construction; exposed as a
	// hook so rocchannel can supply it once the BAR layout is known.
	return e.deps.BusBase()
}
