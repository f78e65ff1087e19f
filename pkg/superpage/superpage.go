// Package superpage implements the client-facing superpage data model and
// the three-FIFO queue (Pushing/Arrivals/Filled) that pipelines entries
// between the client's push/pop calls and the DMA engine (spec.md §3, §4.2).
package superpage

import (
	"sync"

	"readoutcard.example/rocdma/pkg/rocerr"
)

// Superpage is a contiguous region of the client's pre-registered DMA
// buffer. Invariants: Offset%4==0, Size>0, Received<=Size,
// Ready <=> Received==Size.
type Superpage struct {
	Offset   uint64
	Size     uint64
	Received uint64
	Ready    bool
}

// Entry wraps a Superpage with the bookkeeping the engine needs to slice
// it into DMA pages and push descriptors for it.
type Entry struct {
	Page        Superpage
	BusAddress  uint64
	PageSize    uint64
	MaxPages    uint64
	PushedPages uint64
}

// NewEntry constructs an Entry for a freshly pushed superpage.
func NewEntry(sp Superpage, busAddress uint64, pageSize uint64) *Entry {
	return &Entry{
		Page:       sp,
		BusAddress: busAddress,
		PageSize:   pageSize,
		MaxPages:   sp.Size / pageSize,
	}
}

// FullyPushed reports whether every page of the entry has been handed to
// the hardware FIFO.
func (e *Entry) FullyPushed() bool {
	return e.PushedPages == e.MaxPages
}

// NextPushBusAddress returns the bus address of the next unpushed page.
func (e *Entry) NextPushBusAddress() uint64 {
	return e.BusAddress + e.PushedPages*e.PageSize
}

// Queue is the three-region pipeline: Pushing -> Arrivals -> Filled.
// All three regions preserve insertion order, and an entry is only ever
// present in one of them at a time.
type Queue struct {
	mu sync.Mutex

	pushing  []*Entry
	arrivals []*Entry
	filled   []*Entry

	transferQueueSize int // capacity across Pushing+Arrivals
	readyQueueSize    int // capacity of Filled
}

// NewQueue creates an empty queue with the given capacities.
func NewQueue(transferQueueSize, readyQueueSize int) *Queue {
	return &Queue{
		transferQueueSize: transferQueueSize,
		readyQueueSize:    readyQueueSize,
	}
}

// Add appends entry to the tail of Pushing. Fails with KindQueueFull if
// the combined Pushing+Arrivals length is already at capacity.
func (q *Queue) Add(entry *Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pushing)+len(q.arrivals) >= q.transferQueueSize {
		return rocerr.New(rocerr.KindQueueFull, "transfer queue is full", rocerr.Context{})
	}
	q.pushing = append(q.pushing, entry)
	return nil
}

// TransferQueueAvailable returns remaining slack on the transfer
// (Pushing+Arrivals) side.
func (q *Queue) TransferQueueAvailable() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.transferQueueSize - len(q.pushing) - len(q.arrivals)
}

// ReadyQueueSize returns |Filled|.
func (q *Queue) ReadyQueueSize() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.filled)
}

// ReadyQueueFull reports whether Filled is at its configured capacity.
// The engine checks this before consuming a hardware descriptor that
// would complete a superpage, so a client that stops popping applies
// back-pressure onto the arrival phase instead of Filled growing
// without bound.
func (q *Queue) ReadyQueueFull() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.filled) >= q.readyQueueSize
}

// FrontPushing returns the head of Pushing, or nil if empty.
func (q *Queue) FrontPushing() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pushing) == 0 {
		return nil
	}
	return q.pushing[0]
}

// AdvancePushingToArrivals moves the head of Pushing to the tail of
// Arrivals. It is the caller's responsibility to only call this once the
// head entry is FullyPushed.
func (q *Queue) AdvancePushingToArrivals() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pushing) == 0 {
		return
	}
	head := q.pushing[0]
	q.pushing = q.pushing[1:]
	q.arrivals = append(q.arrivals, head)
}

// FrontArrivals returns the head of Arrivals, or nil if empty. The head
// of Arrivals always corresponds to the oldest outstanding descriptor in
// the hardware ring (spec.md §4.3 oldest-first invariant).
func (q *Queue) FrontArrivals() *Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.arrivals) == 0 {
		return nil
	}
	return q.arrivals[0]
}

// ArrivalsEmpty reports whether Arrivals is empty.
func (q *Queue) ArrivalsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.arrivals) == 0
}

// PushingEmpty reports whether Pushing is empty.
func (q *Queue) PushingEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pushing) == 0
}

// AdvanceArrivalsToFilled moves the head of Arrivals to the tail of
// Filled. Capacity on the Filled side is enforced by the engine, which
// only calls this once a page fully completes a superpage (dropping a
// completed superpage is not an option the engine has).
func (q *Queue) AdvanceArrivalsToFilled() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.arrivals) == 0 {
		return
	}
	head := q.arrivals[0]
	q.arrivals = q.arrivals[1:]
	q.filled = append(q.filled, head)
}

// PeekFilled returns the head of Filled without removing it.
func (q *Queue) PeekFilled() (Superpage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.filled) == 0 {
		return Superpage{}, false
	}
	return q.filled[0].Page, true
}

// PopFilled removes and returns the head of Filled.
func (q *Queue) PopFilled() (Superpage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.filled) == 0 {
		return Superpage{}, rocerr.New(rocerr.KindQueueEmpty, "ready queue is empty", rocerr.Context{})
	}
	head := q.filled[0]
	q.filled = q.filled[1:]
	return head.Page, nil
}

// Peek returns the front of the aggregate queue: the head of Filled if
// non-empty, else the head of Arrivals, else the head of Pushing. This
// matches GetSuperpage()'s "front of the aggregate queue" contract.
func (q *Queue) Peek() (Superpage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.filled) != 0 {
		return q.filled[0].Page, true
	}
	if len(q.arrivals) != 0 {
		return q.arrivals[0].Page, true
	}
	if len(q.pushing) != 0 {
		return q.pushing[0].Page, true
	}
	return Superpage{}, false
}

// Reset empties all three regions. Used by StartDma to discard any
// pre-existing queue state.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pushing = nil
	q.arrivals = nil
	q.filled = nil
}
