package rocchannel

import (
	"readoutcard.example/rocdma/pkg/cardtype"
	"readoutcard.example/rocdma/pkg/params"
	"readoutcard.example/rocdma/pkg/rocerr"
	"readoutcard.example/rocdma/pkg/superpage"
)

// DummyChannel is the in-process, no-hardware channel used for tests
// and for exercising client code without a card present (spec.md §1
// "Out of scope... the dummy pass-through channel... must satisfy the
// same public contract"). Unlike Channel it fills pages synchronously
// on every FillSuperpages call instead of waiting on real hardware
// arrivals, acting as its own generator.
type DummyChannel struct {
	params   params.ChannelParams
	queue    *superpage.Queue
	running  bool
	pageSize uint64
}

// OpenDummy constructs a DummyChannel. No lock is taken: the dummy
// variant has no cross-process hardware resource to protect.
func OpenDummy(p params.ChannelParams) (*DummyChannel, error) {
	p.CardType = cardtype.CardTypeDummy
	if err := p.Validate(p.ChannelNumber); err != nil {
		return nil, err
	}
	return &DummyChannel{
		params:   p,
		queue:    superpage.NewQueue(transferQueueSize, readyQueueSize),
		pageSize: p.DmaPageSize,
	}, nil
}

func (d *DummyChannel) pageGranule() uint64 {
	return cardtype.CardTypeDummy.PageGranule()
}

// PushSuperpage validates and enqueues, using the Dummy card's smaller
// page granule (spec.md §3: 32 KiB multiples for the dummy variant).
func (d *DummyChannel) PushSuperpage(sp superpage.Superpage) error {
	if sp.Size == 0 || sp.Size%d.pageGranule() != 0 {
		return rocerr.New(rocerr.KindParameter, "superpage size must be a multiple of the dummy page granule", rocerr.Context{})
	}
	if sp.Offset%4 != 0 {
		return rocerr.New(rocerr.KindAlignment, "superpage offset must be 4-byte aligned", rocerr.Context{})
	}
	if d.params.Buffer.Size != 0 && sp.Offset+sp.Size > d.params.Buffer.Size {
		return rocerr.New(rocerr.KindOutOfRange, "superpage extends past the registered buffer", rocerr.Context{})
	}
	entry := superpage.NewEntry(sp, sp.Offset, d.pageSize)
	return d.queue.Add(entry)
}

func (d *DummyChannel) PopSuperpage() (superpage.Superpage, error) { return d.queue.PopFilled() }
func (d *DummyChannel) GetSuperpage() (superpage.Superpage, bool)  { return d.queue.Peek() }
func (d *DummyChannel) GetTransferQueueAvailable() int             { return d.queue.TransferQueueAvailable() }
func (d *DummyChannel) GetReadyQueueSize() int                     { return d.queue.ReadyQueueSize() }

// FillSuperpages immediately fills every page of the front Pushing
// entry and moves it straight through Arrivals to Filled: the dummy
// card has no ring to starve and no in-order-arrival delay to model.
func (d *DummyChannel) FillSuperpages() error {
	if !d.running {
		return nil
	}
	front := d.queue.FrontPushing()
	if front == nil {
		return nil
	}
	for !front.FullyPushed() {
		front.PushedPages++
	}
	d.queue.AdvancePushingToArrivals()

	for !d.queue.ArrivalsEmpty() && !d.queue.ReadyQueueFull() {
		arr := d.queue.FrontArrivals()
		if arr == nil {
			break
		}
		arr.Page.Received = arr.Page.Size
		arr.Page.Ready = true
		d.queue.AdvanceArrivalsToFilled()
	}
	return nil
}

func (d *DummyChannel) StartDma() error {
	d.queue.Reset()
	d.running = true
	return nil
}

func (d *DummyChannel) StopDma() error {
	d.running = false
	return nil
}

func (d *DummyChannel) ResetChannel(level cardtype.ResetLevel) error {
	return nil
}

func (d *DummyChannel) GetCardType() cardtype.CardType { return cardtype.CardTypeDummy }

func (d *DummyChannel) GetSerial() (int32, bool, error) { return 0xd00d, true, nil }

func (d *DummyChannel) GetFirmwareInfo() (string, error) { return "Dummy", nil }

func (d *DummyChannel) GetTemperature() (float32, error) { return 42.0, nil }

func (d *DummyChannel) GetPciAddress() string { return "00:00.0" }

func (d *DummyChannel) GetNumaNode() (int, error) { return -1, nil }
