package rocchannel

import (
	"readoutcard.example/rocdma/pkg/cardtype"
	"readoutcard.example/rocdma/pkg/superpage"
)

// Contract is the capability trait both Channel and DummyChannel
// satisfy: the spec.md §6 Public API, independent of which hardware (or
// lack of it) backs the channel. cmd/ programs depend only on this.
type Contract interface {
	PushSuperpage(sp superpage.Superpage) error
	PopSuperpage() (superpage.Superpage, error)
	GetSuperpage() (superpage.Superpage, bool)
	GetTransferQueueAvailable() int
	GetReadyQueueSize() int
	FillSuperpages() error
	StartDma() error
	StopDma() error
	ResetChannel(level cardtype.ResetLevel) error
	GetCardType() cardtype.CardType
	GetSerial() (int32, bool, error)
	GetFirmwareInfo() (string, error)
	GetTemperature() (float32, error)
	GetPciAddress() string
	GetNumaNode() (int, error)
}

var (
	_ Contract = (*Channel)(nil)
	_ Contract = (*DummyChannel)(nil)
)
