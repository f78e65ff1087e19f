// Package params holds the construction-time channel parameters
// (spec.md §6 Parameters) and the CLI flag round-trip used by
// roc-sanity-check and roc-readout.
package params

import (
	"fmt"
	"strconv"

	"readoutcard.example/rocdma/pkg/cardtype"
	"readoutcard.example/rocdma/pkg/rocerr"
)

// CardID names the card either by PCI address or serial number; exactly
// one must be set.
type CardID struct {
	PciAddress string
	Serial     int32
	HasSerial  bool
}

// BufferKind selects how the client's DMA buffer is supplied.
type BufferKind int

const (
	BufferMemory BufferKind = iota
	BufferFile
	BufferNull
)

// BufferParameters describes the client-supplied DMA buffer.
type BufferParameters struct {
	Kind BufferKind
	Ptr  uintptr // BufferMemory
	Path string  // BufferFile
	Size uint64
}

// ChannelParams are the construction-time parameters for a channel.
// Defaults match spec.md §6: page size 8 KiB, generator enabled,
// Incremental pattern, Internal loopback.
type ChannelParams struct {
	CardID CardID
	// CardType selects the channel-number bound Validate enforces
	// (spec.md §6: 0..5 for C-RORC, 0..7 for Dummy). Defaults to
	// CardTypeCRORC; OpenDummy overrides it before validating.
	CardType          cardtype.CardType
	ChannelNumber     int
	DmaPageSize       uint64
	GeneratorEnabled  bool
	GeneratorPattern  cardtype.GeneratorPattern
	GeneratorLoopback cardtype.LoopbackMode
	GeneratorDataSize uint32
	ReadoutMode       cardtype.ReadoutMode
	Buffer            BufferParameters
}

// Option mutates a ChannelParams under construction.
type Option func(*ChannelParams)

// Default returns the parameter set with every spec.md §6 default
// applied, for the given required card id and channel number.
func Default(id CardID, channel int) ChannelParams {
	return ChannelParams{
		CardID:            id,
		CardType:          cardtype.CardTypeCRORC,
		ChannelNumber:     channel,
		DmaPageSize:       8 * 1024,
		GeneratorEnabled:  true,
		GeneratorPattern:  cardtype.GeneratorIncremental,
		GeneratorLoopback: cardtype.LoopbackInternal,
		ReadoutMode:       cardtype.ReadoutContinuous,
	}
}

// New builds a ChannelParams from Default plus any options, then
// validates it.
func New(id CardID, channel int, opts ...Option) (ChannelParams, error) {
	p := Default(id, channel)
	for _, opt := range opts {
		opt(&p)
	}
	if p.GeneratorDataSize == 0 {
		p.GeneratorDataSize = uint32(p.DmaPageSize)
	}
	if err := p.Validate(channel); err != nil {
		return ChannelParams{}, err
	}
	return p, nil
}

// WithDmaPageSize overrides the per-page size in bytes.
func WithDmaPageSize(bytes uint64) Option {
	return func(p *ChannelParams) { p.DmaPageSize = bytes }
}

// WithGeneratorEnabled overrides whether the on-card generator runs.
func WithGeneratorEnabled(enabled bool) Option {
	return func(p *ChannelParams) { p.GeneratorEnabled = enabled }
}

// WithGeneratorPattern overrides the generator's pattern.
func WithGeneratorPattern(pattern cardtype.GeneratorPattern) Option {
	return func(p *ChannelParams) { p.GeneratorPattern = pattern }
}

// WithGeneratorLoopback overrides the generator's loopback routing.
func WithGeneratorLoopback(mode cardtype.LoopbackMode) Option {
	return func(p *ChannelParams) { p.GeneratorLoopback = mode }
}

// WithGeneratorDataSize overrides the generator's per-event data size.
func WithGeneratorDataSize(bytes uint32) Option {
	return func(p *ChannelParams) { p.GeneratorDataSize = bytes }
}

// WithReadoutMode overrides continuous vs. triggered readout.
func WithReadoutMode(mode cardtype.ReadoutMode) Option {
	return func(p *ChannelParams) { p.ReadoutMode = mode }
}

// WithBuffer overrides the client buffer description.
func WithBuffer(b BufferParameters) Option {
	return func(p *ChannelParams) { p.Buffer = b }
}

// WithCardType overrides the channel-number bound Validate enforces.
// OpenDummy and rocchannel.Open set CardType directly instead.
func WithCardType(t cardtype.CardType) Option {
	return func(p *ChannelParams) { p.CardType = t }
}

// Validate checks the parameter set against spec.md §6 constraints
// (card id required, channel range, buffer required).
func (p ChannelParams) Validate(channel int) error {
	if p.CardID.PciAddress == "" && !p.CardID.HasSerial {
		return rocerr.New(rocerr.KindParameter, "card_id requires either a pci address or a serial number", rocerr.Context{})
	}
	// MaxChannel is the highest valid (inclusive) channel number, so the
	// valid range is 0..max, not 0..max-1.
	if max := p.CardType.MaxChannel(); channel < 0 || channel > max {
		return rocerr.New(rocerr.KindOutOfRange,
			fmt.Sprintf("channel_number %d out of range for %s (0..%d)", channel, p.CardType, max),
			rocerr.Context{Channel: channel})
	}
	if p.Buffer.Kind != BufferNull && p.Buffer.Size == 0 {
		return rocerr.New(rocerr.KindParameter, "buffer_parameters requires a non-zero size", rocerr.Context{})
	}
	if p.DmaPageSize == 0 {
		return rocerr.New(rocerr.KindParameter, "dma_page_size must be non-zero", rocerr.Context{})
	}
	return nil
}

// ParseCardID parses the CLI spelling of --id=<pci|serial>: a string
// that is entirely digits is treated as a serial number, anything else
// as a PCI address. strconv.ParseInt is used rather than fmt.Sscanf
// because Sscanf's %d happily matches a numeric prefix (it would
// misparse "0000:01:00.0" as serial 0) instead of requiring the whole
// string to be numeric.
func ParseCardID(s string) (CardID, error) {
	if s == "" {
		return CardID{}, rocerr.New(rocerr.KindParameter, "--id must not be empty", rocerr.Context{})
	}
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		return CardID{Serial: int32(n), HasSerial: true}, nil
	}
	return CardID{PciAddress: s}, nil
}

// PageSizeFromKiB converts the --cp-dma-pagesize=<KiB> CLI value to
// bytes (spec.md §8 S6).
func PageSizeFromKiB(kib uint64) uint64 { return kib * 1024 }

// BufferSizeFromMiB converts the --cp-dma-bufmb=<MiB> CLI value to
// bytes.
func BufferSizeFromMiB(mib uint64) uint64 { return mib * 1024 * 1024 }
