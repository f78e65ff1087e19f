// Package cardtype defines the small closed enumerations the channel
// facade's construction-time parameters are built from (spec.md §6
// Parameters).
package cardtype

import "fmt"

// CardType distinguishes the real C-RORC card from the in-process Dummy
// variant used for tests.
type CardType uint32

const (
	CardTypeCRORC CardType = iota
	CardTypeDummy
)

var cardTypeNames = map[CardType]string{
	CardTypeCRORC: "CRORC",
	CardTypeDummy: "Dummy",
}

func (c CardType) String() string {
	if s, ok := cardTypeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("unknown card type (%d)", uint32(c))
}

// MaxChannel returns the highest valid channel number for the card type
// (spec.md §6: 0..5 for C-RORC, 0..7 for Dummy).
func (c CardType) MaxChannel() int {
	switch c {
	case CardTypeDummy:
		return 7
	default:
		return 5
	}
}

// PageGranule returns the required superpage size granularity for the
// card type: 1 MiB for C-RORC (128 * 8 KiB pages matching the hardware
// ring depth), 32 KiB for Dummy.
func (c CardType) PageGranule() uint64 {
	switch c {
	case CardTypeDummy:
		return 32 * 1024
	default:
		return 1024 * 1024
	}
}

// GeneratorPattern selects the on-card data generator's pattern.
type GeneratorPattern uint32

const (
	GeneratorConstant GeneratorPattern = iota
	GeneratorIncremental
	GeneratorAlternating
	GeneratorFlying0
	GeneratorFlying1
	GeneratorRandom
)

var generatorPatternNames = map[GeneratorPattern]string{
	GeneratorConstant:    "Constant",
	GeneratorIncremental: "Incremental",
	GeneratorAlternating: "Alternating",
	GeneratorFlying0:     "Flying0",
	GeneratorFlying1:     "Flying1",
	GeneratorRandom:      "Random",
}

func (g GeneratorPattern) String() string {
	if s, ok := generatorPatternNames[g]; ok {
		return s
	}
	return fmt.Sprintf("unknown generator pattern (%d)", uint32(g))
}

// LoopbackMode selects where generated data is routed for self-test.
type LoopbackMode uint32

const (
	LoopbackNone LoopbackMode = iota
	LoopbackInternal
	LoopbackSiu
	LoopbackDiu
	LoopbackRORC
)

var loopbackModeNames = map[LoopbackMode]string{
	LoopbackNone:     "NONE",
	LoopbackInternal: "INTERNAL",
	LoopbackSiu:      "SIU",
	LoopbackDiu:      "DIU",
	LoopbackRORC:     "RORC",
}

func (l LoopbackMode) String() string {
	if s, ok := loopbackModeNames[l]; ok {
		return s
	}
	return fmt.Sprintf("unknown loopback mode (%d)", uint32(l))
}

// ParseLoopbackMode parses the CLI spelling of a loopback mode
// (spec.md §6 CLI surface --cp-gen-loopb=<NONE|INTERNAL|SIU|DIU|RORC>).
func ParseLoopbackMode(s string) (LoopbackMode, error) {
	for mode, name := range loopbackModeNames {
		if name == s {
			return mode, nil
		}
	}
	return 0, fmt.Errorf("unknown loopback mode %q", s)
}

// ReadoutMode selects continuous free-running capture vs. triggered
// event readout.
type ReadoutMode uint32

const (
	ReadoutContinuous ReadoutMode = iota
	ReadoutTriggered
)

func (r ReadoutMode) String() string {
	if r == ReadoutTriggered {
		return "Triggered"
	}
	return "Continuous"
}

// ResetLevel is the ordered set of reset depths accepted by
// reset_channel. Higher levels imply the lower levels' actions.
type ResetLevel uint32

const (
	ResetNothing ResetLevel = iota
	ResetInternal
	ResetInternalDiuSiu
)

func (r ResetLevel) String() string {
	switch r {
	case ResetInternal:
		return "Internal"
	case ResetInternalDiuSiu:
		return "InternalDiuSiu"
	default:
		return "Nothing"
	}
}

// AtLeast reports whether r is at least as deep as other in the ordered
// set {Nothing < Internal < InternalDiuSiu}.
func (r ResetLevel) AtLeast(other ResetLevel) bool {
	return r >= other
}
