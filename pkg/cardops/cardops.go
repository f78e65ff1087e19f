// Package cardops defines the Card Ops contract (spec.md §4.4): the
// external collaborator responsible for register programming, reset
// sequences, link arming, data-generator configuration and trigger
// commands. The DMA engine only ever talks to this interface — it never
// touches a Bar directly.
package cardops

import (
	"time"

	"readoutcard.example/rocdma/pkg/cardtype"
)

// ResetSettleDelay is the fixed settle interval required after each
// hardware reset step (spec.md §9 open question: several
// `sleep_for(100ms)` calls in the source are unexplained "XXX Why???"
// but the delay itself is required; 100ms is carried forward as the
// vendor-required constant).
const ResetSettleDelay = 100 * time.Millisecond

// DiuConfig is the link configuration returned by InitDiuVersion and
// threaded through the reset/loopback/trigger calls that need it.
type DiuConfig struct {
	Version uint32
}

// DdlTarget names which link-facing endpoint arm_ddl programs.
type DdlTarget uint32

const (
	DdlTargetDiu DdlTarget = iota
	DdlTargetSiu
)

// SiuOp and DiuOp are the small command vocabularies SiuCommand and
// DiuCommand accept (link resets, status queries).
type SiuOp uint32
type DiuOp uint32

const (
	SiuOpReset SiuOp = iota
	SiuOpStatus
)

const (
	DiuOpReset DiuOp = iota
	DiuOpStatus
)

// CardOps is the hardware-programming contract the DMA engine consumes.
// All operations are synchronous and may fail with a *rocerr.Error of
// kind KindCard.
type CardOps interface {
	InitDiuVersion() (DiuConfig, error)
	Reset(level cardtype.ResetLevel, diu DiuConfig) error
	ArmDdl(target DdlTarget, diu DiuConfig) error
	StartDataReceiver(readyFifoBusAddr uint64) error
	StopDataReceiver() error
	PushRxFreeFifo(busAddr uint64, words uint32, slotIndex int) error
	ArmDataGenerator(initValue, initWord uint32, pattern cardtype.GeneratorPattern, dataSize, seed uint32) error
	StartDataGenerator(maxEvents uint32) error
	StopDataGenerator() error
	StartTrigger(diu DiuConfig) error
	StopTrigger(diu DiuConfig) error
	SetLoopbackInternal() error
	SetLoopbackSiu(diu DiuConfig) error
	AssertLinkUp() error
	SiuCommand(op SiuOp) error
	DiuCommand(op DiuOp) error
	AssertFreeFifoEmpty() error
	ReadRegister(addr uint32) (uint32, error)
	GetSerial() (serial int32, ok bool, err error)
	GetFirmwareInfo() (string, error)
}
