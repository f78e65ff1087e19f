// Package rocerr defines the closed set of error kinds raised by the
// DMA superpage engine and its collaborators, each carrying structured
// context instead of arbitrary type-erased payloads.
package rocerr

import (
	"errors"
	"fmt"
)

// Kind is a closed error-kind variant for the DMA engine and its
// collaborators.
type Kind int

const (
	KindParameter Kind = iota
	KindAlignment
	KindQueueFull
	KindQueueEmpty
	KindOutOfRange
	KindCard
	KindDataArrival
	KindFileLock
	KindNamedMutexLock
	KindFifo
)

var kindNames = map[Kind]string{
	KindParameter:      "parameter error",
	KindAlignment:      "alignment error",
	KindQueueFull:      "queue full",
	KindQueueEmpty:     "queue empty",
	KindOutOfRange:     "out of range",
	KindCard:           "card error",
	KindDataArrival:    "data arrival error",
	KindFileLock:       "file lock error",
	KindNamedMutexLock: "named mutex lock error",
	KindFifo:           "fifo error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("unknown error kind (%d)", int(k))
}

// Context carries structured diagnostic fields. Only the fields relevant
// to a given error are populated; zero values mean "not applicable".
type Context struct {
	PciBus      string
	Channel     int
	Status      uint32
	Length      uint32
	SlotIndex   int
	ResetLevel  string
	LoopbackMode string
	Causes      []string // possible-causes list, user-visible
}

// Error is the single error type raised across the engine. It carries a
// Kind, a free-text message, structured Context and an optional wrapped
// Cause.
type Error struct {
	Kind    Kind
	Message string
	Ctx     Context
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Ctx.Channel != 0 || e.Ctx.PciBus != "" {
		msg += fmt.Sprintf(" (pci=%s channel=%d)", e.Ctx.PciBus, e.Ctx.Channel)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New creates an Error with no wrapped cause.
func New(kind Kind, message string, ctx Context) *Error {
	return &Error{Kind: kind, Message: message, Ctx: ctx}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(kind Kind, message string, ctx Context, cause error) *Error {
	return &Error{Kind: kind, Message: message, Ctx: ctx, Cause: cause}
}

// Is reports whether err is a rocerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
