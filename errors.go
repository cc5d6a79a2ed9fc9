package envkv

import (
	"errors"
	"fmt"

	"github.com/Giulio2002/envkv/internal/engine"
)

// Kind classifies an Error.
type Kind uint8

const (
	// KindEngine wraps a status code returned by the storage engine.
	KindEngine Kind = iota + 1

	// KindInvalid means the handle was closed, committed, aborted or
	// invalidated by an ancestor.
	KindInvalid

	// KindType means an argument had the wrong shape or was missing.
	KindType

	// KindOS wraps an operating system error raised outside the engine.
	KindOS
)

func (k Kind) String() string {
	switch k {
	case KindEngine:
		return "engine error"
	case KindInvalid:
		return "invalid handle"
	case KindType:
		return "type error"
	case KindOS:
		return "os error"
	}
	return "unknown error"
}

// ErrorCode is an MDBX-compatible status code. Positive codes are errno
// values.
type ErrorCode = engine.ErrorCode

// Error codes, matching MDBX.
const (
	Success             = engine.Success
	ErrKeyExist         = engine.ErrKeyExist
	ErrNotFound         = engine.ErrNotFound
	ErrPageNotFound     = engine.ErrPageNotFound
	ErrCorrupted        = engine.ErrCorrupted
	ErrPanic            = engine.ErrPanic
	ErrVersionMismatch  = engine.ErrVersionMismatch
	ErrInvalid          = engine.ErrInvalidFile
	ErrMapFull          = engine.ErrMapFull
	ErrDBsFull          = engine.ErrDBsFull
	ErrReadersFull      = engine.ErrReadersFull
	ErrTxnFull          = engine.ErrTxnFull
	ErrCursorFull       = engine.ErrCursorFull
	ErrPageFull         = engine.ErrPageFull
	ErrIncompatible     = engine.ErrIncompatible
	ErrBadRSlot         = engine.ErrBadRSlot
	ErrBadTxn           = engine.ErrBadTxn
	ErrBadValSize       = engine.ErrBadValSize
	ErrBadDBI           = engine.ErrBadDBI
	ErrProblem          = engine.ErrProblem
	ErrBusy             = engine.ErrBusy
	ErrMultiVal         = engine.ErrMultiVal
	ErrKeyMismatch      = engine.ErrKeyMismatch
	ErrPermissionDenied = engine.ErrPermissionDenied
	ErrInvalidArgument  = engine.ErrInvalidArgument
	ErrNoData           = engine.ErrNoData
	ErrUnsupported      = engine.ErrUnsupported
)

// Error is returned by every failing operation of the package.
type Error struct {
	Kind    Kind
	Op      string
	Code    ErrorCode // engine status, zero for other kinds
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("envkv: %s: %v", msg, e.Err)
	}
	return "envkv: " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches targets of the same Kind. A target with a non-zero Code must
// also match the code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Code == Success || t.Code == e.Code)
}

// ErrInvalidHandle matches every KindInvalid error with errors.Is.
var ErrInvalidHandle = &Error{Kind: KindInvalid, Message: "invalid handle"}

func invalidError(op, what string) error {
	return &Error{Kind: KindInvalid, Op: op, Message: what + " is no longer valid"}
}

func typeError(op, format string, args ...any) error {
	return &Error{Kind: KindType, Op: op, Message: fmt.Sprintf(format, args...)}
}

func osError(op string, err error) error {
	return &Error{Kind: KindOS, Op: op, Message: "operating system error", Err: err}
}

// engineError converts an engine failure. Errors that already carry a Kind
// pass through.
func engineError(op string, err error) error {
	if err == nil {
		return nil
	}
	var own *Error
	if errors.As(err, &own) {
		return err
	}
	e := &Error{Kind: KindEngine, Op: op, Code: engine.Code(err), Err: err}
	var ee *engine.Error
	if errors.As(err, &ee) {
		e.Message = ee.Message
		if ee.Op != "" {
			e.Op = ee.Op
		}
		e.Err = ee.Err
	} else {
		e.Message = engine.Message(e.Code)
	}
	return e
}

func codeError(op string, code ErrorCode) error {
	return &Error{Kind: KindEngine, Op: op, Code: code, Message: engine.Message(code)}
}

func kindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsInvalid reports whether err was caused by using a dead handle.
func IsInvalid(err error) bool {
	return kindOf(err) == KindInvalid
}

// IsEngineError reports whether err carries an engine status code.
func IsEngineError(err error) bool {
	return kindOf(err) == KindEngine
}

// IsTypeError reports whether err was caused by a bad argument.
func IsTypeError(err error) bool {
	return kindOf(err) == KindType
}

// IsOSError reports whether err came from the operating system.
func IsOSError(err error) bool {
	return kindOf(err) == KindOS
}

// IsNotFound returns true if the error is ErrNotFound
func IsNotFound(err error) bool {
	return Code(err) == ErrNotFound
}

// IsKeyExist returns true if the error is ErrKeyExist
func IsKeyExist(err error) bool {
	return Code(err) == ErrKeyExist
}

// IsMapFull returns true if the error is ErrMapFull
func IsMapFull(err error) bool {
	return Code(err) == ErrMapFull
}

// Code returns the engine status carried by err, Success for nil and
// ErrProblem for anything else.
func Code(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == KindEngine {
			return e.Code
		}
		return ErrProblem
	}
	return engine.Code(err)
}
