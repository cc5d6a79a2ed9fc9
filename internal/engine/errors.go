package engine

import (
	"errors"
	"fmt"
)

// Error is an engine status code with its message.
type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Err     error // native error, if any
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode is an MDBX-compatible status code. Codes shared with the C
// library keep their numeric values; positive codes are errno values.
type ErrorCode int

const (
	Success ErrorCode = 0

	// ErrKeyExist indicates the key/data pair already exists
	ErrKeyExist ErrorCode = -30799

	// ErrNotFound indicates the key/data pair was not found
	ErrNotFound ErrorCode = -30798

	ErrPageNotFound ErrorCode = -30797
	ErrCorrupted    ErrorCode = -30796
	ErrPanic        ErrorCode = -30795

	// ErrVersionMismatch indicates the database was written by another version
	ErrVersionMismatch ErrorCode = -30794

	// ErrInvalidFile indicates the file is not a database of this engine
	ErrInvalidFile ErrorCode = -30793

	ErrMapFull     ErrorCode = -30792
	ErrDBsFull     ErrorCode = -30791
	ErrReadersFull ErrorCode = -30790
	ErrTxnFull     ErrorCode = -30788
	ErrCursorFull  ErrorCode = -30787
	ErrPageFull    ErrorCode = -30786

	// ErrIncompatible indicates incompatible operation or flags, such as
	// reopening a database with different flags
	ErrIncompatible ErrorCode = -30784

	ErrBadRSlot   ErrorCode = -30783
	ErrBadTxn     ErrorCode = -30782
	ErrBadValSize ErrorCode = -30781
	ErrBadDBI     ErrorCode = -30780
	ErrProblem    ErrorCode = -30779

	// ErrBusy indicates another write transaction is running
	ErrBusy ErrorCode = -30778

	ErrMultiVal       ErrorCode = -30421
	ErrKeyMismatch    ErrorCode = -30418
	ErrThreadMismatch ErrorCode = -30416
	ErrTxnOverlapping ErrorCode = -30415

	// errno values
	ErrPermissionDenied ErrorCode = 13 // EACCES
	ErrInvalidArgument  ErrorCode = 22 // EINVAL
	ErrNoData           ErrorCode = 61 // ENODATA
	ErrUnsupported      ErrorCode = 95 // EOPNOTSUPP
)

var errorMessages = map[ErrorCode]string{
	Success:             "success",
	ErrKeyExist:         "key/data pair already exists",
	ErrNotFound:         "key/data pair not found",
	ErrPageNotFound:     "requested page not found",
	ErrCorrupted:        "database is corrupted",
	ErrPanic:            "fatal environment error",
	ErrVersionMismatch:  "database version mismatch",
	ErrInvalidFile:      "file is not a valid database",
	ErrMapFull:          "environment mapsize limit reached",
	ErrDBsFull:          "environment maxdbs limit reached",
	ErrReadersFull:      "environment maxreaders limit reached",
	ErrTxnFull:          "transaction has too many dirty pages",
	ErrCursorFull:       "cursor stack overflow",
	ErrPageFull:         "page has no space",
	ErrIncompatible:     "incompatible operation or flags",
	ErrBadRSlot:         "reader slot corrupted",
	ErrBadTxn:           "transaction is invalid",
	ErrBadValSize:       "invalid key or value size",
	ErrBadDBI:           "invalid DBI handle",
	ErrProblem:          "unexpected internal error",
	ErrBusy:             "another write transaction is running",
	ErrMultiVal:         "key has multiple values",
	ErrKeyMismatch:      "key mismatch with cursor position",
	ErrThreadMismatch:   "thread attempted to use unowned object",
	ErrTxnOverlapping:   "overlapping transactions",
	ErrPermissionDenied: "permission denied",
	ErrInvalidArgument:  "invalid argument",
	ErrNoData:           "no data available",
	ErrUnsupported:      "operation not supported",
}

// Message returns the description of code.
func Message(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("unknown error code %d", code)
}

// NewError creates a new Error with the given code.
func NewError(code ErrorCode) *Error {
	return &Error{Code: code, Message: Message(code)}
}

// OpError creates an Error for the named engine operation.
func OpError(op string, code ErrorCode) *Error {
	e := NewError(code)
	e.Op = op
	return e
}

// WrapError creates a new Error wrapping a native error.
func WrapError(code ErrorCode, err error) *Error {
	e := NewError(code)
	e.Err = err
	return e
}

// IsNotFound returns true if the error is ErrNotFound.
func IsNotFound(err error) bool {
	return Code(err) == ErrNotFound
}

// IsKeyExist returns true if the error is ErrKeyExist.
func IsKeyExist(err error) bool {
	return Code(err) == ErrKeyExist
}

// Code returns the error code from an error, or ErrProblem if it carries
// none.
func Code(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrProblem
}
