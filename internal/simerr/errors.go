// Package simerr defines the kernel-wide error taxonomy from spec §7,
// modeled on the teacher's ECSError: a typed error carrying a stable code
// plus structured context for logging, rather than ad-hoc fmt.Errorf
// strings at every call site.
package simerr

import (
	"fmt"
	"time"
)

// Code identifies one of the taxonomy entries from spec §7.
type Code string

const (
	CodeCapacityExceeded    Code = "CAPACITY_EXCEEDED"
	CodeUnknownEntityType   Code = "UNKNOWN_ENTITY_TYPE"
	CodeAsyncSystemDetected Code = "ASYNC_SYSTEM_DETECTED"
	CodeDecodeFailed        Code = "DECODE_FAILED"
	CodeHashMismatchAfterLoad Code = "HASH_MISMATCH_AFTER_LOAD"
	CodeNetworkError        Code = "NETWORK_ERROR"
)

// SimError is the kernel's structured error type. Fatal indicates the
// error must abort the current tick/phase (CapacityExceeded,
// UnknownEntityType, AsyncSystemDetected); non-fatal codes
// (DecodeFailed, HashMismatchAfterLoad, NetworkError) are logged and the
// caller proceeds per the recovery behavior spec §7 describes for each.
type SimError struct {
	Code      Code
	Message   string
	Frame     uint32
	System    string
	Timestamp time.Time
	Fatal     bool
}

func (e *SimError) Error() string {
	if e.System != "" {
		return fmt.Sprintf("[%s] %s (system=%s frame=%d)", e.Code, e.Message, e.System, e.Frame)
	}
	return fmt.Sprintf("[%s] %s (frame=%d)", e.Code, e.Message, e.Frame)
}

func newErr(code Code, fatal bool, format string, args ...interface{}) *SimError {
	return &SimError{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
		Fatal:     fatal,
	}
}

func CapacityExceeded(format string, args ...interface{}) *SimError {
	return newErr(CodeCapacityExceeded, true, format, args...)
}

func UnknownEntityType(typeName string) *SimError {
	return newErr(CodeUnknownEntityType, true, "unknown entity type %q", typeName)
}

func AsyncSystemDetected(systemName string) *SimError {
	e := newErr(CodeAsyncSystemDetected, true, "system %q returned a suspending value", systemName)
	e.System = systemName
	return e
}

func DecodeFailed(format string, args ...interface{}) *SimError {
	return newErr(CodeDecodeFailed, false, format, args...)
}

func HashMismatchAfterLoad(expected, actual uint32) *SimError {
	return newErr(CodeHashMismatchAfterLoad, false, "loaded snapshot hash %#x does not match expected %#x", actual, expected)
}

func NetworkError(format string, args ...interface{}) *SimError {
	return newErr(CodeNetworkError, false, format, args...)
}

// WithFrame attaches the frame number for logging context and returns the
// same error for chaining.
func (e *SimError) WithFrame(frame uint32) *SimError {
	e.Frame = frame
	return e
}

// WithSystem attaches the originating system name.
func (e *SimError) WithSystem(system string) *SimError {
	e.System = system
	return e
}
