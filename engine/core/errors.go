package core

import "fmt"

// Kind categorizes the errors the rendering core can produce.
// Propagation policy: constructors fail fast,
// per-frame operations only ever return ResourceExhausted, and
// InvariantViolation never escapes as a recoverable error.
type Kind int

const (
	// ResourceExhausted means every batch/page is full and growth failed,
	// typically a device OOM or a user-imposed cap.
	ResourceExhausted Kind = iota
	// DeviceLost means a Vulkan call returned a device-lost status.
	DeviceLost
	// InvariantViolation marks an internal bug. Raised via Assert/Invariant,
	// never constructed directly.
	InvariantViolation
	// FormatMismatch means a pixel layout could not be reconciled with a
	// target image/atlas format.
	FormatMismatch
)

func (k Kind) String() string {
	switch k {
	case ResourceExhausted:
		return "ResourceExhausted"
	case DeviceLost:
		return "DeviceLost"
	case InvariantViolation:
		return "InvariantViolation"
	case FormatMismatch:
		return "FormatMismatch"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by this module's Vulkan-backed
// operations. File loading (gpu.LoadShaderReflection, gpu.WatchShader,
// text.LoadBitmapFont) returns plain errors instead. Callers should
// switch on Kind() rather than string-matching Error().
type Error struct {
	kind Kind
	msg  string
	err  error
}

func NewError(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{kind: kind, msg: msg, err: err}
}

func (e *Error) Kind() Kind { return e.kind }

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.msg)
}

func (e *Error) Unwrap() error { return e.err }

// Assert panics with an InvariantViolation error if cond is false.
// Invariant breaches are bugs, not recoverable conditions, so this is
// the only way the library raises InvariantViolation.
func Assert(cond bool, format string, args ...interface{}) {
	if !cond {
		panic(NewError(InvariantViolation, fmt.Sprintf(format, args...)))
	}
}

// Invariant is an alias for Assert reserved for invariants that are
// never expected to be reachable by user input, only by a bug in this
// package (e.g. releasing an offset the suballocator never handed out).
func Invariant(cond bool, format string, args ...interface{}) {
	Assert(cond, format, args...)
}
