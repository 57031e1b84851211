// Package clockerr defines the stable, comparable error values shared
// across clockbound's segment, reader, and client packages.
//
// Callers classify errors with errors.Is against the sentinels below,
// the same way the teacher CLI classifies its own domain errors in
// errors.go.
package clockerr

import "errors"

// Client-visible error codes (spec §6, "Client error codes (stable)").
var (
	// ErrSegmentNotInitialized is returned when generation == 0: the
	// segment file exists but no writer transaction has ever committed.
	ErrSegmentNotInitialized = errors.New("clockbound: segment not initialized")

	// ErrSegmentMalformed is returned when the segment fails structural
	// validation (too small, bad magic) or a reader exhausts its retry
	// budget without observing a stable even generation.
	ErrSegmentMalformed = errors.New("clockbound: segment malformed")

	// ErrSegmentVersionNotSupported is returned when the segment's
	// version field does not match the version this build understands.
	ErrSegmentVersionNotSupported = errors.New("clockbound: segment version not supported")

	// ErrCausalityBreach is returned by Now when the snapshot's as_of
	// instant is later than the monotonic read that followed it.
	ErrCausalityBreach = errors.New("clockbound: causality breach")

	// ErrSyscall wraps a failing syscall. Use errors.As with a
	// *SyscallError to recover the originating syscall name and errno.
	ErrSyscall = errors.New("clockbound: syscall failed")
)

// SyscallError carries the originating syscall name alongside the
// wrapped OS error, mirroring how the teacher's fs package surfaces
// open/mmap/flock failures with call-site context.
type SyscallError struct {
	Syscall string
	Err     error
}

func (e *SyscallError) Error() string {
	return "clockbound: syscall " + e.Syscall + ": " + e.Err.Error()
}

func (e *SyscallError) Unwrap() []error { return []error{ErrSyscall, e.Err} }

// WrapSyscall builds a SyscallError for the named syscall, or returns nil
// if err is nil.
func WrapSyscall(name string, err error) error {
	if err == nil {
		return nil
	}

	return &SyscallError{Syscall: name, Err: err}
}
