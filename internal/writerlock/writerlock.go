// Package writerlock enforces spec §5's "exactly one process holds the
// segment read/write" invariant with an flock-guarded PID sidecar,
// generalized from the teacher's lock.go fileLock/acquireLockWithTimeout
// pattern (there used to serialize ticket-file edits; here used to keep
// two clockboundd instances from mapping the same segment read-write).
package writerlock

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"
)

// AcquireTimeout bounds how long Acquire waits for a concurrent writer
// to release the lock before giving up.
const AcquireTimeout = 5 * time.Second

var (
	errTimeout  = errors.New("writerlock: timeout acquiring segment lock")
	errLockOpen = errors.New("writerlock: failed to open lock file")
)

// Lock guards a single segment path against more than one writer
// process. Release with Release.
type Lock struct {
	path string
	file *os.File
}

// Acquire takes an exclusive, non-blocking flock on segmentPath+".lock",
// retrying until AcquireTimeout elapses, and records the caller's PID
// into the lock file (spec SUPPLEMENTED FEATURES: "PID/lock sidecar for
// the writer").
func Acquire(segmentPath string) (*Lock, error) {
	lockPath := segmentPath + ".lock"

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644) //nolint:gosec // path derives from operator config
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errLockOpen, err)
	}

	deadline := time.Now().Add(AcquireTimeout)

	const retryInterval = 10 * time.Millisecond

	for {
		if flockErr := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); flockErr == nil {
			break
		}

		if time.Now().After(deadline) {
			_ = file.Close()

			return nil, fmt.Errorf("%w: %s", errTimeout, segmentPath)
		}

		time.Sleep(retryInterval)
	}

	// Write the PID into the fd the flock is actually held against.
	// atomic.WriteFile would rename a new inode over lockPath, leaving
	// this process's flock on an orphaned old inode and letting the
	// next Acquire lock the fresh (unlocked) inode straight away.
	pid := strconv.Itoa(os.Getpid())

	if err := file.Truncate(0); err != nil {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		_ = file.Close()

		return nil, fmt.Errorf("writerlock: recording pid: %w", err)
	}

	if _, err := file.WriteAt([]byte(pid), 0); err != nil {
		_ = syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
		_ = file.Close()

		return nil, fmt.Errorf("writerlock: recording pid: %w", err)
	}

	return &Lock{path: lockPath, file: file}, nil
}

// Release drops the flock and closes the underlying descriptor. The PID
// file is left in place (harmless, and a useful post-mortem artifact);
// the flock itself is what enforces exclusivity.
func (l *Lock) Release() error {
	if l.file == nil {
		return nil
	}

	unlockErr := syscall.Flock(int(l.file.Fd()), syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil {
		return unlockErr
	}

	return closeErr
}
