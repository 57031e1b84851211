// Package monoclock wraps the two monotonic clock sources the rest of
// clockbound reads directly: the fine-grained CLOCK_MONOTONIC used for
// causality checks (spec §4.6) and the coarse, syscall-cheap
// CLOCK_MONOTONIC_COARSE used to timestamp the published segment (spec
// GLOSSARY: "Coarse monotonic clock... without a full syscall in
// readers").
package monoclock

import (
	"golang.org/x/sys/unix"

	"github.com/aws/clockbound/internal/clockerr"
	"github.com/aws/clockbound/internal/segment"
)

// Now reads CLOCK_MONOTONIC (spec §4.6 step 3: "mono").
func Now() (segment.MonoTime, error) {
	return readClock(unix.CLOCK_MONOTONIC)
}

// NowCoarse reads CLOCK_MONOTONIC_COARSE (spec §4.6 step 1: "c0";
// spec §4.5 step 1: "now_mono"). Falls back to CLOCK_MONOTONIC on
// platforms where the coarse clock id is unsupported.
func NowCoarse() (segment.MonoTime, error) {
	t, err := readClock(unix.CLOCK_MONOTONIC_COARSE)
	if err != nil {
		return readClock(unix.CLOCK_MONOTONIC)
	}

	return t, nil
}

// NowRealtime reads CLOCK_REALTIME (spec §4.6 step 3: "realtime").
func NowRealtime() (segment.MonoTime, error) {
	return readClock(unix.CLOCK_REALTIME)
}

func readClock(id int32) (segment.MonoTime, error) {
	var ts unix.Timespec

	if err := unix.ClockGettime(id, &ts); err != nil {
		return segment.MonoTime{}, clockerr.WrapSyscall("clock_gettime", err)
	}

	return segment.MonoTime{Sec: int64(ts.Sec), Nsec: int64(ts.Nsec)}, nil
}
