// Package vmclock reads the host-provided VMClock shared-memory surface
// (spec §3 "VMClock surface (consumed)", §4.4). It is a read-only
// consumer of a kernel-provided contract; ClockBound does not define or
// own this wire format (spec §1 Out of scope: "the VMClock kernel
// surface (treated as a memory-mapped structure with documented
// fields)"). The mapping itself uses the exact odd/even generation
// discipline as the published ClockBound segment (spec §3), so the
// reader is grounded on the same seqlock technique as
// internal/segment.Segment.Read.
package vmclock

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/aws/clockbound/internal/clockerr"
)

// Status mirrors the VMClock clock_status enum (spec §3).
type Status int32

// VMClock status values, spec §3.
const (
	StatusUnknown      Status = 0
	StatusInitializing Status = 1
	StatusSynchronized Status = 2
	StatusFreeRunning  Status = 3
	StatusUnreliable   Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "Unknown"
	case StatusInitializing:
		return "Initializing"
	case StatusSynchronized:
		return "Synchronized"
	case StatusFreeRunning:
		return "FreeRunning"
	case StatusUnreliable:
		return "Unreliable"
	default:
		return "Invalid"
	}
}

// Documented field layout of the mapped VMClock surface. The header is
// "self-describing" (spec §3): headerLength tells readers how large the
// fixed portion is so future fields can be appended without breaking
// older consumers, the same forward-compatibility trick the teacher's
// SLC1 header_size field provides for slotcache.
const (
	minHeaderSize = 0x30

	offMagic            = 0x00 // [4]byte
	offVersion          = 0x04 // uint32
	offHeaderLength     = 0x08 // uint32
	offGeneration       = 0x0C // uint32, atomic (odd/even seqlock)
	offDisruptionMarker = 0x10 // uint64
	offClockStatus      = 0x18 // int32
)

var vmclockMagic = [4]byte{'V', 'M', 'C', 'K'}

const supportedVersion = 1

// ReadMaxRetries bounds the seqlock retry loop (mirrors
// segment.ReadMaxRetries; spec §4.4 uses "the same bounded-retry
// generation dance").
const ReadMaxRetries = 16

// Reading is a stable snapshot of the fields ClockBound cares about.
type Reading struct {
	DisruptionMarker uint64
	Status           Status
}

// Surface is a read-only mapping of the VMClock device (spec §6,
// default path /dev/vmclock0).
type Surface struct {
	data []byte
	fd   int
	path string
}

// Open maps the VMClock file read-only and validates its magic/version
// (spec §4.4: "Opens the VMClock file read-only, memory-maps it,
// validates its magic/version").
func Open(path string) (*Surface, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, clockerr.WrapSyscall("open", err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)

		return nil, clockerr.WrapSyscall("fstat", err)
	}

	if st.Size < minHeaderSize {
		_ = unix.Close(fd)

		return nil, fmt.Errorf("vmclock: file smaller than header: %w", clockerr.ErrSegmentMalformed)
	}

	data, mmapErr := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_SHARED)
	if mmapErr != nil {
		_ = unix.Close(fd)

		return nil, clockerr.WrapSyscall("mmap", mmapErr)
	}

	s := &Surface{data: data, fd: fd, path: path}

	if !bytes.Equal(data[offMagic:offMagic+4], vmclockMagic[:]) {
		_ = s.Close()

		return nil, fmt.Errorf("vmclock: bad magic: %w", clockerr.ErrSegmentMalformed)
	}

	version := binary.NativeEndian.Uint32(data[offVersion:])
	if version != supportedVersion {
		_ = s.Close()

		return nil, fmt.Errorf("vmclock: version %d: %w", version, clockerr.ErrSegmentVersionNotSupported)
	}

	headerLen := binary.NativeEndian.Uint32(data[offHeaderLength:])
	if int(headerLen) > len(data) || headerLen < minHeaderSize {
		_ = s.Close()

		return nil, fmt.Errorf("vmclock: bad header length %d: %w", headerLen, clockerr.ErrSegmentMalformed)
	}

	return s, nil
}

// Close unmaps the surface.
func (s *Surface) Close() error {
	if s.data == nil {
		return nil
	}

	err := unix.Munmap(s.data)
	s.data = nil

	closeErr := unix.Close(s.fd)
	s.fd = -1

	if err != nil {
		return clockerr.WrapSyscall("munmap", err)
	}

	if closeErr != nil {
		return clockerr.WrapSyscall("close", closeErr)
	}

	return nil
}

// Read performs the bounded-retry seqlock read described in spec §4.4
// ("read() -> (disruption_marker, vmclock_status) using the same
// bounded-retry generation dance" as the ClockBound segment).
func (s *Surface) Read() (Reading, error) {
	for attempt := 0; attempt < ReadMaxRetries; attempt++ {
		g1 := atomicLoadU32(s.data, offGeneration)
		if g1%2 == 1 {
			continue
		}

		marker := binary.NativeEndian.Uint64(s.data[offDisruptionMarker:])
		status := Status(int32(binary.NativeEndian.Uint32(s.data[offClockStatus:])))

		g2 := atomicLoadU32(s.data, offGeneration)
		if g1 == g2 {
			return Reading{DisruptionMarker: marker, Status: status}, nil
		}
	}

	return Reading{}, fmt.Errorf("vmclock: %w: exhausted %d retries", clockerr.ErrSegmentMalformed, ReadMaxRetries)
}

func atomicLoadU32(buf []byte, off int) uint32 {
	p := (*uint32)(unsafe.Pointer(&buf[off]))

	return atomic.LoadUint32(p)
}
