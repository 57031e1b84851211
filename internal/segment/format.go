// Package segment implements the lock-free shared-memory publication
// protocol described in spec.md §3 and §4.1: the fixed binary layout of
// the ClockBound segment, the odd/even generation-counter seqlock, and
// typed accessors over a mapped byte region.
//
// The on-disk layout is grounded on the teacher's pkg/slotcache SLC1
// format (format.go: magic/version/header-size/generation header with a
// CRC-free seqlock) generalized from a hash-slot cache to the single
// fixed-size clock-bound record this spec calls for.
package segment

import "encoding/binary"

// Wire format constants (spec §3, §6).
const (
	// Version is the only segment format version this build understands.
	Version uint32 = 2

	// headerSize is the fixed size of the payload fields, in bytes.
	// Trailing bytes up to SegmentSize are padding (spec §3: "trailing
	// padding up to segment_size").
	headerSize = 0x58 // 88 bytes

	// DefaultSegmentSize is used when creating a fresh segment file; it
	// rounds headerSize up to a page-friendly size.
	DefaultSegmentSize = 128
)

// segmentMagic is the literal byte signature "41 4D 5A 4E 43 42 02 00"
// from spec.md §3 (spells AMZNCB + version bytes). Compared byte-for-byte
// so the check is independent of host byte order.
var segmentMagic = [8]byte{0x41, 0x4D, 0x5A, 0x4E, 0x43, 0x42, 0x02, 0x00}

// Field byte offsets within the mapped region. Multi-byte atomic fields
// (generation) are kept 4-byte aligned; 8-byte fields are 8-byte aligned.
const (
	offMagic            = 0x00 // [8]byte
	offSegmentSize      = 0x08 // uint32
	offVersion          = 0x0C // uint32 (semantically 16-bit, spec §3)
	offGeneration       = 0x10 // uint32 (semantically 16-bit, spec §3), atomic
	offReserved0        = 0x14 // uint32, padding
	offAsOfSec          = 0x18 // int64
	offAsOfNsec         = 0x20 // int64
	offVoidAfterSec     = 0x28 // int64
	offVoidAfterNsec    = 0x30 // int64
	offBoundNs          = 0x38 // int64
	offDisruptionMarker = 0x40 // uint64
	offMaxDriftPPB      = 0x48 // uint32
	offClockStatus      = 0x4C // int32
	offDisruptionEnable = 0x50 // uint8
	// 0x51-0x57 reserved, implicitly zero.
)

// ClockStatus is the published clock-status enum (spec §3, §4.5).
type ClockStatus int32

// Clock status values, spec §3.
const (
	StatusUnknown      ClockStatus = 0
	StatusSynchronized ClockStatus = 1
	StatusFreeRunning  ClockStatus = 2
	StatusDisrupted    ClockStatus = 3
)

// String implements fmt.Stringer for log output.
func (s ClockStatus) String() string {
	switch s {
	case StatusUnknown:
		return "Unknown"
	case StatusSynchronized:
		return "Synchronized"
	case StatusFreeRunning:
		return "FreeRunning"
	case StatusDisrupted:
		return "Disrupted"
	default:
		return "Invalid"
	}
}

// MonoTime is a coarse monotonic instant expressed as seconds+nanoseconds,
// matching the segment's on-disk (as_of, void_after) representation
// (spec §3).
type MonoTime struct {
	Sec  int64
	Nsec int64
}

// Before reports whether m occurs strictly before o.
func (m MonoTime) Before(o MonoTime) bool {
	if m.Sec != o.Sec {
		return m.Sec < o.Sec
	}

	return m.Nsec < o.Nsec
}

// Add returns m advanced by d.
func (m MonoTime) Add(d int64) MonoTime {
	total := m.Sec*1e9 + m.Nsec + d

	return MonoTime{Sec: total / 1e9, Nsec: total % 1e9}
}

// Sub returns (m - o) in nanoseconds, saturating to math.MaxInt64/MinInt64
// on overflow (spec §7: "Integer overflow in bound/age arithmetic.
// Saturate to the signed 64-bit maximum").
func (m MonoTime) Sub(o MonoTime) int64 {
	return saturatingSub(m.Sec*1_000_000_000, o.Sec*1_000_000_000, m.Nsec-o.Nsec)
}

func saturatingSub(secA, secB, nsecDiff int64) int64 {
	const maxInt64 = int64(1<<63 - 1)
	const minInt64 = -maxInt64 - 1

	diff := secA - secB
	if secA >= 0 && secB < 0 && diff < 0 {
		diff = maxInt64
	} else if secA < 0 && secB >= 0 && diff > 0 {
		diff = minInt64
	}

	sum := diff + nsecDiff
	// overflow check for the final addition.
	if diff > 0 && nsecDiff > 0 && sum < 0 {
		return maxInt64
	}

	if diff < 0 && nsecDiff < 0 && sum > 0 {
		return minInt64
	}

	return sum
}

// Payload is the mutable fields of the segment, i.e. everything except
// magic/segment_size/version (spec I1: those are written exactly once at
// initialization and never mutate).
type Payload struct {
	AsOf                          MonoTime
	VoidAfter                     MonoTime
	BoundNs                       int64
	DisruptionMarker              uint64
	MaxDriftPPB                   uint32
	ClockStatus                   ClockStatus
	ClockDisruptionSupportEnabled bool
}

// encodePayload writes p into buf at the payload offsets. buf must be at
// least headerSize bytes. Does not touch magic/segment_size/version/generation.
func encodePayload(buf []byte, p Payload) {
	binary.NativeEndian.PutUint64(buf[offAsOfSec:], uint64(p.AsOf.Sec))
	binary.NativeEndian.PutUint64(buf[offAsOfNsec:], uint64(p.AsOf.Nsec))
	binary.NativeEndian.PutUint64(buf[offVoidAfterSec:], uint64(p.VoidAfter.Sec))
	binary.NativeEndian.PutUint64(buf[offVoidAfterNsec:], uint64(p.VoidAfter.Nsec))
	binary.NativeEndian.PutUint64(buf[offBoundNs:], uint64(p.BoundNs))
	binary.NativeEndian.PutUint64(buf[offDisruptionMarker:], p.DisruptionMarker)
	binary.NativeEndian.PutUint32(buf[offMaxDriftPPB:], p.MaxDriftPPB)
	binary.NativeEndian.PutUint32(buf[offClockStatus:], uint32(p.ClockStatus))

	var enabled byte
	if p.ClockDisruptionSupportEnabled {
		enabled = 1
	}

	buf[offDisruptionEnable] = enabled
}

// decodePayload reads the payload fields out of buf.
func decodePayload(buf []byte) Payload {
	return Payload{
		AsOf: MonoTime{
			Sec:  int64(binary.NativeEndian.Uint64(buf[offAsOfSec:])),
			Nsec: int64(binary.NativeEndian.Uint64(buf[offAsOfNsec:])),
		},
		VoidAfter: MonoTime{
			Sec:  int64(binary.NativeEndian.Uint64(buf[offVoidAfterSec:])),
			Nsec: int64(binary.NativeEndian.Uint64(buf[offVoidAfterNsec:])),
		},
		BoundNs:                       int64(binary.NativeEndian.Uint64(buf[offBoundNs:])),
		DisruptionMarker:              binary.NativeEndian.Uint64(buf[offDisruptionMarker:]),
		MaxDriftPPB:                   binary.NativeEndian.Uint32(buf[offMaxDriftPPB:]),
		ClockStatus:                   ClockStatus(int32(binary.NativeEndian.Uint32(buf[offClockStatus:]))),
		ClockDisruptionSupportEnabled: buf[offDisruptionEnable] != 0,
	}
}

// nextGeneration computes the next even generation after an odd one,
// skipping 0 on wrap (spec §3: "after wrap, the next value is 2, never
// 0"; spec §4.1 step 3).
func nextGeneration(oddGen uint32) uint32 {
	next := (oddGen + 1) & 0xFFFF
	if next == 0 {
		next = 2
	}

	return next
}
