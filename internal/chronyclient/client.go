// Package chronyclient queries the synchronization daemon's tracking
// socket for the fields the bound-computation loop needs (spec §3
// "Tracking snapshot (consumed)", §6 "Synchronization-daemon channel").
//
// The daemon itself is out of scope (spec §1: "the synchronization
// daemon itself (treated as a source of tracking snapshots over a local
// datagram channel)"); this package only implements the consumer side of
// that contract: a bounded-timeout request/response exchange over a unix
// datagram socket, with the response decoded the way the teacher decodes
// its fixed-size binary records in cache_binary.go (explicit
// little-endian field offsets, no reflection).
package chronyclient

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/aws/clockbound/internal/clockerr"
)

// Status is the daemon-reported synchronization status (spec §3).
type Status int32

// Daemon status values, spec §3.
const (
	StatusUnknown      Status = 0
	StatusSynchronized Status = 1
	StatusFreeRunning  Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "Unknown"
	case StatusSynchronized:
		return "Synchronized"
	case StatusFreeRunning:
		return "FreeRunning"
	default:
		return "Invalid"
	}
}

// Snapshot is the tracking data consumed from the synchronization daemon
// (spec §3, §4.5 error-bound formula inputs).
type Snapshot struct {
	LocalOffsetNs       int64
	RootDispersionNs    int64
	RootDelayNs         int64
	AgeSinceUpdateNs    int64
	Status              Status
	UpdateAppliedRecent bool   // "update applied since last poll"
	PHCRefID            string // optional, 4-char reference identity
}

// requestCode is the single request the client ever sends: "give me the
// current tracking snapshot". Framing is a minimal fixed binary
// protocol; the daemon wire format itself is an external contract (spec
// §1), so this is the narrowest request shape that satisfies it.
const requestCode uint32 = 1

// responseSize is the fixed size, in bytes, of a tracking response.
const responseSize = 4 + 8 + 8 + 8 + 8 + 4 + 1 + 4

// Client queries the synchronization daemon over its local datagram
// socket (spec §6: "The writer must run under a user identity with write
// permission to this socket").
type Client struct {
	addr    string
	timeout time.Duration
}

// New returns a Client targeting the daemon's unix datagram socket at
// addr, using the given per-request timeout (spec §5: "blocking poll of
// the synchronization daemon (bounded by a timeout, default 1 s)").
func New(addr string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = time.Second
	}

	return &Client{addr: addr, timeout: timeout}
}

// Query sends a single tracking request and decodes the response.
// I/O failures are wrapped as clockerr.SyscallError (naming the failing
// step) and are not retried here; the caller applies its own
// bounded-backoff policy (spec §4.5 step 2, §7 "Transient daemon-query
// failures").
func (c *Client) Query() (Snapshot, error) {
	conn, err := net.DialTimeout("unixgram", c.addr, c.timeout)
	if err != nil {
		return Snapshot{}, clockerr.WrapSyscall("connect", err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return Snapshot{}, clockerr.WrapSyscall("setdeadline", err)
	}

	var req [4]byte

	binary.LittleEndian.PutUint32(req[:], requestCode)

	if _, err := conn.Write(req[:]); err != nil {
		return Snapshot{}, clockerr.WrapSyscall("write", err)
	}

	buf := make([]byte, responseSize)

	n, err := conn.Read(buf)
	if err != nil {
		return Snapshot{}, clockerr.WrapSyscall("read", err)
	}

	if n != responseSize {
		return Snapshot{}, fmt.Errorf("chronyclient: short read %d/%d bytes", n, responseSize)
	}

	return decodeSnapshot(buf), nil
}

func decodeSnapshot(buf []byte) Snapshot {
	pos := 0

	status := Status(int32(binary.LittleEndian.Uint32(buf[pos:])))
	pos += 4

	localOffset := int64(binary.LittleEndian.Uint64(buf[pos:]))
	pos += 8

	rootDispersion := int64(binary.LittleEndian.Uint64(buf[pos:]))
	pos += 8

	rootDelay := int64(binary.LittleEndian.Uint64(buf[pos:]))
	pos += 8

	age := int64(binary.LittleEndian.Uint64(buf[pos:]))
	pos += 8

	refIDRaw := binary.LittleEndian.Uint32(buf[pos:])
	pos += 4

	updateApplied := buf[pos] != 0
	pos++

	return Snapshot{
		LocalOffsetNs:       localOffset,
		RootDispersionNs:    rootDispersion,
		RootDelayNs:         rootDelay,
		AgeSinceUpdateNs:    age,
		Status:              status,
		UpdateAppliedRecent: updateApplied,
		PHCRefID:            decodeRefID(refIDRaw),
	}
}

// decodeRefID renders a 4-byte reference identity as the 4-character
// ASCII string chrony/ntpd operators recognize (e.g. "PHC0"), matching
// the -r/--phc-ref-id CLI flag shape in spec §6.
func decodeRefID(raw uint32) string {
	if raw == 0 {
		return ""
	}

	b := []byte{byte(raw >> 24), byte(raw >> 16), byte(raw >> 8), byte(raw)}

	return string(b)
}
