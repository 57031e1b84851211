// Package vmclockfake builds fixture VMClock device files for tests: a
// stand-in for the real /dev/vmclock0 kernel surface that
// internal/vmclock consumes. Grounded on the teacher's use of
// github.com/natefinch/atomic for crash-safe fixture writes (lock.go's
// WithTicketLock), generalized here to bootstrapping and mutating a
// fake device file between test assertions.
package vmclockfake

import (
	"encoding/binary"
	"strings"

	"github.com/natefinch/atomic"
)

// Field layout mirrors internal/vmclock's documented contract exactly;
// duplicated here rather than imported because a fake device file is
// produced the same way an external kernel/hypervisor would produce the
// real one - independently of anything internal/vmclock exports.
const (
	headerSize          = 0x30
	offMagic            = 0x00
	offVersion          = 0x04
	offHeaderLength     = 0x08
	offGeneration       = 0x0C
	offDisruptionMarker = 0x10
	offClockStatus      = 0x18
)

var magic = [4]byte{'V', 'M', 'C', 'K'}

const version = 1

// File is an in-progress fake VMClock device file on disk.
type File struct {
	path string
	buf  []byte
}

// New builds a fresh fake device file at path with generation 2 (the
// first valid even generation) and the given initial fields, and writes
// it out.
func New(path string, disruptionMarker uint64, status int32) (*File, error) {
	f := &File{path: path, buf: make([]byte, headerSize)}

	copy(f.buf[offMagic:], magic[:])
	binary.NativeEndian.PutUint32(f.buf[offVersion:], version)
	binary.NativeEndian.PutUint32(f.buf[offHeaderLength:], headerSize)
	binary.NativeEndian.PutUint32(f.buf[offGeneration:], 2)
	binary.NativeEndian.PutUint64(f.buf[offDisruptionMarker:], disruptionMarker)
	binary.NativeEndian.PutUint32(f.buf[offClockStatus:], uint32(status))

	if err := f.flush(); err != nil {
		return nil, err
	}

	return f, nil
}

// Set mutates the disruption marker and status and republishes the file
// under a freshly incremented generation, simulating a real device
// update for the seqlock reader under test.
func (f *File) Set(disruptionMarker uint64, status int32) error {
	gen := binary.NativeEndian.Uint32(f.buf[offGeneration:])
	binary.NativeEndian.PutUint32(f.buf[offGeneration:], gen+2)
	binary.NativeEndian.PutUint64(f.buf[offDisruptionMarker:], disruptionMarker)
	binary.NativeEndian.PutUint32(f.buf[offClockStatus:], uint32(status))

	return f.flush()
}

// Path returns the fixture file's path, suitable for vmclock.Open.
func (f *File) Path() string { return f.path }

func (f *File) flush() error {
	return atomic.WriteFile(f.path, strings.NewReader(string(f.buf)))
}
