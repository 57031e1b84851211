package segment

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/aws/clockbound/internal/clockerr"
)

// Segment is a handle to a mapped ClockBound segment file, opened either
// read-only (reader side, spec §4.3) or read-write (writer side, spec
// §4.2). The zero value is not usable; obtain one via OpenReadOnly or
// OpenReadWrite.
type Segment struct {
	data     []byte
	fd       int
	writable bool
	path     string
}

// Path returns the filesystem path the segment was opened from.
func (s *Segment) Path() string { return s.path }

// Close unmaps the segment and closes the underlying file descriptor.
func (s *Segment) Close() error {
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

// OpenReadOnly opens an existing segment file, maps it read-only, and
// validates its header (spec §4.1: "Validates on open: size >= fixed
// layout size; magic matches; version == 2"). Readers keep this mapping
// for the lifetime of the process (spec §3 Lifecycle, §5).
func OpenReadOnly(path string) (*Segment, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, clockerr.WrapSyscall("open", err)
	}

	size, statErr := fileSize(fd)
	if statErr != nil {
		_ = unix.Close(fd)

		return nil, statErr
	}

	if size < headerSize {
		_ = unix.Close(fd)

		return nil, clockerr.ErrSegmentMalformed
	}

	data, mmapErr := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if mmapErr != nil {
		_ = unix.Close(fd)

		return nil, clockerr.WrapSyscall("mmap", mmapErr)
	}

	s := &Segment{data: data, fd: fd, writable: false, path: path}

	if err := validateHeader(s.data); err != nil {
		_ = s.Close()

		return nil, err
	}

	if atomicLoadU32(s.data, offGeneration) == 0 {
		_ = s.Close()

		return nil, clockerr.ErrSegmentNotInitialized
	}

	return s, nil
}

// OpenReadWrite creates or opens the segment file for the writer, extends
// it to segmentSize if it is smaller (a larger file is left as is), maps it read/write, and performs the one-time
// magic/version/segment_size initialization if the file is new (spec §3
// Lifecycle, I1, I7: "the segment's backing file survives writer
// restarts so readers need not reopen").
func OpenReadWrite(path string, segmentSize uint32) (*Segment, error) {
	if segmentSize < headerSize {
		return nil, fmt.Errorf("segment size %d smaller than header size %d: %w", segmentSize, headerSize, clockerr.ErrSegmentMalformed)
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0o644)
	if err != nil {
		return nil, clockerr.WrapSyscall("open", err)
	}

	size, statErr := fileSize(fd)
	if statErr != nil {
		_ = unix.Close(fd)

		return nil, statErr
	}

	if size < int(segmentSize) {
		if err := unix.Ftruncate(fd, int64(segmentSize)); err != nil {
			_ = unix.Close(fd)

			return nil, clockerr.WrapSyscall("ftruncate", err)
		}

		size = int(segmentSize)
	}

	data, mmapErr := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if mmapErr != nil {
		_ = unix.Close(fd)

		return nil, clockerr.WrapSyscall("mmap", mmapErr)
	}

	s := &Segment{data: data, fd: fd, writable: true, path: path}

	if err := s.ensureInitialized(segmentSize); err != nil {
		_ = s.Close()

		return nil, err
	}

	return s, nil
}

// ensureInitialized writes magic/segment_size/version exactly once (I1).
// If the header was already written by a prior run of the writer (I7),
// it is validated instead of rewritten.
func (s *Segment) ensureInitialized(segmentSize uint32) error {
	if bytes.Equal(s.data[offMagic:offMagic+8], segmentMagic[:]) {
		return validateHeader(s.data)
	}

	if !isZero(s.data[offMagic : offMagic+8]) {
		return clockerr.ErrSegmentMalformed
	}

	copy(s.data[offMagic:offMagic+8], segmentMagic[:])
	binary.NativeEndian.PutUint32(s.data[offSegmentSize:], segmentSize)
	binary.NativeEndian.PutUint32(s.data[offVersion:], Version)
	// generation stays 0 ("never initialized") until the first write
	// transaction commits (spec §3).

	return nil
}

func validateHeader(data []byte) error {
	if !bytes.Equal(data[offMagic:offMagic+8], segmentMagic[:]) {
		return clockerr.ErrSegmentMalformed
	}

	version := binary.NativeEndian.Uint32(data[offVersion:])
	if version != Version {
		return clockerr.ErrSegmentVersionNotSupported
	}

	segSize := binary.NativeEndian.Uint32(data[offSegmentSize:])
	if int(segSize) > len(data) {
		return clockerr.ErrSegmentMalformed
	}

	return nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}

	return true
}

func fileSize(fd int) (int, error) {
	var st unix.Stat_t

	if err := unix.Fstat(fd, &st); err != nil {
		return 0, clockerr.WrapSyscall("fstat", err)
	}

	return int(st.Size), nil
}
