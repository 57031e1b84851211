package segment

import (
	"fmt"

	"github.com/aws/clockbound/internal/clockerr"
)

// Snapshot is a torn-read-free copy of the segment payload together with
// the even generation it was read under (spec §4.1 Read snapshot, §8:
// "idempotence: reading twice with no intervening writer transaction
// returns identical snapshots and the same generation").
type Snapshot struct {
	Payload
	Generation uint32
}

// Read performs the bounded-retry generation-stable double-read described
// in spec §4.1 and §4.3: fail with ErrSegmentNotInitialized while the
// generation is still 0, spin until an even generation is observed, copy
// the payload, then confirm the generation hasn't changed underneath the
// read. No blocking syscalls and no allocation beyond the returned
// Snapshot value, matching spec §4.3 ("no blocking syscalls; no
// allocation on the hot path").
func (s *Segment) Read() (Snapshot, error) {
	for attempt := 0; attempt < ReadMaxRetries; attempt++ {
		g1 := atomicLoadU32(s.data, offGeneration)
		if g1 == 0 {
			return Snapshot{}, clockerr.ErrSegmentNotInitialized
		}

		if g1%2 == 1 {
			continue // writer transaction in progress, spin
		}

		// Acquire-ordered load above already establishes the
		// happens-before edge for everything read below it.
		payload := decodePayload(s.data)

		g2 := atomicLoadU32(s.data, offGeneration)
		if g1 == g2 {
			return Snapshot{Payload: payload, Generation: g1}, nil
		}
	}

	return Snapshot{}, fmt.Errorf("%w: exhausted %d retries", clockerr.ErrSegmentMalformed, ReadMaxRetries)
}

// ReadInto is the caller-provided-destination variant of Read referenced
// in spec §4.3 ("read into caller-provided destination and return
// (snapshot, status_code)"); it avoids a second allocation for callers
// that already own a Snapshot to reuse across calls.
func (s *Segment) ReadInto(dst *Snapshot) error {
	snap, err := s.Read()
	if err != nil {
		return err
	}

	*dst = snap

	return nil
}
