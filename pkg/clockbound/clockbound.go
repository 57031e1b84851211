// Package clockbound is the reader-side client: it opens the published
// segment and implements the now() API of spec §4.6 — a causality-checked
// error-bound interval derived from the writer's last snapshot.
package clockbound

import (
	"errors"
	"fmt"

	"github.com/aws/clockbound/internal/clockerr"
	"github.com/aws/clockbound/internal/monoclock"
	"github.com/aws/clockbound/internal/segment"
)

// ErrCausalityBreach is returned by Now when the snapshot it read claims
// to be dated later than the monotonic read that followed it (spec §4.6
// step 4, §7 "Causality breach").
var ErrCausalityBreach = clockerr.ErrCausalityBreach

// DefaultSegmentPath is the writer's default publication path (spec §6).
const DefaultSegmentPath = "/var/run/clockbound/shm0"

// Client is a read-only handle on the published segment. The zero value
// is not usable; construct with Open.
type Client struct {
	seg *segment.Segment
}

// Open maps the segment at path read-only (spec §4.3, §6). The mapping
// is validated at open time; Now never re-validates the header.
func Open(path string) (*Client, error) {
	seg, err := segment.OpenReadOnly(path)
	if err != nil {
		return nil, err
	}

	return &Client{seg: seg}, nil
}

// Close unmaps the segment.
func (c *Client) Close() error {
	return c.seg.Close()
}

// Bound is the result of Now: an error-bound interval around the
// returned realtime reading, together with the trustworthiness status
// that produced it (spec §4.6 step 6).
type Bound struct {
	Earliest segment.MonoTime
	Latest   segment.MonoTime
	Status   segment.ClockStatus
}

// Now implements spec §4.6's six numbered steps: a coarse monotonic
// read, a lock-free reader snapshot, a causality check against a second
// monotonic read, and a drift-adjusted error bound around a realtime
// reading. It performs no allocation beyond the returned Bound and at
// most three clock reads.
func (c *Client) Now() (Bound, error) {
	c0, err := monoclock.NowCoarse()
	if err != nil {
		return Bound{}, err
	}

	snap, err := c.seg.Read()
	if err != nil {
		return Bound{}, err
	}

	realtime, err := monoclock.NowRealtime()
	if err != nil {
		return Bound{}, err
	}

	mono, err := monoclock.Now()
	if err != nil {
		return Bound{}, err
	}

	// Step 4: causality check. mono < S.as_of means the snapshot is
	// dated later than the monotonic read that followed it - the
	// writer's clock or ours ran backward relative to the other.
	if mono.Before(snap.AsOf) {
		return Bound{}, fmt.Errorf("clockbound: snapshot as_of is ahead of current mono: %w", ErrCausalityBreach)
	}

	status := snap.ClockStatus
	if snap.VoidAfter.Before(c0) {
		// Snapshot is stale; the bound is still reported but the status
		// is no longer trustworthy (spec §4.6 step 4).
		status = segment.StatusUnknown
	}

	driftSinceNs := driftSince(mono, snap.AsOf, snap.MaxDriftPPB)

	eb, overflowed := addSaturating(snap.BoundNs, driftSinceNs)
	if overflowed {
		status = segment.StatusUnknown
	}

	return Bound{
		Earliest: realtime.Add(-eb),
		Latest:   realtime.Add(eb),
		Status:   status,
	}, nil
}

// driftSince computes (mono - asOf) * maxDriftPPB * 1e-9 in nanoseconds
// (spec §4.6 step 5), saturating on pathological inputs rather than
// wrapping.
func driftSince(mono, asOf segment.MonoTime, maxDriftPPB uint32) int64 {
	ageNs := mono.Sub(asOf)
	if ageNs < 0 {
		ageNs = 0
	}

	d := float64(ageNs) * float64(maxDriftPPB) * 1e-9
	if d > float64(maxInt64) {
		return maxInt64
	}

	return int64(d)
}

const maxInt64 = int64(1<<63 - 1)

func addSaturating(a, b int64) (int64, bool) {
	sum := a + b
	if a > 0 && b > 0 && sum < 0 {
		return maxInt64, true
	}

	return sum, false
}

// IsCausalityBreach reports whether err is (or wraps) ErrCausalityBreach,
// one of the stable client error codes of spec §6.
func IsCausalityBreach(err error) bool {
	return errors.Is(err, ErrCausalityBreach)
}

// IsSegmentNotInitialized reports whether err is (or wraps)
// clockerr.ErrSegmentNotInitialized (spec §6 client error codes).
func IsSegmentNotInitialized(err error) bool {
	return errors.Is(err, clockerr.ErrSegmentNotInitialized)
}

// IsSegmentMalformed reports whether err is (or wraps)
// clockerr.ErrSegmentMalformed (spec §6 client error codes).
func IsSegmentMalformed(err error) bool {
	return errors.Is(err, clockerr.ErrSegmentMalformed)
}

// IsSegmentVersionNotSupported reports whether err is (or wraps)
// clockerr.ErrSegmentVersionNotSupported (spec §6 client error codes).
func IsSegmentVersionNotSupported(err error) bool {
	return errors.Is(err, clockerr.ErrSegmentVersionNotSupported)
}
