package clockbound_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aws/clockbound/internal/monoclock"
	"github.com/aws/clockbound/internal/segment"
	"github.com/aws/clockbound/pkg/clockbound"
)

func TestNow_ReturnsBoundAroundRealtime(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shm0")

	writer, err := segment.OpenReadWrite(path, segment.DefaultSegmentSize)
	require.NoError(t, err)
	defer writer.Close()

	asOf, err := monoclock.NowCoarse()
	require.NoError(t, err)

	txn, err := writer.BeginWrite()
	require.NoError(t, err)
	txn.Set(segment.Payload{
		AsOf:        asOf,
		VoidAfter:   asOf.Add(int64(10_000_000_000)),
		BoundNs:     1000,
		MaxDriftPPB: 1,
		ClockStatus: segment.StatusSynchronized,
	})
	txn.Commit()

	client, err := clockbound.Open(path)
	require.NoError(t, err)
	defer client.Close()

	bound, err := client.Now()
	require.NoError(t, err)
	require.Equal(t, segment.StatusSynchronized, bound.Status)
	require.True(t, bound.Earliest.Before(bound.Latest))
}

func TestNow_StaleSnapshotDegradesToUnknown(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shm0")

	writer, err := segment.OpenReadWrite(path, segment.DefaultSegmentSize)
	require.NoError(t, err)
	defer writer.Close()

	asOf, err := monoclock.NowCoarse()
	require.NoError(t, err)

	txn, err := writer.BeginWrite()
	require.NoError(t, err)
	txn.Set(segment.Payload{
		AsOf:        asOf,
		VoidAfter:   segment.MonoTime{Sec: 1, Nsec: 0}, // far in the past
		BoundNs:     1000,
		MaxDriftPPB: 1,
		ClockStatus: segment.StatusSynchronized,
	})
	txn.Commit()

	client, err := clockbound.Open(path)
	require.NoError(t, err)
	defer client.Close()

	bound, err := client.Now()
	require.NoError(t, err)
	require.Equal(t, segment.StatusUnknown, bound.Status)
}

func TestNow_CausalityBreach(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shm0")

	writer, err := segment.OpenReadWrite(path, segment.DefaultSegmentSize)
	require.NoError(t, err)
	defer writer.Close()

	mono, err := monoclock.Now()
	require.NoError(t, err)

	future := mono.Add(int64(time.Second))

	txn, err := writer.BeginWrite()
	require.NoError(t, err)
	txn.Set(segment.Payload{
		AsOf:        future,
		VoidAfter:   future.Add(int64(10 * time.Second)),
		BoundNs:     1000,
		MaxDriftPPB: 1,
		ClockStatus: segment.StatusSynchronized,
	})
	txn.Commit()

	client, err := clockbound.Open(path)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Now()
	require.True(t, clockbound.IsCausalityBreach(err))
}

func TestOpen_SegmentNotInitialized(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "shm0")

	writer, err := segment.OpenReadWrite(path, segment.DefaultSegmentSize)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	_, err = clockbound.Open(path)
	require.True(t, clockbound.IsSegmentNotInitialized(err))
}
