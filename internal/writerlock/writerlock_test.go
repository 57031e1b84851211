package writerlock_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aws/clockbound/internal/writerlock"
)

func TestAcquire_SecondWriterTimesOut(t *testing.T) {
	t.Parallel()

	segPath := filepath.Join(t.TempDir(), "shm0")

	first, err := writerlock.Acquire(segPath)
	require.NoError(t, err)
	defer first.Release()

	done := make(chan error, 1)

	go func() {
		_, err := writerlock.Acquire(segPath)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err, "a second writer must not be able to acquire the same segment lock")
	case <-time.After(writerlock.AcquireTimeout + 2*time.Second):
		t.Fatal("second Acquire did not return within the expected timeout")
	}
}

func TestAcquire_ReleaseThenReacquire(t *testing.T) {
	t.Parallel()

	segPath := filepath.Join(t.TempDir(), "shm0")

	lock, err := writerlock.Acquire(segPath)
	require.NoError(t, err)
	require.NoError(t, lock.Release())

	lock2, err := writerlock.Acquire(segPath)
	require.NoError(t, err)
	require.NoError(t, lock2.Release())
}
