package opsignal_test

import (
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aws/clockbound/internal/opsignal"
)

func TestDrain_CoalescesBurstIntoSingleEdge(t *testing.T) {
	t.Parallel()

	h := opsignal.NewHandler(syscall.SIGUSR1, syscall.SIGUSR2)
	defer h.Stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))

	require.Eventually(t, func() bool {
		on, _ := h.Drain()

		return on
	}, time.Second, time.Millisecond)
}

func TestDrain_ReportsBothIndependently(t *testing.T) {
	t.Parallel()

	h := opsignal.NewHandler(syscall.SIGUSR1, syscall.SIGUSR2)
	defer h.Stop()

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR1))
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGUSR2))

	// Give signal delivery time to land in both channels before the one
	// Drain call that must observe them together.
	time.Sleep(100 * time.Millisecond)

	on, off := h.Drain()
	require.True(t, on)
	require.True(t, off)
}

func TestDrain_NoSignalsReturnsFalse(t *testing.T) {
	t.Parallel()

	h := opsignal.NewHandler(syscall.SIGUSR1, syscall.SIGUSR2)
	defer h.Stop()

	on, off := h.Drain()
	require.False(t, on)
	require.False(t, off)
}
