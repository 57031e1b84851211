package fsm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aws/clockbound/internal/chronyclient"
	"github.com/aws/clockbound/internal/fsm"
	"github.com/aws/clockbound/internal/segment"
	"github.com/aws/clockbound/internal/vmclock"
)

func synchronizedInput() fsm.Input {
	return fsm.Input{
		DaemonReachable: true,
		DaemonStatus:    chronyclient.StatusSynchronized,
		VMClockStatus:   vmclock.StatusSynchronized,
	}
}

func TestFSM_StartsUnknown(t *testing.T) {
	t.Parallel()

	f := fsm.New(true)
	require.Equal(t, segment.StatusUnknown, f.State())
}

func TestFSM_ReachesSynchronized(t *testing.T) {
	t.Parallel()

	f := fsm.New(true)
	got := f.Step(synchronizedInput())
	require.Equal(t, segment.StatusSynchronized, got)
}

func TestFSM_DaemonUnreachableIsUnknown(t *testing.T) {
	t.Parallel()

	f := fsm.New(true)
	in := synchronizedInput()
	in.DaemonReachable = false

	require.Equal(t, segment.StatusUnknown, f.Step(in))
}

func TestFSM_DisruptionForcesDisruptedFromAnyState(t *testing.T) {
	t.Parallel()

	f := fsm.New(true)
	f.Step(synchronizedInput())

	in := synchronizedInput()
	in.DisruptionDetected = true

	require.Equal(t, segment.StatusDisrupted, f.Step(in))
}

func TestFSM_ExitFromDisruptedRequiresUpdateApplied(t *testing.T) {
	t.Parallel()

	f := fsm.New(true)

	disrupted := synchronizedInput()
	disrupted.DisruptionDetected = true
	require.Equal(t, segment.StatusDisrupted, f.Step(disrupted))

	clear := synchronizedInput()
	clear.DisruptionDetected = false
	// Disruption condition cleared but no update applied yet: must stay Disrupted.
	require.Equal(t, segment.StatusDisrupted, f.Step(clear))

	clear.DaemonUpdateApplied = true
	require.Equal(t, segment.StatusSynchronized, f.Step(clear), "an applied update since the disruption should allow exit")
}

func TestFSM_OperatorForcedDisruptionHoldsUntilCleared(t *testing.T) {
	t.Parallel()

	f := fsm.New(true)
	f.SetForcedDisruption()

	require.Equal(t, segment.StatusDisrupted, f.Step(synchronizedInput()))

	in := synchronizedInput()
	in.DaemonUpdateApplied = true
	require.Equal(t, segment.StatusDisrupted, f.Step(in), "forced flag still set, must stay Disrupted")

	f.ClearForcedDisruption()
	require.Equal(t, segment.StatusSynchronized, f.Step(in))
}

func TestFSM_SupportDisabledCollapsesDisruptedAway(t *testing.T) {
	t.Parallel()

	f := fsm.New(false)

	in := synchronizedInput()
	in.DisruptionDetected = true

	got := f.Step(in)
	require.NotEqual(t, segment.StatusDisrupted, got, "Disrupted must be unreachable when support is disabled")
	require.Equal(t, segment.StatusSynchronized, got)
}

func TestFSM_FreeRunning(t *testing.T) {
	t.Parallel()

	f := fsm.New(true)
	in := synchronizedInput()
	in.DaemonStatus = chronyclient.StatusFreeRunning

	require.Equal(t, segment.StatusFreeRunning, f.Step(in))
}
