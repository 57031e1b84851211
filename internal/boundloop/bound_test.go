package boundloop

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeBoundNs_BasicFormula(t *testing.T) {
	t.Parallel()

	// offset=-100, dispersion=50, delay=200 (so delay/2=100), age=0 -> drift=0, phc=0
	got, overflowed := ComputeBoundNs(-100, 50, 200, 0, 1, 0)
	require.False(t, overflowed)
	require.Equal(t, int64(100+50+100), got)
}

func TestComputeBoundNs_DriftAccumulatesWithAge(t *testing.T) {
	t.Parallel()

	// age=1e9 ns (1s), maxDriftPPB=1000 -> drift = 1e9 * 1000 * 1e-9 = 1000ns
	got, overflowed := ComputeBoundNs(0, 0, 0, 1_000_000_000, 1000, 0)
	require.False(t, overflowed)
	require.Equal(t, int64(1000), got)
}

func TestComputeBoundNs_IncludesPHCTerm(t *testing.T) {
	t.Parallel()

	got, overflowed := ComputeBoundNs(0, 0, 0, 0, 0, 500)
	require.False(t, overflowed)
	require.Equal(t, int64(500), got)
}

func TestComputeBoundNs_SaturatesOnOverflow(t *testing.T) {
	t.Parallel()

	got, overflowed := ComputeBoundNs(math.MaxInt64, math.MaxInt64, 0, 0, 0, 0)
	require.True(t, overflowed)
	require.Equal(t, int64(math.MaxInt64), got)
}

func TestComputeBoundNs_NeverNegative(t *testing.T) {
	t.Parallel()

	got, _ := ComputeBoundNs(0, 0, -100, 0, 0, 0)
	require.GreaterOrEqual(t, got, int64(0))
}
