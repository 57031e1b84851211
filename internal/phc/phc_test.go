package phc_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aws/clockbound/internal/phc"
)

func TestSysfsReader_ReadErrorNs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	ifaceDir := filepath.Join(root, "eth0")
	require.NoError(t, os.MkdirAll(ifaceDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ifaceDir, "phc_error_ns"), []byte("123\n"), 0o644)) //nolint:gosec // test fixture

	r := phc.SysfsReader{Root: root}

	v, err := r.ReadErrorNs("eth0")
	require.NoError(t, err)
	require.Equal(t, int64(123), v)
}

func TestTerm_NoInterfaceConfiguredReturnsZero(t *testing.T) {
	t.Parallel()

	ns, degrade := phc.Term(phc.SysfsReader{Root: t.TempDir()}, "", true)
	require.Zero(t, ns)
	require.False(t, degrade)
}

func TestTerm_ReadFailureDegradesOnlyWhenActiveReference(t *testing.T) {
	t.Parallel()

	r := phc.SysfsReader{Root: t.TempDir()}

	ns, degrade := phc.Term(r, "eth0", true)
	require.Zero(t, ns)
	require.True(t, degrade, "read failure while PHC is the active reference must degrade")

	ns, degrade = phc.Term(r, "eth0", false)
	require.Zero(t, ns)
	require.False(t, degrade, "read failure while PHC is not the active reference is tolerated as zero")
}
