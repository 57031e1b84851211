package segment_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func corruptSegmentMagic(t *testing.T, srcPath, dstPath string) {
	t.Helper()

	data, err := os.ReadFile(srcPath) //nolint:gosec // test fixture path
	require.NoError(t, err)

	for i := range 8 {
		data[i] = 0xFF
	}

	require.NoError(t, os.WriteFile(dstPath, data, 0o644)) //nolint:gosec // test fixture
}

func writeTinyFile(t *testing.T, path string) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0o644)) //nolint:gosec // test fixture
}
