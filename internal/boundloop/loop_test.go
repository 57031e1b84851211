package boundloop

import (
	"encoding/binary"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aws/clockbound/internal/chronyclient"
	"github.com/aws/clockbound/internal/segment"
	"github.com/aws/clockbound/internal/vmclock"
	"github.com/aws/clockbound/internal/vmclockfake"
)

// fakeChronyDaemon answers every request with a fixed tracking snapshot
// over a unixgram socket, exercising the same wire shape
// internal/chronyclient.Client.Query expects.
func fakeChronyDaemon(t *testing.T, sockPath string) {
	t.Helper()

	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: sockPath, Net: "unixgram"})
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	go func() {
		buf := make([]byte, 64)

		for {
			n, addr, err := conn.ReadFromUnix(buf)
			if err != nil {
				return
			}

			if n != 4 {
				continue
			}

			resp := make([]byte, 4+8+8+8+8+4+1+4)
			binary.LittleEndian.PutUint32(resp[0:], uint32(chronyclient.StatusSynchronized))
			binary.LittleEndian.PutUint64(resp[4:], uint64(0))     // local offset
			binary.LittleEndian.PutUint64(resp[12:], uint64(1000)) // root dispersion
			binary.LittleEndian.PutUint64(resp[20:], uint64(2000)) // root delay
			binary.LittleEndian.PutUint64(resp[28:], uint64(0))    // age since update
			binary.LittleEndian.PutUint32(resp[36:], 0)            // ref id
			resp[40] = 1                                           // update applied

			_, _ = conn.WriteToUnix(resp, addr)
		}
	}()
}

func TestTick_PublishesSynchronizedSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	sockPath := filepath.Join(dir, "chronyd.sock")
	fakeChronyDaemon(t, sockPath)

	vmPath := filepath.Join(dir, "vmclock0")
	_, err := vmclockfake.New(vmPath, 0, int32(vmclock.StatusSynchronized))
	require.NoError(t, err)

	vm, err := vmclock.Open(vmPath)
	require.NoError(t, err)
	defer vm.Close()

	segPath := filepath.Join(dir, "shm0")
	seg, err := segment.OpenReadWrite(segPath, segment.DefaultSegmentSize)
	require.NoError(t, err)
	defer seg.Close()

	chrony := chronyclient.New(sockPath, time.Second)

	loop := New(Config{
		RefreshInterval:          time.Second,
		MaxDriftPPB:              1,
		DisruptionSupportEnabled: true,
	}, seg, vm, chrony, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, loop.Tick())

	snap, err := seg.Read()
	require.NoError(t, err)
	require.Equal(t, segment.StatusSynchronized, snap.ClockStatus)
	// dispersion(1000) + delay/2(1000) = 2000, no offset/drift/phc.
	require.Equal(t, int64(2000), snap.BoundNs)
	require.True(t, snap.ClockDisruptionSupportEnabled)
}

func TestTick_DaemonUnreachableDegradesToUnknown(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	vmPath := filepath.Join(dir, "vmclock0")
	_, err := vmclockfake.New(vmPath, 0, int32(vmclock.StatusSynchronized))
	require.NoError(t, err)

	vm, err := vmclock.Open(vmPath)
	require.NoError(t, err)
	defer vm.Close()

	segPath := filepath.Join(dir, "shm0")
	seg, err := segment.OpenReadWrite(segPath, segment.DefaultSegmentSize)
	require.NoError(t, err)
	defer seg.Close()

	// No daemon listening at this socket path.
	chrony := chronyclient.New(filepath.Join(dir, "no-such-daemon.sock"), 50*time.Millisecond)

	loop := New(Config{
		RefreshInterval:          time.Second,
		MaxDriftPPB:              1,
		DisruptionSupportEnabled: true,
	}, seg, vm, chrony, nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, loop.Tick())

	snap, err := seg.Read()
	require.NoError(t, err)
	require.Equal(t, segment.StatusUnknown, snap.ClockStatus)
}
