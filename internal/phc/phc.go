// Package phc defines the contract for the optional PTP-hardware-clock
// error reader consumed by the bound loop (spec §1 Out of scope: "the
// PTP-hardware-clock error reader (treated as an optional function
// returning an additive error term)"; spec §4.5 error-bound formula,
// "optional_phc_error_ns").
//
// ClockBound does not own the PHC driver interface; this package only
// defines the function shape the loop calls and a sysfs-based default
// implementation, the way spec §1 treats the synchronization daemon and
// VMClock as external collaborators specified only by the contract the
// core consumes.
package phc

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Reader returns the current additive PHC error term, in nanoseconds,
// for the given network interface.
type Reader interface {
	ReadErrorNs(iface string) (int64, error)
}

// SysfsReader reads the PHC error term from the network-interface
// driver's sysfs attribute, the way ethtool-adjacent tooling surfaces
// hardware-timestamping statistics without going through a raw ioctl.
type SysfsReader struct {
	// Root is the sysfs root, overridable in tests. Defaults to
	// "/sys/class/net" when empty.
	Root string
}

// ReadErrorNs implements Reader.
func (r SysfsReader) ReadErrorNs(iface string) (int64, error) {
	root := r.Root
	if root == "" {
		root = "/sys/class/net"
	}

	path := root + "/" + iface + "/phc_error_ns"

	data, err := os.ReadFile(path) //nolint:gosec // path built from operator-supplied interface name
	if err != nil {
		return 0, fmt.Errorf("phc: read %s: %w", path, err)
	}

	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("phc: parse %s: %w", path, err)
	}

	return v, nil
}

// Term resolves the optional_phc_error_ns term for one tick (spec §4.5):
//
//	The PHC term, when configured, is read once per tick from the
//	network-interface driver; failure to read it is treated as
//	optional_phc_error_ns = 0 only if PHC is not the active reference -
//	otherwise the status degrades.
//
// activeReference reports whether the daemon's current reference is the
// PHC (derived from comparing the configured ref ID against the
// snapshot's reported reference, by the caller). When iface is empty,
// PHC is not configured at all and Term always returns (0, nil).
func Term(r Reader, iface string, activeReference bool) (ns int64, degrade bool) {
	if iface == "" || r == nil {
		return 0, false
	}

	v, err := r.ReadErrorNs(iface)
	if err != nil {
		if activeReference {
			return 0, true
		}

		return 0, false
	}

	return v, false
}
