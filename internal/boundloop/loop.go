// Package boundloop implements the periodic refresh driver of spec §4.5:
// on every tick it polls the synchronization daemon, reads VMClock,
// drives the status FSM, computes the error bound, and publishes the
// result through a writer transaction.
package boundloop

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/clockbound/internal/chronyclient"
	"github.com/aws/clockbound/internal/fsm"
	"github.com/aws/clockbound/internal/monoclock"
	"github.com/aws/clockbound/internal/opsignal"
	"github.com/aws/clockbound/internal/phc"
	"github.com/aws/clockbound/internal/segment"
	"github.com/aws/clockbound/internal/vmclock"
)

// daemonQueryRetries bounds the in-tick retry loop for a single
// synchronization-daemon query (spec §7: "Transient daemon-query
// failures. Retried with bounded backoff inside one tick").
const daemonQueryRetries = 3

// VoidMultiplier is k_void from spec §4.5 ("T_void = T_refresh * k_void
// with k_void >= 3").
const VoidMultiplier = 3

// Config configures a Loop.
type Config struct {
	RefreshInterval time.Duration
	MaxDriftPPB     uint32

	// DisruptionSupportEnabled mirrors the --disable-clock-disruption-support
	// flag (spec §6); when false, VMClock and Disrupted are unreachable.
	DisruptionSupportEnabled bool

	// PHCInterface/PHCRefID mirror -i/--phc-interface and -r/--phc-ref-id
	// (spec §6). PHCInterface == "" disables the PHC term entirely.
	PHCInterface string
	PHCRefID     string
}

// Loop is the bound-computation driver. Construct with New.
type Loop struct {
	cfg Config

	seg     *segment.Segment
	vm      *vmclock.Surface // nil when disruption support is disabled
	chrony  *chronyclient.Client
	phc     phc.Reader
	fsm     *fsm.FSM
	opsig   *opsignal.Handler
	logger  *slog.Logger

	prevMarker          uint64
	firstVMClockReading bool
}

// New constructs a Loop. vm may be nil iff cfg.DisruptionSupportEnabled
// is false (spec §4.4: "if disruption support is disabled ... this
// component is not instantiated").
func New(
	cfg Config,
	seg *segment.Segment,
	vm *vmclock.Surface,
	chrony *chronyclient.Client,
	phcReader phc.Reader,
	opsig *opsignal.Handler,
	logger *slog.Logger,
) *Loop {
	if logger == nil {
		logger = slog.Default()
	}

	return &Loop{
		cfg:                 cfg,
		seg:                 seg,
		vm:                  vm,
		chrony:              chrony,
		phc:                 phcReader,
		fsm:                 fsm.New(cfg.DisruptionSupportEnabled),
		opsig:               opsig,
		logger:              logger,
		firstVMClockReading: true,
	}
}

// Run ticks the loop every cfg.RefreshInterval until ctx is cancelled.
// If a tick overruns the interval, the next tick starts immediately
// rather than accumulating a backlog (spec §5: "Cancellation and
// timeouts").
func (l *Loop) Run(ctx context.Context) error {
	for {
		start := time.Now()

		if err := l.Tick(); err != nil {
			l.logger.Error("bound loop tick failed", "error", err)
		}

		elapsed := time.Since(start)

		wait := l.cfg.RefreshInterval - elapsed
		if wait <= 0 {
			if err := ctx.Err(); err != nil {
				return err
			}

			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Tick performs one pass of spec §4.5's six numbered steps.
func (l *Loop) Tick() error {
	// Step 1: read current coarse monotonic clock.
	nowMono, err := monoclock.NowCoarse()
	if err != nil {
		return err
	}

	// Step 2: query the synchronization daemon with bounded backoff.
	snap, daemonErr := l.queryDaemonWithBackoff()
	daemonReachable := daemonErr == nil

	// Step 3: read VMClock and detect disruption, if enabled.
	disrupted := false
	vmStatus := vmclock.StatusUnknown
	wasFirstReading := l.firstVMClockReading

	if l.cfg.DisruptionSupportEnabled && l.vm != nil {
		reading, readErr := l.vm.Read()
		if readErr != nil {
			// spec §7: "VMClock read failures after startup. Treated
			// as disruption (fail-safe): move to Disrupted."
			disrupted = true
			l.logger.Warn("vmclock read failed, treating as disruption", "error", readErr)
		} else {
			disrupted = vmclock.DetectDisruption(l.prevMarker, reading, wasFirstReading)
			if disrupted {
				l.logger.Warn("vmclock disruption detected", "prev_marker", l.prevMarker, "marker", reading.DisruptionMarker, "vmclock_status", reading.Status)
			}

			l.prevMarker = reading.DisruptionMarker
			vmStatus = reading.Status
		}

		l.firstVMClockReading = false
	}

	// Operator signals, consulted atomically once per tick (spec §4.5
	// step 5, §9).
	if l.opsig != nil {
		forceOn, forceOff := l.opsig.Drain()
		if forceOn {
			l.fsm.SetForcedDisruption()
			l.logger.Info("received force-disruption-on signal")
		}

		if forceOff {
			l.fsm.ClearForcedDisruption()
			l.logger.Info("received force-disruption-off signal")
		}
	}

	// Step 4 + PHC term: compute the error bound.
	phcErrorNs, phcDegrade := phc.Term(l.phc, l.cfg.PHCInterface, l.activeReferenceIsPHC(snap))

	var boundNs int64

	overflowed := false
	if daemonReachable {
		boundNs, overflowed = ComputeBoundNs(snap.LocalOffsetNs, snap.RootDispersionNs, snap.RootDelayNs, snap.AgeSinceUpdateNs, l.cfg.MaxDriftPPB, phcErrorNs)
	}

	// Step 5: feed the FSM.
	in := fsm.Input{
		DaemonReachable:           daemonReachable,
		DaemonStatus:              snap.Status,
		DaemonUpdateApplied:       snap.UpdateAppliedRecent,
		DisruptionDetected:        disrupted,
		VMClockStatus:             vmStatus,
		IsFirstVMClockObservation: wasFirstReading,
	}

	prevState := l.fsm.State()
	status := l.fsm.Step(in)

	if status != prevState {
		level := slog.LevelInfo
		if status != segment.StatusSynchronized {
			level = slog.LevelWarn
		}

		l.logger.Log(context.Background(), level, "clock status transition",
			"from", prevState, "to", status,
			"daemon_reachable", daemonReachable, "disruption_detected", disrupted,
			"forced_disruption", l.fsm.ForcedDisruption(), "disruption_marker", l.prevMarker)
	}

	if overflowed || phcDegrade {
		status = segment.StatusUnknown
	}

	// Step 6: acquire a writer transaction and publish.
	return l.publish(nowMono, boundNs, status)
}

func (l *Loop) publish(nowMono segment.MonoTime, boundNs int64, status segment.ClockStatus) error {
	txn, err := l.seg.BeginWrite()
	if err != nil {
		return err
	}

	voidAfter := nowMono.Add(int64(l.cfg.RefreshInterval) * VoidMultiplier)

	txn.Set(segment.Payload{
		AsOf:                          nowMono,
		VoidAfter:                     voidAfter,
		BoundNs:                       boundNs,
		DisruptionMarker:              l.prevMarker,
		MaxDriftPPB:                   l.cfg.MaxDriftPPB,
		ClockStatus:                   status,
		ClockDisruptionSupportEnabled: l.cfg.DisruptionSupportEnabled,
	})
	txn.Commit()

	return nil
}

// queryDaemonWithBackoff retries a single daemon query with bounded
// backoff inside the current tick (spec §7).
func (l *Loop) queryDaemonWithBackoff() (chronyclient.Snapshot, error) {
	var (
		snap chronyclient.Snapshot
		err  error
	)

	backoff := 10 * time.Millisecond

	for attempt := 0; attempt < daemonQueryRetries; attempt++ {
		snap, err = l.chrony.Query()
		if err == nil {
			return snap, nil
		}

		if attempt < daemonQueryRetries-1 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	l.logger.Warn("synchronization daemon unreachable", "error", err)

	return chronyclient.Snapshot{}, err
}

// activeReferenceIsPHC reports whether the daemon's currently reported
// reference identity matches the configured PHC reference (spec §4.5:
// "failure to read it is treated as optional_phc_error_ns = 0 only if
// PHC is not the active reference").
func (l *Loop) activeReferenceIsPHC(snap chronyclient.Snapshot) bool {
	return l.cfg.PHCRefID != "" && snap.PHCRefID == l.cfg.PHCRefID
}
