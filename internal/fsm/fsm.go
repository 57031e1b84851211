// Package fsm implements the clock-status finite-state machine driven
// jointly by the synchronization daemon and the VMClock disruption
// marker (spec §4.5 "FSM states").
package fsm

import (
	"github.com/aws/clockbound/internal/chronyclient"
	"github.com/aws/clockbound/internal/segment"
	"github.com/aws/clockbound/internal/vmclock"
)

// Input is everything the FSM needs to decide the next tick's status
// (spec §4.5 step 5: "Feed the FSM with (daemon status, disruption
// detected, forced-disruption flag from operator signals)").
type Input struct {
	DaemonReachable     bool
	DaemonStatus        chronyclient.Status
	DaemonUpdateApplied bool

	// DisruptionDetected is the result of vmclock.DetectDisruption; only
	// meaningful when clock-disruption support is enabled.
	DisruptionDetected bool

	VMClockStatus             vmclock.Status
	IsFirstVMClockObservation bool
}

// FSM holds the clock-status state machine across ticks. The zero value
// is not usable; construct with New.
type FSM struct {
	supportEnabled bool
	state          segment.ClockStatus

	// forced mirrors the operator's force_disruption_on/off signals
	// (spec §4.5 "Operator signals").
	forced bool

	// updateAppliedSinceDisruption tracks exit condition (b) from spec
	// §4.5: "the synchronization daemon to have applied at least one
	// successful update after the disruption".
	updateAppliedSinceDisruption bool
}

// New constructs an FSM starting in Unknown (spec §4.5: "Unknown |
// Startup"). When supportEnabled is false, Disrupted is permanently
// unreachable and the machine collapses to {Unknown, Synchronized,
// FreeRunning} (spec §4.5 final paragraph).
func New(supportEnabled bool) *FSM {
	return &FSM{supportEnabled: supportEnabled, state: segment.StatusUnknown}
}

// State returns the currently published status without advancing the
// machine.
func (f *FSM) State() segment.ClockStatus { return f.state }

// SetForcedDisruption sets the operator's forced-disruption flag (spec
// §6 "Operator signals": force_disruption_on).
func (f *FSM) SetForcedDisruption() { f.forced = true }

// ClearForcedDisruption clears the operator's forced-disruption flag
// (spec §6: force_disruption_off).
func (f *FSM) ClearForcedDisruption() { f.forced = false }

// ForcedDisruption reports the current operator override state.
func (f *FSM) ForcedDisruption() bool { return f.forced }

// Step advances the machine by one tick and returns the new published
// status (spec §4.5 "Transitions").
func (f *FSM) Step(in Input) segment.ClockStatus {
	freshlyDisrupted := f.supportEnabled && (in.DisruptionDetected || f.forced)

	if freshlyDisrupted {
		// "From any state, a freshly detected disruption forces
		// Disrupted." Re-arm the recovery gate: disruption condition
		// is active again, so the update-since-disruption clock resets.
		f.state = segment.StatusDisrupted
		f.updateAppliedSinceDisruption = false

		return f.state
	}

	if f.state == segment.StatusDisrupted {
		if in.DaemonUpdateApplied {
			f.updateAppliedSinceDisruption = true
		}

		// Exit from Disrupted requires (a) disruption condition
		// cleared - guaranteed here since freshlyDisrupted is false -
		// (b) an update applied since, and (c) forced flag clear -
		// also guaranteed here. Stay Disrupted until (b) is satisfied.
		if !f.updateAppliedSinceDisruption {
			return f.state
		}
	}

	f.state = f.nonDisruptedState(in)

	return f.state
}

// nonDisruptedState computes the status when no disruption is active,
// per the Unknown/Synchronized/FreeRunning entry conditions of spec
// §4.5.
func (f *FSM) nonDisruptedState(in Input) segment.ClockStatus {
	if !in.DaemonReachable || in.DaemonStatus == chronyclient.StatusUnknown {
		return segment.StatusUnknown
	}

	if f.supportEnabled {
		firstObservationInitializing := in.IsFirstVMClockObservation && in.VMClockStatus == vmclock.StatusInitializing
		if in.VMClockStatus == vmclock.StatusUnknown || firstObservationInitializing {
			return segment.StatusUnknown
		}
	}

	switch in.DaemonStatus {
	case chronyclient.StatusSynchronized:
		return segment.StatusSynchronized
	case chronyclient.StatusFreeRunning:
		return segment.StatusFreeRunning
	default:
		return segment.StatusUnknown
	}
}
