// Package opsignal turns the two asynchronous operator signals from
// spec §6 ("force_disruption_on", "force_disruption_off") into a small
// set of flags the refresh loop consults once per tick, per spec §9:
// "Represent as a small atomic flag consulted by the refresh loop, set
// by a signal/IPC handler; no long-running handlers."
package opsignal

import (
	"os"
	"os/signal"
)

// Handler listens for the two operator signals and lets the refresh
// loop drain any that arrived since the last tick.
type Handler struct {
	onCh  chan os.Signal
	offCh chan os.Signal
}

// NewHandler registers signal.Notify for onSig ("force on") and offSig
// ("force off"). The handler does no work on the signal-delivery
// goroutine beyond buffering into a channel - spec §9 forbids
// long-running handlers.
func NewHandler(onSig, offSig os.Signal) *Handler {
	h := &Handler{
		onCh:  make(chan os.Signal, 1),
		offCh: make(chan os.Signal, 1),
	}

	signal.Notify(h.onCh, onSig)
	signal.Notify(h.offCh, offSig)

	return h
}

// Stop unregisters both signals.
func (h *Handler) Stop() {
	signal.Stop(h.onCh)
	signal.Stop(h.offCh)
}

// Drain reports whether a force-on or force-off signal arrived since the
// last call, coalescing any burst of repeated signals of the same kind
// into a single edge (spec §6: "Receipt is logged").
func (h *Handler) Drain() (forceOn, forceOff bool) {
	for {
		select {
		case <-h.onCh:
			forceOn = true

			continue
		default:
		}

		break
	}

	for {
		select {
		case <-h.offCh:
			forceOff = true

			continue
		default:
		}

		break
	}

	return forceOn, forceOff
}
