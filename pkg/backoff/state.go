// Package backoff implements the activation/auth retry backoff state
// machine: a six-state ladder the client walks through while it is
// unactivated, escalating from frequent retries to infrequent ones, with a
// parallel high/low-frequency pair once the vehicle's ignition cycle count
// passes a threshold (a device that has been driven many times without
// activating is assumed to have a persistent problem, not a transient one).
package backoff

// Kind identifies one of the six backoff states.
type Kind int

const (
	Initial Kind = iota
	HighFreq
	NormalFreq
	LowFreq
	OverIgnThresholdHighFreq
	OverIgnThresholdLowFreq
)

// AllKinds lists every backoff Kind in ladder order, for callers (metrics
// exposition) that need to zero out states other than the current one.
func AllKinds() []Kind {
	return []Kind{Initial, HighFreq, NormalFreq, LowFreq, OverIgnThresholdHighFreq, OverIgnThresholdLowFreq}
}

func (k Kind) String() string {
	switch k {
	case Initial:
		return "initial"
	case HighFreq:
		return "high_freq"
	case NormalFreq:
		return "normal_freq"
	case LowFreq:
		return "low_freq"
	case OverIgnThresholdHighFreq:
		return "over_ign_threshold_high_freq"
	case OverIgnThresholdLowFreq:
		return "over_ign_threshold_low_freq"
	default:
		return "unknown"
	}
}

// TransitionInput bundles every condition TryStateChange inspects, computed
// by the Controller from event and attempt-count state before each check.
type TransitionInput struct {
	// IgnitionChanged is not a one-shot edge flag but a direct copy of
	// the last IgnStatus event's "run" test, reset to false on every new
	// state (so an ignition-off event never itself triggers a reset,
	// only an ignition-on ("run") event does).
	IgnitionChanged bool
	// DeviceChanged is the same, from the last DeviceRemoval event's
	// "attached" test.
	DeviceChanged bool
	// AttemptsExceeded is attempts > maxAttempts-1 for states with a
	// bounded attempt count (false for LowFreq/OverIgnThresholdLowFreq,
	// which retry indefinitely until an ignition/device change).
	AttemptsExceeded bool
	// IgnitionCountOverThreshold is only consulted from Initial.
	IgnitionCountOverThreshold bool
}

// TransitionResult is what Transition decided: which Kind to be in, and
// whether that is a fresh state (Reset true — attempts and retry-slot
// timers start over) or the same state continuing unchanged (Reset false).
type TransitionResult struct {
	Kind  Kind
	Reset bool
}

// Transition is the pure per-state decision function, one branch per
// Kind. It has no side effects and no notion of time — the Controller
// combines this with its own clock and retry-slot bookkeeping.
func Transition(current Kind, in TransitionInput) TransitionResult {
	reset := func(k Kind) TransitionResult { return TransitionResult{Kind: k, Reset: true} }
	same := func() TransitionResult { return TransitionResult{Kind: current, Reset: false} }
	changed := in.IgnitionChanged || in.DeviceChanged

	switch current {
	case Initial:
		if changed {
			return reset(Initial)
		}
		if in.IgnitionCountOverThreshold {
			return reset(OverIgnThresholdHighFreq)
		}
		if in.AttemptsExceeded {
			return reset(HighFreq)
		}
		return same()

	case HighFreq:
		if changed {
			return reset(Initial)
		}
		if in.AttemptsExceeded {
			return reset(NormalFreq)
		}
		return same()

	case NormalFreq:
		if changed {
			return reset(Initial)
		}
		if in.AttemptsExceeded {
			return reset(LowFreq)
		}
		return same()

	case LowFreq:
		if changed {
			return reset(Initial)
		}
		return same()

	case OverIgnThresholdHighFreq:
		if changed {
			return reset(OverIgnThresholdHighFreq)
		}
		if in.AttemptsExceeded {
			return reset(OverIgnThresholdLowFreq)
		}
		return same()

	case OverIgnThresholdLowFreq:
		if changed {
			return reset(OverIgnThresholdHighFreq)
		}
		return same()

	default:
		return same()
	}
}
