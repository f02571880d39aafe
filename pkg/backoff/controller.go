package backoff

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cuemby/igniteclient/pkg/config"
	"github.com/cuemby/igniteclient/pkg/ierr"
	"github.com/cuemby/igniteclient/pkg/log"
	"github.com/cuemby/igniteclient/pkg/metrics"
	"github.com/cuemby/igniteclient/pkg/types"
)

var allBackoffKindNames = func() []string {
	names := make([]string, 0, len(AllKinds()))
	for _, k := range AllKinds() {
		names = append(names, k.String())
	}
	return names
}()

// Fallback constants, in milliseconds where applicable, used when the
// configuration document leaves a tunable unset.
const (
	defaultInitialAttempts                   = 24
	defaultInitialFreqMs                     = 5_000
	defaultHighFreqAttempts                  = 10
	defaultHighFreqDurationMs                = 60_000
	defaultNormalFreqAttempts                = 15
	defaultNormalFreqDurationMs              = 240_000
	defaultLowFreqDurationMs                 = 720_000
	defaultHighFreqAfterIgnThresholdMs       = 12_000
	defaultHighFreqAttemptsAfterIgnThreshold = 10
	defaultLowFreqAfterIgnThresholdMs        = 900_000
	defaultIgnitionThreshold                 = 50
	minValidTimeMs                           = 5_000
)

// RNG produces a value in [min, max], inclusive both ends, seeded deterministically by seedKey
// (the device serial number), so every device's retry jitter is stable
// across restarts but distinct across the fleet. pkg/cryptoutil's
// per-serial PRNG satisfies this.
type RNG interface {
	Range(seedKey string, min, max int) int
}

// Store persists the ignition counter across restarts (the IGNITION_COUNT
// key). pkg/storage's BoltStore satisfies this.
type Store interface {
	GetIgnitionCount() (int64, error)
	SetIgnitionCount(n int64) error
}

// ActivationChecker reports whether the device has already completed
// activation; the controller stops reacting to ignition/device events
// once activated.
type ActivationChecker interface {
	IsActivated() bool
}

type stateRuntime struct {
	kind          Kind
	startTimeMs   int64
	nextTimeMs    int64
	attempts      int
	maxAttempts   int // 0 means unlimited (LowFreq, OverIgnThresholdLowFreq)
	freqMs        int64
	retrySlotMin  int
	retrySlotMax  int
	deterministic bool // true: ladder (nextTime + freq); false: randomized slot
	ignChanged    bool
	deviceChanged bool
}

// Controller is the stateful activation backoff machine: a
// Proceed/CalculateNextRetry/ProcessEvent/Reset surface over the pure
// Transition function and per-state retry-timer bookkeeping.
type Controller struct {
	enabled      bool
	cfg          config.ActivationBackOffConf
	rng          RNG
	store        Store
	activation   ActivationChecker
	serialNumber string
	now          func() int64 // monotonic milliseconds

	mu               sync.Mutex
	state            *stateRuntime
	ignitionCount    int64
	incrementPending bool
	lastErrorCode    ierr.Code
}

// NewController builds a Controller. serialNumber seeds the per-device RNG
// for randomized retry slots; store persists the ignition counter.
func NewController(cfg config.ActivationBackOffConf, rng RNG, store Store, activation ActivationChecker, serialNumber string) *Controller {
	c := &Controller{
		enabled:      cfg.Enable,
		cfg:          cfg,
		rng:          rng,
		store:        store,
		activation:   activation,
		serialNumber: serialNumber,
		now:          func() int64 { return time.Now().UnixMilli() },
		lastErrorCode: ierr.Network,
	}
	if c.enabled {
		if store != nil {
			if n, err := store.GetIgnitionCount(); err == nil {
				c.ignitionCount = n
			}
		}
		c.state = c.newState(Initial)
		c.reportStateMetricsLocked()
	}
	return c
}

// reportStateMetricsLocked publishes the controller's current state and
// attempt count. Callers must hold c.mu.
func (c *Controller) reportStateMetricsLocked() {
	metrics.SetBackoffState(c.state.kind.String(), allBackoffKindNames)
	metrics.BackoffAttempts.Set(float64(c.state.attempts))
}

// IsEnabled reports whether the activation backoff feature is on
// (HCPAuth.ActivationBackOffConf.enable).
func (c *Controller) IsEnabled() bool { return c.enabled }

// Proceed reports whether the caller may attempt activation/auth right
// now: true once the scheduled retry time is at or before the current
// time. A disabled controller always proceeds. Every call, proceeding or
// not, first increments the pending ignition count (if an ignition-run
// event is pending and the last error wasn't network/timeout); a
// proceeding call then re-evaluates the state machine for a possible
// transition.
func (c *Controller) Proceed() bool {
	if !c.enabled {
		return true
	}

	c.mu.Lock()
	if c.lastErrorCode != ierr.Network && c.lastErrorCode != ierr.Timeout {
		c.incrementIgnitionCountLocked()
	}
	proceed := c.now() >= c.state.nextTimeMs
	c.mu.Unlock()

	if proceed {
		c.checkCurrentState()
	}
	return proceed
}

// CalculateNextRetry records the outcome of an attempt and schedules the
// next one. Network and Timeout errors are explicitly a no-op: transient
// network failures never drive the backoff ladder forward, only genuine
// activation rejections do.
func (c *Controller) CalculateNextRetry(code ierr.Code) {
	if !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErrorCode = code

	if code == ierr.Network || code == ierr.Timeout {
		return
	}

	c.state.attempts++
	c.state.nextTimeMs = c.computeNextRetryTimeLocked(c.state)
	metrics.BackoffRetriesTotal.Inc()
	metrics.BackoffAttempts.Set(float64(c.state.attempts))
}

type ignStatusData struct {
	State string `json:"state"`
}

type deviceRemovalData struct {
	Status string `json:"status"`
}

// ProcessEvent feeds IgnStatus and DeviceRemoval events into the state
// machine. It is a no-op once the device is activated or the feature is
// disabled.
func (c *Controller) ProcessEvent(e *types.Event) {
	if !c.enabled || (c.activation != nil && c.activation.IsActivated()) {
		return
	}

	switch e.EventID {
	case "IgnStatus":
		var p ignStatusData
		if json.Unmarshal(e.Data, &p) != nil {
			return
		}
		isRun := p.State == "run"
		c.mu.Lock()
		if isRun {
			c.incrementPending = true
		}
		c.state.ignChanged = isRun
		c.mu.Unlock()

	case "DeviceRemoval":
		var p deviceRemovalData
		if json.Unmarshal(e.Data, &p) != nil {
			return
		}
		c.mu.Lock()
		c.state.deviceChanged = p.Status == "attached"
		c.mu.Unlock()
	}

	c.checkCurrentState()
}

// Reset returns the controller to Initial and zeroes the ignition counter,
// persisting it. Called after a successful activation.
func (c *Controller) Reset() {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = c.newState(Initial)
	c.ignitionCount = 0
	c.persistIgnitionCountLocked()
	c.reportStateMetricsLocked()
}

// ApplyConfig swaps the controller's tunables. New values take effect the
// next time a state is entered; the enable flag is fixed at construction
// because Proceed reads it without the mutex.
func (c *Controller) ApplyConfig(cfg config.ActivationBackOffConf) {
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
}

// Kind reports the controller's current backoff state, for diagnostics.
func (c *Controller) Kind() Kind {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return Initial
	}
	return c.state.kind
}

func (c *Controller) incrementIgnitionCountLocked() {
	if !c.incrementPending {
		return
	}
	c.ignitionCount++
	c.incrementPending = false
	c.persistIgnitionCountLocked()
}

func (c *Controller) persistIgnitionCountLocked() {
	if c.store == nil {
		return
	}
	if err := c.store.SetIgnitionCount(c.ignitionCount); err != nil {
		log.Logger.Error().Err(err).Msg("failed to persist ignition count")
	}
}

func (c *Controller) checkCurrentState() {
	c.mu.Lock()
	defer c.mu.Unlock()

	in := TransitionInput{
		IgnitionChanged:            c.state.ignChanged,
		DeviceChanged:              c.state.deviceChanged,
		AttemptsExceeded:           c.state.maxAttempts > 0 && c.state.attempts > c.state.maxAttempts-1,
		IgnitionCountOverThreshold: c.ignitionCount > c.ignitionThreshold(),
	}
	result := Transition(c.state.kind, in)
	if result.Reset {
		c.state = c.newState(result.Kind)
		c.reportStateMetricsLocked()
	}
}

func (c *Controller) ignitionThreshold() int64 {
	if c.cfg.IgnitionThreshold > 0 {
		return int64(c.cfg.IgnitionThreshold)
	}
	return defaultIgnitionThreshold
}

// newState builds a fresh stateRuntime for kind, applying per-kind
// defaults and config overrides.
func (c *Controller) newState(kind Kind) *stateRuntime {
	now := c.now()
	s := &stateRuntime{kind: kind, startTimeMs: now, nextTimeMs: now}

	switch kind {
	case Initial:
		s.maxAttempts = orDefault(c.cfg.InitialAttempts, defaultInitialAttempts)
		s.freqMs = int64(orDefault(c.cfg.InitialFreq, defaultInitialFreqMs))
		s.deterministic = true
	case HighFreq:
		s.maxAttempts = orDefault(c.cfg.HighFreqAttempts, defaultHighFreqAttempts)
		s.freqMs = int64(orDefault(c.cfg.HighFreqDuration, defaultHighFreqDurationMs))
		s.retrySlotMax = minValidTimeMs
	case NormalFreq:
		s.maxAttempts = orDefault(c.cfg.NormalFreqAttempts, defaultNormalFreqAttempts)
		s.freqMs = int64(orDefault(c.cfg.NormalFreqDuration, defaultNormalFreqDurationMs))
	case LowFreq:
		s.freqMs = int64(orDefault(c.cfg.LowFreqDuration, defaultLowFreqDurationMs))
	case OverIgnThresholdHighFreq:
		s.maxAttempts = orDefault(c.cfg.HighFreqAttemptAfterIgnitionThreshold, defaultHighFreqAttemptsAfterIgnThreshold)
		s.freqMs = int64(orDefault(c.cfg.HighFreqAfterIgnitionThreshold, defaultHighFreqAfterIgnThresholdMs))
		s.deterministic = true
	case OverIgnThresholdLowFreq:
		s.freqMs = int64(orDefault(c.cfg.LowFreqAfterIgnitionThreshold, defaultLowFreqAfterIgnThresholdMs))
	}
	return s
}

// computeNextRetryTimeLocked implements GetNextRetryTime: a deterministic
// ladder for Initial/OverIgnThresholdHighFreq, a randomized, ever-widening
// slot for the rest, seeded per-device so jitter is stable across restarts.
func (c *Controller) computeNextRetryTimeLocked(s *stateRuntime) int64 {
	if s.deterministic {
		return s.nextTimeMs + s.freqMs
	}

	s.retrySlotMin = s.retrySlotMax
	s.retrySlotMax += int(s.freqMs)
	rand := s.retrySlotMin
	if c.rng != nil {
		rand = c.rng.Range(c.serialNumber, s.retrySlotMin, s.retrySlotMax)
	}
	return s.startTimeMs + int64(rand)
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
