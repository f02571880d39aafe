// Package transport implements the chain-of-responsibility pipeline every
// inbound event travels before it reaches the event router's domain
// dispatch: timestamp validation and backfill, UI activity defer-time
// tracking, ignition/session status synthesis, and VIN topic gating.
package transport

import (
	"sync"

	"github.com/cuemby/igniteclient/pkg/event"
	"github.com/cuemby/igniteclient/pkg/log"
	"github.com/cuemby/igniteclient/pkg/types"
)

// TimestampCutoff is the epoch-millisecond boundary below which an event's
// Timestamp is treated as device-clock garbage rather than wall-clock time
// (2024-01-01T00:00:00Z). Events at or above it are valid; events below it
// are queued until the first valid timestamp is seen, then backfilled.
const TimestampCutoff = 1704067200000.0

// InitialEventQueueLimit is the number of invalid-timestamp events held in
// memory before TimestampValidator starts persisting them to InvalidEventStore
// (or, if persistence is disabled, lets them straight through unfixed).
const InitialEventQueueLimit = 100

// InvalidEventStore persists events seen before the first valid timestamp,
// once the in-memory queue exceeds InitialEventQueueLimit. pkg/storage's
// InvalidEventAdapter satisfies this interface; it is declared here, not imported
// from pkg/storage, so this package has no dependency on a concrete store.
type InvalidEventStore interface {
	InsertEvents(events []*types.Event) error
	CountEvents() (int, error)
	DrainEvents(batchSize int) ([]*types.Event, error)
}

// TimestampValidator is the first pipeline stage. Every event is checked
// against TimestampCutoff; events below cutoff are queued (in memory, then
// in InvalidEventStore once the queue fills) until the first event at or
// above cutoff arrives, at which point the queue is drained and every
// queued event's timestamp is corrected by the delta between the last
// invalid timestamp seen and the first valid one.
//
// This stage is not pure: it holds state across calls (last invalid
// timestamp, first valid timestamp, the queue) so it must be constructed
// once per process and shared, not reconstructed per event.
type TimestampValidator struct {
	store           InvalidEventStore
	storeOnOverflow bool

	mu                sync.Mutex
	lastInvalidTS     float64
	firstValidTS      float64
	queue             []*types.Event
	exceptionEvents   map[string]struct{}
	overflowedToStore bool
}

// NewTimestampValidator builds a validator. exceptions lists event IDs that
// bypass timestamp validation entirely (DAM.TimestampValidatorExceptions in
// configuration) — they are forwarded unconditionally even before the
// first valid timestamp is seen. store may be nil, in which case an
// overflowing queue is flushed unfixed instead of persisted, mirroring
// DAM.Database.storeInvalidEvents=false.
func NewTimestampValidator(exceptions []string, store InvalidEventStore, storeOnOverflow bool) *TimestampValidator {
	set := make(map[string]struct{}, len(exceptions))
	for _, id := range exceptions {
		set[id] = struct{}{}
	}
	return &TimestampValidator{
		store:           store,
		storeOnOverflow: storeOnOverflow,
		exceptionEvents: set,
	}
}

func (v *TimestampValidator) Name() string { return "TimestampValidator" }

// Handle implements event.Stage.
func (v *TimestampValidator) Handle(e *event.Event) event.Outcome {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.firstValidTS == 0 {
		if _, isException := v.exceptionEvents[e.EventID]; isException {
			log.WithEventID(e.EventID).Debug().Msg("timestamp validation exception event, forwarding unvalidated")
			return event.Outcome{Forward: true, Event: e}
		}
		return v.validateAgainstCutoff(e)
	}

	return v.fixAndSend(e.EventID, e.Timestamp, e)
}

// validateAgainstCutoff handles the pre-first-valid-timestamp phase: queue
// the event if it's below cutoff, otherwise record it as the first valid
// timestamp and drain everything queued so far.
func (v *TimestampValidator) validateAgainstCutoff(e *types.Event) event.Outcome {
	if e.Timestamp < TimestampCutoff {
		if e.Timestamp > v.lastInvalidTS {
			v.lastInvalidTS = e.Timestamp
		}
		v.queue = append(v.queue, e)
		flushed := v.handleOverflow()
		return event.Outcome{Dropped: true, Reason: "queued pending first valid timestamp", Extra: flushed}
	}

	v.firstValidTS = e.Timestamp
	drained := v.drainQueueLocked()
	// The event that established firstValidTS is valid as-is; forward it
	// directly, and replay every event the cutoff unblocked alongside it.
	return event.Outcome{Forward: true, Event: e, Extra: drained}
}

// handleOverflow persists the queue to InvalidEventStore once it exceeds
// InitialEventQueueLimit, or — when storeInvalidEvents is off — returns
// it so the caller can flush it through unfixed, with the events keeping
// their pre-cutoff timestamps.
func (v *TimestampValidator) handleOverflow() []*types.Event {
	if len(v.queue) <= InitialEventQueueLimit {
		return nil
	}
	if v.store != nil && v.storeOnOverflow {
		if err := v.store.InsertEvents(v.queue); err != nil {
			log.Logger.Error().Err(err).Msg("failed to persist overflowed invalid-timestamp events")
			return nil
		}
		v.overflowedToStore = true
		v.queue = nil
		return nil
	}
	log.Logger.Warn().Int("count", len(v.queue)).Msg("invalid-timestamp queue exceeded limit, flushing unfixed")
	flushed := v.queue
	v.queue = nil
	return flushed
}

// drainQueueLocked fixes and returns every queued (and, if any overflowed,
// stored) event now that firstValidTS is known. Caller holds v.mu.
func (v *TimestampValidator) drainQueueLocked() []*types.Event {
	var out []*types.Event

	if v.overflowedToStore && v.store != nil {
		for {
			batch, err := v.store.DrainEvents(100)
			if err != nil {
				log.Logger.Error().Err(err).Msg("failed to drain invalid-timestamp store")
				break
			}
			if len(batch) == 0 {
				break
			}
			for _, ev := range batch {
				if fixed := v.fixTimestamp(ev.Timestamp, ev); fixed != nil {
					out = append(out, fixed)
				}
			}
		}
		v.overflowedToStore = false
	}

	for _, ev := range v.queue {
		if fixed := v.fixTimestamp(ev.Timestamp, ev); fixed != nil {
			out = append(out, fixed)
		}
	}
	v.queue = nil
	return out
}

// fixAndSend implements the post-first-valid-timestamp path: events at or
// above cutoff pass through untouched, events below cutoff are corrected
// via fixTimestamp.
func (v *TimestampValidator) fixAndSend(eventID string, ts float64, e *types.Event) event.Outcome {
	if ts >= TimestampCutoff {
		return event.Outcome{Forward: true, Event: e}
	}
	fixed := v.fixTimestamp(ts, e)
	if fixed == nil {
		return event.Outcome{Dropped: true, Reason: "invalid timestamp with no reference point to fix it"}
	}
	return event.Outcome{Forward: true, Event: fixed}
}

// fixTimestamp applies the backfill formula: new_ts = firstValidTS -
// (lastInvalidTS - originalTs). Returns nil if lastInvalidTS is still zero
// (no reference point ever seen), in which case the event is unfixable and
// must be dropped.
func (v *TimestampValidator) fixTimestamp(original float64, e *types.Event) *types.Event {
	if v.lastInvalidTS == 0 {
		log.WithEventID(e.EventID).Error().Float64("timestamp", original).
			Msg("cannot fix event with invalid timestamp, no reference point")
		return nil
	}
	delta := v.lastInvalidTS - original
	newTS := v.firstValidTS - delta

	fixed := e.Clone()
	orig := original
	fixed.OriginalTimestamp = &orig
	fixed.Timestamp = newTS
	return fixed
}
