package transport

import (
	"sync"
	"time"

	"github.com/cuemby/igniteclient/pkg/config"
	"github.com/cuemby/igniteclient/pkg/event"
)

// ActivityDelay is the second pipeline stage: a pass-through that records,
// for a configured set of UI event IDs, the last time each was seen. The
// upload manager consults ComputeDeferUpload before starting an upload
// cycle, to avoid uploading data out from under a screen the user is
// actively looking at.
type ActivityDelay struct {
	mu         sync.Mutex
	timeoutSec map[string]int
	lastSeenMs map[string]int64
	now        func() int64
}

// NewActivityDelay builds an ActivityDelay stage from the DAM.UploadEventConfig
// entries: eventID -> defer timeout in seconds.
func NewActivityDelay(entries []config.UploadEventEntry) *ActivityDelay {
	timeouts := make(map[string]int, len(entries))
	for _, e := range entries {
		timeouts[e.EventID] = e.TimeoutSec
	}
	return &ActivityDelay{
		timeoutSec: timeouts,
		lastSeenMs: make(map[string]int64),
		now:        func() int64 { return time.Now().UnixMilli() },
	}
}

func (a *ActivityDelay) Name() string { return "ActivityDelay" }

// Handle implements event.Stage: it is always a pass-through, recording
// activity for configured event IDs on the way.
func (a *ActivityDelay) Handle(e *event.Event) event.Outcome {
	if _, tracked := a.timeoutSec[e.EventID]; tracked {
		a.mu.Lock()
		a.lastSeenMs[e.EventID] = a.now()
		a.mu.Unlock()
	}
	return event.Outcome{Forward: true, Event: e}
}

// ComputeDeferUpload returns the number of seconds the upload manager
// should wait before starting its next cycle: the maximum, across every
// tracked event ID still within its configured timeout window, of the
// remaining time in that window. Zero means no defer is needed.
func (a *ActivityDelay) ComputeDeferUpload() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	defer_ := 0
	for eventID, lastSeen := range a.lastSeenMs {
		elapsedSec := int((now - lastSeen) / 1000)
		timeout := a.timeoutSec[eventID]
		if elapsedSec >= timeout {
			continue
		}
		if remaining := timeout - elapsedSec; remaining > defer_ {
			defer_ = remaining
		}
	}
	return defer_
}
