package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/cuemby/igniteclient/pkg/event"
	"github.com/cuemby/igniteclient/pkg/types"
)

// IgnitionState is the three-valued ignition state this stage tracks:
// unknown until the first RPM or IgnStatus event is seen.
type IgnitionState int

const (
	IgnitionUnknown IgnitionState = iota
	IgnitionOn
	IgnitionOff
)

// alertEvents is the fixed set of event IDs IsAlert recognizes — unlike
// TimestampValidator's exception list, this one is not configurable.
var alertEvents = map[string]struct{}{
	"Activation":         {},
	"FirmwareDownloaded": {},
}

// sessionLifecycleEvents are the event IDs this stage itself consumes to
// derive session/ignition state, returned by IsExceptionEvent. They pass
// the pre-session gate unconditionally — blocking them would leave the
// stage unable to ever observe a session start.
var sessionLifecycleEvents = map[string]struct{}{
	"SessionStatus":        {},
	"IgnStatus":            {},
	"RPM":                  {},
	"IgniteClientLaunched": {},
}

// preSessionAllowed extends the gate's exception set beyond the lifecycle
// events with IDs that must reach the cloud before any driving session
// exists: the fixed alert events plus the VIN learned during activation.
var preSessionAllowed = map[string]struct{}{
	"Activation":         {},
	"FirmwareDownloaded": {},
	"VIN":                {},
}

// RpmIgnitionConfig controls whether RPM events are allowed to synthesize
// IgnStatus events (DAM.UseRpmForIgnition.{IgnON,IgnOFF} in configuration).
type RpmIgnitionConfig struct {
	IgnON  bool
	IgnOFF bool
}

// SessionStatus is the third pipeline stage. It synthesizes session
// start/end events from the stream and gates upload on an open session:
//
//   - RPM > 0 with ignition off/unknown transitions ignition on and, when
//     UseRpmForIgnition.IgnON is set, injects a synthesized
//     IgnStatus{state:"run"} — which in turn starts the session.
//   - IgnStatus{state:"run"} with ignition not already on starts the
//     session, injecting SessionStatus{status:"startup"}.
//   - IgnStatus{state:"off"} (and RPM <= 0 under IgnOFF) ends it,
//     injecting SessionStatus{status:"shutdown"}.
//   - While no session is in progress, only the stage's own lifecycle
//     events and a fixed exception set pass; everything else is dropped.
//
// Synthesized events are injected via Outcome.Extra, so they travel the
// rest of the pipeline and reach the upload path like any produced event.
type SessionStatus struct {
	rpmCfg RpmIgnitionConfig

	mu                sync.Mutex
	sessionInProgress bool
	ignState          IgnitionState
	lastIgnState      IgnitionState
}

// NewSessionStatus builds a SessionStatus stage.
func NewSessionStatus(rpmCfg RpmIgnitionConfig) *SessionStatus {
	return &SessionStatus{rpmCfg: rpmCfg, ignState: IgnitionUnknown, lastIgnState: IgnitionUnknown}
}

func (s *SessionStatus) Name() string { return "SessionStatus" }

type sessionStatusPayload struct {
	Status string `json:"status"`
}

type ignStatusPayload struct {
	State string `json:"state"`
}

type rpmPayload struct {
	Value float64 `json:"value"`
}

// Handle implements event.Stage.
func (s *SessionStatus) Handle(e *event.Event) event.Outcome {
	s.mu.Lock()

	var extra []*types.Event
	switch e.EventID {
	case "SessionStatus":
		var p sessionStatusPayload
		if json.Unmarshal(e.Data, &p) == nil {
			s.applySessionStatusLocked(p.Status)
		}
	case "IgnStatus":
		var p ignStatusPayload
		if json.Unmarshal(e.Data, &p) == nil {
			extra = s.applyIgnStatusLocked(p.State)
		}
	case "RPM":
		var p rpmPayload
		if json.Unmarshal(e.Data, &p) == nil {
			extra = s.handleRPMLocked(p.Value)
		}
	}

	inSession := s.sessionInProgress
	s.mu.Unlock()

	if !inSession && !passesPreSessionGate(e.EventID) {
		return event.Outcome{Dropped: true, Reason: "no session in progress", Extra: extra}
	}
	return event.Outcome{Forward: true, Event: e, Extra: extra}
}

func passesPreSessionGate(eventID string) bool {
	if _, ok := sessionLifecycleEvents[eventID]; ok {
		return true
	}
	_, ok := preSessionAllowed[eventID]
	return ok
}

func (s *SessionStatus) applySessionStatusLocked(status string) {
	switch status {
	case "startup":
		s.sessionInProgress = true
	case "shutdown":
		s.sessionInProgress = false
	}
}

// applyIgnStatusLocked transitions ignition state from an IgnStatus event
// and returns the session event that transition synthesizes, if any.
func (s *SessionStatus) applyIgnStatusLocked(state string) []*types.Event {
	s.lastIgnState = s.ignState
	if state == "run" {
		wasOn := s.ignState == IgnitionOn
		s.ignState = IgnitionOn
		if !wasOn && !s.sessionInProgress {
			s.sessionInProgress = true
			return []*types.Event{synthesizeSessionStatus("startup")}
		}
		return nil
	}

	s.ignState = IgnitionOff
	if s.sessionInProgress {
		s.sessionInProgress = false
		return []*types.Event{synthesizeSessionStatus("shutdown")}
	}
	return nil
}

// handleRPMLocked updates ignition state from an RPM reading. When
// configured, an ignition edge synthesizes an IgnStatus event, and the
// session start/end rides along with it.
func (s *SessionStatus) handleRPMLocked(rpm float64) []*types.Event {
	if rpm > 0 {
		if s.ignState == IgnitionOn {
			return nil
		}
		if !s.rpmCfg.IgnON {
			s.lastIgnState = s.ignState
			s.ignState = IgnitionOn
			return nil
		}
		extra := []*types.Event{synthesizeIgnStatus("run")}
		return append(extra, s.applyIgnStatusLocked("run")...)
	}

	if s.ignState != IgnitionOn {
		return nil
	}
	if !s.rpmCfg.IgnOFF {
		s.lastIgnState = s.ignState
		s.ignState = IgnitionOff
		return nil
	}
	extra := []*types.Event{synthesizeIgnStatus("off")}
	return append(extra, s.applyIgnStatusLocked("off")...)
}

// synthesizeIgnStatus builds a synthetic IgnStatus event carrying its own
// MessageID, so a synthesized event is traceable through the upload path
// the same way a producer-originated one is, instead of arriving with an
// empty correlation field.
func synthesizeIgnStatus(state string) *types.Event {
	data, _ := json.Marshal(ignStatusPayload{State: state})
	return &types.Event{EventID: "IgnStatus", Data: data, MessageID: uuid.NewString()}
}

func synthesizeSessionStatus(status string) *types.Event {
	data, _ := json.Marshal(sessionStatusPayload{Status: status})
	return &types.Event{EventID: "SessionStatus", Data: data, MessageID: uuid.NewString()}
}

// GetSessionStatus reports whether an upload session is currently in progress.
func (s *SessionStatus) GetSessionStatus() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionInProgress
}

// IsAlert reports whether benchMode is nonzero and e is one of the fixed
// alert-eligible event IDs (Activation, FirmwareDownloaded).
func (s *SessionStatus) IsAlert(e *types.Event, benchMode int) bool {
	if benchMode == 0 {
		return false
	}
	_, ok := alertEvents[e.EventID]
	return ok
}

// IsExceptionEvent reports whether eventID is one this stage itself
// consumes for session/ignition bookkeeping.
func (s *SessionStatus) IsExceptionEvent(eventID string) bool {
	_, ok := sessionLifecycleEvents[eventID]
	return ok
}

// GetComponentStatus returns a small JSON diagnostics blob with a
// string-valued SessionInProgress field.
func (s *SessionStatus) GetComponentStatus() string {
	return fmt.Sprintf(`{"SessionInProgress":"%t"}`, s.GetSessionStatus())
}
