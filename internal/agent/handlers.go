package agent

import (
	"encoding/json"
	"time"

	"github.com/cuemby/igniteclient/pkg/ipc"
	"github.com/cuemby/igniteclient/pkg/log"
	"github.com/cuemby/igniteclient/pkg/types"
)

// buildIPCHandlers wires the IPC listener's five command kinds to this
// agent's callbacks.
func (a *Agent) buildIPCHandlers() ipc.Handlers {
	return ipc.Handlers{
		OnShutdownPrepare:           a.onShutdownPrepare,
		OnShutdownInitiated:         a.onShutdownInitiated,
		OnActivationStatusQuery:     a.onActivationStatusQuery,
		OnDBSizeQuery:               a.onDBSizeQuery,
		OnMQTTConnectionStatusQuery: a.onMQTTConnectionStatusQuery,
		OnRemoteOperationResponse:   a.onRemoteOperationResponse,
	}
}

// onShutdownPrepare only logs receipt of the prepare phase; the listener
// keeps serving until the shutdown-initiated phase completes the handshake,
// and ipc.Listener.Ready/WaitReady report when Serve has returned.
func (a *Agent) onShutdownPrepare(timeoutSeconds int, exitOnComplete bool, exitType types.ExitType) {
	log.Logger.Info().Int("timeout_seconds", timeoutSeconds).
		Bool("exit_on_complete", exitOnComplete).
		Msg("shutdown prepare received")
}

// onShutdownInitiated cancels the agent's running context, unblocking Run,
// and — when the host asked for it — arranges for the process to exit with
// the requested exit type once in-flight work has drained or the grace
// period has elapsed, whichever comes first.
func (a *Agent) onShutdownInitiated(timeoutSeconds int, exitOnComplete bool, exitType types.ExitType) {
	log.Logger.Info().Int("timeout_seconds", timeoutSeconds).
		Int("exit_type", int(exitType)).
		Msg("shutdown initiated, stopping agent")
	a.Shutdown()
	if exitOnComplete {
		go a.exitAfterDrain(timeoutSeconds, exitType)
	}
}

// exitAfterDrain enforces the shutdown grace period: QuickExit leaves
// immediately, NormalExit waits up to timeoutSeconds for Run to release
// its subsystems. Either way the process exit status carries the
// requested exit type, so the host can observe which shutdown it got.
func (a *Agent) exitAfterDrain(timeoutSeconds int, exitType types.ExitType) {
	if exitType != types.QuickExit {
		select {
		case <-a.runDone:
		case <-time.After(time.Duration(timeoutSeconds) * time.Second):
			log.Warn("shutdown grace period elapsed before subsystems drained")
		}
	}
	a.exit(int(exitType))
}

func (a *Agent) onActivationStatusQuery() types.MessageOut {
	payload, _ := json.Marshal(struct {
		Activated bool `json:"activated"`
	}{Activated: a.IsActivated()})
	return types.MessageOut{Kind: types.MessageActivationDetails, Payload: payload}
}

func (a *Agent) onDBSizeQuery() types.MessageOut {
	size, err := a.store.DBSize()
	if err != nil {
		log.Errorf("agent: db size query failed", err)
	}
	payload, _ := json.Marshal(struct {
		Bytes int64 `json:"bytes"`
	}{Bytes: size})
	return types.MessageOut{Kind: types.MessageDbSize, Payload: payload}
}

func (a *Agent) onMQTTConnectionStatusQuery() types.MessageOut {
	payload, _ := json.Marshal(struct {
		Connected bool `json:"connected"`
	}{Connected: a.mqtt.Connected()})
	return types.MessageOut{Kind: types.MessageMqttConnectionStatus, Payload: payload}
}

// onRemoteOperationResponse feeds the host's reply to a prior
// RemoteOperationMessage back through the router as a regular event, the
// same path every other inbound payload travels, keeping exactly one
// dispatch mechanism in the agent rather than a side channel just for
// remote-operation replies.
func (a *Agent) onRemoteOperationResponse(payload json.RawMessage) {
	a.router.NotifyEvent(&types.Event{
		EventID:   "RemoteOperationResponse",
		Timestamp: float64(time.Now().UnixMilli()),
		Data:      payload,
	})
}
