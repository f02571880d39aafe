package agent

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/cuemby/igniteclient/pkg/backoff"
	"github.com/cuemby/igniteclient/pkg/cloudapi"
	"github.com/cuemby/igniteclient/pkg/config"
	"github.com/cuemby/igniteclient/pkg/cryptoutil"
	"github.com/cuemby/igniteclient/pkg/event"
	"github.com/cuemby/igniteclient/pkg/httpclient"
	"github.com/cuemby/igniteclient/pkg/ipc"
	"github.com/cuemby/igniteclient/pkg/log"
	"github.com/cuemby/igniteclient/pkg/mqttbridge"
	"github.com/cuemby/igniteclient/pkg/storage"
	"github.com/cuemby/igniteclient/pkg/transport"
	"github.com/cuemby/igniteclient/pkg/types"
)

// invalidEventMaxRows bounds the InvalidTimestampEvent overflow table this
// agent keeps (purged oldest-first on overflow). A standalone default
// rather than anything derived from DAM.Database.dbSizeLimit, which bounds
// the whole database file in bytes, not this one table's row count.
const invalidEventMaxRows = 1000

// MQTTEndpoint is the subset of connection attributes the agent needs to
// build its mqttbridge.Bridge; broken out from Config since the broker
// address/credentials are deployment-time secrets rather than
// configuration-document content.
type MQTTEndpoint struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Agent is the composition root: one value owning every subsystem the
// ignite client needs, constructed once in New and torn down once in
// Close.
type Agent struct {
	configPath string
	cfgStore   *config.Store
	watcher    *config.Watcher

	store *storage.BoltStore

	registry *event.Registry
	router   *event.Router

	pool       *httpclient.Pool
	rng        cryptoutil.SeededRNG
	activation *cloudapi.ActivationClient
	auth       *cloudapi.AuthClient
	health     *cloudapi.HealthClient

	backoffCtl *backoff.Controller

	mqtt *mqttbridge.Bridge
	ipc  *ipc.Channel

	identity Identity

	mu        sync.Mutex
	token     types.AuthToken
	activated bool

	cancel context.CancelFunc

	// runDone is closed once Run has returned and every subsystem is
	// released; the shutdown-initiated handler waits on it up to the
	// host-supplied grace period before exiting the process.
	runDone chan struct{}
	exit    func(code int)
}

// New builds an Agent from the configuration document at configPath,
// opening (or creating) its BoltDB state database under dataDir.
func New(configPath, dataDir string, identity Identity, mqttEP MQTTEndpoint) (*Agent, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfgStore := config.NewStore(cfg)

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		configPath: configPath,
		cfgStore:   cfgStore,
		store:      store,
		identity:   identity,
		rng:        cryptoutil.NewSeededRNG(),
		runDone:    make(chan struct{}),
		exit:       os.Exit,
	}

	if activated, gerr := store.GetString("ICP.ActivationStatus"); gerr == nil {
		a.activated = activated == "true"
	}

	registry := event.NewRegistry()
	adapter := storage.NewInvalidEventAdapter(store, invalidEventMaxRows)
	pipeline := transport.NewPipeline(cfg, adapter)
	router := event.NewRouter(registry, pipeline)
	router.ApplyDomainEventMap(cfg.MQTT.DomainEventMap)

	pool := httpclient.NewPool(tlsConfigFrom(cfg))
	pool.OnThresholdWarning = func(acquired int) {
		log.Logger.Warn().Int("acquired", acquired).Msg("http session pool nearing exhaustion")
	}

	mode := cryptoutil.ModeCBC
	if cfg.HCPAuth.UseGCMEncryptForActivation {
		mode = cryptoutil.ModeGCM
	}

	a.registry = registry
	a.router = router
	a.pool = pool
	a.activation = cloudapi.NewActivationClient(pool, cfg.HCPAuth.ActivationURL, mode, a.rng)
	a.auth = cloudapi.NewAuthClient(pool, cfg.HCPAuth.AuthURL, a.rng, identity.Serial)
	a.health = cloudapi.NewHealthClient(pool, cfg.HCPAuth.HealthcheckURL)
	a.backoffCtl = backoff.NewController(cfg.HCPAuth.ActivationBackOffConf, a.rng, store, a, identity.Serial)
	a.mqtt = mqttbridge.New(mqttEP.Broker, mqttEP.ClientID, mqttEP.Username, mqttEP.Password, router)
	a.ipc = ipc.NewChannel(ipc.DefaultAddresses(), 0, a.buildIPCHandlers())
	a.registerDomainHandlers()

	watcher, err := config.NewWatcher(configPath, cfgStore, a.onConfigReload)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.watcher = watcher

	return a, nil
}

func tlsConfigFrom(cfg *config.Config) httpclient.TLSConfig {
	return httpclient.TLSConfig{
		VerifyPeer:  cfg.TLS.VerifyPeer,
		VerifyHost:  cfg.TLS.VerifyHost,
		CAFile:      cfg.TLS.CAFile,
		CAPath:      cfg.TLS.CAPath,
		ClientCert:  cfg.TLS.ClientCert,
		ClientKey:   cfg.TLS.ClientKey,
		TLSEngineID: cfg.TLS.TLSEngineID,
		CertKeyType: cfg.TLS.CertKeyType,
	}
}

// onConfigReload re-applies the domain/event map whenever the watcher picks
// up a configuration change on disk.
func (a *Agent) onConfigReload(_, new *config.Config) {
	a.router.ApplyDomainEventMap(new.MQTT.DomainEventMap)
}

// Registry exposes the handler registry so cmd/igniteclient can register
// domain handlers before calling Run.
func (a *Agent) Registry() *event.Registry { return a.registry }

// Router exposes the event router, e.g. for a host-side producer bridge
// that isn't MQTT.
func (a *Agent) Router() *event.Router { return a.router }

// Run connects the MQTT bridge, starts the configuration watcher, and
// serves the IPC channel until ctx is canceled. It returns once every
// subsystem has stopped.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
	defer cancel()
	defer close(a.runDone)

	if err := a.mqtt.Connect(a.cfgStore.Get()); err != nil {
		log.Errorf("agent: mqtt connect failed", err)
	}
	defer a.mqtt.Close()

	go a.watcher.Run(ctx)
	defer a.watcher.Close()

	a.setRunningStatus(true)
	defer a.setRunningStatus(false)

	err := a.ipc.Serve(ctx)
	a.ipc.Dispatcher.Close()
	return err
}

// setRunningStatus persists ICP.ICRunningStatus and broadcasts the change
// to the host as an IcStatus notification. A failed broadcast is normal
// when no host subscriber has joined yet; the persisted flag is what a
// late subscriber queries through ActivationStatusQuery-style commands.
func (a *Agent) setRunningStatus(running bool) {
	value := "false"
	if running {
		value = "true"
	}
	if err := a.store.SetString("ICP.ICRunningStatus", value); err != nil {
		log.Errorf("agent: persist running status failed", err)
	}
	payload, _ := json.Marshal(struct {
		Running bool `json:"running"`
	}{Running: running})
	a.ipc.Dispatcher.Dispatch(types.MessageOut{Kind: types.MessageIcStatus, Payload: payload})
}

// Shutdown cancels the agent's running context, unblocking Run.
func (a *Agent) Shutdown() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close releases the agent's persisted store and configuration watcher.
// Safe to call whether or not Run was ever invoked.
func (a *Agent) Close() error {
	_ = a.watcher.Close()
	return a.store.Close()
}

// IsActivated satisfies pkg/backoff.ActivationChecker.
func (a *Agent) IsActivated() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.activated
}
