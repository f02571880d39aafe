// Package config loads the ignite client's JSON configuration document and
// holds it behind an atomically-swapped snapshot, so readers never block on
// the writer that reloads it from disk.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
)

// UploadEventEntry pairs an event ID with the activity-delay timeout
// (seconds) the transport pipeline's ActivityDelay stage tracks it under.
type UploadEventEntry struct {
	EventID    string `json:"eventID"`
	TimeoutSec int    `json:"timeoutSec"`
}

// ServiceTopic is one entry of MQTT.servicesTopic.
type ServiceTopic struct {
	ServiceName string `json:"serviceName"`
	Pub         string `json:"pub"`
	QOS         int    `json:"QOS"`
}

// DomainEventMap is the authoritative domain -> event-ID(s) mapping loaded
// from configuration. A value is either a single event ID (string) or a
// list of event IDs ([]string); json.RawMessage defers that decision to
// the event package, which knows how to diff old/new per-domain entries.
type DomainEventMap map[string]json.RawMessage

// ActivationBackOffConf mirrors HCPAuth.ActivationBackOffConf.
type ActivationBackOffConf struct {
	Enable                               bool `json:"enable"`
	IgnitionThreshold                    int  `json:"ignitionThreshold"`
	InitialAttempts                      int  `json:"initialAttempts"`
	InitialFreq                          int  `json:"initialFreq"`
	HighFreqAttempts                     int  `json:"highFreqAttempts"`
	HighFreqDuration                     int  `json:"highFreqDuration"`
	NormalFreqAttempts                   int  `json:"normalFreqAttempts"`
	NormalFreqDuration                   int  `json:"normalFreqDuration"`
	LowFreqDuration                      int  `json:"lowFreqDuration"`
	HighFreqAfterIgnitionThreshold       int  `json:"highFreqAfterIgnitionThreshold"`
	HighFreqAttemptAfterIgnitionThreshold int `json:"highFreqAttemptAfterIgnitionThreshold"`
	LowFreqAfterIgnitionThreshold        int  `json:"lowFreqAfterIgnitionThreshold"`
}

// MQTT groups the MQTT.* configuration keys.
type MQTT struct {
	DomainEventMap DomainEventMap `json:"domainEventMap"`
	ServicesTopic  []ServiceTopic `json:"servicesTopic"`
	TopicPrefix    string         `json:"topicprefix"`
}

// Database groups DAM.Database.*.
type Database struct {
	StoreInvalidEvents bool  `json:"storeInvalidEvents"`
	DBSizeLimit        int64 `json:"dbSizeLimit"`
}

// UseRpmForIgnition controls whether the SessionStatus transport stage may
// synthesize IgnStatus events from RPM readings.
type UseRpmForIgnition struct {
	IgnON  bool `json:"IgnON"`
	IgnOFF bool `json:"IgnOFF"`
}

// DAM groups the DAM.* configuration keys (Device Analytics Manager, i.e.
// the transport pipeline).
type DAM struct {
	UploadEventConfig            []UploadEventEntry `json:"UploadEventConfig"`
	TimestampValidatorExceptions []string           `json:"TimestampValidatorExceptions"`
	Database                     Database           `json:"Database"`
	UseRpmForIgnition            UseRpmForIgnition  `json:"UseRpmForIgnition"`
}

// HCPAuth groups the HCPAuth.* configuration keys.
type HCPAuth struct {
	ActivationBackOffConf    ActivationBackOffConf `json:"ActivationBackOffConf"`
	HealthcheckURL           string                `json:"healthcheck_url"`
	ActivationURL            string                `json:"activationUrl"`
	AuthURL                  string                `json:"authUrl"`
	BatchUploadURL           string                `json:"batchUploadUrl"`
	UseGCMEncryptForActivation bool                `json:"useGCMEncryptForActivation"`
}

// TLS groups the HTTP session pool's TLS attribute set:
// verify-peer/verify-host flags, CA material, and an optional client
// certificate.
type TLS struct {
	VerifyPeer  bool   `json:"verifyPeer"`
	VerifyHost  bool   `json:"verifyHost"`
	CAFile      string `json:"caFile"`
	CAPath      string `json:"caPath"`
	ClientCert  string `json:"clientCert"`
	ClientKey   string `json:"clientKey"`
	TLSEngineID string `json:"tlsEngineId"`
	CertKeyType string `json:"certKeyType"`
}

// Config is the full JSON configuration document the client reads.
type Config struct {
	MQTT          MQTT    `json:"MQTT"`
	DAM           DAM     `json:"DAM"`
	HCPAuth       HCPAuth `json:"HCPAuth"`
	TLS           TLS     `json:"tls"`
	UseDeviceType bool    `json:"useDeviceType"`
	ProductType   string  `json:"ProductType"`
}

// Load reads and parses the configuration document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// Store holds the current configuration behind an atomic pointer. Readers
// call Get(); the one writer (the file watcher, or a manual Reload) calls
// Swap with a freshly loaded Config.
type Store struct {
	ptr atomic.Pointer[Config]
}

// NewStore creates a Store seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.ptr.Store(cfg)
	return s
}

// Get returns the current snapshot. The returned pointer is immutable by
// convention: callers must never mutate the Config they get back.
func (s *Store) Get() *Config {
	return s.ptr.Load()
}

// Swap atomically replaces the current snapshot.
func (s *Store) Swap(cfg *Config) {
	s.ptr.Store(cfg)
}
