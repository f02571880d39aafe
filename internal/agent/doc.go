// Package agent is the ignite client's composition root: it owns the
// handler registry, the transport pipeline, the activation backoff
// controller, the HTTP session pool, the cloud API clients, the persisted
// store, and the MQTT bridge and IPC channel that feed the router.
package agent
