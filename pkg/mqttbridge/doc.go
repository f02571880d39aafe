// Package mqttbridge is the ignite client's MQTT boundary: it wraps
// github.com/eclipse/paho.mqtt.golang, subscribing to the topics
// MQTT.servicesTopic and MQTT.topicprefix name in configuration, handing
// inbound payloads to the event router, and publishing outbound
// MessageOut payloads the router and IPC layers produce.
//
// The rest of the client treats cloud messaging as already-authenticated
// traffic this boundary carries; everything protocol-specific (connect,
// reconnect, subscription management, QoS) stays behind Bridge.
package mqttbridge
