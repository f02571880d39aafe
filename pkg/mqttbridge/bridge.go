package mqttbridge

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/cuemby/igniteclient/pkg/config"
	"github.com/cuemby/igniteclient/pkg/event"
	"github.com/cuemby/igniteclient/pkg/log"
	"github.com/cuemby/igniteclient/pkg/types"
)

// Option configures a Bridge at construction time.
type Option func(*Bridge)

// WithClientOptionsConfig exposes the underlying paho ClientOptions for
// callers that need to tune connect/reconnect behavior beyond what
// broker/clientID/credentials cover. Use only when the defaults this
// package sets (auto-reconnect, a 30s max reconnect interval) are wrong
// for the deployment.
func WithClientOptionsConfig(fn func(opts *mqtt.ClientOptions)) Option {
	return func(b *Bridge) { b.cocfg = fn }
}

// Bridge owns one paho MQTT client connection and feeds everything it
// receives to an event.Router, publishing whatever the router or IPC
// layer hands back out.
type Bridge struct {
	broker   string
	clientID string
	username string
	password string

	client mqtt.Client
	cocfg  func(opts *mqtt.ClientOptions)

	router *event.Router
}

// New builds a Bridge. Connect must be called before Publish or
// subscriptions take effect.
func New(broker, clientID, username, password string, router *event.Router, opts ...Option) *Bridge {
	b := &Bridge{broker: broker, clientID: clientID, username: username, password: password, router: router}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect dials the broker and subscribes to every topic cfg.MQTT names.
func (b *Bridge) Connect(cfg *config.Config) error {
	o := mqtt.NewClientOptions()
	o.AddBroker(b.broker)
	o.SetClientID(b.clientID)
	if b.username != "" {
		o.SetUsername(b.username)
		o.SetPassword(b.password)
	}
	o.SetAutoReconnect(true)
	o.SetMaxReconnectInterval(30 * time.Second)
	o.SetOnConnectHandler(func(c mqtt.Client) {
		log.Info("mqtt connection established")
	})
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Errorf("mqtt connection lost", err)
	})
	if b.cocfg != nil {
		b.cocfg(o)
	}

	b.client = mqtt.NewClient(o)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return b.subscribeAll(cfg)
}

func (b *Bridge) subscribeAll(cfg *config.Config) error {
	for _, topic := range cfg.MQTT.ServicesTopic {
		t := topic
		if token := b.client.Subscribe(t.Pub, byte(t.QOS), b.onMessage); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", t.Pub, token.Error())
		}
	}
	if cfg.MQTT.TopicPrefix != "" {
		prefixTopic := cfg.MQTT.TopicPrefix + "/#"
		if token := b.client.Subscribe(prefixTopic, 1, b.onMessage); token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", prefixTopic, token.Error())
		}
	}
	return nil
}

// onMessage decodes an inbound MQTT payload as either an event or a
// domain notification and hands it to the router. The two shapes are
// disambiguated the same way the IPC listener disambiguates frames: by
// probing for the field that only one of them carries.
func (b *Bridge) onMessage(_ mqtt.Client, m mqtt.Message) {
	var probe struct {
		EventID string `json:"EventID"`
		Domain  string `json:"domain"`
	}
	if err := json.Unmarshal(m.Payload(), &probe); err != nil {
		log.Errorf("mqttbridge: malformed inbound payload", err)
		return
	}

	if probe.Domain != "" {
		var n types.Notification
		if err := json.Unmarshal(m.Payload(), &n); err != nil {
			log.Errorf("mqttbridge: malformed notification", err)
			return
		}
		b.router.NotifyNotification(&n)
		return
	}

	var e types.Event
	if err := json.Unmarshal(m.Payload(), &e); err != nil {
		log.Errorf("mqttbridge: malformed event", err)
		return
	}
	b.router.NotifyEvent(&e)
}

// Publish sends payload to topic at the given QoS.
func (b *Bridge) Publish(topic string, qos byte, payload []byte) error {
	if b.client == nil {
		return fmt.Errorf("mqttbridge: not connected")
	}
	token := b.client.Publish(topic, qos, false, payload)
	token.Wait()
	return token.Error()
}

// PublishMessage marshals msg's payload and publishes it to topic — the
// outbound dual of onMessage, used by the agent root to forward
// MessageOut values the router or IPC layer produced.
func (b *Bridge) PublishMessage(topic string, qos byte, msg types.MessageOut) error {
	return b.Publish(topic, qos, msg.Payload)
}

// Close disconnects the underlying client, waiting up to 250ms for
// in-flight work to finish.
func (b *Bridge) Close() {
	if b.client != nil && b.client.IsConnected() {
		b.client.Disconnect(250)
	}
}

// Connected reports whether the broker connection is currently up, the
// value the IPC MQTTConnectionStatusQuery reply surfaces.
func (b *Bridge) Connected() bool {
	return b.client != nil && b.client.IsConnected()
}
