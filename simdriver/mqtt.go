package simdriver

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the optional MQTT results publisher, mirroring
// the shape of the teacher's own MQTTConfig (broker, credentials,
// publish interval).
type MQTTConfig struct {
	Broker          string
	Username        string
	Password        string
	Topic           string
	PublishInterval time.Duration
}

// MQTTSink publishes the latest snapshot for each sweep point as a
// retained JSON message, adapted from the teacher's MQTTPublisher
// connect/reconnect scaffolding in mqtt_publisher.go.
type MQTTSink struct {
	client   mqtt.Client
	topic    string
	interval time.Duration

	mu          sync.Mutex
	lastPublish time.Time
}

func generateMQTTClientID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return "ldpcsim_" + hex.EncodeToString(b)
}

// NewMQTTSink connects to cfg.Broker and returns a sink that publishes a
// retained message on every CompletePoint call and on RecordErrorEvent
// calls at most once per cfg.PublishInterval.
func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(generateMQTTClientID())
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Println("mqtt: connected to broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Printf("mqtt: connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to mqtt broker %s: %w", cfg.Broker, token.Error())
	}

	topic := cfg.Topic
	if topic == "" {
		topic = "ldpcsim/results"
	}
	return &MQTTSink{client: client, topic: topic, interval: cfg.PublishInterval}, nil
}

// publish rate-limits RecordErrorEvent traffic to at most one message per
// interval, the way the teacher's own MQTT publisher throttles its
// periodic reports; CompletePoint always publishes regardless of the
// interval since a sweep point boundary is a significant event.
func (m *MQTTSink) publish(snapshot ResultsSnapshot, force bool) {
	m.mu.Lock()
	if !force && m.interval > 0 && time.Since(m.lastPublish) < m.interval {
		m.mu.Unlock()
		return
	}
	m.lastPublish = time.Now()
	m.mu.Unlock()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		log.Printf("mqtt: failed to marshal snapshot: %v", err)
		return
	}
	token := m.client.Publish(m.topic, 0, true, payload)
	token.WaitTimeout(2 * time.Second)
	if err := token.Error(); err != nil {
		log.Printf("mqtt: publish failed: %v", err)
	}
}

func (m *MQTTSink) RecordErrorEvent(snapshot ResultsSnapshot) { m.publish(snapshot, false) }
func (m *MQTTSink) CompletePoint(snapshot ResultsSnapshot)    { m.publish(snapshot, true) }

func (m *MQTTSink) Close() error {
	m.client.Disconnect(250)
	return nil
}
