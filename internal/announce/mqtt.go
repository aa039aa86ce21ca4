package announce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// DefaultMQTTTopic is the topic announcements are published to.
const DefaultMQTTTopic = "nearair/announcement"

// MQTTPublisher is the subset of mqtt.Client used by MQTT.
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTT publishes announcements as retained JSON messages, so a subscriber
// connecting later immediately receives the current state.
type MQTT struct {
	client  MQTTPublisher
	topic   string
	qos     byte
	timeout time.Duration
}

// NewMQTT creates an MQTT sink.
func NewMQTT(client MQTTPublisher, topic string) *MQTT {
	if topic == "" {
		topic = DefaultMQTTTopic
	}
	return &MQTT{client: client, topic: topic, qos: 1, timeout: 5 * time.Second}
}

// ConnectMQTT connects to broker with the given client id.
func ConnectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", broker, token.Error())
	}
	return client, nil
}

// Announce implements Announcer.
func (m *MQTT) Announce(ctx context.Context, a Announcement) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}

	token := m.client.Publish(m.topic, m.qos, true, payload)
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(m.timeout):
		return errors.New("mqtt publish timed out")
	}
}
