package notify

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig names the broker and topic for published reports.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Topic    string `mapstructure:"topic"`
	QoS      byte   `mapstructure:"qos"`
}

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTNotifier publishes reports as JSON on a topic.
type MQTTNotifier struct {
	client  mqttPublisher
	topic   string
	qos     byte
	timeout time.Duration
}

// ConnectMQTT connects to the broker in cfg.
func ConnectMQTT(cfg MQTTConfig) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

func NewMQTTNotifier(client mqttPublisher, topic string, qos byte) *MQTTNotifier {
	if topic == "" {
		topic = "tripsync/errors"
	}
	return &MQTTNotifier{client: client, topic: topic, qos: qos, timeout: 10 * time.Second}
}

func (n *MQTTNotifier) Notify(ctx context.Context, msg Message) error {
	payload, err := msg.encode()
	if err != nil {
		return err
	}
	token := n.client.Publish(n.topic, n.qos, false, payload)
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(n.timeout):
		return fmt.Errorf("timed out publishing to topic %s", n.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", n.topic, err)
	}
	return nil
}
