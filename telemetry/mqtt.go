package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig describes the broker connection.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// DialMQTT connects to the broker. The client reconnects on its own after
// a lost connection.
func DialMQTT(ctx context.Context, config MQTTConfig, logger *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", "broker", config.Broker, "error", err)
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT connected", "broker", config.Broker)
	})

	client := mqtt.NewClient(opts)
	if err := wait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("connect mqtt %s: %w", config.Broker, err)
	}
	return client, nil
}

// MQTTPublisher publishes each snapshot as JSON on <prefix>/<device>.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	retain bool
}

func NewMQTTPublisher(client mqtt.Client, prefix string, qos byte, retain bool) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		prefix: prefix,
		qos:    qos,
		retain: retain,
	}
}

// Topic returns the topic snapshots of device are published on.
func (p *MQTTPublisher) Topic(device string) string {
	return p.prefix + "/" + device
}

func (p *MQTTPublisher) Publish(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	topic := p.Topic(s.Device)
	if err := wait(ctx, p.client.Publish(topic, p.qos, p.retain, data)); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects, giving in-flight messages a short grace period.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(500)
	return nil
}

func wait(ctx context.Context, t mqtt.Token) error {
	select {
	case <-t.Done():
		return t.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
