package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	alerts "plantwatch/internal/alerts/domain"
)

// MQTTConfig holds broker settings for the alert publisher.
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // may contain {page}
	QoS      byte
}

// Publisher is the subset of the paho client used to publish.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type mqttPayload struct {
	alerts.Record
	Message string `json:"message"`
}

// MQTTNotifier publishes every alert record as JSON.
type MQTTNotifier struct {
	client   Publisher
	topic    string
	qos      byte
	template *Template
	logger   *log.Logger
	timeout  time.Duration
}

// ConnectMQTT dials the broker with auto-reconnect enabled.
func ConnectMQTT(cfg MQTTConfig, logger *log.Logger) (mqtt.Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt notifier: empty broker")
	}
	if logger == nil {
		logger = log.Default()
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Printf("mqtt connection lost: %v", err)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return client, nil
}

// NewMQTTNotifier constructs a publisher-backed notifier.
func NewMQTTNotifier(client Publisher, cfg MQTTConfig, tpl *Template, logger *log.Logger) (*MQTTNotifier, error) {
	if client == nil {
		return nil, errors.New("mqtt notifier: nil client")
	}
	if cfg.Topic == "" {
		return nil, errors.New("mqtt notifier: empty topic")
	}
	if tpl == nil {
		var err error
		if tpl, err = NewTemplate(""); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &MQTTNotifier{
		client:   client,
		topic:    cfg.Topic,
		qos:      cfg.QoS,
		template: tpl,
		logger:   logger,
		timeout:  5 * time.Second,
	}, nil
}

// Notify publishes the record; failures are logged.
func (n *MQTTNotifier) Notify(_ context.Context, record alerts.Record) {
	message, err := n.template.Render(record)
	if err != nil {
		n.logger.Printf("mqtt notify render error: %v", err)
		return
	}
	payload, err := json.Marshal(mqttPayload{Record: record, Message: message})
	if err != nil {
		n.logger.Printf("mqtt notify marshal error: %v", err)
		return
	}
	topic := formatTopic(n.topic, record.Page)
	token := n.client.Publish(topic, n.qos, false, payload)
	if !token.WaitTimeout(n.timeout) {
		n.logger.Printf("mqtt notify publish timeout: topic=%s", topic)
		return
	}
	if err := token.Error(); err != nil {
		n.logger.Printf("mqtt notify publish error: topic=%s err=%v", topic, err)
	}
}

func formatTopic(pattern, page string) string {
	slug := strings.ToLower(strings.Join(strings.Fields(page), "-"))
	if slug == "" {
		slug = "general"
	}
	return strings.ReplaceAll(pattern, "{page}", slug)
}
