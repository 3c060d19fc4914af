package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/voltsight/twin-gateway/internal/models"
)

// Alert is the payload published for elevated predictions.
type Alert struct {
	UID          string            `json:"uid"`
	VehicleModel string            `json:"vehicleModel"`
	AlertLevel   models.AlertLevel `json:"alert_level"`
	SOHScore     int               `json:"soh_score"`
	RUL          int               `json:"rul"`
	NextSteps    string            `json:"next_steps"`
	IssuedAt     time.Time         `json:"issuedAt"`
}

// NewAlert builds an alert from a completed prediction.
func NewAlert(identity models.Identity, in models.GuidedInput, result models.PredictionResult, at time.Time) Alert {
	return Alert{
		UID:          identity.UID,
		VehicleModel: in.VehicleModel,
		AlertLevel:   result.AlertLevel,
		SOHScore:     result.SOHScore,
		RUL:          result.RUL,
		NextSteps:    result.NextSteps,
		IssuedAt:     at.UTC(),
	}
}

// MQTTConfig holds broker connection and topic settings.
type MQTTConfig struct {
	Broker    string
	ClientID  string
	Username  string
	Password  string
	Topic     string
	QoS       byte
	QueueSize int
}

// publisher is the subset of mqtt.Client used for fan-out.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTPublisher queues alerts and publishes them from a single goroutine so the request
// path never blocks on the broker.
type MQTTPublisher struct {
	client         publisher
	conn           mqtt.Client
	topic          string
	qos            byte
	queue          chan Alert
	logger         *slog.Logger
	publishTimeout time.Duration
}

// NewMQTTPublisher connects to the broker and returns a publisher; call Start to drain it.
func NewMQTTPublisher(cfg MQTTConfig, logger *slog.Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker is required")
	}
	if logger == nil {
		logger = slog.Default()
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
		logger.Warn("mqtt connection lost", slog.Any("error", err))
	})
	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		logger.Info("mqtt connected", slog.String("broker", cfg.Broker))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker %s: %w", cfg.Broker, token.Error())
	}

	p := newMQTTPublisher(client, cfg, logger)
	p.conn = client
	return p, nil
}

func newMQTTPublisher(client publisher, cfg MQTTConfig, logger *slog.Logger) *MQTTPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	topic := cfg.Topic
	if topic == "" {
		topic = "ev/battery/alerts/{alert_level}"
	}
	return &MQTTPublisher{
		client:         client,
		topic:          topic,
		qos:            cfg.QoS,
		queue:          make(chan Alert, size),
		logger:         logger,
		publishTimeout: 5 * time.Second,
	}
}

// Notify enqueues alert. It returns false when the queue is full and the alert is dropped.
func (p *MQTTPublisher) Notify(alert Alert) bool {
	select {
	case p.queue <- alert:
		return true
	default:
		p.logger.Warn("alert queue full, dropping alert", slog.String("uid", alert.UID), slog.String("alert_level", string(alert.AlertLevel)))
		return false
	}
}

// Start publishes queued alerts until ctx is cancelled.
func (p *MQTTPublisher) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case alert := <-p.queue:
			if err := p.publish(alert); err != nil {
				p.logger.Error("publish alert failed", slog.String("uid", alert.UID), slog.Any("error", err))
			}
		}
	}
}

func (p *MQTTPublisher) publish(alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	topic := Topic(p.topic, alert)
	token := p.client.Publish(topic, p.qos, false, payload)
	if !token.WaitTimeout(p.publishTimeout) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	p.logger.Debug("alert published", slog.String("topic", topic))
	return nil
}

// Close disconnects from the broker when this publisher owns the connection.
func (p *MQTTPublisher) Close() {
	if p.conn != nil {
		p.conn.Disconnect(250)
	}
}

// Topic expands the {alert_level} and {uid} placeholders in template.
func Topic(template string, alert Alert) string {
	return strings.NewReplacer(
		"{alert_level}", string(alert.AlertLevel),
		"{uid}", alert.UID,
	).Replace(template)
}
