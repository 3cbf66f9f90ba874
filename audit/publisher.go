package audit

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MeasurementEvent is the payload published when a point's readings
// are recorded or replaced.
type MeasurementEvent struct {
	Project   string     `json:"project"`
	Plan      string     `json:"plan"`
	Point     int        `json:"point"`
	Average   float64    `json:"average"`
	Verdict   Verdict    `json:"verdict"`
	Timestamp int64      `json:"timestamp"`
	Readings  [4]float64 `json:"readings"`
}

// PlanSummaryEvent is the retained per-plan rollup published alongside
// each measurement event.
type PlanSummaryEvent struct {
	Project   string  `json:"project"`
	Plan      string  `json:"plan"`
	Summary   Summary `json:"summary"`
	Timestamp int64   `json:"timestamp"`
}

// Publisher pushes measurement events to MQTT. A nil client disables
// publishing, so callers never have to gate on configuration.
type Publisher struct {
	client mqtt.Client
	prefix string
	qos    byte
	mu     sync.Mutex
}

// NewPublisher creates a publisher with the given topic prefix. Client
// may be nil to disable publishing.
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if prefix == "" {
		prefix = "luxaudit"
	}
	return &Publisher{
		client: client,
		prefix: prefix,
		qos:    0,
	}
}

// ConnectPublisher dials the broker from config and returns a ready
// publisher. Returns a disabled publisher when no broker is configured.
func ConnectPublisher(cfg MQTTConfig) (*Publisher, error) {
	if cfg.Broker == "" {
		return NewPublisher(nil, cfg.PublishPrefix), nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(60 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if token.WaitTimeout(10*time.Second) && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	log.Printf("MQTT publisher connected to %s", cfg.Broker)
	return NewPublisher(client, cfg.PublishPrefix), nil
}

// Enabled reports whether events will actually reach a broker.
func (p *Publisher) Enabled() bool {
	return p.client != nil
}

// PublishMeasurement publishes a measurement event for one point plus
// the retained plan summary. Errors are logged, not returned to the
// capture path.
func (p *Publisher) PublishMeasurement(project, plan string, rec *MeasurementRecord, summary Summary) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}

	now := time.Now().Unix()

	event := MeasurementEvent{
		Project:   project,
		Plan:      plan,
		Point:     rec.Index,
		Average:   rec.Average,
		Verdict:   rec.Verdict,
		Timestamp: now,
		Readings:  rec.Readings,
	}
	p.publish(fmt.Sprintf("%s/events", p.prefix), false, event)

	rollup := PlanSummaryEvent{
		Project:   project,
		Plan:      plan,
		Summary:   summary,
		Timestamp: now,
	}
	p.publish(fmt.Sprintf("%s/%s/%s", p.prefix, project, plan), true, rollup)
}

func (p *Publisher) publish(topic string, retain bool, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Error marshaling MQTT payload for %s: %v", topic, err)
		return
	}

	p.mu.Lock()
	token := p.client.Publish(topic, p.qos, retain, data)
	p.mu.Unlock()

	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		log.Printf("Error publishing to %s: %v", topic, token.Error())
	}
}

// Disconnect closes the broker connection if one exists.
func (p *Publisher) Disconnect() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
