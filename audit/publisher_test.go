package audit

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// mockToken implements mqtt.Token with an immediate result.
type mockToken struct{ err error }

func (t *mockToken) Wait() bool                       { return true }
func (t *mockToken) WaitTimeout(time.Duration) bool   { return true }
func (t *mockToken) Done() <-chan struct{}            { ch := make(chan struct{}); close(ch); return ch }
func (t *mockToken) Error() error                     { return t.err }

type mockMessage struct {
	Topic   string
	Payload []byte
	Retain  bool
}

// mockMQTT implements mqtt.Client recording published messages.
type mockMQTT struct {
	mu        sync.Mutex
	connected bool
	published []mockMessage
}

func (c *mockMQTT) IsConnected() bool      { return c.connected }
func (c *mockMQTT) IsConnectionOpen() bool { return c.connected }
func (c *mockMQTT) Connect() mqtt.Token    { c.connected = true; return &mockToken{} }
func (c *mockMQTT) Disconnect(uint)        { c.connected = false }

func (c *mockMQTT) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return &mockToken{err: mqtt.ErrNotConnected}
	}
	data, _ := payload.([]byte)
	c.published = append(c.published, mockMessage{Topic: topic, Payload: data, Retain: retained})
	return &mockToken{}
}

func (c *mockMQTT) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token { return &mockToken{} }
func (c *mockMQTT) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return &mockToken{}
}
func (c *mockMQTT) Unsubscribe(...string) mqtt.Token            { return &mockToken{} }
func (c *mockMQTT) AddRoute(string, mqtt.MessageHandler)        {}
func (c *mockMQTT) OptionsReader() mqtt.ClientOptionsReader     { return mqtt.ClientOptionsReader{} }

func (c *mockMQTT) messages() []mockMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]mockMessage, len(c.published))
	copy(out, c.published)
	return out
}

func publishedRecord(t *testing.T) *MeasurementRecord {
	t.Helper()
	p := testPlan("piso 1", 200, 200)
	p.AddPoint(50, 50)
	rec, _, err := p.SetMeasurements(1, [4]float64{600, 600, 600, 600}, "", testEntry(), DefaultMeasurementRule())
	if err != nil {
		t.Fatalf("SetMeasurements: %v", err)
	}
	return rec
}

func TestPublishMeasurement(t *testing.T) {
	client := &mockMQTT{connected: true}
	pub := NewPublisher(client, "luxaudit")

	rec := publishedRecord(t)
	pub.PublishMeasurement("Bodega", "piso 1", rec, Summary{TotalPoints: 1, Conformes: 1})

	msgs := client.messages()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}

	// Event stream first, then the retained plan rollup.
	if msgs[0].Topic != "luxaudit/events" {
		t.Errorf("event topic = %q", msgs[0].Topic)
	}
	if msgs[0].Retain {
		t.Error("event message must not be retained")
	}
	var event MeasurementEvent
	if err := json.Unmarshal(msgs[0].Payload, &event); err != nil {
		t.Fatalf("event payload: %v", err)
	}
	if event.Project != "Bodega" || event.Point != 1 || event.Verdict != VerdictConforme {
		t.Errorf("event = %+v", event)
	}

	if msgs[1].Topic != "luxaudit/Bodega/piso 1" {
		t.Errorf("rollup topic = %q", msgs[1].Topic)
	}
	if !msgs[1].Retain {
		t.Error("plan rollup must be retained")
	}
	var rollup PlanSummaryEvent
	if err := json.Unmarshal(msgs[1].Payload, &rollup); err != nil {
		t.Fatalf("rollup payload: %v", err)
	}
	if rollup.Summary.Conformes != 1 {
		t.Errorf("rollup = %+v", rollup)
	}
}

func TestPublisherDisabled(t *testing.T) {
	pub := NewPublisher(nil, "")
	if pub.Enabled() {
		t.Fatal("nil client must disable publishing")
	}
	// Must be a safe no-op.
	pub.PublishMeasurement("p", "a", publishedRecord(t), Summary{})
	pub.Disconnect()
}

func TestPublisherSkipsWhenDisconnected(t *testing.T) {
	client := &mockMQTT{connected: false}
	pub := NewPublisher(client, "luxaudit")

	pub.PublishMeasurement("p", "a", publishedRecord(t), Summary{})
	if n := len(client.messages()); n != 0 {
		t.Errorf("published %d messages while disconnected", n)
	}
}

func TestPublisherDefaultPrefix(t *testing.T) {
	client := &mockMQTT{connected: true}
	pub := NewPublisher(client, "")

	pub.PublishMeasurement("p", "a", publishedRecord(t), Summary{})
	msgs := client.messages()
	if len(msgs) == 0 || !strings.HasPrefix(msgs[0].Topic, "luxaudit/") {
		t.Errorf("messages = %+v", msgs)
	}
}
