package linkbridge

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/handsfree-core/internal/headset"
	"github.com/nerrad567/handsfree-core/internal/infrastructure/mqtt"
)

const (
	devA headset.DeviceID = "00:1A:7D:DA:71:13"
	devB headset.DeviceID = "00:1A:7D:DA:71:14"
)

type published struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// fakePublisher records publishes and optionally fails or blocks them.
type fakePublisher struct {
	mu    sync.Mutex
	msgs  []published
	err   error
	block chan struct{}
	sent  chan published
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{sent: make(chan published, 64)}
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	msg := published{topic: topic, payload: payload, qos: qos, retained: retained}
	p.msgs = append(p.msgs, msg)
	select {
	case p.sent <- msg:
	default:
	}
	return nil
}

func (p *fakePublisher) all() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}

// next waits for a publish on topic, skipping others.
func (p *fakePublisher) next(t *testing.T, topic string) published {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-p.sent:
			if msg.topic == topic {
				return msg
			}
		case <-deadline:
			t.Fatalf("no publish on %s", topic)
			return published{}
		}
	}
}

func TestMQTTLink_SendDeviceCommand(t *testing.T) {
	pub := newFakePublisher()
	link := NewMQTTLink(pub, 1)

	at := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	err := link.Send(context.Background(), headset.LinkCommand{
		ID:       "cmd-1",
		Kind:     headset.CommandConnect,
		Device:   devA,
		IssuedAt: at,
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msgs := pub.all()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	msg := msgs[0]
	if msg.topic != "handsfree/command/00:1A:7D:DA:71:13" {
		t.Errorf("topic = %q", msg.topic)
	}
	if msg.retained || msg.qos != 1 {
		t.Errorf("qos/retained = %d/%v, want 1/false", msg.qos, msg.retained)
	}

	var body commandMessage
	if err := json.Unmarshal(msg.payload, &body); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if body.ID != "cmd-1" || body.Command != headset.CommandConnect || body.Device != string(devA) {
		t.Errorf("body = %+v", body)
	}
	if body.IssuedAt != "2026-10-19T09:00:00Z" {
		t.Errorf("issued_at = %q", body.IssuedAt)
	}
}

func TestMQTTLink_SendSessionCommand(t *testing.T) {
	pub := newFakePublisher()
	link := NewMQTTLink(pub, 0)

	err := link.Send(context.Background(), headset.LinkCommand{
		ID:      "cmd-2",
		Kind:    headset.CommandBatteryChanged,
		Payload: headset.BatteryLevel{Level: 3, Scale: 5},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	msg := pub.all()[0]
	if msg.topic != "handsfree/command/session" {
		t.Errorf("topic = %q", msg.topic)
	}
	var body struct {
		Device  string               `json:"device"`
		Payload headset.BatteryLevel `json:"payload"`
	}
	if err := json.Unmarshal(msg.payload, &body); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if body.Device != "" {
		t.Errorf("session command carries device %q", body.Device)
	}
	if body.Payload.Level != 3 || body.Payload.Scale != 5 {
		t.Errorf("payload = %+v", body.Payload)
	}
}

func TestMQTTLink_PublishError(t *testing.T) {
	pub := newFakePublisher()
	pub.err = mqtt.ErrNotConnected
	link := NewMQTTLink(pub, 1)

	err := link.Send(context.Background(), headset.LinkCommand{Kind: headset.CommandDisconnect, Device: devA})
	if !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

func TestMQTTLink_ContextEnds(t *testing.T) {
	pub := newFakePublisher()
	pub.block = make(chan struct{})
	defer close(pub.block)
	link := NewMQTTLink(pub, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := link.Send(ctx, headset.LinkCommand{Kind: headset.CommandConnect, Device: devA})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send() error = %v, want DeadlineExceeded", err)
	}

	cancelled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if err := link.Send(cancelled, headset.LinkCommand{Kind: headset.CommandConnect, Device: devA}); !errors.Is(err, context.Canceled) {
		t.Errorf("Send() with cancelled ctx = %v, want Canceled", err)
	}
}
