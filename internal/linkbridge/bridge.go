package linkbridge

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/handsfree-core/internal/headset"
	"github.com/nerrad567/handsfree-core/internal/infrastructure/mqtt"
)

// Publisher is the part of mqtt.Client used for outbound messages.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Subscriber is the part of mqtt.Client used for inbound messages.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the subset of logging.Logger used here.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// commandMessage is the wire form of a headset.LinkCommand.
type commandMessage struct {
	ID       string              `json:"id"`
	Command  headset.CommandKind `json:"command"`
	Device   string              `json:"device,omitempty"`
	Payload  any                 `json:"payload,omitempty"`
	IssuedAt string              `json:"issued_at"`
}

// MQTTLink sends accepted commands to the link layer over MQTT.
// Device commands go to handsfree/command/{address}, session-global
// commands to handsfree/command/session.
type MQTTLink struct {
	pub Publisher
	qos byte
}

// NewMQTTLink creates a link publishing with the given QoS.
func NewMQTTLink(pub Publisher, qos byte) *MQTTLink {
	return &MQTTLink{pub: pub, qos: qos}
}

// Send implements headset.Link.
//
// The publish itself is bounded by the MQTT client's own timeout; Send
// returns early with the context error if ctx ends first.
func (l *MQTTLink) Send(ctx context.Context, cmd headset.LinkCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	topic := mqtt.Topics{}.SessionCommand()
	if cmd.Device != "" {
		topic = mqtt.Topics{}.DeviceCommand(cmd.Device.String())
	}

	payload, err := json.Marshal(commandMessage{
		ID:       cmd.ID,
		Command:  cmd.Kind,
		Device:   cmd.Device.String(),
		Payload:  cmd.Payload,
		IssuedAt: cmd.IssuedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("encoding %s command: %w", cmd.Kind, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- l.pub.Publish(topic, payload, l.qos, false)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("publishing %s command to %s: %w", cmd.Kind, topic, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
