package linkbridge

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nerrad567/handsfree-core/internal/headset"
	"github.com/nerrad567/handsfree-core/internal/infrastructure/mqtt"
)

//go:embed confirmation.schema.json
var confirmationSchema []byte

const (
	confirmationSchemaURL = "confirmation.schema.json"

	// confirmTimeout bounds how long an inbound message waits for the
	// dispatcher.
	confirmTimeout = 5 * time.Second
)

// Confirmer accepts link-layer confirmations. *headset.Service satisfies it.
type Confirmer interface {
	Confirm(ctx context.Context, c headset.Confirmation) error
}

type confirmationMessage struct {
	Device string `json:"device"`
	Axis   string `json:"axis"`
	State  string `json:"state"`
}

// ConfirmHandler turns messages on handsfree/link/{address}/confirm into
// headset confirmations.
type ConfirmHandler struct {
	confirmer Confirmer
	schema    *jsonschema.Schema
	logger    Logger
}

// NewConfirmHandler compiles the embedded confirmation schema.
func NewConfirmHandler(confirmer Confirmer, logger Logger) (*ConfirmHandler, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(confirmationSchemaURL, bytes.NewReader(confirmationSchema)); err != nil {
		return nil, fmt.Errorf("add confirmation schema: %w", err)
	}
	schema, err := compiler.Compile(confirmationSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile confirmation schema: %w", err)
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &ConfirmHandler{confirmer: confirmer, schema: schema, logger: logger}, nil
}

// Parse validates payload and converts it to a confirmation. The address in
// the topic must match the payload's device.
func (h *ConfirmHandler) Parse(topic string, payload []byte) (headset.Confirmation, error) {
	address, err := mqtt.AddressFromConfirmation(topic)
	if err != nil {
		return headset.Confirmation{}, err
	}
	topicID, err := headset.ParseDeviceID(address)
	if err != nil {
		return headset.Confirmation{}, fmt.Errorf("confirmation topic: %w", err)
	}

	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return headset.Confirmation{}, fmt.Errorf("%w: %w", ErrInvalidConfirmation, err)
	}
	if err := h.schema.Validate(raw); err != nil {
		return headset.Confirmation{}, fmt.Errorf("%w: %w", ErrInvalidConfirmation, err)
	}

	var msg confirmationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return headset.Confirmation{}, fmt.Errorf("%w: %w", ErrInvalidConfirmation, err)
	}

	id, err := headset.ParseDeviceID(msg.Device)
	if err != nil {
		return headset.Confirmation{}, fmt.Errorf("%w: %w", ErrInvalidConfirmation, err)
	}
	if id != topicID {
		return headset.Confirmation{}, fmt.Errorf("%w: device %s published on topic for %s",
			ErrInvalidConfirmation, id, topicID)
	}

	switch headset.Axis(msg.Axis) {
	case headset.AxisConnection:
		s, err := headset.ParseConnectionState(msg.State)
		if err != nil {
			return headset.Confirmation{}, fmt.Errorf("%w: %w", ErrInvalidConfirmation, err)
		}
		return headset.ConnectionConfirmation(id, s), nil
	default:
		s, err := headset.ParseAudioState(msg.State)
		if err != nil {
			return headset.Confirmation{}, fmt.Errorf("%w: %w", ErrInvalidConfirmation, err)
		}
		return headset.AudioConfirmation(id, s), nil
	}
}

// Handle is an mqtt.MessageHandler. Errors are returned for the MQTT client
// to log.
func (h *ConfirmHandler) Handle(topic string, payload []byte) error {
	c, err := h.Parse(topic, payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
	defer cancel()

	if err := h.confirmer.Confirm(ctx, c); err != nil {
		return fmt.Errorf("confirming %s %s for %s: %w", c.Axis, stateName(c), c.Device, err)
	}
	h.logger.Debug("link confirmation applied", "device", c.Device, "axis", c.Axis, "state", stateName(c))
	return nil
}

// Subscribe attaches the handler to every headset's confirmation topic.
func (h *ConfirmHandler) Subscribe(sub Subscriber, qos byte) error {
	if err := sub.Subscribe(mqtt.Topics{}.AllLinkConfirmations(), qos, h.Handle); err != nil {
		return fmt.Errorf("subscribing to link confirmations: %w", err)
	}
	return nil
}

// Unsubscribe detaches the handler.
func (h *ConfirmHandler) Unsubscribe(sub Subscriber) error {
	return sub.Unsubscribe(mqtt.Topics{}.AllLinkConfirmations())
}

func stateName(c headset.Confirmation) string {
	if c.Axis == headset.AxisAudio {
		return headset.AudioState(c.State).String()
	}
	return headset.ConnectionState(c.State).String()
}
