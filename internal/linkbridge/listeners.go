package linkbridge

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/handsfree-core/internal/headset"
	"github.com/nerrad567/handsfree-core/internal/infrastructure/mqtt"
)

// TransitionMeasurement is the InfluxDB measurement written per transition.
const TransitionMeasurement = "headset_transition"

// DeviceSource looks up the current record for a headset.
// *headset.Service satisfies it.
type DeviceSource interface {
	Device(id headset.DeviceID) (headset.DeviceRecord, bool)
}

// PointWriter is the part of influxdb.Client used for metrics.
type PointWriter interface {
	WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time)
}

// stateMessage is the retained per-headset snapshot.
type stateMessage struct {
	Address          string `json:"address"`
	ConnectionState  string `json:"connection_state"`
	AudioState       string `json:"audio_state"`
	VoiceRecognition bool   `json:"voice_recognition"`
	VirtualCall      bool   `json:"virtual_call"`
	UpdatedAt        string `json:"updated_at"`
}

// transitionMessage is published on handsfree/event/transition.
type transitionMessage struct {
	Device   string `json:"device"`
	Axis     string `json:"axis"`
	From     string `json:"from"`
	To       string `json:"to"`
	FromCode int    `json:"from_code"`
	ToCode   int    `json:"to_code"`
	At       string `json:"at"`
}

func newTransitionMessage(ev headset.TransitionEvent) transitionMessage {
	return transitionMessage{
		Device:   ev.Device.String(),
		Axis:     string(ev.Axis),
		From:     ev.FromName(),
		To:       ev.ToName(),
		FromCode: ev.From,
		ToCode:   ev.To,
		At:       ev.At.UTC().Format(time.RFC3339Nano),
	}
}

// StateListener publishes the headset's full record as a retained message
// after every transition, so late subscribers see current state.
//
// The record is read when the listener runs, so it may already include
// later transitions; each publish is still a consistent snapshot.
func StateListener(pub Publisher, devices DeviceSource, qos byte, logger Logger) headset.Listener {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(ev headset.TransitionEvent) {
		rec, ok := devices.Device(ev.Device)
		if !ok {
			rec = recordFromEvent(ev)
		}
		payload, err := json.Marshal(stateMessage{
			Address:          rec.ID.String(),
			ConnectionState:  rec.Connection.String(),
			AudioState:       rec.Audio.String(),
			VoiceRecognition: rec.VoiceRecognition,
			VirtualCall:      rec.VirtualCall,
			UpdatedAt:        rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			logger.Warn("encoding headset state failed", "device", ev.Device, "error", err)
			return
		}
		topic := mqtt.Topics{}.DeviceState(ev.Device.String())
		if err := pub.Publish(topic, payload, qos, true); err != nil {
			logger.Warn("publishing headset state failed", "topic", topic, "error", err)
		}
	}
}

// recordFromEvent is the fallback when the device was evicted before the
// listener ran.
func recordFromEvent(ev headset.TransitionEvent) headset.DeviceRecord {
	rec := headset.DeviceRecord{
		ID:         ev.Device,
		Connection: headset.StateDisconnected,
		Audio:      headset.AudioDisconnected,
		UpdatedAt:  ev.At,
	}
	if ev.Axis == headset.AxisAudio {
		rec.Audio = headset.AudioState(ev.To)
	} else {
		rec.Connection = headset.ConnectionState(ev.To)
	}
	return rec
}

// EventListener publishes every transition on handsfree/event/transition.
func EventListener(pub Publisher, qos byte, logger Logger) headset.Listener {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(ev headset.TransitionEvent) {
		payload, err := json.Marshal(newTransitionMessage(ev))
		if err != nil {
			logger.Warn("encoding transition failed", "device", ev.Device, "error", err)
			return
		}
		if err := pub.Publish(mqtt.Topics{}.TransitionEvent(), payload, qos, false); err != nil {
			logger.Warn("publishing transition failed", "device", ev.Device, "error", err)
		}
	}
}

// MetricsListener writes one headset_transition point per transition,
// tagged by device and axis.
func MetricsListener(w PointWriter) headset.Listener {
	return func(ev headset.TransitionEvent) {
		w.WritePoint(TransitionMeasurement,
			map[string]string{
				"device": ev.Device.String(),
				"axis":   string(ev.Axis),
			},
			map[string]any{
				"from":      ev.FromName(),
				"to":        ev.ToName(),
				"from_code": ev.From,
				"to_code":   ev.To,
			},
			ev.At,
		)
	}
}
