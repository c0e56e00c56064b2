package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every topic the service uses.
const TopicPrefix = "handsfree"

// Topics builds the service's MQTT topics:
//
//	handsfree/command/{address}          commands for one headset's link
//	handsfree/command/session            session-wide commands (call, roam, battery)
//	handsfree/state/{address}            retained connection/audio snapshot
//	handsfree/event/transition           every state transition
//	handsfree/link/{address}/confirm     confirmations from the link layer
//	handsfree/system/status              retained online/offline status
type Topics struct{}

// DeviceCommand returns the command topic for one headset.
//
// Example: handsfree/command/00:1A:7D:DA:71:13
func (Topics) DeviceCommand(address string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, address)
}

// SessionCommand returns the topic for commands not tied to a headset.
func (Topics) SessionCommand() string {
	return TopicPrefix + "/command/session"
}

// DeviceState returns the retained state topic for one headset.
func (Topics) DeviceState(address string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, address)
}

// TransitionEvent returns the topic carrying every transition.
func (Topics) TransitionEvent() string {
	return TopicPrefix + "/event/transition"
}

// LinkConfirmation returns the topic the link layer publishes
// confirmations for one headset on.
func (Topics) LinkConfirmation(address string) string {
	return fmt.Sprintf("%s/link/%s/confirm", TopicPrefix, address)
}

// AllLinkConfirmations returns a filter matching every headset's
// confirmation topic.
func (Topics) AllLinkConfirmations() string {
	return TopicPrefix + "/link/+/confirm"
}

// AllCommands returns a filter matching device and session commands.
func (Topics) AllCommands() string {
	return TopicPrefix + "/command/+"
}

// SystemStatus returns the service status topic (LWT target).
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// AddressFromConfirmation extracts the address segment from a topic built
// by LinkConfirmation.
func AddressFromConfirmation(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefix || parts[1] != "link" || parts[3] != "confirm" || parts[2] == "" {
		return "", fmt.Errorf("%w: not a confirmation topic: %q", ErrInvalidTopic, topic)
	}
	return parts[2], nil
}
