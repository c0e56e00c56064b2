// Package mqtt provides MQTT client connectivity for the hands-free service.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retained-state support
//   - Subscriptions that survive reconnects
//   - Last Will and Testament for offline detection
//
// # Architecture
//
// MQTT is the bus between the connection/audio gatekeeper and the link
// layer that actually drives the radio:
//
//	headset service → handsfree/command/... → link layer
//	headset service ← handsfree/link/+/confirm ← link layer
//
// Topic builders live on Topics.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllLinkConfirmations(), 1,
//	    func(topic string, payload []byte) error {
//	        address, err := mqtt.AddressFromConfirmation(topic)
//	        ...
//	    })
package mqtt
