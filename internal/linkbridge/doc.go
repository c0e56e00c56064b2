// Package linkbridge connects the headset service to the outside world.
//
// Outbound, it implements headset.Link over MQTT so accepted commands reach
// the link-layer state machine, and provides notifier listeners that
// publish retained per-headset state, a transition event stream and
// InfluxDB points. Inbound, it validates link-layer confirmations against
// an embedded JSON schema and feeds them to the service.
//
//	headset.Service ──Link.Send──▶ handsfree/command/{address}
//	                 ──listener──▶ handsfree/state/{address} (retained)
//	                 ──listener──▶ handsfree/event/transition
//	                 ──listener──▶ InfluxDB headset_transition
//	headset.Service ◀──Confirm─── handsfree/link/{address}/confirm
//
// When the link layer itself is lost, ReleaseAll confirms every in-flight
// or established link as Disconnected.
//
// The MQTT and InfluxDB clients are consumed through small interfaces
// (Publisher, Subscriber, PointWriter) so the package is testable without
// a broker.
package linkbridge
