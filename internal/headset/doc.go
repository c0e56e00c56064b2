// Package headset implements the hands-free connection and audio gatekeeper.
//
// It decides, for every inbound command (connect, disconnect, voice
// recognition, audio, virtual call, call-state updates), whether the command
// is legal for the current connection and audio state of the target device,
// and if so records exactly one optimistic transition and forwards the
// command to the link layer that actually negotiates it.
//
// # Architecture
//
//	caller ──▶ Service ──▶ Gate ──▶ Dispatcher ──▶ Registry
//	                        │           │  │
//	                        ▼           │  └──▶ Notifier ──▶ listeners
//	                  PriorityStore     ▼
//	                                  Link (MQTT, ...)
//
//	link layer ──▶ Confirm ──▶ Dispatcher (authoritative state)
//
// The Dispatcher is the only writer of the Registry. Requests and link
// confirmations share one FIFO queue, so transitions for a device are totally
// ordered. Each request carries the prior state the Gate observed; if another
// transition got there first the request is dropped as stale, but the
// caller's true result stands. The Registry is an optimistic mirror and the
// link layer is the source of truth.
//
// # Invariants
//
//   - Audio may only move toward AudioConnected while the device is
//     Connected. Winding audio down is allowed in any connection state.
//   - A confirmed connection state other than Connected or Disconnecting
//     clears audio before the connection event.
//   - A virtual call is only tracked on a Connected device and blocks
//     ConnectAudio while it lasts.
//   - Priority lives in the PriorityStore and outlives registry records.
//
// # Usage
//
//	svc := headset.NewService(headset.NewSQLitePriorityStore(db.DB), link, headset.Options{})
//	svc.SetLogger(log)
//	if err := svc.Start(ctx); err != nil {
//	    return err
//	}
//	defer svc.Stop()
//
//	if svc.Connect(ctx, id) {
//	    // link layer will confirm via svc.Confirm
//	}
package headset
