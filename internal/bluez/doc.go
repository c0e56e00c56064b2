// Package bluez watches BlueZ on the system D-Bus and reports what the
// radio actually did as headset confirmations.
//
// Two properties are followed:
//
//	org.bluez.Device1.Connected         true/false → connected/disconnected
//	org.bluez.MediaTransport1.State     active/pending/idle → audio connected/connecting/disconnected
//
// The device address is taken from the object path
// (/org/bluez/hci0/dev_00_1A_7D_DA_71_13[/...]). Only objects under the
// configured adapter are considered.
//
// On start the watcher reads BlueZ's managed objects once so headsets that
// were already connected are reported, then follows PropertiesChanged
// signals until its context ends.
package bluez
