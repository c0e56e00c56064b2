// Package influxdb provides optional InfluxDB connectivity for the
// hands-free service.
//
// It wraps influxdb-client-go v2's batched, non-blocking write API. The
// service records one point per headset transition so connection and audio
// history can be graphed alongside other telemetry.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // metrics are optional
//	}
//	defer client.Close()
//
//	client.WritePoint("headset_transition", tags, fields, ev.At)
//
// Write failures are delivered asynchronously via SetOnError.
package influxdb
