// Package influxdb records relay readings in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, non-blocking batched writes, and health monitoring.
//
// Numeric query replies (temperatures, voltages and the like) are written
// to the relay_readings measurement so they can be graphed alongside the
// rest of the station's telemetry. Dispatched codes are counted in
// relay_dispatches.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // readings are optional
//	}
//	defer client.Close()
//
//	client.WriteReading(influxdb.Reading{Code: "#100", Topic: "ch4_01/stat/STATUS8",
//	    KeyPath: "StatusSNS.SI7021.Temperature", Value: 21.5})
//
// Write errors are delivered asynchronously through SetOnError.
package influxdb
