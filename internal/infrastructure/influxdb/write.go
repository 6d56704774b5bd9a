package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names written by the relay.
const (
	// MeasurementReadings holds numeric values extracted from query responses.
	MeasurementReadings = "relay_readings"

	// MeasurementDispatches counts dispatched codes by class.
	MeasurementDispatches = "relay_dispatches"
)

// Reading is one numeric value extracted from a device response.
type Reading struct {
	// Code is the query code that requested the value (e.g., "#100").
	Code string

	// Topic is the response topic the value arrived on.
	Topic string

	// KeyPath is the dotted path the value was extracted from.
	KeyPath string

	// Value is the extracted number.
	Value float64

	// Time is when the response arrived. Zero means now.
	Time time.Time
}

// WriteReading records a query reading in the relay_readings measurement.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Example:
//
//	client.WriteReading(influxdb.Reading{
//	    Code:    "#100",
//	    Topic:   "ch4_01/stat/STATUS8",
//	    KeyPath: "StatusSNS.SI7021.Temperature",
//	    Value:   21.5,
//	})
func (c *Client) WriteReading(r Reading) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(readingPoint(r))
}

// WriteDispatch records one dispatched code in the relay_dispatches
// measurement, tagged with its class ("action", "query" or "unrecognised").
func (c *Client) WriteDispatch(code, class string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(dispatchPoint(code, class, at))
}

// readingPoint builds the point for a reading.
func readingPoint(r Reading) *write.Point {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(
		MeasurementReadings,
		map[string]string{
			"code":     r.Code,
			"topic":    r.Topic,
			"key_path": r.KeyPath,
		},
		map[string]interface{}{
			"value": r.Value,
		},
		ts,
	)
}

// dispatchPoint builds the point for a dispatched code.
func dispatchPoint(code, class string, at time.Time) *write.Point {
	if at.IsZero() {
		at = time.Now()
	}
	return write.NewPoint(
		MeasurementDispatches,
		map[string]string{
			"code":  code,
			"class": class,
		},
		map[string]interface{}{
			"count": 1,
		},
		at,
	)
}
