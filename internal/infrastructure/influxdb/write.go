package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementAttribute = "thermostat_attribute"
	MeasurementRuntime   = "thermostat_runtime"
)

// WriteAttribute records one reflected node attribute.
//
// Parameters:
//   - address: Controller node address (thermostat or sensor)
//   - driver: Attribute name, e.g. "ST" or "CLISPH"
//   - value: The reflected value
//   - uom: Unit of measure code sent to the controller
func (c *Client) WriteAttribute(address, driver string, value float64, uom int, at time.Time) {
	c.WritePointWithTime(MeasurementAttribute,
		map[string]string{
			"address": address,
			"driver":  driver,
			"uom":     strconv.Itoa(uom),
		},
		map[string]any{"value": value},
		at,
	)
}

// WriteRuntime records one day of equipment runtime as reported by the
// thermostat. Minutes are keyed by stage name (heat1, cool1, fc, ...).
func (c *Client) WriteRuntime(address string, day time.Time, minutes map[string]int) {
	if len(minutes) == 0 {
		return
	}
	fields := make(map[string]any, len(minutes))
	for stage, m := range minutes {
		fields[stage] = m
	}
	c.WritePointWithTime(MeasurementRuntime, map[string]string{"address": address}, fields, day)
}

// WritePoint writes a point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime writes a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
