// Package influxdb records thermostat telemetry in InfluxDB v2.
//
// Two measurements are written:
//
//	thermostat_attribute  address, driver, uom tags; value field
//	thermostat_runtime    address tag; one integer field per stage (minutes)
//
// Attribute points are written only when a reflected attribute changes.
// Runtime points carry the day the thermostat reported, so repeated long
// polls overwrite rather than duplicate a day.
package influxdb
