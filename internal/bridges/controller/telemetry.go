package controller

import (
	"context"
	"time"

	"github.com/nerrad567/venstar-bridge/internal/reflector"
)

// AttributeWriter stores attribute samples. *influxdb.Client satisfies it.
type AttributeWriter interface {
	WriteAttribute(address, driver string, value float64, uom int, at time.Time)
}

// TelemetryPublisher records every reflected attribute change as a time
// series point.
type TelemetryPublisher struct {
	writer AttributeWriter
}

// NewTelemetryPublisher wraps w as a reflector.Publisher.
func NewTelemetryPublisher(w AttributeWriter) *TelemetryPublisher {
	return &TelemetryPublisher{writer: w}
}

// PublishUpdate writes one point per changed attribute.
func (p *TelemetryPublisher) PublishUpdate(_ context.Context, u reflector.Update) {
	for _, a := range u.Attributes {
		p.writer.WriteAttribute(u.Address, a.Driver, a.Value, a.UOM, u.Timestamp)
	}
}
