// Package metrics exposes bridge activity as Prometheus metrics.
//
// Metrics live on a private registry rather than the global default so
// that tests and multiple bridges in one process do not collide.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "venstar"

// Poll results as recorded in PollsTotal.
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
)

// Metrics holds the bridge's collectors.
type Metrics struct {
	registry *prometheus.Registry

	pollsTotal    *prometheus.CounterVec
	pollDuration  *prometheus.HistogramVec
	lastContact   *prometheus.GaugeVec
	temperature   *prometheus.GaugeVec
	setpoint      *prometheus.GaugeVec
	commandsTotal *prometheus.CounterVec
	eventsTotal   *prometheus.CounterVec
	thermostats   prometheus.Gauge
}

// New creates the collectors and registers them, together with the Go
// runtime and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "polls_total",
				Help:      "device polls by cycle and result",
			},
			[]string{"cycle", "result"}),
		pollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "poll_duration_seconds",
				Help:      "device poll latency",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2, 4, 8},
			},
			[]string{"cycle"}),
		lastContact: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_contact",
				Help:      "last successful poll as unix timestamp",
			},
			[]string{"address", "name"}),
		temperature: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "temperature",
				Help:      "space or sensor temperature in the thermostat's display units",
			},
			[]string{"address", "name"}),
		setpoint: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "setpoint",
				Help:      "heat and cool setpoints in the thermostat's display units",
			},
			[]string{"address", "kind"}),
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_total",
				Help:      "controller commands by name and outcome",
			},
			[]string{"command", "result"}),
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "reported failure events by kind",
			},
			[]string{"kind"}),
		thermostats: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "thermostats",
				Help:      "thermostats being polled",
			}),
	}

	m.registry.MustRegister(
		m.pollsTotal,
		m.pollDuration,
		m.lastContact,
		m.temperature,
		m.setpoint,
		m.commandsTotal,
		m.eventsTotal,
		m.thermostats,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry backing Handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObservePoll records one device poll. cycle is "short" or "long".
func (m *Metrics) ObservePoll(cycle string, took time.Duration, err error) {
	result := ResultOK
	if err != nil {
		result = ResultFailed
	}
	m.pollsTotal.With(prometheus.Labels{"cycle": cycle, "result": result}).Inc()
	m.pollDuration.With(prometheus.Labels{"cycle": cycle}).Observe(took.Seconds())
}

// Contact stamps the last successful contact with a thermostat.
func (m *Metrics) Contact(address, name string, at time.Time) {
	m.lastContact.With(prometheus.Labels{"address": address, "name": name}).Set(float64(at.Unix()))
}

// Temperature records a thermostat or sensor temperature.
func (m *Metrics) Temperature(address, name string, value float64) {
	m.temperature.With(prometheus.Labels{"address": address, "name": name}).Set(value)
}

// Setpoints records the current heat and cool setpoints.
func (m *Metrics) Setpoints(address string, heat, cool float64) {
	m.setpoint.With(prometheus.Labels{"address": address, "kind": "heat"}).Set(heat)
	m.setpoint.With(prometheus.Labels{"address": address, "kind": "cool"}).Set(cool)
}

// Command counts a controller command. result is "sent", "rejected" or "failed".
func (m *Metrics) Command(command, result string) {
	m.commandsTotal.With(prometheus.Labels{"command": command, "result": result}).Inc()
}

// Event counts a reported failure event.
func (m *Metrics) Event(kind string) {
	m.eventsTotal.With(prometheus.Labels{"kind": kind}).Inc()
}

// SetThermostats sets the number of polled thermostats.
func (m *Metrics) SetThermostats(n int) {
	m.thermostats.Set(float64(n))
}

// Forget drops the per-device series of a removed thermostat.
func (m *Metrics) Forget(address string) {
	m.lastContact.DeletePartialMatch(prometheus.Labels{"address": address})
	m.temperature.DeletePartialMatch(prometheus.Labels{"address": address})
	m.setpoint.DeletePartialMatch(prometheus.Labels{"address": address})
}
