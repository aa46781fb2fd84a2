package controller

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/venstar-bridge/internal/infrastructure/mqtt"
)

// defaultHealthInterval is used when no interval is configured.
const defaultHealthInterval = 30 * time.Second

// HealthPublisher publishes health messages. *mqtt.Client satisfies it.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// FleetCounter reports how many thermostats are known and reachable.
type FleetCounter func() (total, reachable int)

// HealthReporter publishes the bridge's health at a fixed interval.
type HealthReporter struct {
	clientID  string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	counter   FleetCounter

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	ClientID string
	Version  string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher
	Counter   FleetCounter
}

// NewHealthReporter creates a health reporter. Call Start to begin.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	return &HealthReporter{
		clientID:  cfg.ClientID,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		counter:   cfg.Counter,
		done:      make(chan struct{}),
	}
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	total, reachable := h.counts()
	if reachable < total {
		return HealthDegraded, "thermostats unreachable"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) counts() (int, int) {
	if h.counter == nil {
		return 0, 0
	}
	return h.counter()
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}
	total, reachable := h.counts()
	msg := HealthMessage{
		Status:      status,
		ClientID:    h.clientID,
		Version:     h.version,
		Reason:      reason,
		Uptime:      int64(time.Since(h.startTime).Seconds()),
		Thermostats: total,
		Reachable:   reachable,
		Timestamp:   time.Now().UTC(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.Health(), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
