package hue

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// HealthStatus is the operational status reported for the bridge link.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStarting HealthStatus = "starting"
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published retained on the bridge health topic.
type HealthMessage struct {
	Bridge         string       `json:"bridge"`
	Timestamp      time.Time    `json:"timestamp"`
	Status         HealthStatus `json:"status"`
	Version        string       `json:"version"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	Address        string       `json:"address,omitempty"`
	BridgeID       string       `json:"bridge_id,omitempty"`
	LightsAssigned int          `json:"lights_assigned"`
	Reason         string       `json:"reason,omitempty"`
}

// HealthPublisher publishes health messages. Implemented by *mqtt.Client.
type HealthPublisher interface {
	PublishRetained(topic string, payload []byte) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Topic is where health messages are published.
	Topic string

	// Version is the service version.
	Version string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher
}

// HealthReporter publishes the state of the bridge link at a fixed interval.
type HealthReporter struct {
	topic     string
	version   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher

	// Bridge details (set after setup)
	bridge         Bridge
	lightsAssigned int
	setupErr       string
	ready          bool
	stateMu        sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// NewHealthReporter creates a reporter. Call Start to begin publishing.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthReporter{
		topic:     cfg.Topic,
		version:   cfg.Version,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// SetBridge records a completed setup.
func (h *HealthReporter) SetBridge(bridge Bridge, lightsAssigned int) {
	h.stateMu.Lock()
	h.bridge = bridge
	h.lightsAssigned = lightsAssigned
	h.setupErr = ""
	h.ready = true
	h.stateMu.Unlock()
}

// SetSetupError records why no bridge is available.
func (h *HealthReporter) SetSetupError(err error) {
	h.stateMu.Lock()
	h.ready = false
	if err != nil {
		h.setupErr = err.Error()
	}
	h.stateMu.Unlock()
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

		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge setup in progress")
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

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

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

// Status reports the current bridge status and, when degraded, the reason.
func (h *HealthReporter) Status() (HealthStatus, string) {
	return h.determineStatus()
}

// determineStatus evaluates the bridge link.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()

	if !h.ready {
		if h.setupErr != "" {
			return HealthDegraded, h.setupErr
		}
		return HealthDegraded, "bridge not set up"
	}
	if h.lightsAssigned == 0 {
		return HealthDegraded, "no lights assigned"
	}
	return HealthHealthy, ""
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return nil
	}

	h.stateMu.RLock()
	msg := HealthMessage{
		Bridge:         "hue",
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        h.version,
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
		Address:        h.bridge.Host,
		BridgeID:       h.bridge.ID,
		LightsAssigned: h.lightsAssigned,
		Reason:         reason,
	}
	h.stateMu.RUnlock()

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// Retained so a dashboard that connects later sees the last state
	return h.publisher.PublishRetained(h.topic, payload)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
