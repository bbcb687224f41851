package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/praxis/acapy-mcp-gateway/internal/acapy"
)

// Outcome labels
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Collector collects and manages Prometheus metrics for the gateway
type Collector struct {
	logger *logrus.Logger

	// Tool metrics
	toolCalls    *prometheus.CounterVec
	toolDuration *prometheus.HistogramVec
	toolsCount   prometheus.Gauge

	// Identity agent metrics
	agentRequests *prometheus.CounterVec
	agentDuration *prometheus.HistogramVec

	// Gateway info
	gatewayInfo *prometheus.GaugeVec

	// Registry
	registry *prometheus.Registry

	// Remote writer
	remoteWriter *RemoteWriter

	mu sync.Mutex
}

// NewCollector creates a new metrics collector
func NewCollector(logger *logrus.Logger, name, version, transport string) *Collector {
	registry := prometheus.NewRegistry()

	collector := &Collector{
		logger:   logger,
		registry: registry,

		toolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "acapy_mcp_tool_calls_total",
			Help: "Total number of tool invocations",
		}, []string{"tool", "outcome"}),

		toolDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "acapy_mcp_tool_duration_seconds",
			Help:    "Tool invocation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"tool"}),

		toolsCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "acapy_mcp_tools_count",
			Help: "Number of registered tools",
		}),

		agentRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "acapy_mcp_agent_requests_total",
			Help: "Identity agent admin API calls by method, status and failure kind",
		}, []string{"method", "status", "kind"}),

		agentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "acapy_mcp_agent_request_duration_seconds",
			Help:    "Identity agent admin API latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),

		gatewayInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "acapy_mcp_gateway_info",
			Help: "Gateway information",
		}, []string{"name", "version", "transport"}),
	}

	// Register all metrics
	registry.MustRegister(
		collector.toolCalls,
		collector.toolDuration,
		collector.toolsCount,
		collector.agentRequests,
		collector.agentDuration,
		collector.gatewayInfo,
	)

	// Set gateway info to 1 (it's a constant label metric)
	collector.gatewayInfo.WithLabelValues(name, version, transport).Set(1)

	logger.Debug("Metrics collector initialized")
	return collector
}

// SetToolsCount updates the registered tools gauge
func (c *Collector) SetToolsCount(count int) {
	c.toolsCount.Set(float64(count))
}

// ObserveTool records one tool invocation
func (c *Collector) ObserveTool(tool string, failed bool, elapsed time.Duration) {
	outcome := OutcomeOK
	if failed {
		outcome = OutcomeError
	}
	c.toolCalls.WithLabelValues(tool, outcome).Inc()
	c.toolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveAgentCall records one admin API call. It matches acapy.Observer.
func (c *Collector) ObserveAgentCall(method, _ string, outcome acapy.Outcome, elapsed time.Duration) {
	kind := OutcomeOK
	if !outcome.OK() {
		kind = outcome.Err.Kind.String()
	}
	c.agentRequests.WithLabelValues(method, strconv.Itoa(outcome.Status), kind).Inc()
	c.agentDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// Registry returns the Prometheus registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// StartRemoteWriter starts the remote write client for pushing metrics
func (c *Collector) StartRemoteWriter(cfg RemoteWriteConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remoteWriter != nil {
		c.logger.Warn("Remote writer already started")
		return nil
	}

	writer, err := NewRemoteWriter(c.logger, c.registry, cfg)
	if err != nil {
		return err
	}

	c.remoteWriter = writer
	c.remoteWriter.Start()

	c.logger.Infof("Remote writer started, pushing to %s every %s", cfg.URL, writer.pushInterval)
	return nil
}

// StopRemoteWriter stops the remote write client
func (c *Collector) StopRemoteWriter() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remoteWriter != nil {
		c.remoteWriter.Stop()
		c.remoteWriter = nil
		c.logger.Info("Remote writer stopped")
	}
}
