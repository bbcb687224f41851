package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"github.com/sirupsen/logrus"
)

const defaultPushInterval = 30 * time.Second

// RemoteWriteConfig points the gateway at a Prometheus remote write endpoint
type RemoteWriteConfig struct {
	URL      string
	Interval time.Duration
	Username string
	Password string
}

// RemoteWriter handles pushing metrics to Prometheus remote write endpoint
type RemoteWriter struct {
	logger         *logrus.Logger
	remoteWriteURL string
	registry       prometheus.Gatherer
	pushInterval   time.Duration
	httpClient     *http.Client
	username       string
	password       string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRemoteWriter creates a new remote writer
func NewRemoteWriter(logger *logrus.Logger, registry prometheus.Gatherer, cfg RemoteWriteConfig) (*RemoteWriter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("remote write URL cannot be empty")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPushInterval
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RemoteWriter{
		logger:         logger,
		remoteWriteURL: cfg.URL,
		registry:       registry,
		pushInterval:   interval,
		username:       cfg.Username,
		password:       cfg.Password,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}, nil
}

// Start begins pushing metrics to the remote write endpoint
func (w *RemoteWriter) Start() {
	go w.pushLoop()
}

// Stop stops the remote writer and waits for the push loop to exit
func (w *RemoteWriter) Stop() {
	w.cancel()
	<-w.done
}

// pushLoop periodically pushes metrics
func (w *RemoteWriter) pushLoop() {
	defer close(w.done)
	ticker := time.NewTicker(w.pushInterval)
	defer ticker.Stop()

	// Push immediately on start
	if err := w.push(); err != nil {
		w.logger.Errorf("Failed to push metrics: %v", err)
	}

	for {
		select {
		case <-ticker.C:
			if err := w.push(); err != nil {
				w.logger.Errorf("Failed to push metrics: %v", err)
			}
		case <-w.ctx.Done():
			w.logger.Info("Stopping remote writer")
			return
		}
	}
}

// push collects metrics and sends them to the remote write endpoint
func (w *RemoteWriter) push() error {
	metricFamilies, err := w.registry.Gather()
	if err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}

	timeseries := w.convertToTimeSeries(metricFamilies)
	if len(timeseries) == 0 {
		w.logger.Debug("No metrics to push")
		return nil
	}

	data, err := (&prompb.WriteRequest{Timeseries: timeseries}).Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal write request: %w", err)
	}

	compressed := snappy.Encode(nil, data)

	req, err := http.NewRequestWithContext(w.ctx, http.MethodPost, w.remoteWriteURL, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	req.Header.Set("User-Agent", "acapy-mcp-gateway/1.0")

	if w.username != "" && w.password != "" {
		req.SetBasicAuth(w.username, w.password)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("remote write failed with status %d: %s", resp.StatusCode, string(body))
	}

	w.logger.Debugf("Successfully pushed %d time series to remote write endpoint", len(timeseries))
	return nil
}

// sample builds one series named name with the family labels plus extra.
func sample(name string, base []prompb.Label, value float64, ts int64, extra ...prompb.Label) prompb.TimeSeries {
	labels := make([]prompb.Label, 0, len(base)+len(extra)+1)
	labels = append(labels, prompb.Label{Name: "__name__", Value: name})
	labels = append(labels, base...)
	labels = append(labels, extra...)
	return prompb.TimeSeries{
		Labels:  labels,
		Samples: []prompb.Sample{{Value: value, Timestamp: ts}},
	}
}

// convertToTimeSeries flattens gathered families into remote write series.
// Histograms expand into _sum, _count and one _bucket per bound.
func (w *RemoteWriter) convertToTimeSeries(families []*dto.MetricFamily) []prompb.TimeSeries {
	var out []prompb.TimeSeries
	now := time.Now().UnixMilli()

	for _, mf := range families {
		name := mf.GetName()
		for _, m := range mf.Metric {
			base := make([]prompb.Label, 0, len(m.Label))
			for _, l := range m.Label {
				base = append(base, prompb.Label{Name: l.GetName(), Value: l.GetValue()})
			}

			switch mf.GetType() {
			case dto.MetricType_GAUGE:
				out = append(out, sample(name, base, m.GetGauge().GetValue(), now))
			case dto.MetricType_COUNTER:
				out = append(out, sample(name, base, m.GetCounter().GetValue(), now))
			case dto.MetricType_UNTYPED:
				out = append(out, sample(name, base, m.GetUntyped().GetValue(), now))
			case dto.MetricType_SUMMARY:
				s := m.GetSummary()
				out = append(out,
					sample(name+"_sum", base, s.GetSampleSum(), now),
					sample(name+"_count", base, float64(s.GetSampleCount()), now))
			case dto.MetricType_HISTOGRAM:
				h := m.GetHistogram()
				out = append(out,
					sample(name+"_sum", base, h.GetSampleSum(), now),
					sample(name+"_count", base, float64(h.GetSampleCount()), now))
				for _, b := range h.Bucket {
					le := prompb.Label{Name: "le", Value: fmt.Sprintf("%g", b.GetUpperBound())}
					out = append(out, sample(name+"_bucket", base, float64(b.GetCumulativeCount()), now, le))
				}
			}
		}
	}
	return out
}
