// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the agent's Prometheus metrics.
type Metrics struct {
	// Frame traffic, labelled by opcode
	FramesSent     *prometheus.CounterVec
	FramesReceived *prometheus.CounterVec
	DecodeErrors   *prometheus.CounterVec

	// Queue
	QueueFull  prometheus.Counter
	QueueDepth prometheus.Gauge

	// Acknowledgements, labelled by result
	Acks *prometheus.CounterVec

	// Kernel-side view, as last seen by the agent
	Rules   *prometheus.GaugeVec
	Enabled prometheus.Gauge
}

// New creates the metrics. They are not registered anywhere yet.
func New() *Metrics {
	return &Metrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usbwall_frames_sent_total",
			Help: "Frames sent to the kernel peer",
		}, []string{"opcode"}),

		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usbwall_frames_received_total",
			Help: "Frames received from the kernel peer",
		}, []string{"opcode"}),

		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usbwall_decode_errors_total",
			Help: "Received frames that failed to decode",
		}, []string{"reason"}),

		QueueFull: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "usbwall_queue_full_total",
			Help: "Queue-full rejections of received messages; the receiver retries them",
		}),

		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "usbwall_queue_depth",
			Help: "Messages waiting in the receive queue",
		}),

		Acks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "usbwall_acks_total",
			Help: "Acknowledgements received, by result",
		}, []string{"result"}),

		Rules: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "usbwall_rules",
			Help: "Rules installed by the agent, by kind",
		}, []string{"kind"}),

		Enabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "usbwall_filter_enabled",
			Help: "1 when the kernel filter was last set enabled",
		}),
	}
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.FramesSent.Describe(ch)
	m.FramesReceived.Describe(ch)
	m.DecodeErrors.Describe(ch)
	m.QueueFull.Describe(ch)
	m.QueueDepth.Describe(ch)
	m.Acks.Describe(ch)
	m.Rules.Describe(ch)
	m.Enabled.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.FramesSent.Collect(ch)
	m.FramesReceived.Collect(ch)
	m.DecodeErrors.Collect(ch)
	m.QueueFull.Collect(ch)
	m.QueueDepth.Collect(ch)
	m.Acks.Collect(ch)
	m.Rules.Collect(ch)
	m.Enabled.Collect(ch)
}

// Registry returns a fresh registry holding m.
func (m *Metrics) Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(m)
	return reg
}

// Handler serves m in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})
}
