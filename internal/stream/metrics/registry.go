package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry encapsulates all metrics and provides a clean interface
// for recording metrics without global state
type Registry struct {
	registry *prometheus.Registry

	// Producer metrics
	appendTotal    *prometheus.CounterVec
	appendDuration *prometheus.HistogramVec

	// Consumer metrics
	consumeTotal     *prometheus.CounterVec
	consumeDuration  *prometheus.HistogramVec
	consumeBatchSize *prometheus.HistogramVec
	messagesConsumed *prometheus.CounterVec
	ackTotal         *prometheus.CounterVec
	ownershipTotal   *prometheus.CounterVec

	// Broker/command metrics
	commandTotal    *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	// Group state metrics
	groupPending *prometheus.GaugeVec

	// System health metrics
	systemInfo *prometheus.GaugeVec
	startTime  prometheus.Gauge
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	registry := prometheus.NewRegistry()

	r := &Registry{
		registry: registry,

		appendTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redstream_producer_append_total",
				Help: "Total number of append operations",
			},
			[]string{"stream", "status"}, // status: success, error
		),

		appendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "redstream_producer_append_duration_seconds",
				Help:    "Time spent appending messages",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stream"},
		),

		consumeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redstream_consumer_consume_total",
				Help: "Total number of consume cycles",
			},
			[]string{"stream", "group", "consumer", "status"}, // status: success, error, empty
		),

		consumeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "redstream_consumer_consume_duration_seconds",
				Help:    "Time spent assembling consume batches",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stream", "group", "consumer"},
		),

		consumeBatchSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "redstream_consumer_batch_size",
				Help:    "Number of messages in assembled batches",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
			[]string{"stream", "group", "consumer"},
		),

		messagesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redstream_consumer_messages_consumed_total",
				Help: "Total number of messages consumed per delivery phase",
			},
			[]string{"stream", "group", "consumer", "phase"}, // phase: new, pending, claimed
		),

		ackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redstream_consumer_ack_total",
				Help: "Total number of acknowledgments",
			},
			[]string{"stream", "group", "consumer", "status"}, // status: removed, noop, error
		),

		ownershipTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redstream_consumer_ownership_check_total",
				Help: "Total number of ownership checks",
			},
			[]string{"stream", "group", "consumer", "outcome"}, // outcome: mine, lost, error
		),

		commandTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redstream_command_total",
				Help: "Total number of commands issued to the log service",
			},
			[]string{"command", "status"}, // command: append, read_new, claim, ack, etc.
		),

		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "redstream_command_duration_seconds",
				Help:    "Time spent on log service round trips",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"command"},
		),

		groupPending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "redstream_group_pending_entries",
				Help: "Pending entries per consumer group as last observed",
			},
			[]string{"stream", "group"},
		),

		systemInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "redstream_system_info",
				Help: "System information (value is always 1, labels contain info)",
			},
			[]string{"version", "build_time"},
		),

		startTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "redstream_start_time_seconds",
				Help: "Unix timestamp when the application started",
			},
		),
	}

	// add default Go metrics (memory, GC, goroutines, etc.)
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Register application metrics
	registry.MustRegister(
		r.appendTotal,
		r.appendDuration,
		r.consumeTotal,
		r.consumeDuration,
		r.consumeBatchSize,
		r.messagesConsumed,
		r.ackTotal,
		r.ownershipTotal,
		r.commandTotal,
		r.commandDuration,
		r.groupPending,
		r.systemInfo,
		r.startTime,
	)

	// Set start time
	r.startTime.SetToCurrentTime()

	return r
}

// Ready reports whether the registry can currently serve a scrape.
func (r *Registry) Ready() error {
	if _, err := r.registry.Gather(); err != nil {
		return fmt.Errorf("failed to gather metrics: %w", err)
	}
	return nil
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		Registry:          r.registry,
	})
}

// RecordAppend records a producer append operation
func (r *Registry) RecordAppend(streamName string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	r.appendTotal.WithLabelValues(streamName, status).Inc()
	r.appendDuration.WithLabelValues(streamName).Observe(duration.Seconds())
}

// RecordConsume records one consume cycle and its per-phase deliveries
func (r *Registry) RecordConsume(streamName, group, consumer string, byPhase map[string]int, duration time.Duration, err error) {
	var total int
	for phase, n := range byPhase {
		total += n
		if n > 0 {
			r.messagesConsumed.WithLabelValues(streamName, group, consumer, phase).Add(float64(n))
		}
	}

	status := "success"
	if err != nil {
		status = "error"
	} else if total == 0 {
		status = "empty"
	}

	r.consumeTotal.WithLabelValues(streamName, group, consumer, status).Inc()
	r.consumeDuration.WithLabelValues(streamName, group, consumer).Observe(duration.Seconds())
	if total > 0 {
		r.consumeBatchSize.WithLabelValues(streamName, group, consumer).Observe(float64(total))
	}
}

// RecordAck records an acknowledgment attempt
func (r *Registry) RecordAck(streamName, group, consumer string, removed bool, err error) {
	status := "removed"
	switch {
	case err != nil:
		status = "error"
	case !removed:
		status = "noop"
	}

	r.ackTotal.WithLabelValues(streamName, group, consumer, status).Inc()
}

// RecordOwnershipCheck records an ownership verification
func (r *Registry) RecordOwnershipCheck(streamName, group, consumer string, mine bool, err error) {
	outcome := "mine"
	switch {
	case err != nil:
		outcome = "error"
	case !mine:
		outcome = "lost"
	}

	r.ownershipTotal.WithLabelValues(streamName, group, consumer, outcome).Inc()
}

// RecordCommand records a single log service round trip
func (r *Registry) RecordCommand(command string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}

	r.commandTotal.WithLabelValues(command, status).Inc()
	r.commandDuration.WithLabelValues(command).Observe(duration.Seconds())
}

// UpdateGroupPending updates the observed pending-entry count of a group
func (r *Registry) UpdateGroupPending(streamName, group string, pending float64) {
	r.groupPending.WithLabelValues(streamName, group).Set(pending)
}

// SetSystemInfo sets system information metrics
func (r *Registry) SetSystemInfo(version, buildTime string) {
	r.systemInfo.WithLabelValues(version, buildTime).Set(1)
}
