package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Allocations        *prometheus.CounterVec
	AllocationDuration *prometheus.HistogramVec
	AllocatedQuantity  *prometheus.CounterVec
	SplitUpdates       prometheus.Counter
	ErrorsDropped      prometheus.Counter
	PositionReports    *prometheus.CounterVec

	registry *prometheus.Registry
}

func New(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		Allocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "allocations_total",
				Help: "Total fills processed by the allocation engine.",
			},
			[]string{"side", "status"},
		),
		AllocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "allocation_duration_seconds",
				Help:    "Allocation run duration in seconds.",
				Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
			},
			[]string{"side"},
		),
		AllocatedQuantity: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "allocated_quantity_total",
				Help: "Total absolute quantity applied to account positions.",
			},
			[]string{"side"},
		),
		SplitUpdates: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "split_updates_total",
				Help: "Total split tables published.",
			},
		),
		ErrorsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "allocation_errors_dropped_total",
				Help: "Allocation errors not delivered because the error channel was full.",
			},
		),
		PositionReports: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "position_reports_total",
				Help: "Total position reports produced.",
			},
			[]string{"status"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.Allocations,
		m.AllocationDuration,
		m.AllocatedQuantity,
		m.SplitUpdates,
		m.ErrorsDropped,
		m.PositionReports,
	)
	return m
}

// NewRegistry returns a registry with the Go and process collectors.
func NewRegistry() *prometheus.Registry {
	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RegisterPoolGauges exposes worker pool occupancy read on scrape.
func (m *Metrics) RegisterPoolGauges(running func() int, waiting func() uint64) {
	if m == nil || m.registry == nil {
		return
	}
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "allocation_workers_running",
			Help: "Allocation workers currently running.",
		}, func() float64 { return float64(running()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "allocation_tasks_waiting",
			Help: "Fills queued for allocation.",
		}, func() float64 { return float64(waiting()) }),
	)
}

func (m *Metrics) ObserveAllocation(side, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Allocations.WithLabelValues(side, status).Inc()
	m.AllocationDuration.WithLabelValues(side).Observe(duration.Seconds())
}

func (m *Metrics) AddAllocated(side string, qty int64) {
	if m == nil || qty <= 0 {
		return
	}
	m.AllocatedQuantity.WithLabelValues(side).Add(float64(qty))
}

func (m *Metrics) IncSplitUpdate() {
	if m == nil {
		return
	}
	m.SplitUpdates.Inc()
}

func (m *Metrics) IncErrorDropped() {
	if m == nil {
		return
	}
	m.ErrorsDropped.Inc()
}

func (m *Metrics) IncReport(status string) {
	if m == nil {
		return
	}
	m.PositionReports.WithLabelValues(status).Inc()
}
