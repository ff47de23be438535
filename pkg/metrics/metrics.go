// Package metrics records per-run counters and timings with Prometheus.
//
// Each run owns a Collector with its own registry, so repeated runs in one
// process (and parallel tests) never collide on registration. A run that
// configures a metrics file gets the registry dumped in the Prometheus text
// format when it ends:
//
//	c := metrics.NewCollector()
//	timer := metrics.NewTimer("transform")
//	...
//	c.ObserveStage(timer.Name(), timer.Stop())
//	c.RowsTransformed(out.NumRows())
//	err := c.WriteFile("foodsample.prom")
package metrics

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/ajitpratap0/foodsample/pkg/errors"
)

const namespace = "foodsample"

// Collector holds the metrics of one run
type Collector struct {
	registry        *prometheus.Registry
	rowsSampled     prometheus.Counter
	rowsTransformed prometheus.Counter
	castFallbacks   *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
}

// NewCollector creates a collector with a fresh registry
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	c := &Collector{
		registry: reg,
		rowsSampled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_sampled_total",
			Help:      "Rows read from the source dataset",
		}),
		rowsTransformed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_transformed_total",
			Help:      "Rows written by the column transformer",
		}),
		castFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cast_fallbacks_total",
			Help:      "Cells that fell back to a default value, by rule",
		}, []string{"rule"}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"stage"}),
	}

	pid := int32(os.Getpid())
	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_resident_memory_bytes",
		Help:      "Resident set size of the process",
	}, func() float64 {
		return float64(residentMemory(pid))
	})

	return c
}

// Registry returns the registry holding the run's metrics
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RowsSampled adds n sampled rows
func (c *Collector) RowsSampled(n int) {
	c.rowsSampled.Add(float64(n))
}

// RowsTransformed adds n transformed rows
func (c *Collector) RowsTransformed(n int) {
	c.rowsTransformed.Add(float64(n))
}

// CastFallbacks adds n fallbacks for rule
func (c *Collector) CastFallbacks(rule string, n int) {
	c.castFallbacks.WithLabelValues(rule).Add(float64(n))
}

// ObserveStage records the duration of a stage
func (c *Collector) ObserveStage(stage string, d time.Duration) {
	c.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteFile writes every metric to path in the Prometheus text format
func (c *Collector) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write metrics").
			WithDetail("path", path)
	}
	return nil
}

// residentMemory returns the RSS of pid, 0 when it cannot be read
func residentMemory(pid int32) uint64 {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return 0
	}
	info, err := proc.MemoryInfo()
	if err != nil || info == nil {
		return 0
	}
	return info.RSS
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the name the timer was created with
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the time elapsed since the timer was created
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
