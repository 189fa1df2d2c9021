package listeners

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"analysis-engine/internal/pipeline/core"
)

// Metrics records execution metrics in Prometheus collectors
type Metrics struct {
	core.NopListener

	jobs        *prometheus.CounterVec
	running     prometheus.Gauge
	duration    *prometheus.HistogramVec
	rows        *prometheus.CounterVec
	nodeErrors  *prometheus.CounterVec
	unknownErrs prometheus.Counter

	// last progress value per execution and table, so counters only get
	// the increments
	mu       sync.Mutex
	progress map[string]int64
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_jobs_total",
			Help: "Finished job executions by status.",
		}, []string{"status"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "analysis_jobs_running",
			Help: "Job executions in progress.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "analysis_job_duration_seconds",
			Help:    "Duration of job executions by status.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_rows_processed_total",
			Help: "Source rows dispatched by table.",
		}, []string{"table"}),
		nodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "analysis_node_errors_total",
			Help: "Node failures by component type and error policy.",
		}, []string{"component", "policy"}),
		unknownErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "analysis_unknown_errors_total",
			Help: "Failures outside any node.",
		}),
		progress: make(map[string]int64),
	}

	for _, c := range []prometheus.Collector{m.jobs, m.running, m.duration, m.rows, m.nodeErrors, m.unknownErrs} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return m, nil
}

func (m *Metrics) JobBegin(*core.Execution) {
	m.running.Inc()
}

func (m *Metrics) JobSuccess(exec *core.Execution) {
	m.finish(exec)
}

func (m *Metrics) JobFailed(exec *core.Execution, _ []error) {
	m.finish(exec)
}

func (m *Metrics) finish(exec *core.Execution) {
	status := string(exec.Status())
	m.running.Dec()
	m.jobs.WithLabelValues(status).Inc()
	m.duration.WithLabelValues(status).Observe(exec.Duration().Seconds())

	m.mu.Lock()
	for _, t := range exec.Job().Tables() {
		delete(m.progress, exec.ID()+"\x00"+t.Name)
	}
	m.mu.Unlock()
}

func (m *Metrics) RowProcessingProgress(exec *core.Execution, table string, processedRows int64) {
	m.addRows(exec, table, processedRows)
}

func (m *Metrics) RowProcessingSuccess(exec *core.Execution, table string, processedRows int64) {
	m.addRows(exec, table, processedRows)
}

func (m *Metrics) addRows(exec *core.Execution, table string, processed int64) {
	key := exec.ID() + "\x00" + table
	m.mu.Lock()
	delta := processed - m.progress[key]
	if delta > 0 {
		m.progress[key] = processed
	}
	m.mu.Unlock()

	if delta > 0 {
		m.rows.WithLabelValues(table).Add(float64(delta))
	}
}

func (m *Metrics) NodeError(_ *core.Execution, node *core.Node, _ *core.Row, _ error) {
	m.nodeErrors.WithLabelValues(node.Component().Type(), string(node.Policy())).Inc()
}

func (m *Metrics) ErrorUnknown(*core.Execution, error) {
	m.unknownErrs.Inc()
}
