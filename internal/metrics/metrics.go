package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	once     sync.Once
	registry = prometheus.NewRegistry()

	rowsScanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shelfsync",
			Name:      "rows_scanned_total",
			Help:      "Worksheet rows examined by the candidate scanner.",
		},
	)
	malformedRows = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shelfsync",
			Name:      "malformed_rows_total",
			Help:      "Rows excluded from scanning for unparsable quantities.",
		},
	)
	candidates = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shelfsync",
			Name:      "candidates_total",
			Help:      "Rows selected for a reverse-sync push.",
		},
	)
	pushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shelfsync",
			Name:      "pushes_total",
			Help:      "Push attempts by terminal result.",
		},
		[]string{"result"},
	)
	conflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "shelfsync",
			Name:      "cas_conflicts_total",
			Help:      "Conditional sets retried after a stale baseline.",
		},
	)
	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shelfsync",
			Name:      "runs_total",
			Help:      "Job runs by job name and completion status.",
		},
		[]string{"job", "status"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		registry.MustRegister(rowsScanned, malformedRows, candidates, pushes, conflicts, runs)
	})
}

// AddScan records a scan pass.
func AddScan(scanned, malformed, eligible int) {
	rowsScanned.Add(float64(scanned))
	malformedRows.Add(float64(malformed))
	candidates.Add(float64(eligible))
}

// IncPush records one push attempt's terminal result.
func IncPush(result string, retried bool) {
	pushes.WithLabelValues(result).Inc()
	if retried {
		conflicts.Inc()
	}
}

// IncRun records a finished run.
func IncRun(job, status string) {
	runs.WithLabelValues(job, status).Inc()
}

// Push publishes the registry to a Pushgateway. No-op when url is empty.
func Push(url, jobName string) error {
	if url == "" {
		return nil
	}
	return push.New(url, jobName).Gatherer(registry).Push()
}
