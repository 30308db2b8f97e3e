// Package metrics records conversion outcomes as Prometheus metrics.
//
// The tool runs as a batch job, so metrics live on a private registry and
// are written once at the end of a run in the textfile collector format
// instead of being served over HTTP.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// File results used as the "result" label.
const (
	ResultConverted = "converted"
	ResultInvalid   = "invalid"
	ResultError     = "error"
)

// Recorder holds the pipeline metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry        *prometheus.Registry
	filesTotal      *prometheus.CounterVec
	rowsWritten     prometheus.Counter
	chunksValidated prometheus.Counter
	fileDuration    *prometheus.HistogramVec
}

// NewRecorder creates a Recorder on its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		filesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "zolltools",
			Name:      "files_total",
			Help:      "Source files processed, by result.",
		}, []string{"result"}),
		rowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zolltools",
			Name:      "rows_written_total",
			Help:      "Rows written to Parquet outputs.",
		}),
		chunksValidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "zolltools",
			Name:      "chunks_validated_total",
			Help:      "Chunk pairs compared during round-trip validation.",
		}),
		fileDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "zolltools",
			Name:      "file_duration_seconds",
			Help:      "Wall time to convert, validate and replace one file.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"result"}),
	}
	r.registry.MustRegister(r.filesTotal, r.rowsWritten, r.chunksValidated, r.fileDuration)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// FileFinished records one file's result and duration.
func (r *Recorder) FileFinished(result string, d time.Duration) {
	if r == nil {
		return
	}
	r.filesTotal.WithLabelValues(result).Inc()
	r.fileDuration.WithLabelValues(result).Observe(d.Seconds())
}

// RowsWritten adds n rows to the written counter.
func (r *Recorder) RowsWritten(n int) {
	if r == nil {
		return
	}
	r.rowsWritten.Add(float64(n))
}

// ChunkValidated counts one compared chunk pair.
func (r *Recorder) ChunkValidated() {
	if r == nil {
		return
	}
	r.chunksValidated.Inc()
}

// WriteTextfile writes every metric to path in the Prometheus text format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}
