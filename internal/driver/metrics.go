package driver

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts patch outcomes for one process. Each Metrics owns its
// registry so repeated runs in tests never collide.
type Metrics struct {
	Registry   *prometheus.Registry
	Files      *prometheus.CounterVec
	Constructs *prometheus.CounterVec
	Unresolved *prometheus.CounterVec
}

// NewMetrics creates and registers the patcher counters
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "postpatch",
			Name:      "files_total",
			Help:      "Backend files visited, by dialect and outcome.",
		}, []string{"dialect", "status"}),
		Constructs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "postpatch",
			Name:      "constructs_patched_total",
			Help:      "Placeholder constructs rewritten, by dialect and construct.",
		}, []string{"dialect", "construct"}),
		Unresolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "postpatch",
			Name:      "unresolved_channels_total",
			Help:      "Channels left as placeholders because their element type never resolved.",
		}, []string{"dialect"}),
	}
	m.Registry.MustRegister(m.Files, m.Constructs, m.Unresolved)
	return m
}

func (m *Metrics) observe(fr FileReport) {
	if m == nil {
		return
	}
	m.Files.WithLabelValues(fr.Dialect, fr.Status).Inc()
	for construct, n := range fr.Constructs {
		m.Constructs.WithLabelValues(fr.Dialect, construct).Add(float64(n))
	}
	if len(fr.Unresolved) > 0 {
		m.Unresolved.WithLabelValues(fr.Dialect).Add(float64(len(fr.Unresolved)))
	}
}

// WriteFile writes the counters in the node-exporter textfile format
func (m *Metrics) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, m.Registry)
}
