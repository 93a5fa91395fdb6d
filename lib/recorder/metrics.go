package recorder

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts what the recorder did. A nil *Metrics is valid and counts
// nothing.
type Metrics struct {
	linesWritten  prometheus.Counter
	sinkErrors    prometheus.Counter
	measureErrors prometheus.Counter
}

// NewMetrics creates the recorder's counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		linesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "labctl",
			Subsystem: "recorder",
			Name:      "lines_written_total",
			Help:      "Metric lines accepted by the sink.",
		}),
		sinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "labctl",
			Subsystem: "recorder",
			Name:      "sink_errors_total",
			Help:      "Metric lines the sink rejected.",
		}),
		measureErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "labctl",
			Subsystem: "recorder",
			Name:      "measurement_errors_total",
			Help:      "Channel measurements that failed.",
		}),
	}
	reg.MustRegister(m.linesWritten, m.sinkErrors, m.measureErrors)
	return m
}

func (m *Metrics) written() {
	if m != nil {
		m.linesWritten.Inc()
	}
}

func (m *Metrics) sinkFailed() {
	if m != nil {
		m.sinkErrors.Inc()
	}
}

func (m *Metrics) measureFailed() {
	if m != nil {
		m.measureErrors.Inc()
	}
}
