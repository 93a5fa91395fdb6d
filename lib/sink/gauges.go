package sink

import (
	"context"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "labctl"

var lastValueDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "sample", "value"),
	"Last value written for a measurement field.",
	[]string{"measurement", "series", "field"},
	nil,
)

type gaugeKey struct {
	measurement, series, field string
}

// Gauges keeps the latest value of every field it has seen and exposes them
// as a prometheus.Collector. WriteSample never fails.
type Gauges struct {
	mu   sync.RWMutex
	last map[gaugeKey]float64
}

func NewGauges() *Gauges {
	return &Gauges{last: map[gaugeKey]float64{}}
}

func (g *Gauges) WriteSample(_ context.Context, measurement string, tags map[string]string, fields map[string]float64, _ int64) error {
	series := strings.TrimPrefix(seriesKey("", tags), ",")
	g.mu.Lock()
	defer g.mu.Unlock()
	for f, v := range fields {
		g.last[gaugeKey{measurement, series, f}] = v
	}
	return nil
}

// Describe implements prometheus.Collector.
func (g *Gauges) Describe(ch chan<- *prometheus.Desc) {
	ch <- lastValueDesc
}

// Collect implements prometheus.Collector.
func (g *Gauges) Collect(ch chan<- prometheus.Metric) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for k, v := range g.last {
		ch <- prometheus.MustNewConstMetric(lastValueDesc, prometheus.GaugeValue, v, k.measurement, k.series, k.field)
	}
}
