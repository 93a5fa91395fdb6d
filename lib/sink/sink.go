// Package sink persists metric lines produced by the recorder: one
// measurement, a tag set, a field set and a Unix timestamp in seconds.
package sink

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

// Sink accepts one metric line at a time. Implementations return an error
// on authentication or network failure; callers decide whether to care.
type Sink interface {
	WriteSample(ctx context.Context, measurement string, tags map[string]string, fields map[string]float64, ts int64) error
}

// Point is one metric line.
type Point struct {
	Measurement string
	Tags        map[string]string
	Fields      map[string]float64
	Time        int64
}

// Multi writes every line to all of its sinks. A failing sink does not stop
// the others.
type Multi []Sink

func (m Multi) WriteSample(ctx context.Context, measurement string, tags map[string]string, fields map[string]float64, ts int64) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, s.WriteSample(ctx, measurement, tags, fields, ts))
	}
	return err
}

// seriesKey identifies a series by measurement and sorted tags, like the
// line protocol does.
func seriesKey(measurement string, tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(measurement)
	for _, k := range keys {
		b.WriteString(",")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(tags[k])
	}
	return b.String()
}
