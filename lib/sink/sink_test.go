package sink

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type failSink struct{ calls int }

func (f *failSink) WriteSample(context.Context, string, map[string]string, map[string]float64, int64) error {
	f.calls++
	return errors.New("unauthorized")
}

func TestRingDropsOldest(t *testing.T) {
	r := NewRing(2)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, r.WriteSample(ctx, "m", nil, map[string]float64{"v": float64(i)}, i))
	}
	pts := r.Points()
	require.Len(t, pts, 2)
	require.Equal(t, int64(2), pts[0].Time)
	require.Equal(t, int64(3), pts[1].Time)
	require.Equal(t, 2, r.Len())
}

func TestMultiTriesEverySink(t *testing.T) {
	f1, f2 := &failSink{}, &failSink{}
	r := NewRing(4)
	m := Multi{f1, r, f2}

	err := m.WriteSample(context.Background(), "E36312A", map[string]string{"Channel": "1"}, map[string]float64{"voltage": 1}, 5)
	require.Error(t, err)
	require.Equal(t, 1, f1.calls)
	require.Equal(t, 1, f2.calls)
	require.Equal(t, 1, r.Len())
	require.Equal(t, 2, strings.Count(err.Error(), "unauthorized"))

	require.NoError(t, Multi{r}.WriteSample(context.Background(), "m", nil, nil, 0))
}

func TestGaugesCollect(t *testing.T) {
	g := NewGauges()
	ctx := context.Background()
	require.NoError(t, g.WriteSample(ctx, "E36312A", map[string]string{"Channel": "1"}, map[string]float64{"voltage": 3.3}, 1))
	require.NoError(t, g.WriteSample(ctx, "E36312A", map[string]string{"Channel": "1"}, map[string]float64{"current": 0.1}, 1))
	require.NoError(t, g.WriteSample(ctx, "E36312A", map[string]string{"Channel": "1"}, map[string]float64{"voltage": 3.4}, 2))

	require.Equal(t, 2, testutil.CollectAndCount(g))

	expected := `
# HELP labctl_sample_value Last value written for a measurement field.
# TYPE labctl_sample_value gauge
labctl_sample_value{field="current",measurement="E36312A",series="Channel=1"} 0.1
labctl_sample_value{field="voltage",measurement="E36312A",series="Channel=1"} 3.4
`
	require.NoError(t, testutil.CollectAndCompare(g, strings.NewReader(expected)))
}

func TestSeriesKeySortsTags(t *testing.T) {
	require.Equal(t, "m,a=1,b=2", seriesKey("m", map[string]string{"b": "2", "a": "1"}))
	require.Equal(t, "m", seriesKey("m", nil))
}
