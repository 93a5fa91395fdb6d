package sink

import (
	"context"
	"sync"

	"github.com/gammazero/deque"
)

// Ring holds the most recent metric lines in memory, dropping the oldest
// once full. It is the sink for dry runs.
type Ring struct {
	mu   sync.Mutex
	size int
	q    *deque.Deque[Point]
}

func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1
	}
	return &Ring{size: size, q: deque.New[Point]()}
}

func (r *Ring) WriteSample(_ context.Context, measurement string, tags map[string]string, fields map[string]float64, ts int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.q.Len() == r.size {
		r.q.PopFront()
	}
	r.q.PushBack(Point{Measurement: measurement, Tags: tags, Fields: fields, Time: ts})
	return nil
}

// Points returns a copy of the buffered lines, oldest first.
func (r *Ring) Points() []Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Point, r.q.Len())
	for i := range out {
		out[i] = r.q.At(i)
	}
	return out
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.q.Len()
}
