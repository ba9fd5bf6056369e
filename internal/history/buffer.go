// Package history keeps bounded trailing windows of scalar samples for charts.
package history

import (
	"sync"
	"time"

	"github.com/Dicklesworthstone/sysmon/internal/model"
)

// DefaultCapacity matches the dashboard's CPU chart window.
const DefaultCapacity = 30

// Point is one charted sample.
type Point = model.HistoryPoint

// Buffer is a fixed-capacity, insertion-ordered window. Push evicts from the
// head once full; capacity never changes after New.
type Buffer struct {
	mu     sync.RWMutex
	points []Point
	cap    int
}

// New returns an empty buffer; capacity <= 0 means DefaultCapacity.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		points: make([]Point, 0, capacity),
		cap:    capacity,
	}
}

// Push appends p at the tail and evicts the oldest entry when over capacity.
func (b *Buffer) Push(p Point) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.points) == b.cap {
		copy(b.points, b.points[1:])
		b.points = b.points[:b.cap-1]
	}
	b.points = append(b.points, p)
}

// PushValue stamps v with the current time.
func (b *Buffer) PushValue(v float64) {
	b.Push(Point{Time: time.Now(), Value: v})
}

// Points returns a copy of the contents, oldest first.
func (b *Buffer) Points() []Point {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Point, len(b.points))
	copy(out, b.points)
	return out
}

// Values returns just the sample values, oldest first.
func (b *Buffer) Values() []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]float64, len(b.points))
	for i, p := range b.points {
		out[i] = p.Value
	}
	return out
}

func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.points)
}

func (b *Buffer) Cap() int { return b.cap }
