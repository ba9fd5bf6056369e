package history

import (
	"time"

	"github.com/Dicklesworthstone/sysmon/internal/model"
)

// Tracker feeds the scalar fields of received snapshots into per-metric
// buffers on a 0-100 scale.
type Tracker struct {
	cpu     *Buffer
	ram     *Buffer
	storage *Buffer
}

func NewTracker(capacity int) *Tracker {
	return &Tracker{
		cpu:     New(capacity),
		ram:     New(capacity),
		storage: New(capacity),
	}
}

// Observe records one snapshot. Its Timestamp is used when set.
func (t *Tracker) Observe(s model.Snapshot) {
	at := s.Timestamp
	if at.IsZero() {
		at = time.Now()
	}
	t.cpu.Push(Point{Time: at, Value: s.CPUUsage * 100})
	t.ram.Push(Point{Time: at, Value: s.RAMUsage * 100})
	t.storage.Push(Point{Time: at, Value: s.StorageUsage * 100})
}

func (t *Tracker) CPU() *Buffer     { return t.cpu }
func (t *Tracker) RAM() *Buffer     { return t.ram }
func (t *Tracker) Storage() *Buffer { return t.storage }
