package model

import (
	"math"
	"time"
)

// Load is the whole-machine processor busy fraction.
type Load struct {
	Fraction float64 // 0-1
}

// Memory captures RAM in use and installed, in bytes.
type Memory struct {
	ActiveBytes uint64
	TotalBytes  uint64
}

// Fraction returns the share of RAM in use.
func (m Memory) Fraction() float64 {
	if m.TotalBytes == 0 {
		return 0
	}
	return Clamp01(float64(m.ActiveBytes) / float64(m.TotalBytes))
}

// FilesystemUsage is one mounted volume as reported by the provider.
type FilesystemUsage struct {
	Mountpoint  string
	Fstype      string
	TotalBytes  uint64
	UsedBytes   uint64
	UsedPercent float64 // percent 0-100
}

// Fraction returns UsedPercent on a 0-1 scale.
func (f FilesystemUsage) Fraction() float64 { return Clamp01(f.UsedPercent / 100) }

// ProcessSample is a single row of the process list.
type ProcessSample struct {
	PID    int32   `json:"pid"`
	Name   string  `json:"name"`
	CPU    float64 `json:"cpu"`    // percent, provider scale
	Memory float64 `json:"memory"` // percent of RAM
}

// Snapshot is the composite reading published once per fast tick.
type Snapshot struct {
	CPUUsage     float64         `json:"cpuUsage"`
	RAMUsage     float64         `json:"ramUsage"`
	StorageUsage float64         `json:"storageUsage"`
	TopProcesses []ProcessSample `json:"topProcesses"`

	// Timestamp is when the tick assembled the snapshot; not on the wire.
	Timestamp time.Time `json:"-"`
}

// NewSnapshot builds a snapshot with every fraction clamped to [0,1] and a
// non-nil process slice so the wire form never carries null.
func NewSnapshot(now time.Time, load Load, mem Memory, storage float64, top []ProcessSample) Snapshot {
	if top == nil {
		top = []ProcessSample{}
	}
	return Snapshot{
		CPUUsage:     Clamp01(load.Fraction),
		RAMUsage:     mem.Fraction(),
		StorageUsage: Clamp01(storage),
		TopProcesses: top,
		Timestamp:    now,
	}
}

// HistoryPoint is one charted sample.
type HistoryPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// StaticInfo describes the machine; queried once, not on a timer.
type StaticInfo struct {
	CPUModel      string   `json:"cpuModel" yaml:"cpu_model"`
	OS            string   `json:"os" yaml:"os"`
	TotalMemoryGB float64  `json:"totalMemoryGB" yaml:"total_memory_gb"`
	HasBattery    *bool    `json:"hasBattery,omitempty" yaml:"has_battery,omitempty"`
	TotalStorage  *float64 `json:"totalStorage,omitempty" yaml:"total_storage,omitempty"`
	CPUSpeedGHz   float64  `json:"cpuSpeedGHz,omitempty" yaml:"cpu_speed_ghz,omitempty"`
	Hostname      string   `json:"hostname,omitempty" yaml:"hostname,omitempty"`
}

// Clamp01 bounds v to [0,1]; NaN becomes 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
