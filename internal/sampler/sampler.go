// Package sampler reads host metrics through gopsutil.
package sampler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/Dicklesworthstone/sysmon/internal/logger"
	"github.com/Dicklesworthstone/sysmon/internal/model"
)

var (
	ErrNoFilesystems = errors.New("no readable filesystems")
	ErrInvalidPID    = errors.New("invalid pid")
)

// Swapped out in tests.
var (
	cpuTimes      = cpu.TimesWithContext
	cpuInfo       = cpu.InfoWithContext
	hostInfo      = host.InfoWithContext
	virtualMemory = mem.VirtualMemoryWithContext
	partitions    = disk.PartitionsWithContext
	usage         = disk.UsageWithContext
	batteryGlob   = "/sys/class/power_supply/BAT*/capacity"
	rootMount     = "/"
)

const gib = 1 << 30

// Host is the local machine. Safe for concurrent use; CPU load and
// per-process CPU are computed from deltas against the previous call.
type Host struct {
	logger *slog.Logger

	cpuMu     sync.Mutex
	prevTotal float64
	prevBusy  float64
	lastLoad  float64

	procMu sync.Mutex
	procs  map[int32]*process.Process
}

func NewHost(l *slog.Logger) *Host {
	return &Host{
		logger: logger.OrDiscard(l),
		procs:  make(map[int32]*process.Process),
	}
}

// CurrentLoad reports the machine-wide busy fraction since the previous
// call. The first call reports the average since boot.
func (h *Host) CurrentLoad(ctx context.Context) (model.Load, error) {
	times, err := cpuTimes(ctx, false)
	if err != nil {
		return model.Load{}, fmt.Errorf("cpu times: %w", err)
	}
	if len(times) == 0 {
		return model.Load{}, errors.New("cpu times: empty")
	}
	cur := times[0]
	total := cur.Total()
	busy := total - cur.Idle - cur.Iowait

	h.cpuMu.Lock()
	defer h.cpuMu.Unlock()
	dt := total - h.prevTotal
	db := busy - h.prevBusy
	if dt > 0 {
		h.lastLoad = model.Clamp01(db / dt)
	}
	h.prevTotal, h.prevBusy = total, busy
	return model.Load{Fraction: h.lastLoad}, nil
}

func (h *Host) Memory(ctx context.Context) (model.Memory, error) {
	vm, err := virtualMemory(ctx)
	if err != nil {
		return model.Memory{}, fmt.Errorf("virtual memory: %w", err)
	}
	return model.Memory{ActiveBytes: vm.Used, TotalBytes: vm.Total}, nil
}

// ProcessList returns every process whose name is readable. Processes seen
// on an earlier call report CPU over the interval since then; new ones
// report their lifetime average.
func (h *Host) ProcessList(ctx context.Context) ([]model.ProcessSample, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	h.procMu.Lock()
	defer h.procMu.Unlock()
	seen := make(map[int32]*process.Process, len(procs))
	out := make([]model.ProcessSample, 0, len(procs))
	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		name, _ := p.NameWithContext(ctx)
		if name == "" {
			continue
		}

		var cpuPct float64
		if cached, ok := h.procs[p.Pid]; ok {
			p = cached
			cpuPct, _ = p.PercentWithContext(ctx, 0)
		} else {
			_, _ = p.PercentWithContext(ctx, 0)
			cpuPct, _ = p.CPUPercentWithContext(ctx)
		}
		seen[p.Pid] = p
		memPct, _ := p.MemoryPercentWithContext(ctx)

		out = append(out, model.ProcessSample{
			PID:    p.Pid,
			Name:   name,
			CPU:    cpuPct,
			Memory: float64(memPct),
		})
	}
	h.procs = seen
	return out, nil
}

// FilesystemUsage returns usage for each mounted volume in the order the
// system reports them. Volumes that cannot be stat'ed are skipped.
func (h *Host) FilesystemUsage(ctx context.Context) ([]model.FilesystemUsage, error) {
	parts, err := partitions(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("partitions: %w", err)
	}
	var out []model.FilesystemUsage
	for _, part := range parts {
		u, err := usage(ctx, part.Mountpoint)
		if err != nil {
			h.logger.Debug("skipping filesystem", "mountpoint", part.Mountpoint, "err", err)
			continue
		}
		out = append(out, model.FilesystemUsage{
			Mountpoint:  part.Mountpoint,
			Fstype:      part.Fstype,
			TotalBytes:  u.Total,
			UsedBytes:   u.Used,
			UsedPercent: u.UsedPercent,
		})
	}
	if len(out) == 0 {
		return nil, ErrNoFilesystems
	}
	return out, nil
}

// StaticInfo describes the machine. Battery presence and total storage are
// left nil when they cannot be determined.
func (h *Host) StaticInfo(ctx context.Context) (model.StaticInfo, error) {
	hi, err := hostInfo(ctx)
	if err != nil {
		return model.StaticInfo{}, fmt.Errorf("host info: %w", err)
	}
	vm, err := virtualMemory(ctx)
	if err != nil {
		return model.StaticInfo{}, fmt.Errorf("virtual memory: %w", err)
	}

	info := model.StaticInfo{
		OS:            fmt.Sprintf("%s %s (%s) %s", hi.Platform, hi.PlatformVersion, hi.KernelArch, hi.Hostname),
		TotalMemoryGB: float64(vm.Total) / gib,
		Hostname:      hi.Hostname,
	}
	if cpus, err := cpuInfo(ctx); err == nil && len(cpus) > 0 {
		info.CPUModel = cpus[0].ModelName
		info.CPUSpeedGHz = cpus[0].Mhz / 1000
	} else if err != nil {
		h.logger.Debug("cpu info unavailable", "err", err)
	}
	if matches, err := filepath.Glob(batteryGlob); err == nil {
		has := hasReadable(matches)
		info.HasBattery = &has
	}
	if u, err := usage(ctx, rootMount); err == nil {
		total := float64(u.Total) / gib
		info.TotalStorage = &total
	} else {
		h.logger.Debug("root volume unavailable", "err", err)
	}
	return info, nil
}

func hasReadable(paths []string) bool {
	for _, p := range paths {
		if _, err := os.ReadFile(p); err == nil {
			return true
		}
	}
	return false
}

// Terminate sends SIGTERM to pid. It reports false with a nil error when
// the process no longer exists.
func (h *Host) Terminate(ctx context.Context, pid int32) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("%w: %d", ErrInvalidPID, pid)
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return false, nil
		}
		return false, fmt.Errorf("lookup pid %d: %w", pid, err)
	}
	if err := p.TerminateWithContext(ctx); err != nil {
		if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
			return false, nil
		}
		return false, fmt.Errorf("terminate pid %d: %w", pid, err)
	}
	h.logger.Info("terminated process", "pid", pid)

	h.procMu.Lock()
	delete(h.procs, pid)
	h.procMu.Unlock()
	return true, nil
}
