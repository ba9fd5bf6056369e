package sampler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Dicklesworthstone/sysmon/internal/model"
)

func TestCurrentLoadUsesDeltas(t *testing.T) {
	readings := []cpu.TimesStat{
		{User: 30, Idle: 70},          // since boot: 30% busy
		{User: 30 + 45, Idle: 70 + 5}, // +45 busy / +50 total
		{User: 75, Idle: 75},          // no progress: keep last value
	}
	call := 0
	orig := cpuTimes
	cpuTimes = func(ctx context.Context, percpu bool) ([]cpu.TimesStat, error) {
		r := readings[call]
		call++
		return []cpu.TimesStat{r}, nil
	}
	t.Cleanup(func() { cpuTimes = orig })

	h := NewHost(nil)
	want := []float64{0.3, 0.9, 0.9}
	for i, w := range want {
		got, err := h.CurrentLoad(context.Background())
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		if got.Fraction < w-1e-9 || got.Fraction > w+1e-9 {
			t.Fatalf("call %d: fraction = %v, want %v", i, got.Fraction, w)
		}
	}
}

func TestCurrentLoadPropagatesError(t *testing.T) {
	orig := cpuTimes
	cpuTimes = func(context.Context, bool) ([]cpu.TimesStat, error) { return nil, errors.New("no /proc") }
	t.Cleanup(func() { cpuTimes = orig })

	if _, err := NewHost(nil).CurrentLoad(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMemoryMapsUsed(t *testing.T) {
	orig := virtualMemory
	virtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Used: 3, Total: 12}, nil
	}
	t.Cleanup(func() { virtualMemory = orig })

	m, err := NewHost(nil).Memory(context.Background())
	if err != nil {
		t.Fatalf("Memory: %v", err)
	}
	if m.ActiveBytes != 3 || m.TotalBytes != 12 || m.Fraction() != 0.25 {
		t.Fatalf("memory = %+v", m)
	}
}

func stubDisks(t *testing.T, parts []disk.PartitionStat, usages map[string]*disk.UsageStat) {
	t.Helper()
	origParts, origUsage := partitions, usage
	partitions = func(context.Context, bool) ([]disk.PartitionStat, error) { return parts, nil }
	usage = func(_ context.Context, path string) (*disk.UsageStat, error) {
		if u, ok := usages[path]; ok {
			return u, nil
		}
		return nil, os.ErrPermission
	}
	t.Cleanup(func() { partitions, usage = origParts, origUsage })
}

func TestFilesystemUsageKeepsOrderAndSkipsUnreadable(t *testing.T) {
	stubDisks(t,
		[]disk.PartitionStat{{Mountpoint: "/", Fstype: "ext4"}, {Mountpoint: "/locked"}, {Mountpoint: "/data", Fstype: "xfs"}},
		map[string]*disk.UsageStat{
			"/":     {Total: 100, Used: 40, UsedPercent: 40},
			"/data": {Total: 10, Used: 9, UsedPercent: 90},
		})

	got, err := NewHost(nil).FilesystemUsage(context.Background())
	if err != nil {
		t.Fatalf("FilesystemUsage: %v", err)
	}
	if len(got) != 2 || got[0].Mountpoint != "/" || got[1].Mountpoint != "/data" {
		t.Fatalf("volumes = %+v", got)
	}
	if got[0].Fraction() != 0.4 {
		t.Fatalf("first fraction = %v", got[0].Fraction())
	}
}

func TestFilesystemUsageEmpty(t *testing.T) {
	stubDisks(t, []disk.PartitionStat{{Mountpoint: "/locked"}}, nil)
	if _, err := NewHost(nil).FilesystemUsage(context.Background()); !errors.Is(err, ErrNoFilesystems) {
		t.Fatalf("err = %v, want ErrNoFilesystems", err)
	}
}

func TestStaticInfo(t *testing.T) {
	dir := t.TempDir()
	bat := filepath.Join(dir, "BAT0")
	if err := os.MkdirAll(bat, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bat, "capacity"), []byte("80\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	origHost, origCPU, origMem, origGlob := hostInfo, cpuInfo, virtualMemory, batteryGlob
	hostInfo = func(context.Context) (*host.InfoStat, error) {
		return &host.InfoStat{Platform: "ubuntu", PlatformVersion: "24.04", KernelArch: "x86_64", Hostname: "box"}, nil
	}
	cpuInfo = func(context.Context) ([]cpu.InfoStat, error) {
		return []cpu.InfoStat{{ModelName: "Test CPU", Mhz: 3200}}, nil
	}
	virtualMemory = func(context.Context) (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 16 * gib}, nil
	}
	batteryGlob = filepath.Join(dir, "BAT*", "capacity")
	t.Cleanup(func() { hostInfo, cpuInfo, virtualMemory, batteryGlob = origHost, origCPU, origMem, origGlob })
	stubDisks(t, nil, map[string]*disk.UsageStat{"/": {Total: 512 * gib}})

	info, err := NewHost(nil).StaticInfo(context.Background())
	if err != nil {
		t.Fatalf("StaticInfo: %v", err)
	}
	if info.OS != "ubuntu 24.04 (x86_64) box" {
		t.Fatalf("os = %q", info.OS)
	}
	if info.CPUModel != "Test CPU" || info.CPUSpeedGHz != 3.2 || info.TotalMemoryGB != 16 {
		t.Fatalf("info = %+v", info)
	}
	if info.HasBattery == nil || !*info.HasBattery {
		t.Fatalf("battery not detected")
	}
	if info.TotalStorage == nil || *info.TotalStorage != 512 {
		t.Fatalf("total storage = %v", info.TotalStorage)
	}
}

func TestProcessListIncludesSelf(t *testing.T) {
	h := NewHost(nil)
	self := int32(os.Getpid())
	for i := 0; i < 2; i++ {
		procs, err := h.ProcessList(context.Background())
		if err != nil {
			t.Skipf("process listing unavailable: %v", err)
		}
		found := false
		for _, p := range procs {
			if p.Name == "" {
				t.Fatalf("pid %d has empty name", p.PID)
			}
			if p.PID == self {
				found = true
			}
		}
		if !found {
			t.Fatalf("call %d: own pid %d missing", i, self)
		}
	}
}

func TestTerminateMissingProcess(t *testing.T) {
	ok, err := NewHost(nil).Terminate(context.Background(), 0x7ffffff0)
	if err != nil || ok {
		t.Fatalf("Terminate = %v, %v; want false, nil", ok, err)
	}
}

func TestTerminateRejectsNonPositivePID(t *testing.T) {
	if _, err := NewHost(nil).Terminate(context.Background(), 0); !errors.Is(err, ErrInvalidPID) {
		t.Fatalf("err = %v, want ErrInvalidPID", err)
	}
}

type countingInfo struct {
	calls int
	fail  bool
}

func (c *countingInfo) StaticInfo(context.Context) (model.StaticInfo, error) {
	c.calls++
	if c.fail {
		return model.StaticInfo{}, errors.New("not yet")
	}
	return model.StaticInfo{CPUModel: "cached"}, nil
}

func TestCachedInfoKeepsFirstSuccess(t *testing.T) {
	src := &countingInfo{fail: true}
	c := NewCachedInfo(src)
	if _, err := c.StaticInfo(context.Background()); err == nil {
		t.Fatalf("expected error from failing source")
	}
	src.fail = false
	for i := 0; i < 3; i++ {
		info, err := c.StaticInfo(context.Background())
		if err != nil || info.CPUModel != "cached" {
			t.Fatalf("StaticInfo = %+v, %v", info, err)
		}
	}
	if src.calls != 2 {
		t.Fatalf("source called %d times, want 2", src.calls)
	}
}
