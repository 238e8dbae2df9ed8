package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// Collector is the public contract any sample source must satisfy.
type Collector interface {
	// Collect reads the host once and returns the sample. The timestamp
	// is the moment the collection started.
	Collect(ctx context.Context) (Sample, error)
}

// Source is the set of OS queries a HostCollector needs. Any metrics
// library exposing these three readings satisfies it.
type Source interface {
	// CPUPercent blocks for window and returns the system-wide CPU
	// utilization over that window.
	CPUPercent(ctx context.Context, window time.Duration) (float64, error)
	// MemoryPercent returns the current virtual memory utilization.
	MemoryPercent(ctx context.Context) (float64, error)
	// DiskPercent returns the utilization of the filesystem mounted at path.
	DiskPercent(ctx context.Context, path string) (float64, error)
}

// PsutilSource - reads the host through gopsutil.

// PsutilSource implements Source on top of gopsutil.
type PsutilSource struct{}

// CPUPercent implements Source.
func (PsutilSource) CPUPercent(ctx context.Context, window time.Duration) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, window, false)
	if err != nil {
		return 0, err
	}
	if len(pct) == 0 {
		return 0, fmt.Errorf("cpu percent returned no values")
	}
	return pct[0], nil
}

// MemoryPercent implements Source.
func (PsutilSource) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

// DiskPercent implements Source.
func (PsutilSource) DiskPercent(ctx context.Context, path string) (float64, error) {
	du, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return 0, err
	}
	return du.UsedPercent, nil
}

// HostCollector - produces one Sample per call.

// HostCollector reads CPU, memory and disk utilization from Source.
type HostCollector struct {
	Source    Source           // OS metrics provider
	CPUWindow time.Duration    // CPU measurement window, e.g. 1s
	DiskPath  string           // mount path for the disk reading, e.g. "/"
	Now       func() time.Time // injected for testability (may be nil -> time.Now)
	Log       *zap.Logger      // may be nil
}

// NewHostCollector returns a collector reading the host through gopsutil.
func NewHostCollector(cpuWindow time.Duration, diskPath string, log *zap.Logger) *HostCollector {
	return &HostCollector{
		Source:    PsutilSource{},
		CPUWindow: cpuWindow,
		DiskPath:  diskPath,
		Now:       time.Now,
		Log:       log,
	}
}

// Collect takes the timestamp first, then reads CPU, memory and disk in that
// order. The first failing query aborts the call.
func (h *HostCollector) Collect(ctx context.Context) (Sample, error) {
	now := h.Now
	if now == nil {
		now = time.Now
	}
	s := Sample{Timestamp: now()}

	cpuPct, err := h.Source.CPUPercent(ctx, h.CPUWindow)
	if err != nil {
		return Sample{}, fmt.Errorf("read cpu usage: %w", err)
	}
	memPct, err := h.Source.MemoryPercent(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("read memory usage: %w", err)
	}
	diskPct, err := h.Source.DiskPercent(ctx, h.DiskPath)
	if err != nil {
		return Sample{}, fmt.Errorf("read disk usage of %s: %w", h.DiskPath, err)
	}

	s.CPUUsagePercent = round1(cpuPct)
	s.MemoryUsagePercent = round1(memPct)
	s.DiskUsagePercent = round1(diskPct)

	if h.Log != nil {
		h.Log.Debug("sample collected",
			zap.Float64("cpu", s.CPUUsagePercent),
			zap.Float64("mem", s.MemoryUsagePercent),
			zap.Float64("disk", s.DiskUsagePercent))
	}
	return s, nil
}
