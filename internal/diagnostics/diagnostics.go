// Package diagnostics samples host resource usage for overrun warnings and system metrics.
package diagnostics

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/arribada/audiocontroller/internal/logger"
	"github.com/arribada/audiocontroller/internal/observability/metrics"
)

// Snapshot is a point-in-time view of host and process resource usage.
// Fields that could not be read are left at zero.
type Snapshot struct {
	Time          time.Time
	CPUPercent    float64
	MemoryPercent float64
	MemoryUsed    uint64
	SwapPercent   float64
	Goroutines    int
	HeapAllocMB   uint64
	NumGC         uint32
}

// Collect samples the host. CPU usage is measured since the previous call,
// so the first call in a process may report 0.
func Collect(ctx context.Context) Snapshot {
	s := Snapshot{Time: time.Now(), Goroutines: runtime.NumGoroutine()}

	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		s.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		s.MemoryPercent = vm.UsedPercent
		s.MemoryUsed = vm.Used
	}
	if swap, err := mem.SwapMemoryWithContext(ctx); err == nil {
		s.SwapPercent = swap.UsedPercent
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	s.HeapAllocMB = bToMb(m.HeapAlloc)
	s.NumGC = m.NumGC
	return s
}

// Fields returns the snapshot as log fields
func (s Snapshot) Fields() []logger.Field {
	return []logger.Field{
		logger.Float64("cpu_percent", s.CPUPercent),
		logger.Float64("memory_percent", s.MemoryPercent),
		logger.Float64("swap_percent", s.SwapPercent),
		logger.Int("goroutines", s.Goroutines),
		logger.Uint64("heap_alloc_mb", s.HeapAllocMB),
	}
}

func (s Snapshot) String() string {
	var b strings.Builder
	b.WriteString("======== DEBUG INFO START ========\n")
	fmt.Fprintf(&b, "CPU Utilization: %.2f%%\n", s.CPUPercent)
	fmt.Fprintf(&b, "RAM Usage: %.2f%% (%d MiB)\n", s.MemoryPercent, bToMb(s.MemoryUsed))
	fmt.Fprintf(&b, "Swap Usage: %.2f%%\n", s.SwapPercent)
	fmt.Fprintf(&b, "Go Runtime: Goroutines = %d, HeapAlloc = %d MiB, NumGC = %d\n", s.Goroutines, s.HeapAllocMB, s.NumGC)
	b.WriteString("======== DEBUG INFO END ========\n")
	return b.String()
}

// Monitor publishes a snapshot to m every interval until ctx is done
func Monitor(ctx context.Context, m *metrics.SystemMetrics, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s := Collect(ctx)
		m.Update(s.CPUPercent, s.MemoryPercent, s.MemoryUsed, s.SwapPercent)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
