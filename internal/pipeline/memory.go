package pipeline

import (
	"math"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/shirou/gopsutil/v3/mem"
)

// MemoryMonitor reports current heap usage as a percentage of the memory
// available to the process.
type MemoryMonitor interface {
	HeapUsagePercent() float64
}

// RuntimeMonitor measures HeapAlloc against the Go memory limit, or against
// total system memory when no limit is set.
type RuntimeMonitor struct {
	once  sync.Once
	limit uint64
}

func (m *RuntimeMonitor) HeapUsagePercent() float64 {
	m.once.Do(func() { m.limit = memoryCeiling() })
	if m.limit == 0 {
		return 0
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.HeapAlloc) / float64(m.limit) * 100
}

func memoryCeiling() uint64 {
	// A negative input reads the limit without changing it.
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit != math.MaxInt64 {
		return uint64(limit)
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm.Total > 0 {
		return vm.Total
	}
	return 0
}

// FixedMonitor always reports the same usage.
type FixedMonitor float64

func (f FixedMonitor) HeapUsagePercent() float64 { return float64(f) }
