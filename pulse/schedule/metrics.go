package schedule

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/metagnosis/errors"
)

// HostMetrics is the memory snapshot reported by the scheduler heartbeat.
type HostMetrics struct {
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
}

// ReadHostMetrics samples system memory usage.
func ReadHostMetrics() (HostMetrics, error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return HostMetrics{}, errors.Wrap(err, "failed to get memory stats")
	}

	const gb = 1024 * 1024 * 1024
	m := HostMetrics{
		MemoryTotalGB: float64(v.Total) / gb,
		MemoryUsedGB:  float64(v.Total-v.Available) / gb,
	}
	if m.MemoryTotalGB > 0 {
		m.MemoryPercent = m.MemoryUsedGB / m.MemoryTotalGB * 100
	}
	return m, nil
}
