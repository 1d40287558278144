package probe

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostStats is a point-in-time snapshot of host resource usage shown on
// the dashboard.
type HostStats struct {
	CPUPercent  float64 `json:"cpu_percent"`
	MemPercent  float64 `json:"mem_percent"`
	MemTotalGB  float64 `json:"mem_total_gb"`
	DiskPercent float64 `json:"disk_percent"`
	DiskTotalGB float64 `json:"disk_total_gb"`
}

// CollectHostStats gathers CPU, memory and root-filesystem usage.
func CollectHostStats() (HostStats, error) {
	var st HostStats

	cp, err := cpu.Percent(0, false)
	if err != nil {
		return st, fmt.Errorf("probe: reading cpu usage: %w", err)
	}
	if len(cp) > 0 {
		st.CPUPercent = cp[0]
	}

	vm, err := mem.VirtualMemory()
	if err != nil {
		return st, fmt.Errorf("probe: reading memory usage: %w", err)
	}
	st.MemPercent = vm.UsedPercent
	st.MemTotalGB = float64(vm.Total) / (1 << 30)

	du, err := disk.Usage("/")
	if err != nil {
		return st, fmt.Errorf("probe: reading disk usage: %w", err)
	}
	st.DiskPercent = du.UsedPercent
	st.DiskTotalGB = float64(du.Total) / (1 << 30)

	return st, nil
}
