package runner

import (
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/sirupsen/logrus"
)

// HostInfo describes the machine a run executed on. Captured once per run
// and embedded in the run summary.
type HostInfo struct {
	Hostname        string `json:"hostname,omitempty"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty"`
	KernelVersion   string `json:"kernel_version,omitempty"`
	CPUCount        int    `json:"cpu_count,omitempty"`
	MemoryTotal     uint64 `json:"memory_total_bytes,omitempty"`
}

// collectHostInfo gathers host details. Lookups are best-effort; fields
// that cannot be read are left empty.
func collectHostInfo(log logrus.FieldLogger) *HostInfo {
	info := &HostInfo{}

	if hostInfo, err := host.Info(); err != nil {
		log.WithError(err).Debug("Failed to read host info")
	} else {
		info.Hostname = hostInfo.Hostname
		info.Platform = hostInfo.Platform
		info.PlatformVersion = hostInfo.PlatformVersion
		info.KernelVersion = hostInfo.KernelVersion
	}

	if count, err := cpu.Counts(true); err != nil {
		log.WithError(err).Debug("Failed to read cpu count")
	} else {
		info.CPUCount = count
	}

	if vm, err := mem.VirtualMemory(); err != nil {
		log.WithError(err).Debug("Failed to read memory info")
	} else {
		info.MemoryTotal = vm.Total
	}

	return info
}
