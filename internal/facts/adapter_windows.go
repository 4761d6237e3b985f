//go:build windows

package facts

import (
	"context"
	"fmt"

	"github.com/stone-age-io/factagent/internal/probe"
)

const netAdapterScript = `Get-NetAdapter | Where-Object { $_.Status -eq 'Up' } | ForEach-Object {
    $adapter = $_
    $stats = Get-NetAdapterStatistics -Name $adapter.Name
    $ip = Get-NetIPAddress -InterfaceIndex $adapter.ifIndex | Where-Object { $_.AddressFamily -eq 'IPv4' }
    [PSCustomObject]@{
        name = $adapter.InterfaceDescription
        status = $adapter.Status
        mac = $adapter.MacAddress
        ip = $ip.IPAddress
        received = $stats.ReceivedBytes
        sent = $stats.SentBytes
    }
} | ConvertTo-Json`

const physicalDiskScript = `Get-PhysicalDisk | Select-Object MediaType, Model, Size | ConvertTo-Json`

// windowsAdapter reads facts from wmic, PowerShell, nvidia-smi and gopsutil
type windowsAdapter struct {
	opts Options
}

// NewAdapter returns the Windows adapter
func NewAdapter(opts Options) Adapter {
	opts.setDefaults()
	return &windowsAdapter{opts: opts}
}

func (a *windowsAdapter) powershell(ctx context.Context, script string) ([]byte, error) {
	return a.opts.Runner.Run(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", script)
}

func (a *windowsAdapter) OSProbes() []probe.Probe[OSInfo] {
	return []probe.Probe[OSInfo]{hostInfoProbe(), runtimeOSProbe()}
}

func (a *windowsAdapter) CPUProbes() []probe.Probe[CPUInfo] {
	wmic := probe.Probe[CPUInfo]{Name: "wmic-cpu", Run: func(ctx context.Context) (CPUInfo, error) {
		out, err := a.opts.Runner.Run(ctx, "wmic", "cpu", "get",
			"ProcessorId,Name,MaxClockSpeed,NumberOfLogicalProcessors,SocketDesignation", "/format:list")
		if err != nil {
			return CPUInfo{}, err
		}
		info, err := ParseWmicCPU(out)
		if err != nil {
			return CPUInfo{}, err
		}
		if info.Name == "" {
			return CPUInfo{}, fmt.Errorf("wmic returned no processor")
		}
		return info, nil
	}}
	return []probe.Probe[CPUInfo]{wmic, cpuInfoProbe()}
}

func (a *windowsAdapter) GPUProbes() []probe.Probe[[]GPUInfo] {
	listing := func(ctx context.Context) ([]byte, error) {
		return a.opts.Runner.Run(ctx, "wmic", "path", "win32_videocontroller", "get", "name")
	}
	vendors := knownGPUVendors([]probe.Probe[[]GPUInfo]{nvidiaSMIProbe(a.opts.Runner)})
	return []probe.Probe[[]GPUInfo]{
		gpuDispatchProbe("wmic-videocontroller", listing, vendors, a.opts.Logger, a.opts.Timeout, a.opts.Observer),
	}
}

func (a *windowsAdapter) MemoryProbes() []probe.Probe[MemoryInfo] {
	wmic := probe.Probe[MemoryInfo]{Name: "wmic-mem", Run: func(ctx context.Context) (MemoryInfo, error) {
		out, err := a.opts.Runner.Run(ctx, "wmic", "ComputerSystem", "get", "TotalPhysicalMemory", "/value")
		if err != nil {
			return MemoryInfo{}, err
		}
		total, err := ParseWmicValue(out, "TotalPhysicalMemory")
		if err != nil {
			return MemoryInfo{}, err
		}

		out, err = a.opts.Runner.Run(ctx, "wmic", "OS", "get", "FreePhysicalMemory", "/value")
		if err != nil {
			return MemoryInfo{}, err
		}
		// reported in KiB
		freeKB, err := ParseWmicValue(out, "FreePhysicalMemory")
		if err != nil {
			return MemoryInfo{}, err
		}
		return MemoryInfo{Total: total, Free: freeKB * 1024}, nil
	}}

	probes := []probe.Probe[MemoryInfo]{wmic, memoryProbe()}
	if a.opts.ExporterURL != "" {
		probes = append(probes, exporterMemoryProbe(a.opts.HTTPClient, a.opts.ExporterURL, ExporterMemoryNames{
			Total: "windows_memory_physical_total_bytes",
			Free:  "windows_memory_physical_free_bytes",
		}))
	}
	return probes
}

func (a *windowsAdapter) DiskProbes() []probe.Probe[[]DiskInfo] {
	ps := probe.Probe[[]DiskInfo]{Name: "powershell-physicaldisk", Run: func(ctx context.Context) ([]DiskInfo, error) {
		out, err := a.powershell(ctx, physicalDiskScript)
		if err != nil {
			return nil, err
		}
		disks, err := ParsePowerShellDisks(out)
		if err != nil {
			return nil, err
		}
		if len(disks) == 0 {
			return nil, fmt.Errorf("no physical disks reported")
		}
		return disks, nil
	}}
	unknown := func(string) string { return "Unknown" }
	return []probe.Probe[[]DiskInfo]{ps, partitionsProbe(unknown)}
}

func (a *windowsAdapter) NetworkProbes() []probe.Probe[[]Interface] {
	ps := probe.Probe[[]Interface]{Name: "powershell-netadapter", Run: func(ctx context.Context) ([]Interface, error) {
		out, err := a.powershell(ctx, netAdapterScript)
		if err != nil {
			return nil, err
		}
		return ParsePowerShellNet(out)
	}}
	return []probe.Probe[[]Interface]{ps, netInterfacesProbe()}
}
