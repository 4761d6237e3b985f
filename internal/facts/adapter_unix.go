//go:build !windows

package facts

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/stone-age-io/factagent/internal/probe"
)

// posixAdapter reads facts from lscpu, lspci, nvidia-smi, ip and gopsutil
type posixAdapter struct {
	opts Options
}

// NewAdapter returns the POSIX adapter
func NewAdapter(opts Options) Adapter {
	opts.setDefaults()
	return &posixAdapter{opts: opts}
}

func (a *posixAdapter) OSProbes() []probe.Probe[OSInfo] {
	return []probe.Probe[OSInfo]{hostInfoProbe(), runtimeOSProbe()}
}

func (a *posixAdapter) CPUProbes() []probe.Probe[CPUInfo] {
	lscpu := probe.Probe[CPUInfo]{Name: "lscpu", Run: func(ctx context.Context) (CPUInfo, error) {
		out, err := a.opts.Runner.Run(ctx, "sh", "-c", "LC_ALL=C lscpu")
		if err != nil {
			return CPUInfo{}, err
		}
		return ParseLscpu(out)
	}}
	return []probe.Probe[CPUInfo]{lscpu, cpuInfoProbe()}
}

func (a *posixAdapter) GPUProbes() []probe.Probe[[]GPUInfo] {
	lspci := func(ctx context.Context) ([]byte, error) {
		return a.opts.Runner.Run(ctx, "lspci")
	}
	lspciFallback := probe.Probe[[]GPUInfo]{Name: "lspci", Run: func(ctx context.Context) ([]GPUInfo, error) {
		out, err := lspci(ctx)
		if err != nil {
			return nil, err
		}
		return ParseLspciNVIDIA(out)
	}}

	vendors := knownGPUVendors([]probe.Probe[[]GPUInfo]{nvidiaSMIProbe(a.opts.Runner), lspciFallback})
	return []probe.Probe[[]GPUInfo]{
		gpuDispatchProbe("lspci-detect", lspci, vendors, a.opts.Logger, a.opts.Timeout, a.opts.Observer),
	}
}

func (a *posixAdapter) MemoryProbes() []probe.Probe[MemoryInfo] {
	probes := []probe.Probe[MemoryInfo]{memoryProbe()}
	if a.opts.ExporterURL != "" {
		probes = append(probes, exporterMemoryProbe(a.opts.HTTPClient, a.opts.ExporterURL, ExporterMemoryNames{
			Total:   "node_memory_MemTotal_bytes",
			Free:    "node_memory_MemFree_bytes",
			Buffers: "node_memory_Buffers_bytes",
			Cached:  "node_memory_Cached_bytes",
		}))
	}
	return probes
}

func (a *posixAdapter) DiskProbes() []probe.Probe[[]DiskInfo] {
	return []probe.Probe[[]DiskInfo]{partitionsProbe(rotationalKind)}
}

func (a *posixAdapter) NetworkProbes() []probe.Probe[[]Interface] {
	ipJSON := probe.Probe[[]Interface]{Name: "ip-json", Run: func(ctx context.Context) ([]Interface, error) {
		out, err := a.opts.Runner.Run(ctx, "ip", "-j", "a")
		if err != nil {
			return nil, err
		}
		ifaces, err := ParseIPAddrJSON(out)
		if err != nil {
			return nil, err
		}
		return withCounters(ctx, ifaces), nil
	}}
	return []probe.Probe[[]Interface]{ipJSON, netInterfacesProbe()}
}

// sysBlock is the sysfs block class directory, replaced in tests
var sysBlock = "/sys/class/block"

// rotationalKind reads the queue/rotational flag of the device, or of its
// parent disk when the device is a partition
func rotationalKind(device string) string {
	name := filepath.Base(device)
	if name == "" || name == "." || name == "/" {
		return "Unknown"
	}
	dev := filepath.Join(sysBlock, name)
	if real, err := filepath.EvalSymlinks(dev); err == nil {
		dev = real
	}
	for _, path := range []string{
		filepath.Join(dev, "queue", "rotational"),
		filepath.Join(filepath.Dir(dev), "queue", "rotational"),
	} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		switch strings.TrimSpace(string(data)) {
		case "0":
			return "SSD"
		case "1":
			return "HDD"
		}
	}
	return "Unknown"
}
