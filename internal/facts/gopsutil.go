package facts

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stone-age-io/factagent/internal/probe"
)

// Probes in this file are built on gopsutil and work on every platform.
// Adapters use them as primary or fallback sources.

func hostInfoProbe() probe.Probe[OSInfo] {
	return probe.Probe[OSInfo]{Name: "gopsutil-host", Run: func(ctx context.Context) (OSInfo, error) {
		info, err := host.InfoWithContext(ctx)
		if err != nil {
			return OSInfo{}, err
		}
		osType := info.Platform
		if osType == "" {
			osType = info.OS
		}
		return OSInfo{
			Hostname: info.Hostname,
			OSType:   titleCase(osType),
			Version:  info.PlatformVersion,
			Bitness:  bitness(info.KernelArch),
		}, nil
	}}
}

// runtimeOSProbe never fails; it is the last resort for OS facts
func runtimeOSProbe() probe.Probe[OSInfo] {
	return probe.Probe[OSInfo]{Name: "runtime", Run: func(ctx context.Context) (OSInfo, error) {
		hostname, _ := os.Hostname()
		return OSInfo{
			Hostname: hostname,
			OSType:   titleCase(runtime.GOOS),
			Bitness:  bitness(runtime.GOARCH),
		}, nil
	}}
}

func cpuInfoProbe() probe.Probe[CPUInfo] {
	return probe.Probe[CPUInfo]{Name: "gopsutil-cpu", Run: func(ctx context.Context) (CPUInfo, error) {
		stats, err := cpu.InfoWithContext(ctx)
		if err != nil {
			return CPUInfo{}, err
		}
		if len(stats) == 0 {
			return CPUInfo{}, fmt.Errorf("no CPU info returned")
		}

		sockets := make(map[string]struct{})
		for _, s := range stats {
			sockets[s.PhysicalID] = struct{}{}
		}

		logical, err := cpu.CountsWithContext(ctx, true)
		if err != nil {
			logical = len(stats)
		}

		return CPUInfo{
			Name:    strings.TrimSpace(stats[0].ModelName),
			Num:     uint32(len(sockets)),
			Speed:   uint64(stats[0].Mhz),
			CoreNum: uint32(logical),
		}, nil
	}}
}

func memoryProbe() probe.Probe[MemoryInfo] {
	return probe.Probe[MemoryInfo]{Name: "gopsutil-mem", Run: func(ctx context.Context) (MemoryInfo, error) {
		vm, err := mem.VirtualMemoryWithContext(ctx)
		if err != nil {
			return MemoryInfo{}, err
		}
		return MemoryInfo{
			Total:   vm.Total,
			Free:    vm.Free,
			Buffers: vm.Buffers,
			Cached:  vm.Cached,
		}, nil
	}}
}

// skipFsTypes are pseudo filesystems that never describe a disk
var skipFsTypes = map[string]bool{
	"devfs":    true,
	"devtmpfs": true,
	"tmpfs":    true,
	"squashfs": true,
	"overlay":  true,
	"proc":     true,
	"sysfs":    true,
	"cgroup":   true,
	"cgroup2":  true,
}

// partitionsProbe lists physical partitions with usage. kindOf maps a
// device path to "SSD", "HDD" or "Unknown".
func partitionsProbe(kindOf func(device string) string) probe.Probe[[]DiskInfo] {
	return probe.Probe[[]DiskInfo]{Name: "gopsutil-disk", Run: func(ctx context.Context) ([]DiskInfo, error) {
		partitions, err := disk.PartitionsWithContext(ctx, false)
		if err != nil {
			return nil, err
		}

		disks := make([]DiskInfo, 0, len(partitions))
		seen := make(map[string]bool)
		for _, p := range partitions {
			if skipFsTypes[p.Fstype] || seen[p.Mountpoint] {
				continue
			}
			seen[p.Mountpoint] = true

			d := DiskInfo{
				Name:       p.Device,
				MountPoint: p.Mountpoint,
				FileSystem: p.Fstype,
				Kind:       kindOf(p.Device),
			}
			d.MediaType = d.Kind

			if usage, err := disk.UsageWithContext(ctx, p.Mountpoint); err == nil {
				d.Size = strconv.FormatUint(usage.Total, 10)
				d.TotalSpace = d.Size
				d.AvailableSpace = strconv.FormatUint(usage.Free, 10)
			}
			disks = append(disks, d)
		}

		if len(disks) == 0 {
			return nil, fmt.Errorf("no disks found")
		}
		return disks, nil
	}}
}

func netInterfacesProbe() probe.Probe[[]Interface] {
	return probe.Probe[[]Interface]{Name: "gopsutil-net", Run: func(ctx context.Context) ([]Interface, error) {
		list, err := psnet.InterfacesWithContext(ctx)
		if err != nil {
			return nil, err
		}

		ifaces := make([]Interface, 0, len(list))
		for _, nic := range list {
			iface := Interface{Name: nic.Name, MAC: nic.HardwareAddr, Status: "DOWN"}
			for _, f := range nic.Flags {
				if f == "up" {
					iface.Status = "UP"
					break
				}
			}
			for _, a := range nic.Addrs {
				addr := a.Addr
				if i := strings.IndexByte(addr, '/'); i >= 0 {
					addr = addr[:i]
				}
				if strings.Count(addr, ".") == 3 && !strings.Contains(addr, ":") {
					iface.IP = addr
					break
				}
			}
			ifaces = append(ifaces, iface)
		}
		return withCounters(ctx, ifaces), nil
	}}
}

// withCounters fills byte counters by interface name; interfaces without
// counters keep zero
func withCounters(ctx context.Context, ifaces []Interface) []Interface {
	counters, err := psnet.IOCountersWithContext(ctx, true)
	if err != nil {
		return ifaces
	}
	byName := make(map[string]psnet.IOCountersStat, len(counters))
	for _, c := range counters {
		byName[c.Name] = c
	}
	for i := range ifaces {
		if c, ok := byName[ifaces[i].Name]; ok {
			ifaces[i].Received = c.BytesRecv
			ifaces[i].Sent = c.BytesSent
		}
	}
	return ifaces
}

func bitness(arch string) string {
	switch strings.ToLower(arch) {
	case "x86_64", "amd64", "aarch64", "arm64", "ppc64", "ppc64le", "s390x", "riscv64", "mips64", "mips64le", "loong64":
		return "64-bit"
	case "i386", "i686", "386", "x86", "arm", "armv7l", "armv6l", "mips", "mipsle":
		return "32-bit"
	default:
		return "Unknown"
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
