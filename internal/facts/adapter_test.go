package facts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stone-age-io/factagent/internal/probe"
	"go.uber.org/zap"
)

type stubAdapter struct {
	os   []probe.Probe[OSInfo]
	cpu  []probe.Probe[CPUInfo]
	gpu  []probe.Probe[[]GPUInfo]
	mem  []probe.Probe[MemoryInfo]
	disk []probe.Probe[[]DiskInfo]
	net  []probe.Probe[[]Interface]
}

func (s *stubAdapter) OSProbes() []probe.Probe[OSInfo] { return s.os }
func (s *stubAdapter) CPUProbes() []probe.Probe[CPUInfo] { return s.cpu }
func (s *stubAdapter) GPUProbes() []probe.Probe[[]GPUInfo] { return s.gpu }
func (s *stubAdapter) MemoryProbes() []probe.Probe[MemoryInfo] { return s.mem }
func (s *stubAdapter) DiskProbes() []probe.Probe[[]DiskInfo] { return s.disk }
func (s *stubAdapter) NetworkProbes() []probe.Probe[[]Interface] { return s.net }

func failing[T any](name string) probe.Probe[T] {
	return probe.Probe[T]{Name: name, Run: func(ctx context.Context) (T, error) {
		var zero T
		return zero, errors.New(name + " unavailable")
	}}
}

func returning[T any](name string, v T) probe.Probe[T] {
	return probe.Probe[T]{Name: name, Run: func(ctx context.Context) (T, error) {
		return v, nil
	}}
}

// TestCollectorHardwarePartialFailure tests that a failed sub-family only zeroes itself
func TestCollectorHardwarePartialFailure(t *testing.T) {
	adapter := &stubAdapter{
		os:   []probe.Probe[OSInfo]{failing[OSInfo]("host"), returning("runtime", OSInfo{Hostname: "node1", OSType: "Linux"})},
		cpu:  []probe.Probe[CPUInfo]{failing[CPUInfo]("lscpu"), failing[CPUInfo]("gopsutil-cpu")},
		gpu:  []probe.Probe[[]GPUInfo]{returning("detect", []GPUInfo{})},
		mem:  []probe.Probe[MemoryInfo]{returning("mem", MemoryInfo{Total: 1024})},
		disk: nil,
	}

	c := NewCollector(adapter, zap.NewNop(), time.Second, nil)
	hw := c.Hardware(context.Background())

	if hw.OS.Hostname != "node1" {
		t.Errorf("OS.Hostname = %q, want fallback value", hw.OS.Hostname)
	}
	if hw.CPU != (CPUInfo{}) {
		t.Errorf("CPU = %+v, want zero value", hw.CPU)
	}
	if hw.Memory.Total != 1024 {
		t.Errorf("Memory.Total = %d, want 1024", hw.Memory.Total)
	}

	data, err := json.Marshal(hw)
	if err != nil {
		t.Fatalf("marshal hardware: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal hardware: %v", err)
	}
	for _, key := range []string{"os_info", "cpu_info", "gpu_info", "mem_info", "disks_info"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("hardware JSON missing %q", key)
		}
	}
	if string(decoded["gpu_info"]) != "[]" || string(decoded["disks_info"]) != "[]" {
		t.Errorf("empty lists must encode as [], got gpu=%s disks=%s", decoded["gpu_info"], decoded["disks_info"])
	}
}

func TestCollectorNetworkRejectsEmpty(t *testing.T) {
	eth0 := Interface{Name: "eth0", Status: "UP"}
	adapter := &stubAdapter{
		net: []probe.Probe[[]Interface]{
			returning("ip-json", []Interface{}),
			returning("gopsutil-net", []Interface{eth0}),
		},
	}

	c := NewCollector(adapter, zap.NewNop(), time.Second, nil)
	ifaces := c.Network(context.Background())

	if len(ifaces) != 1 || ifaces[0] != eth0 {
		t.Errorf("Network() = %+v, want fallback interface list", ifaces)
	}
}

func TestCollectorNetworkDefault(t *testing.T) {
	adapter := &stubAdapter{net: []probe.Probe[[]Interface]{failing[[]Interface]("ip-json")}}

	c := NewCollector(adapter, zap.NewNop(), time.Second, nil)
	ifaces := c.Network(context.Background())

	if ifaces == nil || len(ifaces) != 0 {
		t.Errorf("Network() = %#v, want empty non-nil list", ifaces)
	}
}
