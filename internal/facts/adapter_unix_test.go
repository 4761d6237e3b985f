//go:build !windows

package facts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stone-age-io/factagent/internal/probe"
)

func TestRotationalKind(t *testing.T) {
	dir := t.TempDir()
	old := sysBlock
	sysBlock = dir
	t.Cleanup(func() { sysBlock = old })

	write := func(rel, content string) {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("nvme0n1/queue/rotational", "0\n")
	write("sda/queue/rotational", "1\n")
	// partitions are links into their parent disk directory
	write("sdb/queue/rotational", "1\n")
	if err := os.MkdirAll(filepath.Join(dir, "sdb", "sdb1"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(dir, "sdb", "sdb1"), filepath.Join(dir, "sdb1")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		device string
		want   string
	}{
		{"/dev/nvme0n1", "SSD"},
		{"/dev/sda", "HDD"},
		{"/dev/sdb1", "HDD"},
		{"/dev/sdc1", "Unknown"},
		{"", "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.device, func(t *testing.T) {
			if got := rotationalKind(tt.device); got != tt.want {
				t.Errorf("rotationalKind(%q) = %q, want %q", tt.device, got, tt.want)
			}
		})
	}
}

func TestNewAdapterProbeOrder(t *testing.T) {
	a := NewAdapter(Options{Runner: &fakeRunner{}})

	cpu := a.CPUProbes()
	if len(cpu) != 2 || cpu[0].Name != "lscpu" || cpu[1].Name != "gopsutil-cpu" {
		t.Errorf("CPU probe order = %v", names(cpu))
	}
	if mem := a.MemoryProbes(); len(mem) != 1 {
		t.Errorf("memory probes without exporter = %v, want gopsutil only", names(mem))
	}

	withExporter := NewAdapter(Options{Runner: &fakeRunner{}, ExporterURL: "http://127.0.0.1:9100/metrics"})
	mem := withExporter.MemoryProbes()
	if len(mem) != 2 || mem[1].Name != "exporter-mem" {
		t.Errorf("memory probes with exporter = %v", names(mem))
	}
}

func names[T any](probes []probe.Probe[T]) []string {
	out := make([]string, len(probes))
	for i, p := range probes {
		out[i] = p.Name
	}
	return out
}
