package facts

import (
	"strings"
	"testing"
)

func TestParseNvidiaSMI(t *testing.T) {
	out := []byte("0, Test GPU, GPU-1234, 0000:01:00.0, 100 MiB, 8192 MiB, 45, 120.00 W\n")

	gpus, err := ParseNvidiaSMI(out)
	if err != nil {
		t.Fatalf("ParseNvidiaSMI() error = %v", err)
	}
	if len(gpus) != 1 {
		t.Fatalf("got %d GPUs, want 1", len(gpus))
	}

	want := GPUInfo{
		Index:       "0",
		Name:        "Test GPU",
		UUID:        "GPU-1234",
		BusID:       "0000:01:00.0",
		MemoryUsed:  "100 MiB",
		MemoryTotal: "8192 MiB",
		Temperature: "45",
		PowerDraw:   "120.00 W",
	}
	if gpus[0] != want {
		t.Errorf("ParseNvidiaSMI() = %+v, want %+v", gpus[0], want)
	}
}

func TestParseNvidiaSMIErrors(t *testing.T) {
	tests := []struct {
		name string
		out  string
	}{
		{"empty", ""},
		{"driver failure", "NVIDIA-SMI has failed because it couldn't communicate with the NVIDIA driver."},
		{"short line", "0, Test GPU, GPU-1234"},
		{"second line short", "0, A, U, B, 1, 2, 3, 4\n1, B, U"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseNvidiaSMI([]byte(tt.out)); err == nil {
				t.Error("ParseNvidiaSMI() expected error, got nil")
			}
		})
	}
}

func TestParseLspciNVIDIA(t *testing.T) {
	out := []byte(strings.Join([]string{
		"00:02.0 VGA compatible controller: Intel Corporation UHD Graphics 630 (rev 02)",
		"01:00.0 VGA compatible controller: NVIDIA Corporation GA102 [GeForce RTX 3090] (rev a1)",
		"01:00.1 Audio device: NVIDIA Corporation GA102 High Definition Audio Controller (rev a1)",
		"02:00.0 3D controller: NVIDIA Corporation TU104GL (rev a1)",
	}, "\n"))

	gpus, err := ParseLspciNVIDIA(out)
	if err != nil {
		t.Fatalf("ParseLspciNVIDIA() error = %v", err)
	}
	if len(gpus) != 2 {
		t.Fatalf("got %d GPUs, want 2: %+v", len(gpus), gpus)
	}

	if gpus[0].Name != "GeForce RTX 3090" {
		t.Errorf("gpus[0].Name = %q, want bracketed model", gpus[0].Name)
	}
	if gpus[0].BusID != "0000:01:00" {
		t.Errorf("gpus[0].BusID = %q, want 0000:01:00", gpus[0].BusID)
	}
	if gpus[1].Name != "TU104GL" {
		t.Errorf("gpus[1].Name = %q, want device text", gpus[1].Name)
	}
	if gpus[1].Index != "1" {
		t.Errorf("gpus[1].Index = %q, want 1", gpus[1].Index)
	}
}

func TestParseLspciNoNVIDIA(t *testing.T) {
	out := []byte("00:02.0 VGA compatible controller: Intel Corporation UHD Graphics 630 (rev 02)\n")
	if _, err := ParseLspciNVIDIA(out); err == nil {
		t.Error("expected error when no NVIDIA device is listed")
	}
}

func TestParseLscpu(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    CPUInfo
		wantErr bool
	}{
		{
			name: "full output",
			out: `Architecture:            x86_64
CPU(s):                  16
Socket(s):               2
Model name:              Intel(R) Xeon(R) CPU E5-2620 v4 @ 2.10GHz
CPU MHz:                 2100.000
CPU max MHz:             3000.0000`,
			want: CPUInfo{Name: "Intel(R) Xeon(R) CPU E5-2620 v4 @ 2.10GHz", Num: 2, Speed: 2100, CoreNum: 16},
		},
		{
			name: "max MHz only",
			out: `CPU(s):                  8
Socket(s):               1
Model name:              AMD Ryzen 7 5800X
CPU max MHz:             4850.1948`,
			want: CPUInfo{Name: "AMD Ryzen 7 5800X", Num: 1, Speed: 4850, CoreNum: 8},
		},
		{
			name: "missing lines default to zero",
			out:  `Model name:              Cortex-A72`,
			want: CPUInfo{Name: "Cortex-A72"},
		},
		{
			name: "online list is not the count",
			out: `CPU(s):                  4
On-line CPU(s) list:     0-3`,
			want: CPUInfo{CoreNum: 4},
		},
		{
			name:    "non-numeric sockets",
			out:     `Socket(s):               -`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLscpu([]byte(tt.out))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLscpu() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseLscpu() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseWmicCPU(t *testing.T) {
	out := []byte("\r\n\r\nMaxClockSpeed=2401\r\nName=Intel(R) Xeon(R) Silver 4214\r\nNumberOfLogicalProcessors=24\r\nProcessorId=BFEBFBFF00050657\r\nSocketDesignation=CPU1\r\n\r\n" +
		"MaxClockSpeed=2401\r\nName=Intel(R) Xeon(R) Silver 4214\r\nNumberOfLogicalProcessors=24\r\nProcessorId=BFEBFBFF00050657\r\nSocketDesignation=CPU2\r\n")

	got, err := ParseWmicCPU(out)
	if err != nil {
		t.Fatalf("ParseWmicCPU() error = %v", err)
	}

	want := CPUInfo{
		UUID:    "BFEBFBFF00050657",
		Name:    "Intel(R) Xeon(R) Silver 4214",
		Num:     2,
		Speed:   2401,
		CoreNum: 48,
	}
	if got != want {
		t.Errorf("ParseWmicCPU() = %+v, want %+v", got, want)
	}
}

func TestParseWmicValue(t *testing.T) {
	out := []byte("\r\n\r\nTotalPhysicalMemory=17054650368\r\n\r\n")

	got, err := ParseWmicValue(out, "TotalPhysicalMemory")
	if err != nil {
		t.Fatalf("ParseWmicValue() error = %v", err)
	}
	if got != 17054650368 {
		t.Errorf("ParseWmicValue() = %d, want 17054650368", got)
	}

	if _, err := ParseWmicValue(out, "FreePhysicalMemory"); err == nil {
		t.Error("expected error for missing key")
	}
}

func TestNormalizeArray(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"single object", `{"a":1}`, `[{"a":1}]`},
		{"array", `[{"a":1},{"a":2}]`, `[{"a":1},{"a":2}]`},
		{"empty", "", `[]`},
		{"whitespace", "  \r\n", `[]`},
		{"object with newline", "{\"a\":1}\r\n", `[{"a":1}]`},
		{"byte order mark", "\xef\xbb\xbf{\"a\":1}", `[{"a":1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(NormalizeArray([]byte(tt.in))); got != tt.want {
				t.Errorf("NormalizeArray(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseIPAddrJSON(t *testing.T) {
	out := []byte(`[
 {"ifindex":1,"ifname":"lo","operstate":"UNKNOWN","address":"00:00:00:00:00:00",
  "addr_info":[{"family":"inet","local":"127.0.0.1","prefixlen":8},{"family":"inet6","local":"::1"}]},
 {"ifindex":2,"ifname":"eth0","operstate":"UP","address":"52:54:00:12:34:56",
  "addr_info":[{"family":"inet6","local":"fe80::1"},{"family":"inet","local":"10.0.0.5","prefixlen":24}]},
 {"ifindex":3,"ifname":"wlan0","operstate":"DOWN","address":"aa:bb:cc:dd:ee:ff","addr_info":[]}
]`)

	ifaces, err := ParseIPAddrJSON(out)
	if err != nil {
		t.Fatalf("ParseIPAddrJSON() error = %v", err)
	}
	if len(ifaces) != 3 {
		t.Fatalf("got %d interfaces, want 3", len(ifaces))
	}

	want := Interface{Name: "eth0", Status: "UP", MAC: "52:54:00:12:34:56", IP: "10.0.0.5"}
	if ifaces[1] != want {
		t.Errorf("ifaces[1] = %+v, want %+v", ifaces[1], want)
	}
	if ifaces[2].IP != "" {
		t.Errorf("interface without address got IP %q", ifaces[2].IP)
	}
}

func TestParseIPAddrJSONInvalid(t *testing.T) {
	if _, err := ParseIPAddrJSON([]byte("Object \"-j\" is unknown")); err == nil {
		t.Error("expected error for non-JSON output")
	}
}

func TestParsePowerShellDisks(t *testing.T) {
	tests := []struct {
		name     string
		out      string
		wantLen  int
		wantDisk DiskInfo
	}{
		{
			name:    "single object",
			out:     `{"MediaType":"SSD","Model":"Samsung SSD 970 EVO 1TB ","Size":1000204886016}`,
			wantLen: 1,
			wantDisk: DiskInfo{MediaType: "SSD", Name: "Samsung SSD 970 EVO 1TB", Size: "1000204886016",
				TotalSpace: "1000204886016", Kind: "SSD"},
		},
		{
			name:    "numeric media type",
			out:     `[{"MediaType":3,"Model":"WDC WD10EZEX","Size":1000204886016},{"MediaType":4,"Model":"NVMe","Size":512110190592}]`,
			wantLen: 2,
			wantDisk: DiskInfo{MediaType: "3", Name: "WDC WD10EZEX", Size: "1000204886016",
				TotalSpace: "1000204886016", Kind: "3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disks, err := ParsePowerShellDisks([]byte(tt.out))
			if err != nil {
				t.Fatalf("ParsePowerShellDisks() error = %v", err)
			}
			if len(disks) != tt.wantLen {
				t.Fatalf("got %d disks, want %d", len(disks), tt.wantLen)
			}
			if disks[0] != tt.wantDisk {
				t.Errorf("disks[0] = %+v, want %+v", disks[0], tt.wantDisk)
			}
		})
	}
}

func TestParsePowerShellNet(t *testing.T) {
	out := []byte(`{"name":"Intel(R) Ethernet Connection","status":"Up","mac":"00-15-5D-01-02-03",
"ip":["192.168.1.20","169.254.1.1"],"received":123456,"sent":7890}`)

	ifaces, err := ParsePowerShellNet(out)
	if err != nil {
		t.Fatalf("ParsePowerShellNet() error = %v", err)
	}
	if len(ifaces) != 1 {
		t.Fatalf("got %d interfaces, want 1", len(ifaces))
	}

	want := Interface{
		Name:     "Intel(R) Ethernet Connection",
		Status:   "Up",
		MAC:      "00-15-5D-01-02-03",
		IP:       "192.168.1.20",
		Received: 123456,
		Sent:     7890,
	}
	if ifaces[0] != want {
		t.Errorf("ParsePowerShellNet() = %+v, want %+v", ifaces[0], want)
	}
}

func TestParsePowerShellNetMissingFields(t *testing.T) {
	out := []byte(`[{"name":"vEthernet","status":"Up","mac":"00-15-5D-AA-BB-CC","ip":null}]`)

	ifaces, err := ParsePowerShellNet(out)
	if err != nil {
		t.Fatalf("ParsePowerShellNet() error = %v", err)
	}
	if ifaces[0].IP != "" || ifaces[0].Received != 0 || ifaces[0].Sent != 0 {
		t.Errorf("missing fields should be zero, got %+v", ifaces[0])
	}
}
