package facts

// Hardware is the hardware fact family. Every field has a usable zero value
// so a failed probe leaves a field empty, never missing.
type Hardware struct {
	OS     OSInfo     `json:"os_info"`
	CPU    CPUInfo    `json:"cpu_info"`
	GPUs   []GPUInfo  `json:"gpu_info"`
	Memory MemoryInfo `json:"mem_info"`
	Disks  []DiskInfo `json:"disks_info"`
}

// OSInfo contains operating system information
type OSInfo struct {
	Hostname string `json:"hostname"`
	OSType   string `json:"os_type"` // "Ubuntu", "Windows", ...
	Version  string `json:"version"`
	Bitness  string `json:"bitness"` // "64-bit", "32-bit" or "Unknown"
}

// CPUInfo contains CPU information
type CPUInfo struct {
	UUID    string `json:"uuid"`     // processor id where the platform exposes one
	Name    string `json:"name"`     // model name
	Num     uint32 `json:"num"`      // physical sockets
	Speed   uint64 `json:"speed"`    // MHz
	CoreNum uint32 `json:"core_num"` // logical processors
}

// GPUInfo describes one display adapter. Values are kept as the vendor tool
// prints them ("100 MiB", "120.00 W").
type GPUInfo struct {
	Index       string `json:"index"`
	Name        string `json:"name"`
	UUID        string `json:"uuid"`
	BusID       string `json:"gpu_bus_id"`
	MemoryUsed  string `json:"memory_used"`
	MemoryTotal string `json:"memory_total"`
	Temperature string `json:"temperature"`
	PowerDraw   string `json:"power_draw"`
}

// MemoryInfo contains memory counters in bytes. Counters the platform does
// not report stay 0.
type MemoryInfo struct {
	Total   uint64 `json:"total"`
	Free    uint64 `json:"free"`
	Buffers uint64 `json:"buffers"`
	Cached  uint64 `json:"cached"`
}

// DiskInfo describes a disk or mounted volume. Fields are display strings;
// their exact numeric meaning differs by platform.
type DiskInfo struct {
	MediaType      string `json:"MediaType"`
	Name           string `json:"Model"`
	Size           string `json:"Size"`
	MountPoint     string `json:"mount_point"`
	AvailableSpace string `json:"available_space"`
	FileSystem     string `json:"file_system"`
	TotalSpace     string `json:"total_space"`
	Kind           string `json:"kind"`
}

// Interface is one network interface of the network fact family
type Interface struct {
	Name     string `json:"name"`
	Status   string `json:"status"`
	MAC      string `json:"mac"`
	IP       string `json:"ip"` // first IPv4 address, empty when none
	Received uint64 `json:"received"`
	Sent     uint64 `json:"sent"`
}
