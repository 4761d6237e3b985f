package facts

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// nvidiaSMIColumns is the --query-gpu field list, one CSV column each
const nvidiaSMIColumns = "index,name,uuid,gpu_bus_id,memory.used,memory.total,temperature.gpu,power.draw"

// lspciNVIDIA matches function-0 NVIDIA devices in `lspci` output, e.g.
// "01:00.0 VGA compatible controller: NVIDIA Corporation GA102 [GeForce RTX 3090] (rev a1)"
var lspciNVIDIA = regexp.MustCompile(
	`(?P<bus_id>[0-9a-fA-F]+:[0-9a-fA-F]+\.0) [^:]*: (?P<vendor>NVIDIA Corporation) (?P<device>.*?)(?: \[(?P<model>[^\]]*)\])? \((?P<rev>[^)]*)\)`)

// ParseNvidiaSMI parses `nvidia-smi --query-gpu=... --format=csv,noheader`.
// Every non-empty line must carry exactly eight columns.
func ParseNvidiaSMI(out []byte) ([]GPUInfo, error) {
	text := string(out)
	if strings.Contains(text, "NVIDIA-SMI has failed") {
		return nil, fmt.Errorf("nvidia-smi reported failure")
	}

	var gpus []GPUInfo
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		cols := strings.Split(line, ",")
		if len(cols) != 8 {
			return nil, fmt.Errorf("nvidia-smi line has %d columns, want 8: %q", len(cols), line)
		}
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}
		gpus = append(gpus, GPUInfo{
			Index:       cols[0],
			Name:        cols[1],
			UUID:        cols[2],
			BusID:       cols[3],
			MemoryUsed:  cols[4],
			MemoryTotal: cols[5],
			Temperature: cols[6],
			PowerDraw:   cols[7],
		})
	}

	if len(gpus) == 0 {
		return nil, fmt.Errorf("nvidia-smi returned no devices")
	}
	return gpus, nil
}

// ParseLspciNVIDIA extracts NVIDIA devices from generic bus listing output.
// The bracketed model is used as the name when present, else the device text.
func ParseLspciNVIDIA(out []byte) ([]GPUInfo, error) {
	var gpus []GPUInfo
	names := lspciNVIDIA.SubexpNames()

	for _, line := range strings.Split(string(out), "\n") {
		m := lspciNVIDIA.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		groups := make(map[string]string, len(names))
		for i, name := range names {
			if name != "" {
				groups[name] = m[i]
			}
		}

		name := groups["model"]
		if name == "" {
			name = groups["device"]
		}

		gpus = append(gpus, GPUInfo{
			Index: strconv.Itoa(len(gpus)),
			Name:  name,
			BusID: "0000:" + strings.TrimSuffix(groups["bus_id"], ".0"),
		})
	}

	if len(gpus) == 0 {
		return nil, fmt.Errorf("no NVIDIA devices in bus listing")
	}
	return gpus, nil
}

// scanPrefixes collects, for every prefix, the trimmed remainder of each
// line starting with it, in order of appearance
func scanPrefixes(out []byte, prefixes ...string) map[string][]string {
	found := make(map[string][]string, len(prefixes))
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		for _, p := range prefixes {
			if strings.HasPrefix(line, p) {
				found[p] = append(found[p], strings.TrimSpace(strings.TrimPrefix(line, p)))
				break
			}
		}
	}
	return found
}

func first(found map[string][]string, prefix string) (string, bool) {
	v := found[prefix]
	if len(v) == 0 {
		return "", false
	}
	return v[0], true
}

// ParseLscpu parses `LC_ALL=C lscpu`. Missing lines leave their field at
// zero; a present but non-numeric value fails the whole parse.
func ParseLscpu(out []byte) (CPUInfo, error) {
	const (
		pModel   = "Model name:"
		pSockets = "Socket(s):"
		pMHz     = "CPU MHz:"
		pMaxMHz  = "CPU max MHz:"
		pCPUs    = "CPU(s):"
	)
	found := scanPrefixes(out, pModel, pSockets, pMHz, pMaxMHz, pCPUs)

	var info CPUInfo
	if v, ok := first(found, pModel); ok {
		info.Name = v
	}
	if v, ok := first(found, pSockets); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return CPUInfo{}, fmt.Errorf("parse %s %q: %w", pSockets, v, err)
		}
		info.Num = uint32(n)
	}
	if v, ok := first(found, pCPUs); ok {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return CPUInfo{}, fmt.Errorf("parse %s %q: %w", pCPUs, v, err)
		}
		info.CoreNum = uint32(n)
	}

	mhz, ok := first(found, pMHz)
	if !ok {
		mhz, ok = first(found, pMaxMHz)
	}
	if ok {
		f, err := strconv.ParseFloat(mhz, 64)
		if err != nil {
			return CPUInfo{}, fmt.Errorf("parse CPU MHz %q: %w", mhz, err)
		}
		info.Speed = uint64(f)
	}

	return info, nil
}

// ParseWmicCPU parses `wmic cpu get ... /format:list`. There is one
// SocketDesignation line per physical processor.
func ParseWmicCPU(out []byte) (CPUInfo, error) {
	const (
		pID      = "ProcessorId="
		pName    = "Name="
		pSpeed   = "MaxClockSpeed="
		pLogical = "NumberOfLogicalProcessors="
		pSocket  = "SocketDesignation="
	)
	found := scanPrefixes(out, pID, pName, pSpeed, pLogical, pSocket)

	var info CPUInfo
	info.UUID, _ = first(found, pID)
	info.Name, _ = first(found, pName)
	info.Num = uint32(len(found[pSocket]))

	if v, ok := first(found, pSpeed); ok && v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return CPUInfo{}, fmt.Errorf("parse %s %q: %w", pSpeed, v, err)
		}
		info.Speed = n
	}

	// Multi-socket hosts report one value per processor
	for _, v := range found[pLogical] {
		if v == "" {
			continue
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return CPUInfo{}, fmt.Errorf("parse %s %q: %w", pLogical, v, err)
		}
		info.CoreNum += uint32(n)
	}

	return info, nil
}

// ParseWmicValue reads a single numeric `Key=Value` line from `wmic ... /value`
func ParseWmicValue(out []byte, key string) (uint64, error) {
	v, ok := first(scanPrefixes(out, key+"="), key+"=")
	if !ok {
		return 0, fmt.Errorf("%s not present in output", key)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", key, v, err)
	}
	return n, nil
}

// NormalizeArray makes platform JSON output array-shaped: a lone object is
// wrapped into a one-element array, arrays pass through, and empty output
// becomes an empty array.
func NormalizeArray(raw []byte) []byte {
	trimmed := bytes.TrimSpace(raw)
	// PowerShell may emit a UTF-8 byte order mark
	trimmed = bytes.TrimPrefix(trimmed, []byte("\xef\xbb\xbf"))
	if len(trimmed) == 0 {
		return []byte("[]")
	}
	if trimmed[0] == '{' {
		out := make([]byte, 0, len(trimmed)+2)
		out = append(out, '[')
		out = append(out, trimmed...)
		return append(out, ']')
	}
	return trimmed
}

type ipAddrInterface struct {
	IfName    string `json:"ifname"`
	Address   string `json:"address"`
	OperState string `json:"operstate"`
	AddrInfo  []struct {
		Family string `json:"family"`
		Local  string `json:"local"`
	} `json:"addr_info"`
}

// ParseIPAddrJSON parses `ip -j a`. Counters are not part of that output
// and are left at zero.
func ParseIPAddrJSON(out []byte) ([]Interface, error) {
	var raw []ipAddrInterface
	if err := json.Unmarshal(NormalizeArray(out), &raw); err != nil {
		return nil, fmt.Errorf("parse ip -j output: %w", err)
	}

	ifaces := make([]Interface, 0, len(raw))
	for _, r := range raw {
		if r.IfName == "" {
			continue
		}
		iface := Interface{Name: r.IfName, Status: r.OperState, MAC: r.Address}
		for _, a := range r.AddrInfo {
			if a.Family == "inet" {
				iface.IP = a.Local
				break
			}
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces, nil
}

type psDisk struct {
	MediaType any             `json:"MediaType"`
	Model     string          `json:"Model"`
	Size      json.RawMessage `json:"Size"`
}

// ParsePowerShellDisks parses `Get-PhysicalDisk | Select-Object MediaType,
// Model, Size | ConvertTo-Json`. MediaType is a string or an enum number
// depending on the PowerShell version; both are kept as display text.
func ParsePowerShellDisks(out []byte) ([]DiskInfo, error) {
	var raw []psDisk
	if err := json.Unmarshal(NormalizeArray(out), &raw); err != nil {
		return nil, fmt.Errorf("parse Get-PhysicalDisk output: %w", err)
	}

	disks := make([]DiskInfo, 0, len(raw))
	for _, d := range raw {
		media := displayValue(d.MediaType)
		size := strings.Trim(string(d.Size), `"`)
		if size == "null" {
			size = ""
		}
		disks = append(disks, DiskInfo{
			MediaType:  media,
			Name:       strings.TrimSpace(d.Model),
			Size:       size,
			TotalSpace: size,
			Kind:       media,
		})
	}
	return disks, nil
}

type psAdapter struct {
	Name     string          `json:"name"`
	Status   any             `json:"status"`
	MAC      string          `json:"mac"`
	IP       json.RawMessage `json:"ip"`
	Received json.Number     `json:"received"`
	Sent     json.Number     `json:"sent"`
}

// ParsePowerShellNet parses the Get-NetAdapter script output. ip may be a
// single string, an array of strings or null.
func ParsePowerShellNet(out []byte) ([]Interface, error) {
	var raw []psAdapter
	if err := json.Unmarshal(NormalizeArray(out), &raw); err != nil {
		return nil, fmt.Errorf("parse Get-NetAdapter output: %w", err)
	}

	ifaces := make([]Interface, 0, len(raw))
	for _, a := range raw {
		iface := Interface{
			Name:   a.Name,
			Status: displayValue(a.Status),
			MAC:    a.MAC,
			IP:     firstString(a.IP),
		}
		iface.Received, _ = strconv.ParseUint(a.Received.String(), 10, 64)
		iface.Sent, _ = strconv.ParseUint(a.Sent.String(), 10, 64)
		ifaces = append(ifaces, iface)
	}
	return ifaces, nil
}

func firstString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

func displayValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
