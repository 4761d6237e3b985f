package facts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stone-age-io/factagent/internal/probe"
	"go.uber.org/zap"
)

// gpuVendor maps a case-sensitive keyword in the device listing to the
// vendor's structured probes. A vendor without probes is recognized but
// contributes no devices.
type gpuVendor struct {
	Keywords []string
	Name     string
	Probes   []probe.Probe[[]GPUInfo]
}

// gpuDispatchProbe enumerates display devices with listing, then resolves
// the first vendor that has probes through its own fallback chain.
// Unrecognized hardware yields an empty list, not an error.
func gpuDispatchProbe(name string, listing func(ctx context.Context) ([]byte, error), vendors []gpuVendor,
	logger *zap.Logger, timeout time.Duration, observer probe.Observer) probe.Probe[[]GPUInfo] {

	return probe.Probe[[]GPUInfo]{Name: name, Run: func(ctx context.Context) ([]GPUInfo, error) {
		out, err := listing(ctx)
		if err != nil {
			return nil, fmt.Errorf("device listing failed: %w", err)
		}

		for _, line := range strings.Split(string(out), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			vendor, ok := matchVendor(line, vendors)
			if !ok {
				continue
			}
			if len(vendor.Probes) == 0 {
				logger.Debug("GPU vendor has no structured probe", zap.String("vendor", vendor.Name), zap.String("device", line))
				continue
			}

			res := probe.Chain[[]GPUInfo]{
				Family:   "gpu." + vendor.Name,
				Probes:   vendor.Probes,
				Validate: nonEmptyGPUs,
				Timeout:  timeout,
				Logger:   logger,
				Observer: observer,
			}.Resolve(ctx)
			if !res.OK {
				return nil, res.Err
			}
			return res.Value, nil
		}

		return []GPUInfo{}, nil
	}}
}

func matchVendor(line string, vendors []gpuVendor) (gpuVendor, bool) {
	for _, v := range vendors {
		for _, kw := range v.Keywords {
			if strings.Contains(line, kw) {
				return v, true
			}
		}
	}
	return gpuVendor{}, false
}

func nonEmptyGPUs(gpus []GPUInfo) error {
	if len(gpus) == 0 {
		return fmt.Errorf("no devices")
	}
	return nil
}

// nvidiaSMIProbe queries the NVIDIA management tool for one CSV line per GPU
func nvidiaSMIProbe(runner probe.Runner) probe.Probe[[]GPUInfo] {
	return probe.Probe[[]GPUInfo]{Name: "nvidia-smi", Run: func(ctx context.Context) ([]GPUInfo, error) {
		out, err := runner.Run(ctx, "nvidia-smi", "--query-gpu="+nvidiaSMIColumns, "--format=csv,noheader")
		if err != nil {
			return nil, err
		}
		return ParseNvidiaSMI(out)
	}}
}

// knownGPUVendors returns the vendor table with NVIDIA wired to probes
func knownGPUVendors(nvidia []probe.Probe[[]GPUInfo]) []gpuVendor {
	return []gpuVendor{
		{Keywords: []string{"NVIDIA"}, Name: "nvidia", Probes: nvidia},
		{Keywords: []string{"AMD"}, Name: "amd"},
		{Keywords: []string{"Huawei", "华为"}, Name: "huawei"},
	}
}
