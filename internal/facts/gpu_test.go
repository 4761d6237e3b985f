package facts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stone-age-io/factagent/internal/probe"
	"go.uber.org/zap"
)

// fakeRunner answers commands by name and records invocations
type fakeRunner struct {
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, name)
	if err, ok := f.errs[name]; ok {
		return nil, err
	}
	out, ok := f.outputs[name]
	if !ok {
		return nil, errors.New(name + ": executable file not found")
	}
	return []byte(out), nil
}

func (f *fakeRunner) called(name string) int {
	n := 0
	for _, c := range f.calls {
		if c == name {
			n++
		}
	}
	return n
}

const lspciListing = "00:02.0 VGA compatible controller: Intel Corporation UHD Graphics 630 (rev 02)\n" +
	"01:00.0 VGA compatible controller: NVIDIA Corporation GA102 [GeForce RTX 3090] (rev a1)\n"

func dispatchFor(r *fakeRunner) probe.Probe[[]GPUInfo] {
	listing := func(ctx context.Context) ([]byte, error) { return r.Run(ctx, "lspci") }
	fallback := probe.Probe[[]GPUInfo]{Name: "lspci", Run: func(ctx context.Context) ([]GPUInfo, error) {
		out, err := r.Run(ctx, "lspci")
		if err != nil {
			return nil, err
		}
		return ParseLspciNVIDIA(out)
	}}
	vendors := knownGPUVendors([]probe.Probe[[]GPUInfo]{nvidiaSMIProbe(r), fallback})
	return gpuDispatchProbe("lspci-detect", listing, vendors, zap.NewNop(), time.Second, nil)
}

func TestGPUDispatchNvidiaSMI(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{
		"lspci":      lspciListing,
		"nvidia-smi": "0, NVIDIA GeForce RTX 3090, GPU-abc, 00000000:01:00.0, 1024 MiB, 24576 MiB, 40, 30.00 W\n",
	}}

	gpus, err := dispatchFor(r).Run(context.Background())
	if err != nil {
		t.Fatalf("dispatch error = %v", err)
	}
	if len(gpus) != 1 || gpus[0].UUID != "GPU-abc" {
		t.Errorf("dispatch = %+v, want nvidia-smi result", gpus)
	}
	if r.called("lspci") != 1 {
		t.Errorf("lspci called %d times, want 1 (listing only)", r.called("lspci"))
	}
}

func TestGPUDispatchFallsBackToBusListing(t *testing.T) {
	r := &fakeRunner{
		outputs: map[string]string{"lspci": lspciListing},
		errs:    map[string]error{"nvidia-smi": errors.New("nvidia-smi exited with code 9")},
	}

	gpus, err := dispatchFor(r).Run(context.Background())
	if err != nil {
		t.Fatalf("dispatch error = %v", err)
	}
	if len(gpus) != 1 || gpus[0].Name != "GeForce RTX 3090" {
		t.Errorf("dispatch = %+v, want lspci regex result", gpus)
	}
}

func TestGPUDispatchUnknownVendor(t *testing.T) {
	tests := []struct {
		name    string
		listing string
	}{
		{"intel only", "00:02.0 VGA compatible controller: Intel Corporation UHD Graphics 630 (rev 02)\n"},
		{"amd recognized without probes", "03:00.0 VGA compatible controller: Advanced Micro Devices, Inc. [AMD/ATI] Navi 21 (rev c1)\n"},
		{"lowercase keyword", "01:00.0 VGA compatible controller: nvidia corporation something (rev a1)\n"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRunner{outputs: map[string]string{"lspci": tt.listing}}

			gpus, err := dispatchFor(r).Run(context.Background())
			if err != nil {
				t.Fatalf("dispatch error = %v", err)
			}
			if gpus == nil || len(gpus) != 0 {
				t.Errorf("dispatch = %#v, want empty non-nil list", gpus)
			}
			if r.called("nvidia-smi") != 0 {
				t.Error("nvidia-smi must not run for non-NVIDIA hardware")
			}
		})
	}
}

func TestGPUDispatchListingFails(t *testing.T) {
	r := &fakeRunner{errs: map[string]error{"lspci": errors.New("lspci: not found")}}

	_, err := dispatchFor(r).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "device listing failed") {
		t.Errorf("dispatch error = %v, want listing failure", err)
	}
}

func TestMatchVendorHuawei(t *testing.T) {
	vendors := knownGPUVendors(nil)

	v, ok := matchVendor("Ascend 910 华为技术有限公司", vendors)
	if !ok || v.Name != "huawei" {
		t.Errorf("matchVendor() = %+v, %v, want huawei", v, ok)
	}
}
