package facts

import (
	"context"
	"fmt"
	"io"
	"net/http"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/stone-age-io/factagent/internal/probe"
)

// ExporterMemoryNames are the gauge names a Prometheus exporter uses for
// memory counters. Empty names are not read.
type ExporterMemoryNames struct {
	Total   string
	Free    string
	Buffers string
	Cached  string
}

// exporterMemoryProbe scrapes a node_exporter / windows_exporter endpoint
func exporterMemoryProbe(client *http.Client, url string, names ExporterMemoryNames) probe.Probe[MemoryInfo] {
	return probe.Probe[MemoryInfo]{Name: "exporter-mem", Run: func(ctx context.Context) (MemoryInfo, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return MemoryInfo{}, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", "factagent/1.0")

		resp, err := client.Do(req)
		if err != nil {
			return MemoryInfo{}, fmt.Errorf("failed to fetch metrics: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return MemoryInfo{}, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}

		families, err := decodeMetricFamilies(io.LimitReader(resp.Body, 10*1024*1024))
		if err != nil {
			return MemoryInfo{}, err
		}

		total, ok := gaugeValue(families, names.Total)
		if !ok {
			return MemoryInfo{}, fmt.Errorf("metric %s not exported", names.Total)
		}
		free, _ := gaugeValue(families, names.Free)
		buffers, _ := gaugeValue(families, names.Buffers)
		cached, _ := gaugeValue(families, names.Cached)

		return MemoryInfo{
			Total:   uint64(total),
			Free:    uint64(free),
			Buffers: uint64(buffers),
			Cached:  uint64(cached),
		}, nil
	}}
}

func decodeMetricFamilies(r io.Reader) (map[string]*dto.MetricFamily, error) {
	decoder := expfmt.NewDecoder(r, expfmt.FmtText)
	families := make(map[string]*dto.MetricFamily)
	for {
		mf := &dto.MetricFamily{}
		err := decoder.Decode(mf)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode metric family: %w", err)
		}
		families[mf.GetName()] = mf
	}
	return families, nil
}

// gaugeValue returns the first sample of a gauge or untyped family
func gaugeValue(families map[string]*dto.MetricFamily, name string) (float64, bool) {
	if name == "" {
		return 0, false
	}
	mf, ok := families[name]
	if !ok || len(mf.GetMetric()) == 0 {
		return 0, false
	}
	m := mf.GetMetric()[0]
	switch {
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue(), true
	case m.GetUntyped() != nil:
		return m.GetUntyped().GetValue(), true
	default:
		return 0, false
	}
}
