// Package facts collects typed host facts through platform adapters. Each
// fact family is served by an ordered list of probes resolved with a
// fallback chain, so a missing tool or malformed output only costs that
// family (or field) its value.
package facts

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/stone-age-io/factagent/internal/probe"
	"go.uber.org/zap"
)

// OSSource supplies operating system probes
type OSSource interface {
	OSProbes() []probe.Probe[OSInfo]
}

// CPUSource supplies CPU probes
type CPUSource interface {
	CPUProbes() []probe.Probe[CPUInfo]
}

// GPUSource supplies GPU probes
type GPUSource interface {
	GPUProbes() []probe.Probe[[]GPUInfo]
}

// MemorySource supplies memory probes
type MemorySource interface {
	MemoryProbes() []probe.Probe[MemoryInfo]
}

// DiskSource supplies disk probes
type DiskSource interface {
	DiskProbes() []probe.Probe[[]DiskInfo]
}

// NetworkSource supplies network interface probes
type NetworkSource interface {
	NetworkProbes() []probe.Probe[[]Interface]
}

// Adapter is the full set of platform probes. Exactly one implementation
// is compiled per target (adapter_unix.go or adapter_windows.go).
type Adapter interface {
	OSSource
	CPUSource
	GPUSource
	MemorySource
	DiskSource
	NetworkSource
}

// Options is the execution context handed to platform adapters
type Options struct {
	Runner      probe.Runner
	Logger      *zap.Logger
	HTTPClient  *http.Client
	ExporterURL string        // optional Prometheus exporter for memory fallback
	Timeout     time.Duration // per-probe bound, also used by nested GPU chains
	Observer    probe.Observer
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
}

// Collector resolves the hardware and network families from an adapter
type Collector struct {
	adapter  Adapter
	logger   *zap.Logger
	timeout  time.Duration
	observer probe.Observer
}

// NewCollector creates a collector over adapter
func NewCollector(adapter Adapter, logger *zap.Logger, timeout time.Duration, observer probe.Observer) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{adapter: adapter, logger: logger, timeout: timeout, observer: observer}
}

// Hardware resolves every hardware sub-family independently; a failed
// sub-family contributes its zero value.
func (c *Collector) Hardware(ctx context.Context) Hardware {
	c.logger.Info("Collecting hardware facts")

	return Hardware{
		OS: resolve(ctx, c, "hardware.os", c.adapter.OSProbes(), nil,
			func() OSInfo { return OSInfo{} }),
		CPU: resolve(ctx, c, "hardware.cpu", c.adapter.CPUProbes(), nil,
			func() CPUInfo { return CPUInfo{} }),
		// Nested vendor chains bound their own probes
		GPUs: resolveWithin(ctx, c, "hardware.gpu", c.adapter.GPUProbes(), nil,
			func() []GPUInfo { return []GPUInfo{} }, 0),
		Memory: resolve(ctx, c, "hardware.memory", c.adapter.MemoryProbes(), nil,
			func() MemoryInfo { return MemoryInfo{} }),
		Disks: resolve(ctx, c, "hardware.disk", c.adapter.DiskProbes(), nil,
			func() []DiskInfo { return []DiskInfo{} }),
	}
}

// Network resolves the interface list
func (c *Collector) Network(ctx context.Context) []Interface {
	c.logger.Info("Collecting network facts")

	return resolve(ctx, c, "network", c.adapter.NetworkProbes(), nonEmptyInterfaces,
		func() []Interface { return []Interface{} })
}

func resolve[T any](ctx context.Context, c *Collector, family string, probes []probe.Probe[T], validate func(T) error, def func() T) T {
	return resolveWithin(ctx, c, family, probes, validate, def, c.timeout)
}

func resolveWithin[T any](ctx context.Context, c *Collector, family string, probes []probe.Probe[T], validate func(T) error, def func() T, timeout time.Duration) T {
	res := probe.Chain[T]{
		Family:   family,
		Probes:   probes,
		Validate: validate,
		Default:  def,
		Timeout:  timeout,
		Logger:   c.logger,
		Observer: c.observer,
	}.Resolve(ctx)

	if res.OK {
		c.logger.Debug("Fact resolved", zap.String("family", family), zap.String("source", res.Source))
	}
	return res.Value
}

var errNoInterfaces = errors.New("no interfaces reported")

func nonEmptyInterfaces(ifaces []Interface) error {
	if len(ifaces) == 0 {
		return errNoInterfaces
	}
	return nil
}
