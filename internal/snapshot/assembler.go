// Package snapshot assembles the full fact envelope from the cached fact
// families and the uncached runtime status.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/stone-age-io/factagent/internal/cache"
	"github.com/stone-age-io/factagent/internal/container"
	"github.com/stone-age-io/factagent/internal/facts"
	"github.com/stone-age-io/factagent/internal/geo"
	"github.com/stone-age-io/factagent/internal/identity"
	"github.com/stone-age-io/factagent/internal/inventory"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FactSource resolves the hardware and network families
type FactSource interface {
	Hardware(ctx context.Context) facts.Hardware
	Network(ctx context.Context) []facts.Interface
}

// IPSource resolves the public IP / geolocation family
type IPSource interface {
	Resolve(ctx context.Context) (geo.Result, bool)
}

// FileLister lists the files of an inventory directory
type FileLister interface {
	Walk(root string) []inventory.FileInfo
}

// Options are the collaborators of an Assembler
type Options struct {
	Store      *cache.Store
	Facts      FactSource
	IP         IPSource
	Files      FileLister
	Containers container.Provider
	ModelDir   string
	DatasetDir string
	Home       string // holds tech_type.dat
	UUID       string // optional install ID, omitted when empty
	Workers    int    // families resolved concurrently, 1 means sequential
	Logger     *zap.Logger
}

// Assembler builds envelopes. Calls to Assemble are serialized.
type Assembler struct {
	opts Options
	mu   sync.Mutex
}

// New creates an assembler
func New(opts Options) *Assembler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Assembler{opts: opts}
}

// Assemble returns a complete envelope. Each family falls back to its
// default independently, so the result always carries every key.
func (a *Assembler) Assemble(ctx context.Context) *Envelope {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	logger := a.opts.Logger
	env := &Envelope{UUID: a.opts.UUID}

	var g errgroup.Group
	g.SetLimit(a.opts.Workers)

	g.Go(func() error {
		logger.Debug("Checking hardware")
		env.Hardware, _ = a.load(ctx, cache.Hardware, defaultHardware, func(ctx context.Context) (any, error) {
			return a.opts.Facts.Hardware(ctx), nil
		})
		return nil
	})

	g.Go(func() error {
		logger.Debug("Checking network")
		env.Network, _ = a.load(ctx, cache.Network, emptyArray, func(ctx context.Context) (any, error) {
			return a.opts.Facts.Network(ctx), nil
		})
		return nil
	})

	g.Go(func() error {
		logger.Debug("Checking model inventory")
		env.Model, env.ModelTimestamp = a.load(ctx, cache.Model, emptyArray, func(ctx context.Context) (any, error) {
			return a.opts.Files.Walk(a.opts.ModelDir), nil
		})
		return nil
	})

	g.Go(func() error {
		logger.Debug("Checking dataset inventory")
		env.Dataset, env.DatasetTimestamp = a.load(ctx, cache.Dataset, emptyArray, func(ctx context.Context) (any, error) {
			return a.opts.Files.Walk(a.opts.DatasetDir), nil
		})
		return nil
	})

	g.Go(func() error {
		logger.Debug("Checking public IP")
		env.IP, _ = a.load(ctx, cache.IP, emptyObject, func(ctx context.Context) (any, error) {
			// An unanswered lookup caches {} for the TTL window
			res, _ := a.opts.IP.Resolve(ctx)
			return res, nil
		})
		return nil
	})

	g.Go(func() error {
		logger.Debug("Checking container runtime")
		state := container.Collect(ctx, a.opts.Containers, logger)
		env.Images = state.Images
		env.Containers = state.Containers
		env.DockerInstalled = state.DockerInstalled
		env.HostServiceUp = state.HostServiceUp
		env.HostServiceUpDefault = state.HostServiceUpDefault
		return nil
	})

	_ = g.Wait()

	env.TechType = identity.TechType(a.opts.Home)

	logger.Info("Snapshot assembled", zap.Duration("duration", time.Since(start)))
	return env
}

// load serves family from the cache, resolving and rewriting it when stale
// or corrupt. It returns the payload and its written_at in epoch seconds,
// or the default payload and 0 when resolution failed.
func (a *Assembler) load(ctx context.Context, family cache.Family, def json.RawMessage,
	resolve func(ctx context.Context) (any, error)) (json.RawMessage, int64) {

	entry, err := a.opts.Store.Load(ctx, family, func(ctx context.Context) (json.RawMessage, error) {
		v, err := resolve(ctx)
		if err != nil {
			return nil, err
		}
		return marshal(v)
	})
	if err != nil {
		a.opts.Logger.Warn("Using default payload",
			zap.String("family", string(family)),
			zap.Error(err))
		return def, 0
	}
	return entry.Payload, entry.WrittenAt.Unix()
}

var (
	emptyArray      = json.RawMessage("[]")
	emptyObject     = json.RawMessage("{}")
	defaultHardware = mustMarshal(facts.Hardware{GPUs: []facts.GPUInfo{}, Disks: []facts.DiskInfo{}})
)

// marshal encodes without HTML escaping, matching Envelope.Encode
func marshal(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func mustMarshal(v any) json.RawMessage {
	data, err := marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
