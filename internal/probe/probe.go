// Package probe defines the uniform contract for external fact sources and
// the fallback chain that resolves a fact family from an ordered list of them.
package probe

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// Probe is a single external fact source: a command, a file read or an HTTP call
type Probe[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Result is the transient outcome of resolving a fact family
type Result[T any] struct {
	Source string // winning probe, empty when the default was used
	OK     bool
	Value  T
	Err    error // last probe failure when OK is false
}

// Observer receives one callback per attempted probe
type Observer interface {
	ProbeAttempt(family, source string, err error)
}

// Chain tries its probes strictly in order and returns the first usable value
type Chain[T any] struct {
	Family   string
	Probes   []Probe[T]
	Validate func(T) error // optional schema check, failure means try the next probe
	Default  func() T      // value used when every probe fails
	Timeout  time.Duration // per-probe bound, 0 means no extra bound
	Logger   *zap.Logger
	Observer Observer
}

// Resolve runs the chain. It never returns an error to the caller: exhaustion
// yields the documented default with OK set to false.
func (c Chain[T]) Resolve(ctx context.Context) Result[T] {
	logger := c.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for _, p := range c.Probes {
		value, err := c.attempt(ctx, p)
		if err == nil && c.Validate != nil {
			if verr := c.Validate(value); verr != nil {
				err = fmt.Errorf("validation failed: %w", verr)
			}
		}

		if c.Observer != nil {
			c.Observer.ProbeAttempt(c.Family, p.Name, err)
		}

		if err != nil {
			logger.Debug("Probe failed, trying next source",
				zap.String("family", c.Family),
				zap.String("probe", p.Name),
				zap.Error(err))
			lastErr = err
			continue
		}

		return Result[T]{Source: p.Name, OK: true, Value: value}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no probes configured")
	}
	logger.Warn("All probes failed, using default",
		zap.String("family", c.Family),
		zap.Int("probes", len(c.Probes)),
		zap.Error(lastErr))

	var def T
	if c.Default != nil {
		def = c.Default()
	}
	return Result[T]{OK: false, Value: def, Err: lastErr}
}

// attempt runs one probe under its own timeout, converting panics to errors
func (c Chain[T]) attempt(ctx context.Context, p Probe[T]) (value T, err error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			var zero T
			value = zero
			err = fmt.Errorf("probe %s panicked: %v", p.Name, r)
			if c.Logger != nil {
				c.Logger.Error("Panic recovered in probe",
					zap.String("family", c.Family),
					zap.String("probe", p.Name),
					zap.Any("panic", r),
					zap.String("stack", string(debug.Stack())))
			}
		}
	}()

	if p.Run == nil {
		return value, fmt.Errorf("probe %s has no run function", p.Name)
	}
	return p.Run(ctx)
}
