// Package container reports container-runtime status through an external
// collaborator command that prints one JSON document per subcommand.
package container

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stone-age-io/factagent/internal/probe"
	"go.uber.org/zap"
)

// Provider answers container-runtime queries with raw JSON documents
type Provider interface {
	ImageList(ctx context.Context) (json.RawMessage, error)
	ContainerPS(ctx context.Context) (json.RawMessage, error)
	IsInstalled(ctx context.Context) (json.RawMessage, error)
	IsStarted(ctx context.Context) (json.RawMessage, error)
	IsAutorun(ctx context.Context) (json.RawMessage, error)
}

// CommandProvider runs `<command> <subcommand>` for every query
type CommandProvider struct {
	runner  probe.Runner
	command string
}

// NewCommandProvider creates a provider backed by command
func NewCommandProvider(runner probe.Runner, command string) *CommandProvider {
	return &CommandProvider{runner: runner, command: command}
}

func (p *CommandProvider) run(ctx context.Context, sub string) (json.RawMessage, error) {
	out, err := p.runner.Run(ctx, p.command, sub)
	if err != nil {
		return nil, err
	}
	if !json.Valid(out) {
		return nil, fmt.Errorf("%s %s: output is not JSON", p.command, sub)
	}
	return json.RawMessage(out), nil
}

func (p *CommandProvider) ImageList(ctx context.Context) (json.RawMessage, error) {
	return p.run(ctx, "image_list_full")
}

func (p *CommandProvider) ContainerPS(ctx context.Context) (json.RawMessage, error) {
	return p.run(ctx, "container_ps")
}

func (p *CommandProvider) IsInstalled(ctx context.Context) (json.RawMessage, error) {
	return p.run(ctx, "is_installed")
}

func (p *CommandProvider) IsStarted(ctx context.Context) (json.RawMessage, error) {
	return p.run(ctx, "is_started")
}

func (p *CommandProvider) IsAutorun(ctx context.Context) (json.RawMessage, error) {
	return p.run(ctx, "is_autorun")
}

// State is the container-runtime part of a snapshot
type State struct {
	Images               json.RawMessage `json:"images"`
	Containers           json.RawMessage `json:"containers"`
	DockerInstalled      bool            `json:"docker_installed"`
	HostServiceUp        string          `json:"host_service_up"`
	HostServiceUpDefault string          `json:"host_service_up_default"`
}

var emptyObject = json.RawMessage("{}")

// DefaultState is reported when the collaborator is unavailable
func DefaultState() State {
	return State{
		Images:               emptyObject,
		Containers:           emptyObject,
		HostServiceUp:        "0",
		HostServiceUpDefault: "0",
	}
}

// Collect queries every status document. Each failed query keeps its default.
func Collect(ctx context.Context, p Provider, logger *zap.Logger) State {
	if logger == nil {
		logger = zap.NewNop()
	}
	state := DefaultState()

	if doc, err := p.ImageList(ctx); err != nil {
		logger.Debug("Container image list unavailable", zap.Error(err))
	} else {
		state.Images = doc
	}

	if doc, err := p.ContainerPS(ctx); err != nil {
		logger.Debug("Container list unavailable", zap.Error(err))
	} else {
		state.Containers = doc
	}

	if doc, err := p.IsInstalled(ctx); err != nil {
		logger.Debug("Container runtime install status unavailable", zap.Error(err))
	} else {
		var v struct {
			IsInstalled bool `json:"is_installed"`
		}
		if json.Unmarshal(doc, &v) == nil {
			state.DockerInstalled = v.IsInstalled
		}
	}

	if doc, err := p.IsStarted(ctx); err != nil {
		logger.Debug("Container runtime service status unavailable", zap.Error(err))
	} else if s, ok := stringField(doc, "is_start"); ok {
		state.HostServiceUp = s
	}

	if doc, err := p.IsAutorun(ctx); err != nil {
		logger.Debug("Container runtime autorun status unavailable", zap.Error(err))
	} else if s, ok := stringField(doc, "data"); ok {
		state.HostServiceUpDefault = s
	}

	return state
}

// stringField reads a top-level string; other types count as absent
func stringField(doc json.RawMessage, key string) (string, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return "", false
	}
	raw, ok := fields[key]
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
