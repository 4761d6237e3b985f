package agent

import (
	"fmt"

	"github.com/kardianos/service"
)

// ServiceConfig describes the installed system service
func ServiceConfig(configPath string) *service.Config {
	return &service.Config{
		Name:        "factagent",
		DisplayName: "Fact Agent",
		Description: "Collects host hardware, network and runtime facts and reports them as snapshots.",
		Arguments:   []string{"run", "--config", configPath},
	}
}

// Program runs the agent under the service manager, or in the foreground
// until interrupted when started interactively.
type Program struct {
	configPath string
	version    string
	agent      *Agent
}

// NewProgram creates a service program for the given config
func NewProgram(configPath, version string) *Program {
	return &Program{configPath: configPath, version: version}
}

// Start implements service.Interface. It must not block.
func (p *Program) Start(s service.Service) error {
	a, err := New(p.configPath, p.version)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		a.Shutdown()
		return fmt.Errorf("failed to start agent: %w", err)
	}
	p.agent = a
	return nil
}

// Stop implements service.Interface
func (p *Program) Stop(s service.Service) error {
	if p.agent == nil {
		return nil
	}
	return p.agent.Shutdown()
}

// NewService binds p to the platform service manager
func NewService(p *Program) (service.Service, error) {
	s, err := service.New(p, ServiceConfig(p.configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to create service: %w", err)
	}
	return s, nil
}
