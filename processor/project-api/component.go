// Package projectapi provides HTTP endpoints for project registration and
// follow-up: the creation wizards, tracking search, and the stage stepper
// with its accomplishments and documents.
package projectapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/abemis/portal/documents"
	"github.com/abemis/portal/processor/runstate"
	"github.com/abemis/portal/projects"
	"github.com/abemis/portal/storage"
	"github.com/c360studio/semstreams/component"
)

// Deps are the domain services the component serves.
type Deps struct {
	Store *projects.Store
	Blobs documents.BlobStore

	// Mock is the sample dataset. When nil one is built for the configured
	// year from Coder.
	Mock  *projects.MockData
	Coder *projects.TrackingCoder
}

// Component implements the project-api component.
type Component struct {
	name   string
	config Config
	store  *projects.Store
	blobs  documents.BlobStore
	mock   *projects.MockData
	logger *slog.Logger
	now    func() time.Time
	run    runstate.State
}

// New builds a Component from its domain services.
func New(config Config, deps Deps, logger *slog.Logger) (*Component, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("project store is required")
	}
	if deps.Blobs == nil {
		deps.Blobs = documents.NewMemoryBlobStore()
	}
	if logger == nil {
		logger = slog.Default()
	}

	mock := deps.Mock
	if mock == nil {
		coder := deps.Coder
		if coder == nil {
			var err error
			if coder, err = projects.NewTrackingCoder(); err != nil {
				return nil, err
			}
		}
		year := config.MockYear
		if year == 0 {
			year = time.Now().Year()
		}
		var err error
		if mock, err = projects.NewMockData(coder, year); err != nil {
			return nil, fmt.Errorf("build sample projects: %w", err)
		}
	}

	return &Component{
		name:   componentName,
		config: config,
		store:  deps.Store,
		blobs:  deps.Blobs,
		mock:   mock,
		logger: logger,
		now:    time.Now,
	}, nil
}

// NewComponent constructs a project-api Component from raw JSON config and
// deps. Registry-built components keep projects and documents in memory.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	coder, err := projects.NewTrackingCoder()
	if err != nil {
		return nil, err
	}
	logger := deps.GetLogger()
	store := projects.NewStore(storage.NewMemoryStore(), coder, projects.WithStoreLogger(logger))
	return New(config, Deps{Store: store, Coder: coder}, logger)
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized project-api", "sample_projects", len(c.mock.Projects))
	return nil
}

// Start begins serving the component.
func (c *Component) Start(ctx context.Context) error {
	if _, err := c.run.Start(ctx); err != nil {
		return err
	}
	c.logger.Info("project-api started")
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	stopped, err := c.run.Stop()
	if stopped {
		c.logger.Info("project-api stopped")
	}
	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "processor",
		Description: description,
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list; this component has no NATS inputs.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns the configured project event subjects. The store
// publishes on them.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}
	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, def := range c.config.Ports.Outputs {
		ports[i] = component.Port{
			Name:        def.Name,
			Direction:   component.DirectionOutput,
			Required:    def.Required,
			Description: def.Description,
			Config:      component.NATSPort{Subject: def.Subject},
		}
	}
	return ports
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return projectAPISchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	return c.run.Health()
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}
