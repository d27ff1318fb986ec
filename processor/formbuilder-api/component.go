// Package formbuilderapi exposes the form builder over HTTP: project types,
// their registration steps and fields, and published form versions.
package formbuilderapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/abemis/portal/formbuilder"
	"github.com/abemis/portal/processor/runstate"
	"github.com/abemis/portal/storage"
	"github.com/c360studio/semstreams/component"
)

// Component implements the formbuilder-api component.
type Component struct {
	name   string
	config Config
	repo   *formbuilder.Repository
	logger *slog.Logger
	run    runstate.State
}

// New builds a Component over an existing repository.
func New(config Config, repo *formbuilder.Repository, logger *slog.Logger) (*Component, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if repo == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Component{
		name:   "formbuilder-api",
		config: config,
		repo:   repo,
		logger: logger,
	}, nil
}

// NewComponent constructs a formbuilder-api Component from raw JSON config
// and deps. Registry-built components keep their forms in memory; the server
// wires a persistent repository through New.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	logger := deps.GetLogger()
	repo := formbuilder.NewRepository(storage.NewMemoryStore(), formbuilder.WithLogger(logger))
	return New(config, repo, logger)
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized formbuilder-api")
	return nil
}

// Start begins serving the component.
func (c *Component) Start(ctx context.Context) error {
	if _, err := c.run.Start(ctx); err != nil {
		return err
	}
	c.logger.Info("formbuilder-api started")
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	stopped, err := c.run.Stop()
	if stopped {
		c.logger.Info("formbuilder-api stopped")
	}
	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "processor",
		Description: "HTTP endpoints for project type forms, steps and versions",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list; this component has no NATS inputs.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns an empty port list. Events go out through the
// repository's publisher.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return formbuilderAPISchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	return c.run.Health()
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}
