// Package locationapi proxies the PSGC hierarchy to the browser so the
// location dropdowns share one cached upstream client.
package locationapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/abemis/portal/location"
	"github.com/abemis/portal/processor/runstate"
	"github.com/c360studio/semstreams/component"
)

// Component implements the location-api component.
type Component struct {
	name   string
	config Config
	lister location.Lister
	logger *slog.Logger
	run    runstate.State
}

// New builds a Component over lister, normally a *location.Client.
func New(config Config, lister location.Lister, logger *slog.Logger) (*Component, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if lister == nil {
		return nil, fmt.Errorf("location lister is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Component{
		name:   "location-api",
		config: config,
		lister: lister,
		logger: logger,
	}, nil
}

// NewComponent constructs a location-api Component from raw JSON config and
// deps, with its own PSGC client.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	logger := deps.GetLogger()
	client := location.NewClient(config.BaseURL, location.WithLogger(logger))
	return New(config, client, logger)
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized location-api")
	return nil
}

// Start begins serving the component.
func (c *Component) Start(ctx context.Context) error {
	if _, err := c.run.Start(ctx); err != nil {
		return err
	}
	c.logger.Info("location-api started")
	return nil
}

// Stop gracefully stops the component.
func (c *Component) Stop(_ time.Duration) error {
	stopped, err := c.run.Stop()
	if stopped {
		c.logger.Info("location-api stopped")
	}
	return err
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "processor",
		Description: "PSGC region to barangay lookups for location dropdowns",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns an empty port list.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return locationAPISchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	return c.run.Health()
}

// DataFlow returns current data flow metrics.
func (c *Component) DataFlow() component.FlowMetrics {
	return component.FlowMetrics{}
}
