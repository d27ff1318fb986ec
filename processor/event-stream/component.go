// Package eventstream relays the portal's domain events from NATS to
// browsers over websockets, so open form builders and project pages see
// each other's saves.
package eventstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/abemis/portal/processor/runstate"
	"github.com/c360studio/semstreams/component"
)

// Subscriber is the part of *nats.Conn the relay uses.
type Subscriber interface {
	ChanSubscribe(subject string, ch chan *nats.Msg) (*nats.Subscription, error)
}

// Component implements the event-stream component.
type Component struct {
	name   string
	config Config
	sub    Subscriber
	logger *slog.Logger
	run    runstate.State

	// ctx is cancelled on Stop to close open sockets.
	ctx atomic.Pointer[context.Context]

	clients   atomic.Int64
	delivered atomic.Int64
	dropped   atomic.Int64
	lastEvent atomic.Int64
}

// New builds a Component relaying from sub.
func New(config Config, sub Subscriber, logger *slog.Logger) (*Component, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if sub == nil {
		return nil, fmt.Errorf("NATS connection is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Component{
		name:   "event-stream",
		config: config,
		sub:    sub,
		logger: logger,
	}, nil
}

// NewComponent constructs an event-stream Component from raw JSON config and
// deps. It needs the NATS connection in deps.
func NewComponent(rawConfig json.RawMessage, deps component.Dependencies) (component.Discoverable, error) {
	config := DefaultConfig()
	if len(rawConfig) > 0 {
		if err := json.Unmarshal(rawConfig, &config); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}
	if deps.NATSClient == nil {
		return nil, fmt.Errorf("event-stream requires a NATS client")
	}
	conn := deps.NATSClient.GetConnection()
	if conn == nil {
		return nil, fmt.Errorf("event-stream requires a connected NATS client")
	}
	return New(config, conn, deps.GetLogger())
}

// Initialize prepares the component for startup.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized event-stream")
	return nil
}

// Start begins serving the component.
func (c *Component) Start(ctx context.Context) error {
	runCtx, err := c.run.Start(ctx)
	if err != nil {
		return err
	}
	c.ctx.Store(&runCtx)
	c.logger.Info("event-stream started")
	return nil
}

// Stop closes every open socket.
func (c *Component) Stop(_ time.Duration) error {
	stopped, err := c.run.Stop()
	if stopped {
		c.logger.Info("event-stream stopped", "delivered", c.delivered.Load(), "dropped", c.dropped.Load())
	}
	return err
}

// runContext is the context sockets close with. Before Start it is never
// cancelled.
func (c *Component) runContext() context.Context {
	if p := c.ctx.Load(); p != nil {
		return *p
	}
	return context.Background()
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "processor",
		Description: "Relays domain events from NATS to browsers over websockets",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list; subscriptions are per client.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns an empty port list.
func (c *Component) OutputPorts() []component.Port {
	return []component.Port{}
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return eventStreamSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	return c.run.Health()
}

// DataFlow reports relayed events.
func (c *Component) DataFlow() component.FlowMetrics {
	var last time.Time
	if ns := c.lastEvent.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return component.FlowMetrics{
		LastActivity: last,
	}
}
