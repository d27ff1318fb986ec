// Package projectmonitor periodically checks registered projects against
// their target completion dates and flags the ones running late.
package projectmonitor

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/abemis/portal/events"
	"github.com/abemis/portal/metrics"
	"github.com/abemis/portal/processor/runstate"
	"github.com/abemis/portal/projects"
	"github.com/abemis/portal/storage"
	"github.com/c360studio/semstreams/component"
)

// Flag reasons.
const (
	ReasonOverdue  = "overdue"
	ReasonSlippage = "slippage"
)

// Lister is the part of the project store the monitor reads.
type Lister interface {
	List(ctx context.Context) ([]projects.Project, error)
}

// Flag is one project the monitor considers late.
type Flag struct {
	ProjectID    string    `json:"projectId"`
	TrackingCode string    `json:"trackingCode"`
	Title        string    `json:"title"`
	Status       string    `json:"status"`
	Reason       string    `json:"reason"`
	Target       time.Time `json:"targetCompletionDate"`
	Progress     float64   `json:"progress"`
	Since        time.Time `json:"since"`
}

// Component implements the project monitor.
type Component struct {
	name      string
	config    Config
	store     Lister
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	run       runstate.State
	wg        sync.WaitGroup

	mu      sync.RWMutex
	flagged map[string]Flag

	checksPerformed atomic.Int64
	flagsRaised     atomic.Int64
	lastCheck       atomic.Int64
}

// Option customizes a Component.
type Option func(*Component)

// WithPublisher sets where flag events go.
func WithPublisher(p events.Publisher) Option {
	return func(c *Component) { c.publisher = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Component) { c.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Component) { c.now = now }
}

// New builds a monitor over store.
func New(config Config, store Lister, logger *slog.Logger, opts ...Option) (*Component, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if store == nil {
		return nil, fmt.Errorf("project store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Component{
		name:      "project-monitor",
		config:    config,
		store:     store,
		publisher: events.Nop{},
		logger:    logger,
		now:       time.Now,
		flagged:   make(map[string]Flag),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewComponent creates a project monitor from raw JSON config. Registry-built
// monitors watch an empty in-memory store and publish to NATS when deps has
// a connection.
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

	var opts []Option
	if deps.NATSClient != nil {
		if conn := deps.NATSClient.GetConnection(); conn != nil {
			opts = append(opts, WithPublisher(events.NewNATSPublisher(conn)))
		}
	}
	return New(config, store, logger, opts...)
}

// Initialize prepares the component.
func (c *Component) Initialize() error {
	c.logger.Debug("Initialized project-monitor", "check_interval", c.config.CheckInterval)
	return nil
}

// Start begins the periodic check.
func (c *Component) Start(ctx context.Context) error {
	runCtx, err := c.run.Start(ctx)
	if err != nil {
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.checkLoop(runCtx)
	}()

	c.logger.Info("project-monitor started", "check_interval", c.config.CheckInterval)
	return nil
}

// checkLoop runs Check immediately and then on every tick.
func (c *Component) checkLoop(ctx context.Context) {
	ticker := time.NewTicker(c.config.interval())
	defer ticker.Stop()

	c.checkAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndLog(ctx)
		}
	}
}

func (c *Component) checkAndLog(ctx context.Context) {
	if _, err := c.Check(ctx); err != nil && ctx.Err() == nil {
		c.logger.Error("Project check failed", "error", err)
	}
}

// Check evaluates every project and returns the current flags. Projects
// flagged for the first time, or for a new reason, get an event.
func (c *Component) Check(ctx context.Context) ([]Flag, error) {
	c.checksPerformed.Add(1)
	now := c.now()
	c.lastCheck.Store(now.UnixNano())

	list, err := c.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	c.mu.RLock()
	previous := c.flagged
	c.mu.RUnlock()

	current := make(map[string]Flag)
	var raised []Flag
	for i := range list {
		p := &list[i]
		reason, late := evaluate(p, now)
		if !late {
			if _, was := previous[p.ID]; was {
				c.logger.Info("Project no longer late", "project_id", p.ID)
			}
			continue
		}
		f := Flag{
			ProjectID:    p.ID,
			TrackingCode: p.TrackingCode,
			Title:        p.Title(),
			Status:       string(p.Lifecycle.Status),
			Reason:       reason,
			Target:       p.Lifecycle.TargetCompletion,
			Progress:     p.Lifecycle.Progress(),
			Since:        now,
		}
		if prev, was := previous[p.ID]; was && prev.Reason == reason {
			f.Since = prev.Since
		} else {
			raised = append(raised, f)
		}
		current[p.ID] = f
	}

	c.mu.Lock()
	c.flagged = current
	c.mu.Unlock()

	for _, f := range raised {
		c.raise(ctx, f)
	}
	c.logger.Debug("Checked projects", "projects", len(list), "flagged", len(current), "new", len(raised))
	return sortFlags(current), nil
}

func (c *Component) raise(ctx context.Context, f Flag) {
	c.flagsRaised.Add(1)
	c.metrics.ProjectFlagged(f.Reason)
	c.logger.Info("Project flagged",
		"project_id", f.ProjectID,
		"tracking_code", f.TrackingCode,
		"reason", f.Reason,
		"progress", f.Progress)

	evt := events.ProjectFlaggedEvent{
		ProjectID:    f.ProjectID,
		TrackingCode: f.TrackingCode,
		Reason:       f.Reason,
		Target:       f.Target,
		Progress:     f.Progress,
	}
	if err := c.publisher.Publish(ctx, events.SubjectProjectFlagged, evt); err != nil {
		c.logger.Warn("Failed to publish flag event", "project_id", f.ProjectID, "error", err)
	}
}

// evaluate decides whether p is late. Slippage takes precedence: a report
// dated after the target is late regardless of today's date.
func evaluate(p *projects.Project, now time.Time) (string, bool) {
	st := &p.Lifecycle
	if st.Status.IsTerminal(st.Track) || st.TargetCompletion.IsZero() {
		return "", false
	}
	if st.Slippage() != nil {
		return ReasonSlippage, true
	}
	if dateOnly(now).After(dateOnly(st.TargetCompletion)) && st.Progress() < 100 {
		return ReasonOverdue, true
	}
	return "", false
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Flags returns the flags from the last check.
func (c *Component) Flags() []Flag {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return sortFlags(c.flagged)
}

func sortFlags(m map[string]Flag) []Flag {
	out := make([]Flag, 0, len(m))
	for _, f := range m {
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b Flag) int {
		if c := a.Target.Compare(b.Target); c != 0 {
			return c
		}
		return cmp.Compare(a.ProjectID, b.ProjectID)
	})
	return out
}

// Stop gracefully stops the component and waits for a running check.
func (c *Component) Stop(_ time.Duration) error {
	stopped, err := c.run.Stop()
	if err != nil {
		return err
	}
	c.wg.Wait()
	if stopped {
		c.logger.Info("project-monitor stopped",
			"checks_performed", c.checksPerformed.Load(),
			"flags_raised", c.flagsRaised.Load())
	}
	return nil
}

// Meta returns component metadata.
func (c *Component) Meta() component.Metadata {
	return component.Metadata{
		Name:        c.name,
		Type:        "processor",
		Description: "Flags projects that are overdue or slipping past their target date",
		Version:     "0.1.0",
	}
}

// InputPorts returns an empty port list; the monitor polls the store.
func (c *Component) InputPorts() []component.Port {
	return []component.Port{}
}

// OutputPorts returns configured output port definitions.
func (c *Component) OutputPorts() []component.Port {
	if c.config.Ports == nil {
		return []component.Port{}
	}

	ports := make([]component.Port, len(c.config.Ports.Outputs))
	for i, portDef := range c.config.Ports.Outputs {
		ports[i] = component.Port{
			Name:        portDef.Name,
			Direction:   component.DirectionOutput,
			Required:    portDef.Required,
			Description: portDef.Description,
			Config: component.NATSPort{
				Subject: portDef.Subject,
			},
		}
	}
	return ports
}

// ConfigSchema returns the configuration schema.
func (c *Component) ConfigSchema() component.ConfigSchema {
	return monitorSchema
}

// Health returns the current health status.
func (c *Component) Health() component.HealthStatus {
	return c.run.Health()
}

// DataFlow returns when projects were last checked.
func (c *Component) DataFlow() component.FlowMetrics {
	var last time.Time
	if ns := c.lastCheck.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}
	return component.FlowMetrics{
		LastActivity: last,
	}
}
