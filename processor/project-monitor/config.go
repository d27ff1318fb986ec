package projectmonitor

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"
)

// monitorSchema defines the configuration schema.
var monitorSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the project monitor.
type Config struct {
	// CheckInterval is how often every project is re-evaluated.
	CheckInterval string `json:"check_interval" schema:"type:string,description:How often projects are checked,category:basic,default:1h"`

	// Ports contains input/output port definitions.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		CheckInterval: "1h",
		Ports: &component.PortConfig{
			Outputs: []component.PortDefinition{
				{
					Name:        "flag-events",
					Type:        "nats",
					Subject:     "abemis.events.project.flagged",
					Description: "Publish overdue and slippage flags",
				},
			},
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	d, err := time.ParseDuration(c.CheckInterval)
	if err != nil {
		return fmt.Errorf("check_interval: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("check_interval must be positive")
	}
	return nil
}

func (c *Config) interval() time.Duration {
	d, err := time.ParseDuration(c.CheckInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}
