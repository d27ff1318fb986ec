package eventstream

import (
	"fmt"
	"reflect"
	"time"

	"github.com/c360studio/semstreams/component"
)

// eventStreamSchema holds the configuration schema generated from Config.
var eventStreamSchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the event-stream component.
type Config struct {
	// Heartbeat is the interval between websocket pings.
	Heartbeat string `json:"heartbeat" schema:"type:string,description:Ping interval,category:advanced,default:30s"`

	// Buffer is the number of events queued per client before the client
	// is dropped as too slow.
	Buffer int `json:"buffer" schema:"type:int,description:Events queued per client,category:advanced,default:64"`

	// AllowedOrigins lists browser origins allowed to connect. Empty means
	// same origin only.
	AllowedOrigins []string `json:"allowed_origins,omitempty" schema:"type:array,description:Allowed browser origins,category:basic"`

	// Ports declares optional HTTP port configuration.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Heartbeat: "30s",
		Buffer:    64,
	}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	d, err := time.ParseDuration(c.Heartbeat)
	if err != nil {
		return fmt.Errorf("heartbeat: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("heartbeat must be positive")
	}
	if c.Buffer <= 0 {
		return fmt.Errorf("buffer must be positive")
	}
	return nil
}

// heartbeat returns the parsed ping interval. Validate has already
// rejected bad values.
func (c *Config) heartbeat() time.Duration {
	d, err := time.ParseDuration(c.Heartbeat)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}
