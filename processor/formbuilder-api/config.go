package formbuilderapi

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"
)

// formbuilderAPISchema holds the configuration schema generated from Config.
var formbuilderAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the formbuilder-api component.
type Config struct {
	// MaxBodyBytes caps request bodies. A whole project type with every
	// step fits comfortably in the default.
	MaxBodyBytes int64 `json:"max_body_bytes" schema:"type:int,description:Maximum request body size in bytes,category:advanced,default:1048576"`

	// Ports declares optional HTTP port configuration.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{MaxBodyBytes: 1 << 20}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.MaxBodyBytes < 0 {
		return fmt.Errorf("max_body_bytes must not be negative")
	}
	return nil
}

func (c *Config) bodyLimit() int64 {
	if c.MaxBodyBytes == 0 {
		return DefaultConfig().MaxBodyBytes
	}
	return c.MaxBodyBytes
}
