package projectapi

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"

	"github.com/abemis/portal/events"
)

// projectAPISchema holds the configuration schema generated from Config.
var projectAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the project-api component.
type Config struct {
	// MaxUploadBytes caps a stage document upload.
	MaxUploadBytes int64 `json:"max_upload_bytes" schema:"type:int,description:Maximum document upload size in bytes,category:basic,default:20971520"`

	// MockYear dates the sample projects. Zero means the current year.
	MockYear int `json:"mock_year" schema:"type:int,description:Year the sample projects are dated in,category:advanced,default:0"`

	// Ports declares the project event subjects.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		MaxUploadBytes: 20 << 20,
		Ports: &component.PortConfig{
			Outputs: []component.PortDefinition{
				{
					Name:        "project-created",
					Type:        "nats",
					Subject:     events.SubjectProjectCreated,
					Description: "Publish newly registered projects",
				},
				{
					Name:        "project-advanced",
					Type:        "nats",
					Subject:     events.SubjectProjectAdvanced,
					Description: "Publish stage transitions",
				},
			},
		},
	}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	if c.MockYear != 0 && (c.MockYear < 2000 || c.MockYear > 2100) {
		return fmt.Errorf("mock_year %d out of range", c.MockYear)
	}
	return nil
}
