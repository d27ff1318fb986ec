package locationapi

import (
	"fmt"
	"reflect"

	"github.com/c360studio/semstreams/component"
)

// locationAPISchema holds the configuration schema generated from Config.
var locationAPISchema = component.GenerateConfigSchema(reflect.TypeOf(Config{}))

// Config holds configuration for the location-api component.
type Config struct {
	// BaseURL is the PSGC API root used by registry-built components.
	BaseURL string `json:"base_url" schema:"type:string,description:PSGC API base URL,category:basic,default:https://psgc.gitlab.io/api"`

	// CacheMaxAge is the Cache-Control max-age, in seconds, sent with tier
	// listings. Zero disables the header.
	CacheMaxAge int `json:"cache_max_age" schema:"type:int,description:Browser cache lifetime for listings in seconds,category:advanced,default:3600"`

	// Ports declares optional HTTP port configuration.
	Ports *component.PortConfig `json:"ports,omitempty" schema:"type:ports,description:Port configuration,category:basic"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "https://psgc.gitlab.io/api",
		CacheMaxAge: 3600,
	}
}

// Validate verifies the configuration is consistent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.CacheMaxAge < 0 {
		return fmt.Errorf("cache_max_age must not be negative")
	}
	return nil
}
