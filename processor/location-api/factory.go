package locationapi

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface required for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the location-api component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "location-api",
		Factory:     NewComponent,
		Schema:      locationAPISchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "abemis",
		Description: "PSGC region to barangay lookups for location dropdowns",
		Version:     "0.1.0",
	})
}
