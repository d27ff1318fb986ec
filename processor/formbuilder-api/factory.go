package formbuilderapi

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface required for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the formbuilder-api component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "formbuilder-api",
		Factory:     NewComponent,
		Schema:      formbuilderAPISchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "abemis",
		Description: "HTTP endpoints for project type forms, steps and versions",
		Version:     "0.1.0",
	})
}
