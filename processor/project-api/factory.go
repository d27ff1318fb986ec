package projectapi

import (
	"fmt"
	"strings"

	"github.com/c360studio/semstreams/component"

	"github.com/abemis/portal/projects"
)

const componentName = "project-api"

// description names the project kinds the wizards register.
var description = func() string {
	kinds := make([]string, len(projects.Kinds))
	for i, k := range projects.Kinds {
		kinds[i] = string(k)
	}
	return "Registers " + strings.Join(kinds, ", ") +
		" projects and tracks their stages, accomplishments and documents"
}()

// RegistryInterface is the registry surface the project API needs.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register adds the project API to registry. Project created and advanced
// events leave on the output ports of DefaultConfig.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        componentName,
		Factory:     NewComponent,
		Schema:      projectAPISchema,
		Type:        "processor",
		Protocol:    "http",
		Domain:      "abemis",
		Description: description,
		Version:     "0.1.0",
	})
}
