package eventstream

import (
	"fmt"

	"github.com/c360studio/semstreams/component"
)

// RegistryInterface defines the minimal interface required for registration.
type RegistryInterface interface {
	RegisterWithConfig(component.RegistrationConfig) error
}

// Register registers the event-stream component with the given registry.
func Register(registry RegistryInterface) error {
	if registry == nil {
		return fmt.Errorf("registry cannot be nil")
	}
	return registry.RegisterWithConfig(component.RegistrationConfig{
		Name:        "event-stream",
		Factory:     NewComponent,
		Schema:      eventStreamSchema,
		Type:        "processor",
		Protocol:    "websocket",
		Domain:      "abemis",
		Description: "Relays domain events from NATS to browsers over websockets",
		Version:     "0.1.0",
	})
}
