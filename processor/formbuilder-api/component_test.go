package formbuilderapi

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/c360studio/semstreams/component"
)

var testTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fakeRegistry struct {
	configs []component.RegistrationConfig
}

func (r *fakeRegistry) RegisterWithConfig(cfg component.RegistrationConfig) error {
	r.configs = append(r.configs, cfg)
	return nil
}

func TestRegister(t *testing.T) {
	if err := Register(nil); err == nil {
		t.Error("Register(nil) should fail")
	}
	reg := &fakeRegistry{}
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	if len(reg.configs) != 1 || reg.configs[0].Name != "formbuilder-api" {
		t.Errorf("registered = %+v", reg.configs)
	}
}

func TestNewComponent_Lifecycle(t *testing.T) {
	d, err := NewComponent([]byte(`{"max_body_bytes": 4096}`), component.Dependencies{Logger: slog.Default()})
	if err != nil {
		t.Fatalf("NewComponent() error = %v", err)
	}
	c := d.(*Component)
	if c.config.MaxBodyBytes != 4096 {
		t.Errorf("max body = %d", c.config.MaxBodyBytes)
	}

	if err := c.Initialize(); err != nil {
		t.Fatal(err)
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !c.Health().Healthy {
		t.Error("expected healthy after start")
	}
	if err := c.Stop(time.Second); err != nil {
		t.Fatal(err)
	}
	if c.Health().Healthy {
		t.Error("expected unhealthy after stop")
	}
}

func TestNewComponent_InvalidConfig(t *testing.T) {
	if _, err := NewComponent([]byte(`{"max_body_bytes": -1}`), component.Dependencies{Logger: slog.Default()}); err == nil {
		t.Error("expected error for negative body limit")
	}
	if _, err := NewComponent([]byte(`{`), component.Dependencies{Logger: slog.Default()}); err == nil {
		t.Error("expected error for malformed config")
	}
}
