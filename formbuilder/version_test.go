package formbuilder

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestScope_Key(t *testing.T) {
	tests := []struct {
		scope    Scope
		wantKey  string
		wantKind string
	}{
		{RegistrationScope("infrastructure"), "registrationFormVersions_infrastructure", "registration"},
		{StepScope("infrastructure", "step-location"), "stepFormVersions_infrastructure_step-location", "step"},
	}
	for _, tt := range tests {
		if got := tt.scope.Key(); got != tt.wantKey {
			t.Errorf("Key() = %q, want %q", got, tt.wantKey)
		}
		if got := tt.scope.Kind(); got != tt.wantKind {
			t.Errorf("Kind() = %q, want %q", got, tt.wantKind)
		}
	}
}

func TestVersionHistory_Append(t *testing.T) {
	var h VersionHistory
	for n := 1; n <= 3; n++ {
		var v FormVersion
		h, v = h.Append(FormVersion{PublishedAt: testNow})
		if v.Version != n {
			t.Fatalf("append %d: version = %d", n, v.Version)
		}
		if len(h) != n {
			t.Fatalf("append %d: len = %d", n, len(h))
		}
	}

	active := 0
	for _, v := range h {
		if v.IsActive {
			active++
		}
	}
	if active != 1 {
		t.Errorf("active versions = %d, want 1", active)
	}
	if a, ok := h.Active(); !ok || a.Version != 3 {
		t.Errorf("Active() = %+v, %v; want version 3", a, ok)
	}
}

func TestVersionHistory_AppendAfterRollback(t *testing.T) {
	var h VersionHistory
	h, _ = h.Append(FormVersion{})
	h, _ = h.Append(FormVersion{})
	h, _, err := h.Activate(1)
	if err != nil {
		t.Fatal(err)
	}

	h, v := h.Append(FormVersion{})
	if v.Version != 3 {
		t.Errorf("version after rollback = %d, want 3", v.Version)
	}
	if old, _ := h.Find(1); old.IsActive {
		t.Error("rolled-back version still active after publish")
	}
}

func TestVersionHistory_Activate(t *testing.T) {
	var h VersionHistory
	for range 3 {
		h, _ = h.Append(FormVersion{})
	}

	out, v, err := h.Activate(2)
	if err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if v.Version != 2 || !v.IsActive {
		t.Errorf("activated = %+v", v)
	}
	if a, _ := out.Active(); a.Version != 2 {
		t.Errorf("Active() = %d, want 2", a.Version)
	}
	if a, _ := h.Active(); a.Version != 3 {
		t.Error("Activate mutated the receiver")
	}

	if _, _, err := h.Activate(9); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("error = %v, want ErrVersionNotFound", err)
	}
}

func TestSnapshotAndApply_Step(t *testing.T) {
	pt := newTestProjectType(t)
	scope := StepScope(pt.ID, "step-location")

	v, err := Snapshot(pt, scope, testNow)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if v.StepID != "step-location" || v.StepName != "Location" || len(v.FormFields) != 2 {
		t.Fatalf("snapshot = %+v", v)
	}

	if err := pt.DeleteField("step-location", "province"); err != nil {
		t.Fatal(err)
	}
	if err := pt.ApplyVersion(v); err != nil {
		t.Fatalf("ApplyVersion() error = %v", err)
	}
	step, _ := pt.Step("step-location")
	if diff := cmp.Diff(v.FormFields, []FormField(step.Fields)); diff != "" {
		t.Errorf("restored fields mismatch (-want +got):\n%s", diff)
	}
}

func TestSnapshotAndApply_Registration(t *testing.T) {
	pt := newTestProjectType(t)
	want := pt.Clone()

	v, err := Snapshot(pt, RegistrationScope(pt.ID), testNow)
	if err != nil {
		t.Fatal(err)
	}
	if len(v.FormFields) != 12 || len(v.Steps) != 4 {
		t.Fatalf("snapshot fields = %d steps = %d", len(v.FormFields), len(v.Steps))
	}

	pt.AddStep("")
	if err := pt.DeleteStep("step-budget-source"); err != nil {
		t.Fatal(err)
	}
	if err := pt.ApplyVersion(v); err != nil {
		t.Fatalf("ApplyVersion() error = %v", err)
	}
	if diff := cmp.Diff(want.RegistrationSteps, pt.RegistrationSteps); diff != "" {
		t.Errorf("restored steps mismatch (-want +got):\n%s", diff)
	}

	legacy := FormVersion{Version: 1, FormFields: v.FormFields}
	if err := pt.ApplyVersion(legacy); !errors.Is(err, ErrNoStepSnapshot) {
		t.Errorf("error = %v, want ErrNoStepSnapshot", err)
	}
}

func TestSnapshot_UnknownStep(t *testing.T) {
	pt := newTestProjectType(t)
	if _, err := Snapshot(pt, StepScope(pt.ID, "missing"), testNow); !errors.Is(err, ErrStepNotFound) {
		t.Errorf("error = %v, want ErrStepNotFound", err)
	}
}
