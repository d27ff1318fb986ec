package formbuilderapi

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	"github.com/abemis/portal/events"
	"github.com/abemis/portal/formbuilder"
	"github.com/abemis/portal/storage"
)

// setupTestServer wires a component over an in-memory repository and
// returns a test server plus the event recorder.
func setupTestServer(t *testing.T) (*httptest.Server, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	repo := formbuilder.NewRepository(storage.NewMemoryStore(),
		formbuilder.WithPublisher(rec),
		formbuilder.WithLogger(slog.Default()))
	c, err := New(DefaultConfig(), repo, slog.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	mux := http.NewServeMux()
	c.RegisterHTTPHandlers("api/formbuilder", mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, rec
}

// do sends a JSON request and decodes a JSON response into out when set.
func do(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp.StatusCode
}

func TestGetType_InjectsDefaultForm(t *testing.T) {
	srv, _ := setupTestServer(t)

	var pt formbuilder.ProjectType
	if code := do(t, http.MethodGet, srv.URL+"/api/formbuilder/types/infrastructure", nil, &pt); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if pt.Name != "Infrastructure" {
		t.Errorf("name = %q", pt.Name)
	}
	if len(pt.RegistrationSteps) != 4 {
		t.Errorf("expected 4 default steps, got %d", len(pt.RegistrationSteps))
	}

	var list []formbuilder.ProjectType
	do(t, http.MethodGet, srv.URL+"/api/formbuilder/types", nil, &list)
	if len(list) != 1 {
		t.Errorf("expected the default to be written back, list has %d", len(list))
	}
}

func TestAddStepAndField(t *testing.T) {
	srv, rec := setupTestServer(t)
	base := srv.URL + "/api/formbuilder/types/machinery"

	var step formbuilder.RegistrationStep
	if code := do(t, http.MethodPost, base+"/steps", nil, &step); code != http.StatusCreated {
		t.Fatalf("add step: expected 201, got %d", code)
	}
	if step.Name != "Step 5" || step.Order != 5 {
		t.Errorf("step = %+v, want Step 5 at order 5", step)
	}

	var field formbuilder.FormField
	if code := do(t, http.MethodPost, base+"/steps/"+step.ID+"/fields", AddFieldRequest{Type: formbuilder.FieldEmail}, &field); code != http.StatusCreated {
		t.Fatalf("add field: expected 201, got %d", code)
	}
	if field.Label != "Email Address" {
		t.Errorf("field label = %q", field.Label)
	}

	label := "Contact Email"
	var updated formbuilder.FormField
	if code := do(t, http.MethodPatch, base+"/steps/"+step.ID+"/fields/"+field.ID, formbuilder.FieldPatch{Label: &label}, &updated); code != http.StatusOK {
		t.Fatalf("update field: expected 200, got %d", code)
	}
	if updated.Label != label {
		t.Errorf("label = %q", updated.Label)
	}

	var pt formbuilder.ProjectType
	do(t, http.MethodGet, base, nil, &pt)
	if got := len(pt.FormFields()); got != 13 {
		t.Errorf("expected 13 fields after adding one, got %d", got)
	}
	if len(rec.Events) == 0 {
		t.Error("expected saved events")
	}
}

func TestFieldErrors(t *testing.T) {
	srv, _ := setupTestServer(t)
	base := srv.URL + "/api/formbuilder/types/fmr"

	tests := []struct {
		name   string
		method string
		url    string
		body   any
		want   int
	}{
		{"unknown field type", http.MethodPost, base + "/steps/step-location/fields", AddFieldRequest{Type: "slider"}, http.StatusUnprocessableEntity},
		{"unknown step", http.MethodPost, base + "/steps/nope/fields", AddFieldRequest{Type: formbuilder.FieldText}, http.StatusNotFound},
		{"unknown field", http.MethodDelete, base + "/steps/step-location/fields/nope", nil, http.StatusNotFound},
		{"options on text field", http.MethodPatch, base + "/steps/step-location/fields/region", map[string]any{"options": []string{"a"}}, http.StatusUnprocessableEntity},
		{"delete unknown step", http.MethodDelete, base + "/steps/nope", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := do(t, tt.method, tt.url, tt.body, nil); code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}
}

func TestMoveStep(t *testing.T) {
	srv, _ := setupTestServer(t)
	base := srv.URL + "/api/formbuilder/types/raed"

	if code := do(t, http.MethodPost, base+"/steps/step-project-information/move", MoveStepRequest{Direction: "up"}, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("moving the first step up: expected 422, got %d", code)
	}

	var pt formbuilder.ProjectType
	if code := do(t, http.MethodPost, base+"/steps/step-project-information/move", MoveStepRequest{Direction: "down"}, &pt); code != http.StatusOK {
		t.Fatalf("move down: expected 200, got %d", code)
	}
	if pt.RegistrationSteps[1].ID != "step-project-information" || pt.RegistrationSteps[1].Order != 2 {
		t.Errorf("steps after move = %+v", pt.RegistrationSteps[:2])
	}

	to := 3
	do(t, http.MethodPost, base+"/steps/step-budget-source/move", MoveStepRequest{To: &to}, &pt)
	if pt.RegistrationSteps[3].ID != "step-budget-source" {
		t.Errorf("expected budget source last, got %s", pt.RegistrationSteps[3].ID)
	}

	if code := do(t, http.MethodPost, base+"/steps/step-location/move", MoveStepRequest{}, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("empty move: expected 422, got %d", code)
	}
}

func TestSaveType_IDMismatch(t *testing.T) {
	srv, _ := setupTestServer(t)
	pt := formbuilder.NewDefaultProjectType("other", testTime)
	if code := do(t, http.MethodPut, srv.URL+"/api/formbuilder/types/infrastructure", pt, nil); code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", code)
	}
}

func TestPublishAndRollback(t *testing.T) {
	srv, rec := setupTestServer(t)
	base := srv.URL + "/api/formbuilder/types/infrastructure"

	var v1, v2 formbuilder.FormVersion
	if code := do(t, http.MethodPost, base+"/versions?step=step-location", nil, &v1); code != http.StatusCreated {
		t.Fatalf("publish v1: expected 201, got %d", code)
	}
	do(t, http.MethodDelete, base+"/steps/step-location/fields/province", nil, nil)
	do(t, http.MethodPost, base+"/versions?step=step-location", nil, &v2)
	if v1.Version != 1 || v2.Version != 2 {
		t.Fatalf("versions = %d, %d", v1.Version, v2.Version)
	}

	var history VersionsResponse
	do(t, http.MethodGet, base+"/versions?step=step-location", nil, &history)
	if history.Active != 2 || len(history.Versions) != 2 {
		t.Errorf("history = %+v", history)
	}

	var rolled formbuilder.FormVersion
	if code := do(t, http.MethodPost, base+"/versions/1/rollback?step=step-location&apply=true", nil, &rolled); code != http.StatusOK {
		t.Fatalf("rollback: expected 200, got %d", code)
	}
	if !rolled.IsActive || len(rolled.FormFields) != 2 {
		t.Errorf("rolled back version = %+v", rolled)
	}

	var pt formbuilder.ProjectType
	do(t, http.MethodGet, base, nil, &pt)
	step, err := pt.Step("step-location")
	if err != nil {
		t.Fatal(err)
	}
	if len(step.Fields) != 2 {
		t.Errorf("apply=true should restore the province field, got %d fields", len(step.Fields))
	}

	if code := do(t, http.MethodPost, base+"/versions/9/rollback?step=step-location", nil, nil); code != http.StatusNotFound {
		t.Errorf("unknown version: expected 404, got %d", code)
	}
	if code := do(t, http.MethodPost, base+"/versions/zero/rollback", nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad version: expected 400, got %d", code)
	}

	subjects := rec.Subjects()
	if !slices.Contains(subjects, events.SubjectFormPublished) || !slices.Contains(subjects, events.SubjectFormRolledBack) {
		t.Errorf("subjects = %v", subjects)
	}
}

func TestRollback_ApplyFailureKeepsActiveVersion(t *testing.T) {
	srv, _ := setupTestServer(t)
	base := srv.URL + "/api/formbuilder/types/infrastructure"

	do(t, http.MethodPost, base+"/versions?step=step-location", nil, nil)
	do(t, http.MethodPost, base+"/versions?step=step-location", nil, nil)
	if code := do(t, http.MethodDelete, base+"/steps/step-location", nil, nil); code >= 300 {
		t.Fatalf("delete step: got %d", code)
	}

	if code := do(t, http.MethodPost, base+"/versions/1/rollback?step=step-location&apply=true", nil, nil); code != http.StatusNotFound {
		t.Fatalf("rollback onto deleted step: expected 404, got %d", code)
	}

	var history VersionsResponse
	do(t, http.MethodGet, base+"/versions?step=step-location", nil, &history)
	if history.Active != 2 {
		t.Errorf("active version = %d, want 2", history.Active)
	}

	if code := do(t, http.MethodPost, base+"/versions/7/rollback?step=step-location&apply=true", nil, nil); code != http.StatusNotFound {
		t.Errorf("unknown version with apply: expected 404, got %d", code)
	}
}

func TestListVersions_Empty(t *testing.T) {
	srv, _ := setupTestServer(t)
	var history VersionsResponse
	if code := do(t, http.MethodGet, srv.URL+"/api/formbuilder/types/infrastructure/versions", nil, &history); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if history.Active != 0 || history.Versions == nil || len(history.Versions) != 0 {
		t.Errorf("history = %+v", history)
	}
}
