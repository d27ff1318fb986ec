package formbuilderapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/abemis/portal/formbuilder"
	"github.com/abemis/portal/storage"
)

// RegisterHTTPHandlers registers all formbuilder-api HTTP handlers under the
// given prefix (e.g. "api/formbuilder"). Handlers are registered as:
//
//	GET    <prefix>/types
//	GET    <prefix>/types/{id}
//	PUT    <prefix>/types/{id}
//	POST   <prefix>/types/{id}/steps
//	PATCH  <prefix>/types/{id}/steps/{step}
//	DELETE <prefix>/types/{id}/steps/{step}
//	POST   <prefix>/types/{id}/steps/{step}/move
//	POST   <prefix>/types/{id}/steps/{step}/fields
//	PATCH  <prefix>/types/{id}/steps/{step}/fields/{field}
//	DELETE <prefix>/types/{id}/steps/{step}/fields/{field}
//	GET    <prefix>/types/{id}/versions[?step=]
//	POST   <prefix>/types/{id}/versions[?step=]
//	POST   <prefix>/types/{id}/versions/{version}/rollback[?step=&apply=true]
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc("GET "+prefix+"types", c.handleListTypes)
	mux.HandleFunc("GET "+prefix+"types/{id}", c.handleGetType)
	mux.HandleFunc("PUT "+prefix+"types/{id}", c.handleSaveType)
	mux.HandleFunc("POST "+prefix+"types/{id}/steps", c.handleAddStep)
	mux.HandleFunc("PATCH "+prefix+"types/{id}/steps/{step}", c.handleUpdateStep)
	mux.HandleFunc("DELETE "+prefix+"types/{id}/steps/{step}", c.handleDeleteStep)
	mux.HandleFunc("POST "+prefix+"types/{id}/steps/{step}/move", c.handleMoveStep)
	mux.HandleFunc("POST "+prefix+"types/{id}/steps/{step}/fields", c.handleAddField)
	mux.HandleFunc("PATCH "+prefix+"types/{id}/steps/{step}/fields/{field}", c.handleUpdateField)
	mux.HandleFunc("DELETE "+prefix+"types/{id}/steps/{step}/fields/{field}", c.handleDeleteField)
	mux.HandleFunc("GET "+prefix+"types/{id}/versions", c.handleListVersions)
	mux.HandleFunc("POST "+prefix+"types/{id}/versions", c.handlePublish)
	mux.HandleFunc("POST "+prefix+"types/{id}/versions/{version}/rollback", c.handleRollback)
}

// AddStepRequest is the body of POST .../steps. An empty name yields
// "Step N".
type AddStepRequest struct {
	Name string `json:"name"`
}

// MoveStepRequest is the body of POST .../steps/{step}/move. Either
// Direction ("up" or "down") or To (a zero-based position) is set.
type MoveStepRequest struct {
	Direction string `json:"direction,omitempty"`
	To        *int   `json:"to,omitempty"`
}

// AddFieldRequest is the body of POST .../fields.
type AddFieldRequest struct {
	Type formbuilder.FieldType `json:"type"`
}

// VersionsResponse lists a scope's history with its active version.
type VersionsResponse struct {
	Scope    string                     `json:"scope"`
	Active   int                        `json:"active"`
	Versions formbuilder.VersionHistory `json:"versions"`
}

// ----------------------------------------------------------------------------
// Project types
// ----------------------------------------------------------------------------

func (c *Component) handleListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := c.repo.ListProjectTypes(r.Context())
	if err != nil {
		c.writeError(w, "list project types", err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

// handleGetType loads a project type, creating the default form for ids
// that have never been edited.
func (c *Component) handleGetType(w http.ResponseWriter, r *http.Request) {
	pt, err := c.repo.LoadProjectType(r.Context(), r.PathValue("id"))
	if err != nil {
		c.writeError(w, "load project type", err)
		return
	}
	writeJSON(w, http.StatusOK, pt)
}

// handleSaveType replaces a project type wholesale. This is the form
// builder's "Save Changes" button.
func (c *Component) handleSaveType(w http.ResponseWriter, r *http.Request) {
	var pt formbuilder.ProjectType
	if !c.decode(w, r, &pt) {
		return
	}
	id := r.PathValue("id")
	if pt.ID != "" && pt.ID != id {
		http.Error(w, "Project type id does not match path", http.StatusBadRequest)
		return
	}
	pt.ID = id

	if err := c.repo.SaveProjectType(r.Context(), &pt); err != nil {
		c.writeError(w, "save project type", err)
		return
	}
	writeJSON(w, http.StatusOK, &pt)
}

// ----------------------------------------------------------------------------
// Steps
// ----------------------------------------------------------------------------

func (c *Component) handleAddStep(w http.ResponseWriter, r *http.Request) {
	var req AddStepRequest
	if !c.decodeOptional(w, r, &req) {
		return
	}
	c.mutate(w, r, http.StatusCreated, func(pt *formbuilder.ProjectType) (any, error) {
		step := pt.AddStep(req.Name)
		return step, nil
	})
}

func (c *Component) handleUpdateStep(w http.ResponseWriter, r *http.Request) {
	var patch formbuilder.StepPatch
	if !c.decode(w, r, &patch) {
		return
	}
	c.mutate(w, r, http.StatusOK, func(pt *formbuilder.ProjectType) (any, error) {
		return pt.UpdateStep(r.PathValue("step"), patch)
	})
}

func (c *Component) handleDeleteStep(w http.ResponseWriter, r *http.Request) {
	c.mutate(w, r, http.StatusOK, func(pt *formbuilder.ProjectType) (any, error) {
		if err := pt.DeleteStep(r.PathValue("step")); err != nil {
			return nil, err
		}
		return pt, nil
	})
}

func (c *Component) handleMoveStep(w http.ResponseWriter, r *http.Request) {
	var req MoveStepRequest
	if !c.decode(w, r, &req) {
		return
	}
	stepID := r.PathValue("step")
	c.mutate(w, r, http.StatusOK, func(pt *formbuilder.ProjectType) (any, error) {
		var err error
		switch {
		case req.To != nil:
			from := -1
			for i, s := range pt.RegistrationSteps {
				if s.ID == stepID {
					from = i
				}
			}
			if from < 0 {
				return nil, formbuilder.ErrStepNotFound
			}
			err = pt.MoveStep(from, *req.To)
		case req.Direction == "up":
			err = pt.MoveStepUp(stepID)
		case req.Direction == "down":
			err = pt.MoveStepDown(stepID)
		default:
			return nil, errBadMove
		}
		if err != nil {
			return nil, err
		}
		return pt, nil
	})
}

// ----------------------------------------------------------------------------
// Fields
// ----------------------------------------------------------------------------

func (c *Component) handleAddField(w http.ResponseWriter, r *http.Request) {
	var req AddFieldRequest
	if !c.decode(w, r, &req) {
		return
	}
	c.mutate(w, r, http.StatusCreated, func(pt *formbuilder.ProjectType) (any, error) {
		return pt.AddField(r.PathValue("step"), req.Type)
	})
}

func (c *Component) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	var patch formbuilder.FieldPatch
	if !c.decode(w, r, &patch) {
		return
	}
	c.mutate(w, r, http.StatusOK, func(pt *formbuilder.ProjectType) (any, error) {
		return pt.UpdateField(r.PathValue("step"), r.PathValue("field"), patch)
	})
}

func (c *Component) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	c.mutate(w, r, http.StatusOK, func(pt *formbuilder.ProjectType) (any, error) {
		stepID := r.PathValue("step")
		if err := pt.DeleteField(stepID, r.PathValue("field")); err != nil {
			return nil, err
		}
		return pt.Step(stepID)
	})
}

// ----------------------------------------------------------------------------
// Versions
// ----------------------------------------------------------------------------

func (c *Component) handleListVersions(w http.ResponseWriter, r *http.Request) {
	scope := scopeFor(r)
	history, err := c.repo.Versions(r.Context(), scope)
	if err != nil {
		c.writeError(w, "list versions", err)
		return
	}
	resp := VersionsResponse{Scope: scope.Key(), Versions: history}
	if active, ok := history.Active(); ok {
		resp.Active = active.Version
	}
	if resp.Versions == nil {
		resp.Versions = formbuilder.VersionHistory{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePublish snapshots the saved form of the scope as a new active
// version.
func (c *Component) handlePublish(w http.ResponseWriter, r *http.Request) {
	scope := scopeFor(r)
	pt, err := c.repo.LoadProjectType(r.Context(), scope.TypeID)
	if err != nil {
		c.writeError(w, "load project type", err)
		return
	}
	v, err := c.repo.Publish(r.Context(), pt, scope)
	if err != nil {
		c.writeError(w, "publish", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// handleRollback re-activates a version. With apply=true the version's
// fields are also written back to the live form; the version is only
// activated once they apply cleanly.
func (c *Component) handleRollback(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(r.PathValue("version"))
	if err != nil || version < 1 {
		http.Error(w, "Invalid version", http.StatusBadRequest)
		return
	}
	scope := scopeFor(r)

	var pt *formbuilder.ProjectType
	if apply, _ := strconv.ParseBool(r.URL.Query().Get("apply")); apply {
		pt, err = c.prepareApply(r.Context(), scope, version)
		if err != nil {
			c.writeError(w, "apply version", err)
			return
		}
	}

	v, err := c.repo.Rollback(r.Context(), scope, version)
	if err != nil {
		c.writeError(w, "rollback", err)
		return
	}
	if pt != nil {
		if err := c.repo.SaveProjectType(r.Context(), pt); err != nil {
			c.writeError(w, "save project type", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, v)
}

// prepareApply loads the project type and copies the stored version into it
// without persisting anything.
func (c *Component) prepareApply(ctx context.Context, scope formbuilder.Scope, version int) (*formbuilder.ProjectType, error) {
	history, err := c.repo.Versions(ctx, scope)
	if err != nil {
		return nil, err
	}
	v, ok := history.Find(version)
	if !ok {
		return nil, fmt.Errorf("%w: %d", formbuilder.ErrVersionNotFound, version)
	}
	pt, err := c.repo.LoadProjectType(ctx, scope.TypeID)
	if err != nil {
		return nil, err
	}
	if err := pt.ApplyVersion(v); err != nil {
		return nil, err
	}
	return pt, nil
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

var errBadMove = errors.New("move needs a direction of up or down, or a target position")

// mutate loads the path's project type, applies fn and saves the result.
func (c *Component) mutate(w http.ResponseWriter, r *http.Request, status int, fn func(*formbuilder.ProjectType) (any, error)) {
	pt, err := c.repo.LoadProjectType(r.Context(), r.PathValue("id"))
	if err != nil {
		c.writeError(w, "load project type", err)
		return
	}
	result, err := fn(pt)
	if err != nil {
		c.writeError(w, "edit project type", err)
		return
	}
	if err := c.repo.SaveProjectType(r.Context(), pt); err != nil {
		c.writeError(w, "save project type", err)
		return
	}
	writeJSON(w, status, result)
}

func scopeFor(r *http.Request) formbuilder.Scope {
	id := r.PathValue("id")
	if step := r.URL.Query().Get("step"); step != "" {
		return formbuilder.StepScope(id, step)
	}
	return formbuilder.RegistrationScope(id)
}

func (c *Component) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, c.config.bodyLimit())
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be empty.
func (c *Component) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.ContentLength == 0 {
		return true
	}
	return c.decode(w, r, dst)
}

// writeError maps domain errors onto status codes.
func (c *Component) writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, formbuilder.ErrStepNotFound),
		errors.Is(err, formbuilder.ErrFieldNotFound),
		errors.Is(err, formbuilder.ErrVersionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, formbuilder.ErrInvalidField),
		errors.Is(err, formbuilder.ErrInvalidFieldType),
		errors.Is(err, formbuilder.ErrMoveOutOfRange),
		errors.Is(err, formbuilder.ErrIDRequired),
		errors.Is(err, formbuilder.ErrNoStepSnapshot),
		errors.Is(err, errBadMove):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, storage.ErrConflict):
		http.Error(w, "Form was modified concurrently, reload and retry", http.StatusConflict)
	default:
		c.logger.Error("formbuilder request failed", "op", op, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
