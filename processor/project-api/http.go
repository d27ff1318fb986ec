package projectapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/abemis/portal/documents"
	"github.com/abemis/portal/lifecycle"
	"github.com/abemis/portal/projects"
	"github.com/abemis/portal/storage"
)

// maxRequestBodySize limits JSON bodies. Uploads have their own limit.
const maxRequestBodySize = 1 << 20 // 1 MB

// RegisterHTTPHandlers registers all project-api HTTP handlers under the
// given prefix (e.g. "api/projects"). Handlers are registered as:
//
//	GET    <prefix>/kinds
//	GET    <prefix>/kinds/{kind}/wizard
//	POST   <prefix>/kinds/{kind}/wizard/steps/{index}/check
//	GET    <prefix>/mock
//	GET    <prefix>/track?q=
//	GET    <prefix>/
//	POST   <prefix>/
//	GET    <prefix>/{id}
//	POST   <prefix>/{id}/stepper
//	POST   <prefix>/{id}/advance
//	POST   <prefix>/{id}/accomplishments
//	PUT    <prefix>/{id}/accomplishments/{accomplishment}
//	DELETE <prefix>/{id}/accomplishments/{accomplishment}
//	POST   <prefix>/{id}/target-date
//	GET    <prefix>/{id}/documents/{stage}/{name}
//	POST   <prefix>/{id}/documents/{stage}/{name}
//	POST   <prefix>/{id}/documents/{stage}/{name}/approve
//	POST   <prefix>/{id}/documents/{stage}/{name}/reject
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}

	mux.HandleFunc("GET "+prefix+"kinds", c.handleKinds)
	mux.HandleFunc("GET "+prefix+"kinds/{kind}/wizard", c.handleWizard)
	mux.HandleFunc("POST "+prefix+"kinds/{kind}/wizard/steps/{index}/check", c.handleCheckStep)
	mux.HandleFunc("GET "+prefix+"mock", c.handleMock)
	mux.HandleFunc("GET "+prefix+"track", c.handleTrack)
	mux.HandleFunc("GET "+prefix+"{$}", c.handleList)
	mux.HandleFunc("POST "+prefix+"{$}", c.handleCreate)
	mux.HandleFunc("GET "+prefix+"{id}", c.handleGet)

	c.registerStepperHandlers(prefix, mux)
}

// KindInfo describes one project kind and its wizard.
type KindInfo struct {
	Kind  projects.Kind         `json:"kind"`
	Label string                `json:"label"`
	Track lifecycle.Track       `json:"track"`
	Steps []projects.WizardStep `json:"steps"`
}

// WizardOptions are the dropdown choices of the creation wizards.
type WizardOptions struct {
	Classifications []string `json:"classifications"`
	Programs        []string `json:"programs"`
	FundSources     []string `json:"fundSources"`
	EquipmentTypes  []string `json:"equipmentTypes"`
}

// WizardSchema is the response of GET .../kinds/{kind}/wizard.
type WizardSchema struct {
	KindInfo
	Stages  []lifecycle.Stage `json:"stages"`
	Options WizardOptions     `json:"options"`
}

// StepCheckResponse reports whether a wizard page may be left.
type StepCheckResponse struct {
	Step   int               `json:"step"`
	OK     bool              `json:"ok"`
	Fields map[string]string `json:"fields,omitempty"`
}

// CreateRequest is the body of POST <prefix>/.
type CreateRequest struct {
	Kind  string         `json:"kind" validate:"required"`
	Draft projects.Draft `json:"draft" validate:"-"`
}

// ----------------------------------------------------------------------------
// Wizards
// ----------------------------------------------------------------------------

func kindInfo(k projects.Kind) KindInfo {
	return KindInfo{Kind: k, Label: k.Label(), Track: k.Track(), Steps: projects.StepsFor(k)}
}

func (c *Component) handleKinds(w http.ResponseWriter, _ *http.Request) {
	out := make([]KindInfo, 0, len(projects.Kinds))
	for _, k := range projects.Kinds {
		out = append(out, kindInfo(k))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleWizard returns the pages and dropdown options of one kind's wizard.
func (c *Component) handleWizard(w http.ResponseWriter, r *http.Request) {
	kind, err := projects.ParseKind(r.PathValue("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, WizardSchema{
		KindInfo: kindInfo(kind),
		Stages:   kind.Track().Stages(),
		Options: WizardOptions{
			Classifications: c.mock.Classifications,
			Programs:        c.mock.Programs,
			FundSources:     c.mock.FundSources,
			EquipmentTypes:  c.mock.EquipmentTypes,
		},
	})
}

// handleCheckStep validates one page of a draft. It backs the wizard's
// Next button; an incomplete page is a normal answer, not an error.
func (c *Component) handleCheckStep(w http.ResponseWriter, r *http.Request) {
	kind, err := projects.ParseKind(r.PathValue("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		http.Error(w, "Invalid step index", http.StatusBadRequest)
		return
	}
	wiz, err := projects.NewWizard(kind)
	if err != nil {
		c.writeError(w, "check step", err)
		return
	}
	if !decode(w, r, &wiz.Draft) {
		return
	}

	resp := StepCheckResponse{Step: index, OK: true}
	if err := wiz.CanProceed(index); err != nil {
		var verr *projects.ValidationError
		if !errors.As(err, &verr) {
			c.writeError(w, "check step", err)
			return
		}
		resp.OK = false
		resp.Fields = verr.Fields
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCreate submits a wizard draft and stores the resulting project.
func (c *Component) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !c.decodeValid(w, r, &req) {
		return
	}
	kind, err := projects.ParseKind(req.Kind)
	if err != nil {
		c.writeError(w, "create project", err)
		return
	}

	wiz, err := projects.NewWizard(kind)
	if err != nil {
		c.writeError(w, "create project", err)
		return
	}
	wiz.Draft = req.Draft
	p, err := wiz.Submit(r.Context(), c.store.Create)
	if err != nil {
		c.writeError(w, "create project", err)
		return
	}
	view, err := c.view(p, nil)
	if err != nil {
		c.writeError(w, "create project", err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// ----------------------------------------------------------------------------
// Records and search
// ----------------------------------------------------------------------------

func (c *Component) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := c.store.List(r.Context())
	if err != nil {
		c.writeError(w, "list projects", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (c *Component) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := c.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		c.writeError(w, "get project", err)
		return
	}
	view, err := c.view(p, nil)
	if err != nil {
		c.writeError(w, "get project", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (c *Component) handleMock(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, c.mock)
}

// handleTrack is the landing page search over registered and sample
// projects.
func (c *Component) handleTrack(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	list, err := c.store.List(r.Context())
	if err != nil {
		c.writeError(w, "track", err)
		return
	}
	results := projects.Track(q, list, c.mock.Projects)
	if results == nil {
		results = []projects.TrackResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

// decodeValid decodes dst and checks its validate tags.
func (c *Component) decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !decode(w, r, dst) {
		return false
	}
	if err := projects.ValidateStruct(dst); err != nil {
		c.writeError(w, "validate request", err)
		return false
	}
	return true
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(time.DateOnly, s)
}

// writeError maps domain errors onto status codes. Validation failures are
// returned as JSON so the wizard can mark each field.
func (c *Component) writeError(w http.ResponseWriter, op string, err error) {
	var verr *projects.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, verr)
	case errors.Is(err, projects.ErrProjectNotFound),
		errors.Is(err, lifecycle.ErrDocumentNotFound),
		errors.Is(err, lifecycle.ErrAccomplishmentMissing),
		errors.Is(err, documents.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, projects.ErrInvalidKind),
		errors.Is(err, projects.ErrValidation),
		errors.Is(err, projects.ErrWizardStep),
		errors.Is(err, lifecycle.ErrInvalidAccomplishment),
		errors.Is(err, lifecycle.ErrInvalidTargetDate):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, projects.ErrTrackingCode):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, lifecycle.ErrStageLocked),
		errors.Is(err, lifecycle.ErrSlippage),
		errors.Is(err, lifecycle.ErrIncompleteProgress),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrDocumentTransition),
		errors.Is(err, storage.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		c.logger.Error("project request failed", "op", op, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
