package projectapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/abemis/portal/documents"
	"github.com/abemis/portal/lifecycle"
	"github.com/abemis/portal/projects"
)

func (c *Component) registerStepperHandlers(prefix string, mux *http.ServeMux) {
	mux.HandleFunc("POST "+prefix+"{id}/stepper", c.handleSelectStage)
	mux.HandleFunc("POST "+prefix+"{id}/advance", c.handleAdvance)
	mux.HandleFunc("POST "+prefix+"{id}/accomplishments", c.handleAddAccomplishment)
	mux.HandleFunc("PUT "+prefix+"{id}/accomplishments/{accomplishment}", c.handleUpdateAccomplishment)
	mux.HandleFunc("DELETE "+prefix+"{id}/accomplishments/{accomplishment}", c.handleRemoveAccomplishment)
	mux.HandleFunc("POST "+prefix+"{id}/target-date", c.handleExtendTarget)
	mux.HandleFunc("GET "+prefix+"{id}/documents/{stage}/{name}", c.handleDownloadDocument)
	mux.HandleFunc("POST "+prefix+"{id}/documents/{stage}/{name}", c.handleUploadDocument)
	mux.HandleFunc("POST "+prefix+"{id}/documents/{stage}/{name}/approve", c.handleApproveDocument)
	mux.HandleFunc("POST "+prefix+"{id}/documents/{stage}/{name}/reject", c.handleRejectDocument)
}

// ProjectView is a project with its derived stepper state.
type ProjectView struct {
	Project  *projects.Project `json:"project"`
	Progress float64           `json:"progress"`
	Slippage string            `json:"slippage,omitempty"`

	Stepper lifecycle.Stepper `json:"stepper"`
	Panels  []lifecycle.Panel `json:"panels"`

	// CanAdvance is false when a guard blocks the next stage; Blocked says
	// which.
	CanAdvance bool   `json:"canAdvance"`
	Blocked    string `json:"blocked,omitempty"`
}

// SelectStageRequest opens a stepper tab.
type SelectStageRequest struct {
	Index int `json:"index" validate:"gte=0"`
}

// AccomplishmentRequest adds or edits a progress report.
type AccomplishmentRequest struct {
	Date        string  `json:"date" validate:"required,datetime=2006-01-02"`
	Percent     float64 `json:"percent" validate:"gt=0,lte=100"`
	Description string  `json:"description"`
}

// TargetDateRequest extends the target completion date.
type TargetDateRequest struct {
	Date string `json:"date" validate:"required,datetime=2006-01-02"`
}

// UploadRequest records a document upload without content.
type UploadRequest struct {
	FileName string `json:"fileName" validate:"required"`
}

// RejectRequest returns a document to its uploader.
type RejectRequest struct {
	Remarks string `json:"remarks" validate:"required"`
}

// view derives the stepper state of p. active selects a tab other than the
// current stage.
func (c *Component) view(p *projects.Project, active *int) (ProjectView, error) {
	st := &p.Lifecycle
	stepper, err := lifecycle.NewStepper(st.Track, st.Status)
	if err != nil {
		return ProjectView{}, err
	}
	if active != nil {
		if err := stepper.Select(*active); err != nil {
			return ProjectView{}, err
		}
	}

	v := ProjectView{
		Project:    p,
		Progress:   st.Progress(),
		Stepper:    *stepper,
		Panels:     stepper.Panels(),
		CanAdvance: true,
	}
	if err := st.Slippage(); err != nil {
		v.Slippage = err.Error()
	}
	if err := lifecycle.NewMachine().CanAdvance(st); err != nil {
		v.CanAdvance = false
		v.Blocked = err.Error()
	}
	return v, nil
}

// handleSelectStage opens a stepper tab. Tabs after the current stage are
// locked. Only the view changes; nothing is stored.
func (c *Component) handleSelectStage(w http.ResponseWriter, r *http.Request) {
	var req SelectStageRequest
	if !c.decodeValid(w, r, &req) {
		return
	}
	p, err := c.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		c.writeError(w, "select stage", err)
		return
	}
	view, err := c.view(p, &req.Index)
	if err != nil {
		c.writeError(w, "select stage", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (c *Component) handleAdvance(w http.ResponseWriter, r *http.Request) {
	p, _, err := c.store.Advance(r.Context(), r.PathValue("id"))
	if err != nil {
		c.writeError(w, "advance", err)
		return
	}
	c.writeView(w, p)
}

// ----------------------------------------------------------------------------
// Accomplishments and target date
// ----------------------------------------------------------------------------

func (c *Component) handleAddAccomplishment(w http.ResponseWriter, r *http.Request) {
	var req AccomplishmentRequest
	if !c.decodeValid(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		http.Error(w, "Invalid date", http.StatusBadRequest)
		return
	}
	var added lifecycle.Accomplishment
	_, err = c.store.Modify(r.Context(), r.PathValue("id"), func(p *projects.Project) error {
		var err error
		added, err = p.Lifecycle.AddAccomplishment(date, req.Percent, req.Description)
		return err
	})
	if err != nil {
		c.writeError(w, "add accomplishment", err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (c *Component) handleUpdateAccomplishment(w http.ResponseWriter, r *http.Request) {
	var req AccomplishmentRequest
	if !c.decodeValid(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		http.Error(w, "Invalid date", http.StatusBadRequest)
		return
	}
	var updated lifecycle.Accomplishment
	_, err = c.store.Modify(r.Context(), r.PathValue("id"), func(p *projects.Project) error {
		var err error
		updated, err = p.Lifecycle.UpdateAccomplishment(r.PathValue("accomplishment"), date, req.Percent)
		return err
	})
	if err != nil {
		c.writeError(w, "update accomplishment", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (c *Component) handleRemoveAccomplishment(w http.ResponseWriter, r *http.Request) {
	p, err := c.store.Modify(r.Context(), r.PathValue("id"), func(p *projects.Project) error {
		return p.Lifecycle.RemoveAccomplishment(r.PathValue("accomplishment"))
	})
	if err != nil {
		c.writeError(w, "remove accomplishment", err)
		return
	}
	c.writeView(w, p)
}

func (c *Component) handleExtendTarget(w http.ResponseWriter, r *http.Request) {
	var req TargetDateRequest
	if !c.decodeValid(w, r, &req) {
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		http.Error(w, "Invalid date", http.StatusBadRequest)
		return
	}
	p, err := c.store.Modify(r.Context(), r.PathValue("id"), func(p *projects.Project) error {
		if err := p.Lifecycle.ExtendTargetDate(date); err != nil {
			return err
		}
		p.Details.TargetCompletion = req.Date
		return nil
	})
	if err != nil {
		c.writeError(w, "extend target date", err)
		return
	}
	c.writeView(w, p)
}

// ----------------------------------------------------------------------------
// Stage documents
// ----------------------------------------------------------------------------

// handleUploadDocument marks a stage document uploaded. A multipart body
// with a "file" part is stored in the blob store; a JSON body records the
// file name only.
func (c *Component) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	stage := lifecycle.Stage(r.PathValue("stage"))
	name := r.PathValue("name")

	var fileName, blobKey string
	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, c.config.MaxUploadBytes)
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "Missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			http.Error(w, "Upload too large", http.StatusRequestEntityTooLarge)
			return
		}

		// Reject unknown projects and documents before storing anything.
		p, err := c.store.Get(r.Context(), id)
		if err != nil {
			c.writeError(w, "upload document", err)
			return
		}
		d, err := p.Lifecycle.Document(stage, name)
		if err != nil {
			c.writeError(w, "upload document", err)
			return
		}
		if !d.Status.CanTransitionTo(lifecycle.DocumentUploaded) {
			http.Error(w, fmt.Sprintf("%s is %s and cannot be replaced", name, d.Status), http.StatusConflict)
			return
		}

		fileName = header.Filename
		blobKey = documents.Key(id, stage.String(), name, fileName)
		blob := documents.Blob{Data: data, ContentType: header.Header.Get("Content-Type")}
		if err := c.blobs.Put(r.Context(), blobKey, blob); err != nil {
			c.writeError(w, "store document", err)
			return
		}
	} else {
		var req UploadRequest
		if !c.decodeValid(w, r, &req) {
			return
		}
		fileName = req.FileName
	}

	var previous string
	var doc lifecycle.Document
	_, err := c.store.Modify(r.Context(), id, func(p *projects.Project) error {
		if d, err := p.Lifecycle.Document(stage, name); err == nil {
			previous = d.BlobKey
		}
		var err error
		doc, err = p.Lifecycle.UploadDocument(stage, name, fileName, blobKey, c.now().UTC())
		return err
	})
	if err != nil {
		if blobKey != "" && blobKey != previous {
			c.deleteBlob(r, blobKey)
		}
		c.writeError(w, "upload document", err)
		return
	}
	if previous != "" && previous != blobKey {
		c.deleteBlob(r, previous)
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleDownloadDocument streams a stored document.
func (c *Component) handleDownloadDocument(w http.ResponseWriter, r *http.Request) {
	p, err := c.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		c.writeError(w, "download document", err)
		return
	}
	doc, err := p.Lifecycle.Document(lifecycle.Stage(r.PathValue("stage")), r.PathValue("name"))
	if err != nil {
		c.writeError(w, "download document", err)
		return
	}
	if doc.BlobKey == "" {
		http.Error(w, "No file stored for this document", http.StatusNotFound)
		return
	}
	blob, err := c.blobs.Get(r.Context(), doc.BlobKey)
	if err != nil {
		c.writeError(w, "download document", err)
		return
	}

	contentType := blob.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(blob.Data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.FileName}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob.Data)
}

func (c *Component) handleApproveDocument(w http.ResponseWriter, r *http.Request) {
	c.moveDocument(w, r, func(s *lifecycle.State, stage lifecycle.Stage, name string) (lifecycle.Document, error) {
		return s.ApproveDocument(stage, name, c.now().UTC())
	})
}

func (c *Component) handleRejectDocument(w http.ResponseWriter, r *http.Request) {
	var req RejectRequest
	if !c.decodeValid(w, r, &req) {
		return
	}
	c.moveDocument(w, r, func(s *lifecycle.State, stage lifecycle.Stage, name string) (lifecycle.Document, error) {
		return s.RejectDocument(stage, name, req.Remarks, c.now().UTC())
	})
}

func (c *Component) moveDocument(w http.ResponseWriter, r *http.Request, fn func(*lifecycle.State, lifecycle.Stage, string) (lifecycle.Document, error)) {
	stage := lifecycle.Stage(r.PathValue("stage"))
	name := r.PathValue("name")
	var doc lifecycle.Document
	_, err := c.store.Modify(r.Context(), r.PathValue("id"), func(p *projects.Project) error {
		var err error
		doc, err = fn(&p.Lifecycle, stage, name)
		return err
	})
	if err != nil {
		c.writeError(w, fmt.Sprintf("%s document", stage), err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (c *Component) deleteBlob(r *http.Request, key string) {
	if err := c.blobs.Delete(r.Context(), key); err != nil && !errors.Is(err, documents.ErrNotFound) {
		c.logger.Warn("Failed to delete document blob", "key", key, "error", err)
	}
}

func (c *Component) writeView(w http.ResponseWriter, p *projects.Project) {
	view, err := c.view(p, nil)
	if err != nil {
		c.writeError(w, "render project", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}
