package projectapi

import (
	"io"
	"net/http"
	"testing"

	"github.com/abemis/portal/events"
	"github.com/abemis/portal/lifecycle"
)

func TestSelectStage(t *testing.T) {
	e := setupTestServer(t)
	p := createProject(t, e)
	base := e.url("/" + p.Project.ID)

	if code := do(t, http.MethodPost, base+"/stepper", SelectStageRequest{Index: 2}, nil); code != http.StatusConflict {
		t.Errorf("locked tab: expected 409, got %d", code)
	}

	do(t, http.MethodPost, base+"/advance", nil, nil)
	var view ProjectView
	if code := do(t, http.MethodPost, base+"/stepper", SelectStageRequest{Index: 0}, &view); code != http.StatusOK {
		t.Fatalf("earlier tab: expected 200, got %d", code)
	}
	if view.Stepper.Active != 0 || view.Stepper.Current != 1 {
		t.Errorf("stepper = %+v", view.Stepper)
	}
	if view.Project.Lifecycle.Status != lifecycle.StageProcurement {
		t.Errorf("selecting a tab changed the status to %s", view.Project.Lifecycle.Status)
	}

	if code := do(t, http.MethodPost, base+"/stepper", SelectStageRequest{Index: -1}, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("negative index: expected 422, got %d", code)
	}
}

func TestAdvanceToCompletion(t *testing.T) {
	e := setupTestServer(t)
	p := createProject(t, e)
	base := e.url("/" + p.Project.ID)

	var view ProjectView
	do(t, http.MethodPost, base+"/advance", nil, &view)
	do(t, http.MethodPost, base+"/advance", nil, &view)
	if view.Project.Lifecycle.Status != lifecycle.StageImplementation {
		t.Fatalf("status = %s", view.Project.Lifecycle.Status)
	}
	if view.CanAdvance || view.Blocked == "" {
		t.Errorf("implementation at 0%% should be blocked: %+v", view)
	}

	if code := do(t, http.MethodPost, base+"/advance", nil, nil); code != http.StatusConflict {
		t.Errorf("incomplete progress: expected 409, got %d", code)
	}

	var first lifecycle.Accomplishment
	if code := do(t, http.MethodPost, base+"/accomplishments", AccomplishmentRequest{Date: "2026-06-01", Percent: 60}, &first); code != http.StatusCreated {
		t.Fatalf("add accomplishment: expected 201, got %d", code)
	}
	if code := do(t, http.MethodPost, base+"/accomplishments", AccomplishmentRequest{Date: "2026-12-15", Percent: 40}, nil); code != http.StatusCreated {
		t.Fatalf("add late accomplishment: expected 201, got %d", code)
	}
	if code := do(t, http.MethodPost, base+"/accomplishments", AccomplishmentRequest{Date: "2026-07-01", Percent: 5}, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("over 100%%: expected 422, got %d", code)
	}

	do(t, http.MethodGet, base, nil, &view)
	if view.Progress != 100 || view.Slippage == "" {
		t.Errorf("progress = %v, slippage = %q", view.Progress, view.Slippage)
	}
	if code := do(t, http.MethodPost, base+"/advance", nil, nil); code != http.StatusConflict {
		t.Errorf("slippage: expected 409, got %d", code)
	}

	if code := do(t, http.MethodPost, base+"/target-date", TargetDateRequest{Date: "2026-11-01"}, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("earlier target: expected 422, got %d", code)
	}
	if code := do(t, http.MethodPost, base+"/target-date", TargetDateRequest{Date: "2026-12-31"}, &view); code != http.StatusOK {
		t.Fatalf("extend target: expected 200, got %d", code)
	}
	if view.Project.Details.TargetCompletion != "2026-12-31" || view.Slippage != "" {
		t.Errorf("after extension: target %s, slippage %q", view.Project.Details.TargetCompletion, view.Slippage)
	}

	if code := do(t, http.MethodPost, base+"/advance", nil, &view); code != http.StatusOK {
		t.Fatalf("advance to completed: expected 200, got %d", code)
	}
	if view.Project.Lifecycle.Status != lifecycle.StageCompleted {
		t.Errorf("status = %s", view.Project.Lifecycle.Status)
	}

	advanced := 0
	for _, s := range e.rec.Subjects() {
		if s == events.SubjectProjectAdvanced {
			advanced++
		}
	}
	if advanced != 3 {
		t.Errorf("expected 3 advance events, got %d", advanced)
	}
}

func TestAccomplishmentEdits(t *testing.T) {
	e := setupTestServer(t)
	p := createProject(t, e)
	base := e.url("/" + p.Project.ID)

	var a lifecycle.Accomplishment
	do(t, http.MethodPost, base+"/accomplishments", AccomplishmentRequest{Date: "2026-05-01", Percent: 20}, &a)

	var updated lifecycle.Accomplishment
	if code := do(t, http.MethodPut, base+"/accomplishments/"+a.ID, AccomplishmentRequest{Date: "2026-05-02", Percent: 35}, &updated); code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", code)
	}
	if updated.Percent != 35 {
		t.Errorf("percent = %v", updated.Percent)
	}

	if code := do(t, http.MethodPut, base+"/accomplishments/missing", AccomplishmentRequest{Date: "2026-05-02", Percent: 10}, nil); code != http.StatusNotFound {
		t.Errorf("missing accomplishment: expected 404, got %d", code)
	}
	if code := do(t, http.MethodPost, base+"/accomplishments", AccomplishmentRequest{Date: "May 2", Percent: 10}, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("bad date: expected 422, got %d", code)
	}

	var view ProjectView
	if code := do(t, http.MethodDelete, base+"/accomplishments/"+a.ID, nil, &view); code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", code)
	}
	if view.Progress != 0 {
		t.Errorf("progress after delete = %v", view.Progress)
	}
}

func TestDocumentUploadFlow(t *testing.T) {
	e := setupTestServer(t)
	p := createProject(t, e)
	doc := e.url("/" + p.Project.ID + "/documents/Proposal/Project%20Proposal")

	if code := upload(t, doc, "proposal.pdf", "%PDF-1.7 proposal"); code != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d", code)
	}

	resp, err := http.Get(doc)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "%PDF-1.7 proposal" {
		t.Fatalf("download = %d %q", resp.StatusCode, body)
	}
	if got := resp.Header.Get("Content-Disposition"); got != `attachment; filename=proposal.pdf` {
		t.Errorf("Content-Disposition = %q", got)
	}

	var rejected lifecycle.Document
	if code := do(t, http.MethodPost, doc+"/reject", RejectRequest{Remarks: "Unsigned"}, &rejected); code != http.StatusOK {
		t.Fatalf("reject: expected 200, got %d", code)
	}
	if rejected.Status != lifecycle.DocumentRejected || rejected.Remarks != "Unsigned" {
		t.Errorf("rejected = %+v", rejected)
	}

	if code := upload(t, doc, "proposal-signed.pdf", "%PDF-1.7 signed"); code != http.StatusOK {
		t.Fatalf("re-upload: expected 200, got %d", code)
	}
	if _, err := e.blobs.Get(t.Context(), "projects/"+p.Project.ID+"/proposal/project-proposal/proposal.pdf"); err == nil {
		t.Error("replaced blob should be deleted")
	}

	var approved lifecycle.Document
	if code := do(t, http.MethodPost, doc+"/approve", nil, &approved); code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d", code)
	}
	if approved.Status != lifecycle.DocumentApproved || approved.FileName != "proposal-signed.pdf" {
		t.Errorf("approved = %+v", approved)
	}

	if code := upload(t, doc, "again.pdf", "x"); code != http.StatusConflict {
		t.Errorf("upload over approved: expected 409, got %d", code)
	}
	if code := do(t, http.MethodPost, doc+"/reject", RejectRequest{Remarks: "late"}, nil); code != http.StatusConflict {
		t.Errorf("reject approved: expected 409, got %d", code)
	}
}

func TestDocumentErrors(t *testing.T) {
	e := setupTestServer(t)
	p := createProject(t, e)
	base := e.url("/" + p.Project.ID + "/documents")

	if code := do(t, http.MethodPost, base+"/Proposal/Site%20Plan", UploadRequest{FileName: "plan.pdf"}, nil); code != http.StatusNotFound {
		t.Errorf("unknown document: expected 404, got %d", code)
	}
	if code := do(t, http.MethodPost, base+"/Procurement/Bid%20Documents", UploadRequest{FileName: "bid.pdf"}, nil); code != http.StatusNotFound {
		t.Errorf("document of a later stage: expected 404, got %d", code)
	}
	if code := do(t, http.MethodPost, base+"/Proposal/Letter%20of%20Intent/approve", nil, nil); code != http.StatusConflict {
		t.Errorf("approve pending: expected 409, got %d", code)
	}
	if code := do(t, http.MethodPost, base+"/Proposal/Letter%20of%20Intent/reject", RejectRequest{}, nil); code != http.StatusUnprocessableEntity {
		t.Errorf("reject without remarks: expected 422, got %d", code)
	}

	var doc struct {
		Status lifecycle.DocumentStatus `json:"status"`
	}
	if code := do(t, http.MethodPost, base+"/Proposal/Letter%20of%20Intent", UploadRequest{FileName: "loi.pdf"}, &doc); code != http.StatusOK {
		t.Fatalf("simulated upload: expected 200, got %d", code)
	}
	if doc.Status != lifecycle.DocumentUploaded {
		t.Errorf("status = %s", doc.Status)
	}
	if code := do(t, http.MethodGet, base+"/Proposal/Letter%20of%20Intent", nil, nil); code != http.StatusNotFound {
		t.Errorf("download without content: expected 404, got %d", code)
	}
}
