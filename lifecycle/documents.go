package lifecycle

import (
	"fmt"
	"slices"
	"time"
)

// DocumentStatus is the simulated review state of a stage document.
type DocumentStatus string

const (
	DocumentPending  DocumentStatus = "pending"
	DocumentUploaded DocumentStatus = "uploaded"
	DocumentApproved DocumentStatus = "approved"
	DocumentRejected DocumentStatus = "rejected"
)

// String returns the string representation of the document status.
func (s DocumentStatus) String() string {
	return string(s)
}

// CanTransitionTo returns true if this status can transition to the target status.
//
//	pending → uploaded
//	uploaded → approved | rejected
//	rejected → uploaded (re-upload)
func (s DocumentStatus) CanTransitionTo(target DocumentStatus) bool {
	switch s {
	case DocumentPending, DocumentRejected:
		return target == DocumentUploaded
	case DocumentUploaded:
		return target == DocumentApproved || target == DocumentRejected
	default:
		return false
	}
}

// Document is a file a stage expects.
type Document struct {
	Name      string         `json:"name"`
	Status    DocumentStatus `json:"status"`
	BlobKey   string         `json:"blobKey,omitempty"`
	FileName  string         `json:"fileName,omitempty"`
	Remarks   string         `json:"remarks,omitempty"`
	UpdatedAt *time.Time     `json:"updatedAt,omitempty"`
}

var stageDocuments = map[Stage][]string{
	StageProposal:       {"Project Proposal", "Feasibility Study", "Letter of Intent"},
	StageProcurement:    {"Purchase Request", "Bid Documents", "Notice of Award"},
	StageImplementation: {"Notice to Proceed", "Program of Work", "Progress Report"},
	StageCompleted:      {"Certificate of Completion", "Inspection Report"},
	StageInventory:      {"Inventory Custodian Slip", "Turnover Document"},
	StageForDelivery:    {"Purchase Order", "Delivery Schedule"},
	StageDelivered:      {"Delivery Receipt", "Inspection and Acceptance Report"},
}

// DefaultDocuments returns the pending document checklist of a stage.
func DefaultDocuments(stage Stage) []Document {
	names := stageDocuments[stage]
	out := make([]Document, len(names))
	for i, n := range names {
		out[i] = Document{Name: n, Status: DocumentPending}
	}
	return out
}

// Document returns the named document of stage.
func (s *State) Document(stage Stage, name string) (*Document, error) {
	docs := s.Documents[stage]
	i := slices.IndexFunc(docs, func(d Document) bool { return d.Name == name })
	if i < 0 {
		return nil, fmt.Errorf("%w: %s / %s", ErrDocumentNotFound, stage, name)
	}
	return &docs[i], nil
}

// UploadDocument marks a document uploaded and records where its content
// is stored.
func (s *State) UploadDocument(stage Stage, name, fileName, blobKey string, now time.Time) (Document, error) {
	return s.moveDocument(stage, name, DocumentUploaded, now, func(d *Document) {
		d.FileName = fileName
		d.BlobKey = blobKey
		d.Remarks = ""
	})
}

// ApproveDocument marks an uploaded document approved.
func (s *State) ApproveDocument(stage Stage, name string, now time.Time) (Document, error) {
	return s.moveDocument(stage, name, DocumentApproved, now, nil)
}

// RejectDocument marks an uploaded document rejected.
func (s *State) RejectDocument(stage Stage, name, remarks string, now time.Time) (Document, error) {
	return s.moveDocument(stage, name, DocumentRejected, now, func(d *Document) {
		d.Remarks = remarks
	})
}

func (s *State) moveDocument(stage Stage, name string, to DocumentStatus, now time.Time, edit func(*Document)) (Document, error) {
	d, err := s.Document(stage, name)
	if err != nil {
		return Document{}, err
	}
	if !d.Status.CanTransitionTo(to) {
		return Document{}, fmt.Errorf("%w: %s cannot go from %s to %s", ErrDocumentTransition, name, d.Status, to)
	}
	d.Status = to
	if edit != nil {
		edit(d)
	}
	at := now
	d.UpdatedAt = &at
	return *d, nil
}
