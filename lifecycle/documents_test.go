package lifecycle

import (
	"errors"
	"testing"
)

func TestDocumentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from DocumentStatus
		to   DocumentStatus
		want bool
	}{
		{DocumentPending, DocumentUploaded, true},
		{DocumentPending, DocumentApproved, false},
		{DocumentPending, DocumentRejected, false},

		{DocumentUploaded, DocumentApproved, true},
		{DocumentUploaded, DocumentRejected, true},
		{DocumentUploaded, DocumentPending, false},

		{DocumentRejected, DocumentUploaded, true},
		{DocumentRejected, DocumentApproved, false},

		{DocumentApproved, DocumentUploaded, false},
		{DocumentApproved, DocumentRejected, false},
	}

	for _, tt := range tests {
		name := string(tt.from) + "_to_" + string(tt.to)
		t.Run(name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Errorf("DocumentStatus(%q).CanTransitionTo(%q) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestDocumentLifecycle(t *testing.T) {
	s := stateAt(t, TrackStandard, StageProposal)

	if _, err := s.ApproveDocument(StageProposal, "Project Proposal", testNow); !errors.Is(err, ErrDocumentTransition) {
		t.Fatalf("approve pending error = %v, want ErrDocumentTransition", err)
	}

	d, err := s.UploadDocument(StageProposal, "Project Proposal", "proposal.pdf", "projects/p1/proposal.pdf", testNow)
	if err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}
	if d.Status != DocumentUploaded || d.BlobKey == "" || d.UpdatedAt == nil {
		t.Errorf("uploaded = %+v", d)
	}

	d, err = s.RejectDocument(StageProposal, "Project Proposal", "unsigned", testNow)
	if err != nil {
		t.Fatal(err)
	}
	if d.Remarks != "unsigned" {
		t.Errorf("remarks = %q", d.Remarks)
	}

	if _, err := s.UploadDocument(StageProposal, "Project Proposal", "signed.pdf", "projects/p1/signed.pdf", testNow); err != nil {
		t.Fatal(err)
	}
	d, err = s.ApproveDocument(StageProposal, "Project Proposal", testNow)
	if err != nil {
		t.Fatal(err)
	}
	if d.Status != DocumentApproved || d.FileName != "signed.pdf" || d.Remarks != "" {
		t.Errorf("approved = %+v", d)
	}

	stored, _ := s.Document(StageProposal, "Project Proposal")
	if stored.Status != DocumentApproved {
		t.Errorf("stored status = %s", stored.Status)
	}

	if _, err := s.UploadDocument(StageProcurement, "Bid Documents", "b.pdf", "k", testNow); !errors.Is(err, ErrDocumentNotFound) {
		t.Errorf("error = %v, want ErrDocumentNotFound", err)
	}
}
