package projects

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abemis/portal/lifecycle"
)

func completeDraft() Draft {
	return Draft{
		Title:            "Construction of Solar-Powered Irrigation",
		Classification:   "Infrastructure",
		Program:          "Rice",
		FundSource:       "GAA",
		BudgetYear:       2026,
		AllocatedAmount:  2_500_000,
		TargetCompletion: "2026-11-30",
		EquipmentType:    "Hand Tractor",
		Units:            4,
		RoadLengthKm:     3.2,
		Beneficiary:      "San Isidro Farmers Association",
		Location: Location{
			Region:   "030000000",
			Province: "034900000",
			City:     "034903000",
			Barangay: "034903001",
		},
		Documents: []Attachment{
			{Name: "Project Proposal", FileName: "proposal.pdf"},
			{Name: "Program of Work", FileName: "pow.pdf"},
			{Name: "Technical Specifications", FileName: "specs.pdf"},
		},
	}
}

func TestStepsFor(t *testing.T) {
	tests := []struct {
		kind  Kind
		steps int
	}{
		{KindInfra, 4},
		{KindMachinery, 4},
		{KindRAED, 4},
		{KindFMR, 1},
	}
	for _, tt := range tests {
		assert.Len(t, StepsFor(tt.kind), tt.steps, tt.kind)
	}
}

func TestWizard_CanProceed(t *testing.T) {
	w, err := NewWizard(KindInfra)
	require.NoError(t, err)

	err = w.CanProceed(0)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "is required", verr.Fields["title"])
	assert.Contains(t, verr.Fields, "classification")
	assert.NotContains(t, verr.Fields, "fundSource", "budget fields belong to a later page")
	assert.NotContains(t, verr.Fields, "equipmentType", "machinery fields are hidden for infra")

	w.Draft.Title = "Small Farm Reservoir"
	w.Draft.Classification = "Infrastructure"
	w.Draft.Program = "Rice"
	w.Draft.TargetCompletion = "2026-12-01"
	assert.NoError(t, w.CanProceed(0))

	assert.ErrorIs(t, w.CanProceed(9), ErrWizardStep)
}

func TestWizard_LocationFields(t *testing.T) {
	w, err := NewWizard(KindInfra)
	require.NoError(t, err)
	w.Draft.Location.Region = "030000000"

	err = w.CanProceed(2)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "location.province")
	assert.Contains(t, verr.Fields, "location.barangay")
	assert.NotContains(t, verr.Fields, "location.region")
}

func TestWizard_DocumentsStep(t *testing.T) {
	w, err := NewWizard(KindMachinery)
	require.NoError(t, err)
	w.Draft.Documents = []Attachment{{Name: "Project Proposal", FileName: "p.pdf"}, {Name: "Technical Specifications", FileName: "  "}}

	err = w.CanProceed(3)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{"documents.Technical Specifications": "is required"}, verr.Fields)
}

func TestWizard_NextAndBack(t *testing.T) {
	w, err := NewWizard(KindRAED)
	require.NoError(t, err)

	require.Error(t, w.Next())
	assert.Equal(t, 0, w.Current())

	w.Draft = completeDraft()
	for i := 1; i < len(w.Steps); i++ {
		require.NoError(t, w.Next())
		assert.Equal(t, i, w.Current())
	}
	require.NoError(t, w.Next(), "next on the last page stays put")
	assert.Equal(t, len(w.Steps)-1, w.Current())

	w.Back()
	assert.Equal(t, len(w.Steps)-2, w.Current())
	assert.Equal(t, "San Isidro Farmers Association", w.Draft.Beneficiary, "input survives navigation")
}

func TestWizard_Submit(t *testing.T) {
	tests := []struct {
		kind      Kind
		wantTrack lifecycle.Track
	}{
		{KindInfra, lifecycle.TrackStandard},
		{KindMachinery, lifecycle.TrackMachinery},
		{KindFMR, lifecycle.TrackStandard},
		{KindRAED, lifecycle.TrackStandard},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			w, err := NewWizard(tt.kind)
			require.NoError(t, err)
			w.Draft = completeDraft()

			var received *Project
			p, err := w.Submit(context.Background(), func(_ context.Context, p *Project) error {
				received = p
				return nil
			})
			require.NoError(t, err)
			require.Same(t, p, received)

			assert.NotEmpty(t, p.ID)
			assert.Equal(t, tt.kind, p.Kind)
			assert.Equal(t, tt.wantTrack, p.Lifecycle.Track)
			assert.Equal(t, lifecycle.StageProposal, p.Lifecycle.Status)
			assert.Equal(t, time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC), p.Lifecycle.TargetCompletion)

			if tt.kind != KindMachinery {
				assert.Empty(t, p.Details.EquipmentType)
				assert.Zero(t, p.Details.Units)
			}
			if tt.kind != KindFMR {
				assert.Zero(t, p.Details.RoadLengthKm)
			}
			if tt.kind != KindRAED {
				assert.Empty(t, p.Details.Beneficiary)
			}
		})
	}
}

func TestWizard_SubmitRejectsIncomplete(t *testing.T) {
	w, err := NewWizard(KindFMR)
	require.NoError(t, err)
	w.Draft.Title = "Road"

	called := false
	_, err = w.Submit(context.Background(), func(context.Context, *Project) error {
		called = true
		return nil
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "roadLengthKm")
	assert.Contains(t, verr.Fields, "documents.Project Proposal")
	assert.False(t, called)
}

func TestWizard_SubmitPropagatesCallbackError(t *testing.T) {
	w, err := NewWizard(KindInfra)
	require.NoError(t, err)
	w.Draft = completeDraft()
	boom := errors.New("storage offline")

	_, err = w.Submit(context.Background(), func(context.Context, *Project) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestNewWizard_InvalidKind(t *testing.T) {
	_, err := NewWizard("greenhouse")
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestValidationMessages(t *testing.T) {
	w, err := NewWizard(KindInfra)
	require.NoError(t, err)
	w.Draft = completeDraft()
	w.Draft.BudgetYear = 0
	w.Draft.TargetCompletion = "30/11/2026"

	err = w.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "is required", verr.Fields["budgetYear"])
	assert.Equal(t, "must be a date (YYYY-MM-DD)", verr.Fields["targetCompletionDate"])
}

func TestValidate_OnlyChecksPresence(t *testing.T) {
	w, err := NewWizard(KindInfra)
	require.NoError(t, err)
	w.Draft = completeDraft()
	w.Draft.BudgetYear = 1990
	w.Draft.AllocatedAmount = 0.5

	assert.NoError(t, w.Validate())
}

func TestValidateStruct(t *testing.T) {
	type request struct {
		Percent float64 `json:"percent" validate:"gt=0,lte=100"`
		Date    string  `json:"date" validate:"required,datetime=2006-01-02"`
	}

	require.NoError(t, ValidateStruct(request{Percent: 25, Date: "2026-06-30"}))

	err := ValidateStruct(request{Percent: 120})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "must be at most 100", verr.Fields["percent"])
	assert.Equal(t, "is required", verr.Fields["date"])
}
