package projects

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abemis/portal/lifecycle"
)

// Location is the place a project is built or delivered.
type Location struct {
	Region   string `json:"region" validate:"required"`
	Province string `json:"province" validate:"required"`
	District string `json:"district,omitempty"`
	City     string `json:"city" validate:"required"`
	Barangay string `json:"barangay" validate:"required"`
}

// Attachment is a document picked in the wizard's upload step.
type Attachment struct {
	Name     string `json:"name"`
	FileName string `json:"fileName"`
	BlobKey  string `json:"blobKey,omitempty"`
}

// Draft collects wizard input. Which fields are shown, and so required,
// depends on the kind; the wizard validates only the fields of each step.
// Visible fields must be non-empty; values are not range checked.
type Draft struct {
	Title          string `json:"title" validate:"required"`
	Description    string `json:"description"`
	Classification string `json:"classification" validate:"required"`
	Program        string `json:"program" validate:"required"`

	FundSource      string  `json:"fundSource" validate:"required"`
	BudgetYear      int     `json:"budgetYear" validate:"required"`
	AllocatedAmount float64 `json:"allocatedAmount" validate:"required"`

	Location Location `json:"location"`

	EquipmentType string  `json:"equipmentType,omitempty" validate:"required"`
	Units         int     `json:"units,omitempty" validate:"required"`
	RoadLengthKm  float64 `json:"roadLengthKm,omitempty" validate:"required"`
	Beneficiary   string  `json:"beneficiary,omitempty" validate:"required"`

	TargetCompletion string `json:"targetCompletionDate" validate:"required,datetime=2006-01-02"`

	Documents []Attachment `json:"documents"`
}

// WizardStep is one page of a creation wizard.
type WizardStep struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	// Fields are the Go field paths of Draft shown on this page.
	Fields []string `json:"fields"`

	// Documents are the attachments this page requires.
	Documents []string `json:"documents,omitempty"`
}

var (
	budgetStep = WizardStep{
		ID:     "budget-source",
		Title:  "Budget Source",
		Fields: []string{"FundSource", "BudgetYear", "AllocatedAmount"},
	}
	locationStep = WizardStep{
		ID:     "location",
		Title:  "Location",
		Fields: []string{"Location.Region", "Location.Province", "Location.City", "Location.Barangay"},
	}
)

func documentsStep(docs ...string) WizardStep {
	return WizardStep{ID: "documents", Title: "Documents", Documents: docs}
}

var wizardSteps = map[Kind][]WizardStep{
	KindInfra: {
		{ID: "classification", Title: "Classification", Fields: []string{"Title", "Classification", "Program", "TargetCompletion"}},
		budgetStep,
		locationStep,
		documentsStep("Project Proposal", "Program of Work"),
	},
	KindMachinery: {
		{ID: "classification", Title: "Classification", Fields: []string{"Title", "Classification", "Program", "EquipmentType", "Units", "TargetCompletion"}},
		budgetStep,
		{ID: "location", Title: "Delivery Location", Fields: []string{"Location.Region", "Location.Province", "Location.City"}},
		documentsStep("Project Proposal", "Technical Specifications"),
	},
	KindRAED: {
		{ID: "classification", Title: "Classification", Fields: []string{"Title", "Classification", "Program", "Beneficiary", "TargetCompletion"}},
		budgetStep,
		locationStep,
		documentsStep("Project Proposal"),
	},
	KindFMR: {
		{
			ID:    "details",
			Title: "Farm-to-Market Road",
			Fields: []string{
				"Title", "Program", "FundSource", "BudgetYear", "AllocatedAmount", "RoadLengthKm", "TargetCompletion",
				"Location.Region", "Location.Province", "Location.City", "Location.Barangay",
			},
			Documents: []string{"Project Proposal"},
		},
	},
}

// StepsFor returns the wizard pages of kind.
func StepsFor(kind Kind) []WizardStep {
	return slices.Clone(wizardSteps[kind])
}

// Project is a registered project.
type Project struct {
	ID           string          `json:"id"`
	TrackingCode string          `json:"trackingCode"`
	Kind         Kind            `json:"kind"`
	Details      Draft           `json:"details"`
	Lifecycle    lifecycle.State `json:"lifecycle"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Title is shorthand for the project title.
func (p *Project) Title() string {
	return p.Details.Title
}

// CreateFunc receives a project built by a wizard.
type CreateFunc func(ctx context.Context, p *Project) error

// Wizard walks a draft through the pages of one kind.
type Wizard struct {
	Kind    Kind
	Steps   []WizardStep
	Draft   Draft
	current int
	now     func() time.Time
}

// NewWizard starts a wizard for kind on its first page.
func NewWizard(kind Kind) (*Wizard, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	return &Wizard{Kind: kind, Steps: StepsFor(kind), now: time.Now}, nil
}

// Current returns the index of the open page.
func (w *Wizard) Current() int {
	return w.current
}

// CanProceed validates the required fields of page i.
func (w *Wizard) CanProceed(i int) error {
	if i < 0 || i >= len(w.Steps) {
		return fmt.Errorf("%w: %d", ErrWizardStep, i)
	}
	step := w.Steps[i]
	verr := validatePartial(w.Draft, step.Fields...)
	for _, name := range step.Documents {
		if !w.hasDocument(name) {
			if verr == nil {
				verr = &ValidationError{}
			}
			verr.add("documents."+name, "is required")
		}
	}
	if verr != nil {
		return verr
	}
	return nil
}

// Next moves to the following page when the open page is complete.
func (w *Wizard) Next() error {
	if err := w.CanProceed(w.current); err != nil {
		return err
	}
	if w.current < len(w.Steps)-1 {
		w.current++
	}
	return nil
}

// Back moves to the previous page. Input is kept.
func (w *Wizard) Back() {
	if w.current > 0 {
		w.current--
	}
}

// Validate checks every page.
func (w *Wizard) Validate() error {
	all := &ValidationError{}
	for i := range w.Steps {
		if err := w.CanProceed(i); err != nil {
			verr, ok := err.(*ValidationError)
			if !ok {
				return err
			}
			for k, v := range verr.Fields {
				all.add(k, v)
			}
		}
	}
	if len(all.Fields) > 0 {
		return all
	}
	return nil
}

// Submit validates the draft, builds the project and hands it to create.
func (w *Wizard) Submit(ctx context.Context, create CreateFunc) (*Project, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	target, err := time.Parse(time.DateOnly, w.Draft.TargetCompletion)
	if err != nil {
		return nil, fmt.Errorf("%w: targetCompletionDate: %v", ErrValidation, err)
	}
	state, err := lifecycle.NewState(w.Kind.Track(), target)
	if err != nil {
		return nil, err
	}

	now := w.now().UTC()
	p := &Project{
		ID:        uuid.New().String(),
		Kind:      w.Kind,
		Details:   w.visibleDraft(),
		Lifecycle: *state,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if create != nil {
		if err := create(ctx, p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (w *Wizard) hasDocument(name string) bool {
	return slices.ContainsFunc(w.Draft.Documents, func(a Attachment) bool {
		return a.Name == name && strings.TrimSpace(a.FileName) != ""
	})
}

// visibleDraft clears the kind-specific fields this kind does not show.
func (w *Wizard) visibleDraft() Draft {
	d := w.Draft
	d.Documents = slices.Clone(d.Documents)
	shown := map[string]bool{}
	for _, s := range w.Steps {
		for _, f := range s.Fields {
			shown[f] = true
		}
	}
	if !shown["EquipmentType"] {
		d.EquipmentType, d.Units = "", 0
	}
	if !shown["RoadLengthKm"] {
		d.RoadLengthKm = 0
	}
	if !shown["Beneficiary"] {
		d.Beneficiary = ""
	}
	if !shown["Classification"] && d.Classification == "" {
		d.Classification = w.Kind.Label()
	}
	return d
}
