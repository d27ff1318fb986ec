package formbuilder

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// RegistrationStep is one page of a project type's registration wizard.
type RegistrationStep struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Order  int       `json:"order"`
	Fields FieldList `json:"fields"`
}

// StepPatch is a shallow update of a step. Nil members are left as is.
type StepPatch struct {
	Name   *string    `json:"name,omitempty"`
	Fields *FieldList `json:"fields,omitempty"`
}

// ProjectType is a class of project (Infrastructure, Machinery, ...) with
// its lifecycle stages and registration form.
type ProjectType struct {
	ID                string             `json:"id"`
	Name              string             `json:"name"`
	Description       string             `json:"description,omitempty"`
	Stages            []string           `json:"stages"`
	RegistrationSteps []RegistrationStep `json:"registrationSteps"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// FormFields returns every step's fields, flattened in step order.
// This is the form the pre-step front-end rendered as a single page.
func (pt *ProjectType) FormFields() []FormField {
	var out []FormField
	for _, s := range pt.RegistrationSteps {
		out = append(out, s.Fields...)
	}
	return out
}

// MarshalJSON adds the flattened registrationForm for readers that predate
// registration steps. The value is derived on every write and never read
// back.
func (pt ProjectType) MarshalJSON() ([]byte, error) {
	type plain ProjectType
	form := pt.FormFields()
	if form == nil {
		form = []FormField{}
	}
	return json.Marshal(struct {
		plain
		RegistrationForm []FormField `json:"registrationForm"`
	}{plain: plain(pt), RegistrationForm: form})
}

// Step returns the step with id.
func (pt *ProjectType) Step(id string) (*RegistrationStep, error) {
	i := pt.stepIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, id)
	}
	return &pt.RegistrationSteps[i], nil
}

func (pt *ProjectType) stepIndex(id string) int {
	return slices.IndexFunc(pt.RegistrationSteps, func(s RegistrationStep) bool { return s.ID == id })
}

// AddStep appends an empty step. An empty name becomes "Step N".
func (pt *ProjectType) AddStep(name string) RegistrationStep {
	n := len(pt.RegistrationSteps) + 1
	if name == "" {
		name = fmt.Sprintf("Step %d", n)
	}
	step := RegistrationStep{
		ID:     uuid.New().String(),
		Name:   name,
		Order:  n,
		Fields: FieldList{},
	}
	pt.RegistrationSteps = append(pt.RegistrationSteps, step)
	pt.renumber()
	return step
}

// DeleteStep removes the step with id and renumbers the rest.
func (pt *ProjectType) DeleteStep(id string) error {
	i := pt.stepIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrStepNotFound, id)
	}
	pt.RegistrationSteps = slices.Delete(pt.RegistrationSteps, i, i+1)
	pt.renumber()
	return nil
}

// UpdateStep merges patch into the step with id.
func (pt *ProjectType) UpdateStep(id string, patch StepPatch) (RegistrationStep, error) {
	step, err := pt.Step(id)
	if err != nil {
		return RegistrationStep{}, err
	}
	if patch.Fields != nil {
		fields := patch.Fields.Clone()
		for i := range fields {
			fields[i].Normalize()
			if err := fields[i].Validate(); err != nil {
				return RegistrationStep{}, err
			}
		}
		if fields == nil {
			fields = FieldList{}
		}
		step.Fields = fields
	}
	if patch.Name != nil {
		step.Name = *patch.Name
	}
	return *step, nil
}

// MoveStep relocates the step at index from to index to, as a drag and
// drop does.
func (pt *ProjectType) MoveStep(from, to int) error {
	if err := move(pt.RegistrationSteps, from, to); err != nil {
		return err
	}
	pt.renumber()
	return nil
}

// MoveStepUp swaps the step with its predecessor.
func (pt *ProjectType) MoveStepUp(id string) error {
	i := pt.stepIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrStepNotFound, id)
	}
	return pt.MoveStep(i, i-1)
}

// MoveStepDown swaps the step with its successor.
func (pt *ProjectType) MoveStepDown(id string) error {
	i := pt.stepIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrStepNotFound, id)
	}
	return pt.MoveStep(i, i+1)
}

// AddField appends a field of type t to the step with stepID.
func (pt *ProjectType) AddField(stepID string, t FieldType) (FormField, error) {
	step, err := pt.Step(stepID)
	if err != nil {
		return FormField{}, err
	}
	return step.Fields.Add(t)
}

// UpdateField patches a field on the step with stepID.
func (pt *ProjectType) UpdateField(stepID, fieldID string, patch FieldPatch) (FormField, error) {
	step, err := pt.Step(stepID)
	if err != nil {
		return FormField{}, err
	}
	return step.Fields.Update(fieldID, patch)
}

// DeleteField removes a field from the step with stepID.
func (pt *ProjectType) DeleteField(stepID, fieldID string) error {
	step, err := pt.Step(stepID)
	if err != nil {
		return err
	}
	return step.Fields.Delete(fieldID)
}

// MoveField reorders a field within the step with stepID.
func (pt *ProjectType) MoveField(stepID string, from, to int) error {
	step, err := pt.Step(stepID)
	if err != nil {
		return err
	}
	return step.Fields.Move(from, to)
}

// Normalize restores the step invariants: orders are 1..N in slice order,
// field lists are never nil, and every field is normalized for its type.
func (pt *ProjectType) Normalize() {
	for i := range pt.RegistrationSteps {
		if pt.RegistrationSteps[i].Fields == nil {
			pt.RegistrationSteps[i].Fields = FieldList{}
		}
		for j := range pt.RegistrationSteps[i].Fields {
			pt.RegistrationSteps[i].Fields[j].Normalize()
		}
	}
	pt.renumber()
}

// SortByOrder sorts steps by their stored order, then renumbers. Stored
// data from older clients may be out of slice order.
func (pt *ProjectType) SortByOrder() {
	slices.SortStableFunc(pt.RegistrationSteps, func(a, b RegistrationStep) int {
		return a.Order - b.Order
	})
	pt.renumber()
}

func (pt *ProjectType) renumber() {
	for i := range pt.RegistrationSteps {
		pt.RegistrationSteps[i].Order = i + 1
	}
}

// Clone returns a deep copy.
func (pt *ProjectType) Clone() *ProjectType {
	out := *pt
	out.Stages = slices.Clone(pt.Stages)
	out.RegistrationSteps = cloneSteps(pt.RegistrationSteps)
	return &out
}

func cloneSteps(steps []RegistrationStep) []RegistrationStep {
	if steps == nil {
		return nil
	}
	out := make([]RegistrationStep, len(steps))
	for i, s := range steps {
		s.Fields = s.Fields.Clone()
		out[i] = s
	}
	return out
}
