package formbuilder

// FieldBuffer holds a working copy of one step's fields while the field
// configuration dialog is open. Edits stay in the buffer until Commit;
// closing the dialog without committing discards them.
type FieldBuffer struct {
	StepID string    `json:"stepId"`
	Fields FieldList `json:"fields"`
}

// NewFieldBuffer copies the fields of the step with stepID.
func NewFieldBuffer(pt *ProjectType, stepID string) (*FieldBuffer, error) {
	step, err := pt.Step(stepID)
	if err != nil {
		return nil, err
	}
	fields := step.Fields.Clone()
	if fields == nil {
		fields = FieldList{}
	}
	return &FieldBuffer{StepID: stepID, Fields: fields}, nil
}

// AddField appends a field of type t to the buffer.
func (b *FieldBuffer) AddField(t FieldType) (FormField, error) {
	return b.Fields.Add(t)
}

// UpdateField patches a buffered field.
func (b *FieldBuffer) UpdateField(id string, patch FieldPatch) (FormField, error) {
	return b.Fields.Update(id, patch)
}

// DeleteField removes a buffered field.
func (b *FieldBuffer) DeleteField(id string) error {
	return b.Fields.Delete(id)
}

// Load replaces the buffer contents, as restoring a version does.
func (b *FieldBuffer) Load(fields []FormField) {
	b.Fields = FieldList(fields).Clone()
	if b.Fields == nil {
		b.Fields = FieldList{}
	}
}

// Commit writes the buffer back into its step on pt.
func (b *FieldBuffer) Commit(pt *ProjectType) error {
	fields := b.Fields
	_, err := pt.UpdateStep(b.StepID, StepPatch{Fields: &fields})
	return err
}
