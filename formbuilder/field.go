// Package formbuilder models the registration forms configured per project
// type: ordered steps, each holding ordered fields, plus the published
// version history of those forms.
package formbuilder

import (
	"fmt"
	"slices"

	"github.com/google/uuid"
)

// FieldType is the discriminator of a FormField.
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldNumber   FieldType = "number"
	FieldDate     FieldType = "date"
	FieldFile     FieldType = "file"
	FieldSelect   FieldType = "select"
	FieldTextarea FieldType = "textarea"
	FieldCheckbox FieldType = "checkbox"
	FieldRadio    FieldType = "radio"
	FieldLabel    FieldType = "label"
	FieldButton   FieldType = "button"
)

// FieldTypes lists every field type in palette order.
var FieldTypes = []FieldType{
	FieldText, FieldEmail, FieldNumber, FieldDate, FieldFile, FieldSelect,
	FieldTextarea, FieldCheckbox, FieldRadio, FieldLabel, FieldButton,
}

// String returns the string representation of the field type.
func (t FieldType) String() string {
	return string(t)
}

// IsValid returns true if t is a known field type.
func (t FieldType) IsValid() bool {
	return slices.Contains(FieldTypes, t)
}

// HasOptions reports whether fields of this type carry a choice list.
func (t FieldType) HasOptions() bool {
	return t == FieldSelect || t == FieldRadio
}

// IsStatic reports whether fields of this type are display-only and take
// no input, so required and placeholder do not apply.
func (t FieldType) IsStatic() bool {
	return t == FieldLabel || t == FieldButton
}

// AcceptsRange reports whether min/max validation applies.
func (t FieldType) AcceptsRange() bool {
	return t == FieldNumber || t == FieldDate || t == FieldText || t == FieldTextarea
}

// Validation holds optional input constraints.
type Validation struct {
	Min     *float64 `json:"min,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Pattern string   `json:"pattern,omitempty"`
}

func (v *Validation) isEmpty() bool {
	return v == nil || (v.Min == nil && v.Max == nil && v.Pattern == "")
}

// FormField is one input on a registration step.
//
// Attributes depend on Type: Options exists only for select and radio,
// Required and Placeholder only for input types. Normalize enforces this and
// Validate rejects combinations that cannot be normalized away.
type FormField struct {
	ID          string      `json:"id"`
	Type        FieldType   `json:"type"`
	Label       string      `json:"label"`
	Placeholder string      `json:"placeholder,omitempty"`
	Required    bool        `json:"required"`
	Options     []string    `json:"options,omitempty"`
	Validation  *Validation `json:"validation,omitempty"`
}

// NewField builds a field of type t with the palette defaults for that type.
func NewField(t FieldType) (FormField, error) {
	d, ok := fieldDefaults[t]
	if !ok {
		return FormField{}, fmt.Errorf("%w: %q", ErrInvalidFieldType, t)
	}
	f := FormField{
		ID:          uuid.New().String(),
		Type:        t,
		Label:       d.label,
		Placeholder: d.placeholder,
		Options:     slices.Clone(d.options),
	}
	return f, nil
}

type fieldDefault struct {
	label       string
	placeholder string
	options     []string
}

var fieldDefaults = map[FieldType]fieldDefault{
	FieldText:     {label: "Text Field", placeholder: "Enter text"},
	FieldEmail:    {label: "Email Address", placeholder: "Enter email address"},
	FieldNumber:   {label: "Number", placeholder: "Enter a number"},
	FieldDate:     {label: "Date"},
	FieldFile:     {label: "File Upload"},
	FieldSelect:   {label: "Select Option", placeholder: "Choose an option", options: []string{"Option 1", "Option 2", "Option 3"}},
	FieldTextarea: {label: "Text Area", placeholder: "Enter details"},
	FieldCheckbox: {label: "Checkbox"},
	FieldRadio:    {label: "Radio Group", options: []string{"Option 1", "Option 2"}},
	FieldLabel:    {label: "Label Text"},
	FieldButton:   {label: "Button"},
}

// Normalize drops attributes that do not apply to the field's type.
func (f *FormField) Normalize() {
	if !f.Type.HasOptions() {
		f.Options = nil
	}
	if f.Type.IsStatic() {
		f.Required = false
		f.Placeholder = ""
		f.Validation = nil
	}
	if f.Validation.isEmpty() {
		f.Validation = nil
	}
}

// Validate checks the field against its type.
func (f FormField) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("%w: id required", ErrInvalidField)
	}
	if !f.Type.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidFieldType, f.Type)
	}
	if f.Type.HasOptions() && len(f.Options) == 0 {
		return fmt.Errorf("%w: %s field %s needs at least one option", ErrInvalidField, f.Type, f.ID)
	}
	if !f.Type.HasOptions() && len(f.Options) > 0 {
		return fmt.Errorf("%w: %s field %s cannot have options", ErrInvalidField, f.Type, f.ID)
	}
	if v := f.Validation; v != nil {
		if (v.Min != nil || v.Max != nil) && !f.Type.AcceptsRange() {
			return fmt.Errorf("%w: %s field %s cannot have min/max", ErrInvalidField, f.Type, f.ID)
		}
		if v.Min != nil && v.Max != nil && *v.Min > *v.Max {
			return fmt.Errorf("%w: field %s min exceeds max", ErrInvalidField, f.ID)
		}
	}
	return nil
}

// FieldPatch is a partial update of a FormField. Nil members are left as is.
type FieldPatch struct {
	Type        *FieldType  `json:"type,omitempty"`
	Label       *string     `json:"label,omitempty"`
	Placeholder *string     `json:"placeholder,omitempty"`
	Required    *bool       `json:"required,omitempty"`
	Options     *[]string   `json:"options,omitempty"`
	Validation  *Validation `json:"validation,omitempty"`
}

// Apply returns f with the patch applied, normalized and validated.
// Switching to a choice type without options seeds the type's default options.
func (p FieldPatch) Apply(f FormField) (FormField, error) {
	if p.Type != nil {
		f.Type = *p.Type
	}
	if p.Label != nil {
		f.Label = *p.Label
	}
	if p.Placeholder != nil {
		f.Placeholder = *p.Placeholder
	}
	if p.Required != nil {
		f.Required = *p.Required
	}
	if p.Options != nil {
		if len(*p.Options) > 0 && !f.Type.HasOptions() {
			return FormField{}, fmt.Errorf("%w: %s field %s cannot have options", ErrInvalidField, f.Type, f.ID)
		}
		f.Options = slices.Clone(*p.Options)
	}
	if p.Validation != nil {
		v := *p.Validation
		f.Validation = &v
	}
	if p.Type != nil && f.Type.HasOptions() && len(f.Options) == 0 {
		f.Options = slices.Clone(fieldDefaults[f.Type].options)
	}

	f.Normalize()
	if err := f.Validate(); err != nil {
		return FormField{}, err
	}
	return f, nil
}

// FieldList is an ordered list of fields. Step fields and the dialog
// buffer share these operations.
type FieldList []FormField

// Index returns the position of the field with id, or -1.
func (l FieldList) Index(id string) int {
	return slices.IndexFunc(l, func(f FormField) bool { return f.ID == id })
}

// Add appends a new field of type t and returns it.
func (l *FieldList) Add(t FieldType) (FormField, error) {
	f, err := NewField(t)
	if err != nil {
		return FormField{}, err
	}
	*l = append(*l, f)
	return f, nil
}

// Update applies patch to the field with id.
func (l FieldList) Update(id string, patch FieldPatch) (FormField, error) {
	i := l.Index(id)
	if i < 0 {
		return FormField{}, fmt.Errorf("%w: %s", ErrFieldNotFound, id)
	}
	f, err := patch.Apply(l[i])
	if err != nil {
		return FormField{}, err
	}
	l[i] = f
	return f, nil
}

// Delete removes the field with id, keeping the order of the rest.
func (l *FieldList) Delete(id string) error {
	i := l.Index(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrFieldNotFound, id)
	}
	*l = slices.Delete(*l, i, i+1)
	return nil
}

// Move relocates the field at from to index to.
func (l FieldList) Move(from, to int) error {
	return move(l, from, to)
}

// Clone returns a deep copy of the list.
func (l FieldList) Clone() FieldList {
	if l == nil {
		return nil
	}
	out := make(FieldList, len(l))
	for i, f := range l {
		out[i] = f.clone()
	}
	return out
}

func (f FormField) clone() FormField {
	f.Options = slices.Clone(f.Options)
	if f.Validation != nil {
		v := *f.Validation
		if v.Min != nil {
			m := *v.Min
			v.Min = &m
		}
		if v.Max != nil {
			m := *v.Max
			v.Max = &m
		}
		f.Validation = &v
	}
	return f
}

// move performs the splice-remove / splice-insert every reorder uses.
func move[T any](s []T, from, to int) error {
	if from < 0 || from >= len(s) || to < 0 || to >= len(s) {
		return fmt.Errorf("%w: %d -> %d (len %d)", ErrMoveOutOfRange, from, to, len(s))
	}
	if from == to {
		return nil
	}
	item := s[from]
	if from < to {
		copy(s[from:to], s[from+1:to+1])
	} else {
		copy(s[to+1:from+1], s[to:from])
	}
	s[to] = item
	return nil
}
