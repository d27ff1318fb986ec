package formbuilder

import (
	"fmt"
	"strings"
	"time"
)

// Default lifecycle stages for a new project type.
var DefaultStages = []string{"Proposal", "Procurement", "Implementation", "Completed", "Inventory"}

// DefaultRegistrationSteps returns the four-step form injected into project
// types that have none: Project Information, Budget Source, Location and
// Document Upload, twelve fields in total.
func DefaultRegistrationSteps() []RegistrationStep {
	return []RegistrationStep{
		{
			ID:    "step-project-information",
			Name:  "Project Information",
			Order: 1,
			Fields: FieldList{
				{ID: "project-title", Type: FieldText, Label: "Project Title", Placeholder: "Enter project title", Required: true},
				{ID: "project-description", Type: FieldTextarea, Label: "Project Description", Placeholder: "Describe the project", Required: true},
				{ID: "project-classification", Type: FieldSelect, Label: "Project Classification", Placeholder: "Select classification", Required: true,
					Options: []string{"Infrastructure", "Machinery", "Farm-to-Market Road", "RAED Package"}},
			},
		},
		{
			ID:    "step-budget-source",
			Name:  "Budget Source",
			Order: 2,
			Fields: FieldList{
				{ID: "fund-source", Type: FieldSelect, Label: "Fund Source", Placeholder: "Select fund source", Required: true,
					Options: []string{"GAA", "Local Government", "Foreign Assisted", "Others"}},
				{ID: "program", Type: FieldSelect, Label: "Program", Placeholder: "Select program", Required: true,
					Options: []string{"Rice", "Corn", "High Value Crops", "Livestock", "Organic Agriculture"}},
				{ID: "budget-year", Type: FieldNumber, Label: "Budget Year", Placeholder: "e.g. 2026", Required: true},
				{ID: "allocated-amount", Type: FieldNumber, Label: "Allocated Amount (PHP)", Placeholder: "0.00", Required: true,
					Validation: &Validation{Min: float64Ptr(0)}},
				{ID: "implementing-unit", Type: FieldText, Label: "Implementing Unit", Placeholder: "Enter implementing unit"},
				{ID: "budget-remarks", Type: FieldTextarea, Label: "Budget Remarks", Placeholder: "Additional notes"},
			},
		},
		{
			ID:    "step-location",
			Name:  "Location",
			Order: 3,
			Fields: FieldList{
				{ID: "region", Type: FieldText, Label: "Region", Placeholder: "Select region", Required: true},
				{ID: "province", Type: FieldText, Label: "Province", Placeholder: "Select province", Required: true},
			},
		},
		{
			ID:    "step-document-upload",
			Name:  "Document Upload",
			Order: 4,
			Fields: FieldList{
				{ID: "project-proposal", Type: FieldFile, Label: "Project Proposal", Required: true},
			},
		},
	}
}

// NewDefaultProjectType synthesizes a project type for id with the default
// stages and registration form.
func NewDefaultProjectType(id string, now time.Time) *ProjectType {
	return &ProjectType{
		ID:                id,
		Name:              defaultTypeName(id),
		Stages:            append([]string(nil), DefaultStages...),
		RegistrationSteps: DefaultRegistrationSteps(),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// defaultTypeName turns an id like "farm-to-market" into "Farm To Market".
func defaultTypeName(id string) string {
	words := strings.FieldsFunc(id, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	if len(words) == 0 {
		return fmt.Sprintf("Project Type %s", id)
	}
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func float64Ptr(v float64) *float64 { return &v }
