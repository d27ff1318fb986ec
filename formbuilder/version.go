package formbuilder

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Storage key prefixes.
const (
	ProjectTypesKey            = "projectTypes"
	registrationVersionsPrefix = "registrationFormVersions_"
	stepVersionsPrefix         = "stepFormVersions_"
)

// Scope identifies one version history: the whole registration form of a
// project type, or a single step of it.
type Scope struct {
	TypeID string `json:"typeId"`
	StepID string `json:"stepId,omitempty"`
}

// RegistrationScope is the version history of a project type's whole form.
func RegistrationScope(typeID string) Scope {
	return Scope{TypeID: typeID}
}

// StepScope is the version history of a single step.
func StepScope(typeID, stepID string) Scope {
	return Scope{TypeID: typeID, StepID: stepID}
}

// IsStep reports whether the scope is a single step.
func (s Scope) IsStep() bool {
	return s.StepID != ""
}

// Kind returns "step" or "registration".
func (s Scope) Kind() string {
	if s.IsStep() {
		return "step"
	}
	return "registration"
}

// Key returns the storage key of the scope's history.
func (s Scope) Key() string {
	if s.IsStep() {
		return stepVersionsPrefix + s.TypeID + "_" + s.StepID
	}
	return registrationVersionsPrefix + s.TypeID
}

// String implements fmt.Stringer.
func (s Scope) String() string {
	return s.Key()
}

// FormVersion is a published snapshot of a form.
type FormVersion struct {
	ID          string      `json:"id"`
	Version     int         `json:"version"`
	FormFields  []FormField `json:"formFields"`
	PublishedAt time.Time   `json:"publishedAt"`
	IsActive    bool        `json:"isActive"`
	StepID      string      `json:"stepId,omitempty"`
	StepName    string      `json:"stepName,omitempty"`

	// Steps is the step layout at publish time. Only registration-scope
	// versions carry it; step-scope versions have FormFields alone.
	Steps []RegistrationStep `json:"registrationSteps,omitempty"`
}

// VersionHistory is the append-only version list of one scope.
type VersionHistory []FormVersion

// Latest returns the highest version number, or 0 for an empty history.
func (h VersionHistory) Latest() int {
	latest := 0
	for _, v := range h {
		latest = max(latest, v.Version)
	}
	return latest
}

// Active returns the active version, if any.
func (h VersionHistory) Active() (FormVersion, bool) {
	for _, v := range h {
		if v.IsActive {
			return v, true
		}
	}
	return FormVersion{}, false
}

// Find returns the entry with the given version number.
func (h VersionHistory) Find(version int) (FormVersion, bool) {
	for _, v := range h {
		if v.Version == version {
			return v, true
		}
	}
	return FormVersion{}, false
}

// Append deactivates every existing version and appends v as the active
// version numbered Latest()+1. It returns the new history and the stored v.
func (h VersionHistory) Append(v FormVersion) (VersionHistory, FormVersion) {
	out := make(VersionHistory, len(h), len(h)+1)
	copy(out, h)
	for i := range out {
		out[i].IsActive = false
	}
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	v.Version = h.Latest() + 1
	v.IsActive = true
	out = append(out, v)
	return out, v
}

// Activate marks version as the only active entry.
func (h VersionHistory) Activate(version int) (VersionHistory, FormVersion, error) {
	i := slices.IndexFunc(h, func(v FormVersion) bool { return v.Version == version })
	if i < 0 {
		return nil, FormVersion{}, fmt.Errorf("%w: %d", ErrVersionNotFound, version)
	}
	out := make(VersionHistory, len(h))
	copy(out, h)
	for j := range out {
		out[j].IsActive = j == i
	}
	return out, out[i], nil
}

// Snapshot captures the current form of pt for scope.
func Snapshot(pt *ProjectType, scope Scope, now time.Time) (FormVersion, error) {
	if !scope.IsStep() {
		return FormVersion{
			FormFields:  FieldList(pt.FormFields()).Clone(),
			PublishedAt: now,
			Steps:       cloneSteps(pt.RegistrationSteps),
		}, nil
	}
	step, err := pt.Step(scope.StepID)
	if err != nil {
		return FormVersion{}, err
	}
	return FormVersion{
		FormFields:  step.Fields.Clone(),
		PublishedAt: now,
		StepID:      step.ID,
		StepName:    step.Name,
	}, nil
}

// ApplyVersion copies a version's form back into pt. Step-scope versions
// replace the fields of their step; registration-scope versions replace the
// whole step layout.
func (pt *ProjectType) ApplyVersion(v FormVersion) error {
	if v.StepID != "" {
		fields := FieldList(v.FormFields).Clone()
		_, err := pt.UpdateStep(v.StepID, StepPatch{Fields: &fields})
		return err
	}
	if len(v.Steps) == 0 {
		return fmt.Errorf("%w: version %d", ErrNoStepSnapshot, v.Version)
	}
	pt.RegistrationSteps = cloneSteps(v.Steps)
	pt.Normalize()
	return nil
}
