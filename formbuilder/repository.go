package formbuilder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/abemis/portal/events"
	"github.com/abemis/portal/metrics"
	"github.com/abemis/portal/storage"
)

// Stored schema names and versions.
const (
	projectTypesSchema  = "abemis.project_types"
	formVersionsSchema  = "abemis.form_versions"
	projectTypesVersion = 1
	formVersionsVersion = 1
)

// Repository loads and persists project types and their version histories.
//
// All project types share one list under ProjectTypesKey; every write is a
// compare-and-set read-modify-write of that list, so two editors saving
// different project types never overwrite each other. Two editors saving
// the same project type still resolve as last writer wins.
type Repository struct {
	kv        storage.KV
	logger    *slog.Logger
	publisher events.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// WithPublisher sets the domain event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(r *Repository) { r.publisher = p }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Repository) { r.metrics = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// NewRepository creates a Repository over kv.
func NewRepository(kv storage.KV, opts ...Option) *Repository {
	r := &Repository{
		kv:        kv,
		logger:    slog.Default(),
		publisher: events.Nop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LoadProjectType returns the project type with id. A missing project type
// is synthesized with the default form, and a stored one without steps gets
// the default steps injected; either way the result is written back.
func (r *Repository) LoadProjectType(ctx context.Context, id string) (pt *ProjectType, err error) {
	defer func() { r.metrics.RepositoryOp("load", err) }()

	if id == "" {
		return nil, ErrIDRequired
	}

	list, err := r.readProjectTypes(ctx)
	if err != nil {
		return nil, err
	}
	if i := indexByID(list, id); i >= 0 && len(list[i].RegistrationSteps) > 0 {
		found := list[i].Clone()
		found.SortByOrder()
		found.Normalize()
		return found, nil
	}

	err = storage.Transact(ctx, r.kv, ProjectTypesKey, func(current []byte) ([]byte, error) {
		list := r.decodeProjectTypes(current)
		now := r.now()
		i := indexByID(list, id)
		switch {
		case i < 0:
			r.logger.Info("Creating default project type", "type_id", id)
			list = append(list, *NewDefaultProjectType(id, now))
			i = len(list) - 1
		case len(list[i].RegistrationSteps) == 0:
			r.logger.Info("Injecting default registration steps", "type_id", id)
			list[i].RegistrationSteps = DefaultRegistrationSteps()
			list[i].UpdatedAt = now
		}
		pt = list[i].Clone()
		return storage.Encode(projectTypesSchema, projectTypesVersion, list)
	})
	if err != nil {
		return nil, fmt.Errorf("initialize project type %s: %w", id, err)
	}
	pt.Normalize()
	return pt, nil
}

// SaveProjectType replaces the stored project type with the same id.
func (r *Repository) SaveProjectType(ctx context.Context, pt *ProjectType) (err error) {
	defer func() { r.metrics.RepositoryOp("save", err) }()

	if pt.ID == "" {
		return ErrIDRequired
	}
	pt.Normalize()
	for _, s := range pt.RegistrationSteps {
		for _, f := range s.Fields {
			if err := f.Validate(); err != nil {
				return fmt.Errorf("step %q: %w", s.Name, err)
			}
		}
	}
	now := r.now()
	pt.UpdatedAt = now
	if pt.CreatedAt.IsZero() {
		pt.CreatedAt = now
	}

	saved := pt.Clone()
	err = storage.Transact(ctx, r.kv, ProjectTypesKey, func(current []byte) ([]byte, error) {
		list := r.decodeProjectTypes(current)
		if i := indexByID(list, saved.ID); i >= 0 {
			list[i] = *saved
		} else {
			list = append(list, *saved)
		}
		return storage.Encode(projectTypesSchema, projectTypesVersion, list)
	})
	if err != nil {
		return fmt.Errorf("save project type %s: %w", pt.ID, err)
	}

	r.publish(ctx, events.SubjectFormSaved, events.FormSavedEvent{
		TypeID:     pt.ID,
		StepCount:  len(pt.RegistrationSteps),
		FieldCount: len(pt.FormFields()),
	})
	return nil
}

// ListProjectTypes returns every stored project type.
func (r *Repository) ListProjectTypes(ctx context.Context) ([]ProjectType, error) {
	list, err := r.readProjectTypes(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].SortByOrder()
	}
	return list, nil
}

// Versions returns the version history of scope, oldest first.
func (r *Repository) Versions(ctx context.Context, scope Scope) (VersionHistory, error) {
	entry, err := r.kv.Get(ctx, scope.Key())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return VersionHistory{}, nil
		}
		return nil, fmt.Errorf("read versions %s: %w", scope, err)
	}
	return r.decodeVersions(scope, entry.Value), nil
}

// ActiveVersion returns the active version of scope. The bool is false when
// nothing has been published.
func (r *Repository) ActiveVersion(ctx context.Context, scope Scope) (FormVersion, bool, error) {
	history, err := r.Versions(ctx, scope)
	if err != nil {
		return FormVersion{}, false, err
	}
	v, ok := history.Active()
	return v, ok, nil
}

// Publish snapshots the current form of pt for scope and appends it as the
// new active version.
func (r *Repository) Publish(ctx context.Context, pt *ProjectType, scope Scope) (published FormVersion, err error) {
	defer func() { r.metrics.RepositoryOp("publish", err) }()

	if scope.TypeID != pt.ID {
		return FormVersion{}, fmt.Errorf("scope %s does not belong to project type %s", scope, pt.ID)
	}
	snapshot, err := Snapshot(pt, scope, r.now())
	if err != nil {
		return FormVersion{}, err
	}

	err = storage.Transact(ctx, r.kv, scope.Key(), func(current []byte) ([]byte, error) {
		history := r.decodeVersions(scope, current)
		history, published = history.Append(snapshot)
		return storage.Encode(formVersionsSchema, formVersionsVersion, history)
	})
	if err != nil {
		return FormVersion{}, fmt.Errorf("publish %s: %w", scope, err)
	}

	r.metrics.VersionPublished(scope.Kind())
	r.logger.Info("Published form version", "scope", scope.Key(), "version", published.Version)
	r.publish(ctx, events.SubjectFormPublished, events.FormPublishedEvent{
		Scope:   scope.Key(),
		TypeID:  scope.TypeID,
		StepID:  scope.StepID,
		Version: published.Version,
	})
	return published, nil
}

// Rollback marks version as the active entry of scope and returns it.
//
// The live form is not touched: callers copy the returned fields into the
// project type (ProjectType.ApplyVersion) or dialog buffer (FieldBuffer.Load)
// and persist with an explicit save.
func (r *Repository) Rollback(ctx context.Context, scope Scope, version int) (activated FormVersion, err error) {
	defer func() { r.metrics.RepositoryOp("rollback", err) }()

	err = storage.Transact(ctx, r.kv, scope.Key(), func(current []byte) ([]byte, error) {
		history := r.decodeVersions(scope, current)
		history, activated, err = history.Activate(version)
		if err != nil {
			return nil, err
		}
		return storage.Encode(formVersionsSchema, formVersionsVersion, history)
	})
	if err != nil {
		return FormVersion{}, fmt.Errorf("rollback %s to v%d: %w", scope, version, err)
	}

	r.publish(ctx, events.SubjectFormRolledBack, events.FormRolledBackEvent{
		Scope:   scope.Key(),
		TypeID:  scope.TypeID,
		StepID:  scope.StepID,
		Version: version,
	})
	return activated, nil
}

func (r *Repository) readProjectTypes(ctx context.Context) ([]ProjectType, error) {
	entry, err := r.kv.Get(ctx, ProjectTypesKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("read project types: %w", err)
	}
	return r.decodeProjectTypes(entry.Value), nil
}

// decodeProjectTypes falls back to an empty list when the stored value
// cannot be parsed.
func (r *Repository) decodeProjectTypes(raw []byte) []ProjectType {
	if raw == nil {
		return nil
	}
	var list []ProjectType
	if _, err := storage.Decode(raw, projectTypesSchema, projectTypesVersion, &list); err != nil {
		r.logger.Warn("Failed to parse stored project types, starting from an empty list", "error", err)
		return nil
	}
	return list
}

func (r *Repository) decodeVersions(scope Scope, raw []byte) VersionHistory {
	if raw == nil {
		return VersionHistory{}
	}
	var history VersionHistory
	if _, err := storage.Decode(raw, formVersionsSchema, formVersionsVersion, &history); err != nil {
		r.logger.Warn("Failed to parse stored form versions, starting from an empty history",
			"scope", scope.Key(), "error", err)
		return VersionHistory{}
	}
	return history
}

func (r *Repository) publish(ctx context.Context, subject string, payload any) {
	if err := r.publisher.Publish(ctx, subject, payload); err != nil {
		r.logger.Warn("Failed to publish event", "subject", subject, "error", err)
	}
}

func indexByID(list []ProjectType, id string) int {
	return slices.IndexFunc(list, func(pt ProjectType) bool { return pt.ID == id })
}
