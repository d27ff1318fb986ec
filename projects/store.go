package projects

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/abemis/portal/events"
	"github.com/abemis/portal/lifecycle"
	"github.com/abemis/portal/metrics"
	"github.com/abemis/portal/storage"
)

const (
	projectKeyPrefix = "projects_"
	sequenceKey      = "projectSequence"
	projectSchema    = "abemis.project"
	projectVersion   = 1
)

// Store persists projects in a key-value store, one key per project.
type Store struct {
	kv        storage.KV
	coder     *TrackingCoder
	machine   *lifecycle.Machine
	logger    *slog.Logger
	publisher events.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger.
func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// WithStorePublisher sets the event publisher.
func WithStorePublisher(p events.Publisher) StoreOption {
	return func(s *Store) { s.publisher = p }
}

// WithStoreMetrics sets the metrics sink.
func WithStoreMetrics(m *metrics.Metrics) StoreOption {
	return func(s *Store) { s.metrics = m }
}

// WithStoreClock overrides time.Now.
func WithStoreClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store.
func NewStore(kv storage.KV, coder *TrackingCoder, opts ...StoreOption) *Store {
	s := &Store{
		kv:        kv,
		coder:     coder,
		logger:    slog.Default(),
		publisher: events.Nop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.machine = lifecycle.NewMachineWithClock(s.now)
	return s
}

func projectKey(id string) string {
	return projectKeyPrefix + id
}

// Create assigns a tracking code and stores p. It has the CreateFunc
// signature so it can be passed straight to Wizard.Submit.
func (s *Store) Create(ctx context.Context, p *Project) error {
	seq, err := s.nextSequence(ctx)
	if err != nil {
		return err
	}
	code, err := s.coder.Encode(p.Kind, p.CreatedAt.Year(), seq)
	if err != nil {
		return err
	}
	p.TrackingCode = code

	data, err := storage.Encode(projectSchema, projectVersion, p)
	if err != nil {
		return err
	}
	if _, err := s.kv.Update(ctx, projectKey(p.ID), data, 0); err != nil {
		return fmt.Errorf("store project %s: %w", p.ID, err)
	}

	s.metrics.ProjectCreated(p.Kind.String())
	s.logger.Info("Project registered", "id", p.ID, "tracking_code", code, "kind", p.Kind)
	s.publish(ctx, events.SubjectProjectCreated, events.ProjectCreatedEvent{
		ProjectID:    p.ID,
		TrackingCode: code,
		Kind:         p.Kind.String(),
	})
	return nil
}

// Get loads a project by id.
func (s *Store) Get(ctx context.Context, id string) (*Project, error) {
	var p Project
	if _, err := storage.GetJSON(ctx, s.kv, projectKey(id), projectSchema, projectVersion, &p); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		return nil, fmt.Errorf("load project %s: %w", id, err)
	}
	return &p, nil
}

// List returns every stored project, newest first. Records that fail to
// decode are skipped with a warning.
func (s *Store) List(ctx context.Context) ([]Project, error) {
	keys, err := s.kv.Keys(ctx, projectKeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	out := make([]Project, 0, len(keys))
	for _, key := range keys {
		var p Project
		if _, err := storage.GetJSON(ctx, s.kv, key, projectSchema, projectVersion, &p); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			s.logger.Warn("Skipping unreadable project", "key", key, "error", err)
			continue
		}
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Project) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

// FindByTrackingCode returns the stored project with code.
func (s *Store) FindByTrackingCode(ctx context.Context, code string) (*Project, error) {
	if _, _, _, err := s.coder.Decode(code); err != nil {
		return nil, err
	}
	code = NormalizeTrackingCode(code)
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if list[i].TrackingCode == code {
			return &list[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, code)
}

// Modify applies fn to the stored project under compare-and-set and
// returns the saved result.
func (s *Store) Modify(ctx context.Context, id string, fn func(p *Project) error) (*Project, error) {
	var saved Project
	err := storage.Transact(ctx, s.kv, projectKey(id), func(current []byte) ([]byte, error) {
		if current == nil {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		var p Project
		if _, err := storage.Decode(current, projectSchema, projectVersion, &p); err != nil {
			return nil, err
		}
		if err := fn(&p); err != nil {
			return nil, err
		}
		p.UpdatedAt = s.now().UTC()
		saved = p
		return storage.Encode(projectSchema, projectVersion, &p)
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// Advance moves a project to its next stage.
func (s *Store) Advance(ctx context.Context, id string) (*Project, lifecycle.Transition, error) {
	var tr lifecycle.Transition
	p, err := s.Modify(ctx, id, func(p *Project) error {
		var err error
		tr, err = s.machine.Advance(&p.Lifecycle)
		return err
	})
	if err != nil {
		return nil, lifecycle.Transition{}, err
	}
	s.logger.Info("Project advanced", "id", id, "from", tr.From, "to", tr.To)
	s.publish(ctx, events.SubjectProjectAdvanced, events.ProjectAdvancedEvent{
		ProjectID: id,
		From:      tr.From.String(),
		To:        tr.To.String(),
	})
	return p, tr, nil
}

// nextSequence increments the shared project counter.
func (s *Store) nextSequence(ctx context.Context) (uint64, error) {
	var next uint64
	err := storage.Transact(ctx, s.kv, sequenceKey, func(current []byte) ([]byte, error) {
		next = 1
		if len(current) == 8 {
			next = binary.BigEndian.Uint64(current) + 1
		}
		return binary.BigEndian.AppendUint64(nil, next), nil
	})
	if err != nil {
		return 0, fmt.Errorf("next project sequence: %w", err)
	}
	return next, nil
}

func (s *Store) publish(ctx context.Context, subject string, payload any) {
	if err := s.publisher.Publish(ctx, subject, payload); err != nil {
		s.logger.Warn("Failed to publish event", "subject", subject, "error", err)
	}
}

// matches reports whether p is found by a landing-page search for q.
func matches(p *Project, q string) bool {
	if NormalizeTrackingCode(q) == p.TrackingCode {
		return true
	}
	return strings.Contains(strings.ToLower(p.Details.Title), strings.ToLower(q))
}
