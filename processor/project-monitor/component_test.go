package projectmonitor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/abemis/portal/events"
	"github.com/abemis/portal/lifecycle"
	"github.com/abemis/portal/metrics"
	"github.com/abemis/portal/projects"
	"github.com/abemis/portal/storage"
	"github.com/c360studio/semstreams/component"
)

var monitorNow = time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)

func day(offset int) time.Time {
	return monitorNow.AddDate(0, 0, offset)
}

type fakeRegistry struct {
	configs []component.RegistrationConfig
}

func (r *fakeRegistry) RegisterWithConfig(cfg component.RegistrationConfig) error {
	r.configs = append(r.configs, cfg)
	return nil
}

func newStore(t *testing.T) *projects.Store {
	t.Helper()
	coder, err := projects.NewTrackingCoder()
	require.NoError(t, err)
	return projects.NewStore(storage.NewMemoryStore(), coder)
}

// addProject stores a standard-track project with the given target date.
func addProject(t *testing.T, s *projects.Store, id string, target time.Time, edit func(*lifecycle.State)) {
	t.Helper()
	st, err := lifecycle.NewState(lifecycle.TrackStandard, target)
	require.NoError(t, err)
	if edit != nil {
		edit(st)
	}
	p := &projects.Project{
		ID:        id,
		Kind:      projects.KindInfra,
		Details:   projects.Draft{Title: "Project " + id},
		Lifecycle: *st,
		CreatedAt: day(-90),
		UpdatedAt: day(-90),
	}
	require.NoError(t, s.Create(context.Background(), p))
}

func newMonitor(t *testing.T, s Lister, rec *events.Recorder, m *metrics.Metrics) *Component {
	t.Helper()
	c, err := New(DefaultConfig(), s, slog.Default(),
		WithPublisher(rec),
		WithMetrics(m),
		WithClock(func() time.Time { return monitorNow }),
	)
	require.NoError(t, err)
	return c
}

func TestRegister(t *testing.T) {
	require.Error(t, Register(nil))
	reg := &fakeRegistry{}
	require.NoError(t, Register(reg))
	require.Len(t, reg.configs, 1)
	assert.Equal(t, "project-monitor", reg.configs[0].Name)
}

func TestNewComponent_Config(t *testing.T) {
	tests := []struct {
		name      string
		rawConfig json.RawMessage
		wantErr   bool
	}{
		{name: "defaults", rawConfig: nil},
		{name: "custom interval", rawConfig: json.RawMessage(`{"check_interval":"15m"}`)},
		{name: "invalid JSON", rawConfig: json.RawMessage(`{invalid json}`), wantErr: true},
		{name: "negative interval", rawConfig: json.RawMessage(`{"check_interval":"-1s"}`), wantErr: true},
		{name: "unparsable interval", rawConfig: json.RawMessage(`{"check_interval":"daily"}`), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewComponent(tt.rawConfig, component.Dependencies{Logger: slog.Default()})
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewComponent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_RequiresStore(t *testing.T) {
	_, err := New(DefaultConfig(), nil, nil)
	require.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		target time.Time
		edit   func(*testing.T, *lifecycle.State)
		reason string
		late   bool
	}{
		{name: "future target", target: day(10)},
		{name: "no target", target: time.Time{}},
		{name: "due today", target: monitorNow},
		{name: "past target", target: day(-1), reason: ReasonOverdue, late: true},
		{
			name:   "past target but complete",
			target: day(-1),
			edit: func(t *testing.T, s *lifecycle.State) {
				_, err := s.AddAccomplishment(day(-5), 100, "done")
				require.NoError(t, err)
			},
		},
		{
			name:   "report after target",
			target: day(10),
			edit: func(t *testing.T, s *lifecycle.State) {
				_, err := s.AddAccomplishment(day(12), 40, "late report")
				require.NoError(t, err)
			},
			reason: ReasonSlippage,
			late:   true,
		},
		{
			name:   "terminal stage",
			target: day(-30),
			edit: func(t *testing.T, s *lifecycle.State) {
				stages := s.Track.Stages()
				s.Status = stages[len(stages)-1]
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, err := lifecycle.NewState(lifecycle.TrackStandard, tt.target)
			require.NoError(t, err)
			if tt.edit != nil {
				tt.edit(t, st)
			}
			reason, late := evaluate(&projects.Project{Lifecycle: *st}, monitorNow)
			assert.Equal(t, tt.late, late)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestCheck_RaisesOncePerReason(t *testing.T) {
	s := newStore(t)
	addProject(t, s, "a-overdue", day(-3), nil)
	addProject(t, s, "b-on-time", day(30), nil)
	addProject(t, s, "c-slipping", day(5), func(st *lifecycle.State) {
		_, err := st.AddAccomplishment(day(8), 20, "")
		require.NoError(t, err)
	})

	rec := &events.Recorder{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	c := newMonitor(t, s, rec, m)
	ctx := context.Background()

	flags, err := c.Check(ctx)
	require.NoError(t, err)
	require.Len(t, flags, 2)
	assert.Equal(t, "a-overdue", flags[0].ProjectID, "sorted by target date")
	assert.Equal(t, ReasonOverdue, flags[0].Reason)
	assert.Equal(t, "Project a-overdue", flags[0].Title)
	assert.NotEmpty(t, flags[0].TrackingCode)
	assert.Equal(t, "c-slipping", flags[1].ProjectID)
	assert.Equal(t, ReasonSlippage, flags[1].Reason)
	assert.InDelta(t, 20, flags[1].Progress, 0.001)

	assert.Equal(t, []string{events.SubjectProjectFlagged, events.SubjectProjectFlagged}, rec.Subjects())

	// A second check with nothing changed raises nothing new.
	_, err = c.Check(ctx)
	require.NoError(t, err)
	assert.Len(t, rec.Subjects(), 2)
	assert.Equal(t, 1.0, flaggedCount(t, reg, ReasonOverdue))
	assert.Equal(t, 1.0, flaggedCount(t, reg, ReasonSlippage))

	// Completing the overdue project clears it.
	_, err = s.Modify(ctx, "a-overdue", func(p *projects.Project) error {
		_, err := p.Lifecycle.AddAccomplishment(day(-4), 100, "")
		return err
	})
	require.NoError(t, err)
	flags, err = c.Check(ctx)
	require.NoError(t, err)
	require.Len(t, flags, 1)
	assert.Equal(t, "c-slipping", flags[0].ProjectID)
	assert.Equal(t, flags, c.Flags())
}

// flaggedCount reads the flagged counter for reason the way a scrape sees it.
func flaggedCount(t *testing.T, reg *prometheus.Registry, reason string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "abemis_projects_flagged_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "reason" && l.GetValue() == reason {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

type failingLister struct{}

func (failingLister) List(context.Context) ([]projects.Project, error) {
	return nil, errors.New("store offline")
}

func TestCheck_StoreError(t *testing.T) {
	c := newMonitor(t, failingLister{}, &events.Recorder{}, nil)
	_, err := c.Check(context.Background())
	require.Error(t, err)

	mux := http.NewServeMux()
	c.RegisterHTTPHandlers("/api/monitor", mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/monitor/check", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHTTP_ListAndCheck(t *testing.T) {
	s := newStore(t)
	addProject(t, s, "late", day(-2), nil)
	c := newMonitor(t, s, &events.Recorder{}, nil)

	mux := http.NewServeMux()
	c.RegisterHTTPHandlers("/api/monitor/", mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/monitor/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String(), "nothing flagged before the first check")

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/monitor/check", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var flags []Flag
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flags))
	require.Len(t, flags, 1)
	assert.Equal(t, "late", flags[0].ProjectID)
	assert.Equal(t, ReasonOverdue, flags[0].Reason)
	assert.Equal(t, string(lifecycle.StageProposal), flags[0].Status)
}

func TestLifecycle_ChecksOnStart(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := newStore(t)
	addProject(t, s, "late", day(-2), nil)
	rec := &events.Recorder{}
	c := newMonitor(t, s, rec, nil)

	require.NoError(t, c.Initialize())
	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Health().Healthy)
	require.Error(t, c.Start(context.Background()), "double start")

	require.Eventually(t, func() bool { return len(c.Flags()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, c.Stop(time.Second))
	assert.False(t, c.Health().Healthy)
	require.NoError(t, c.Stop(time.Second), "stopping twice is a no-op")

	assert.Equal(t, []string{events.SubjectProjectFlagged}, rec.Subjects())
	assert.False(t, c.DataFlow().LastActivity.IsZero())
}
