// Package events defines the domain events the portal publishes and the
// NATS subjects they travel on.
//
// Subjects follow "abemis.events.<domain>.<action>" so consumers can
// subscribe per event type or to the whole tree with "abemis.events.>".
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectAll matches every domain event.
const SubjectAll = "abemis.events.>"

// Form builder subjects.
const (
	SubjectFormSaved      = "abemis.events.formbuilder.saved"
	SubjectFormPublished  = "abemis.events.formbuilder.published"
	SubjectFormRolledBack = "abemis.events.formbuilder.rolledback"
)

// Project subjects.
const (
	SubjectProjectCreated  = "abemis.events.project.created"
	SubjectProjectAdvanced = "abemis.events.project.advanced"
	SubjectProjectFlagged  = "abemis.events.project.flagged"
)

// FormSavedEvent is published after a project type's steps are persisted.
type FormSavedEvent struct {
	TypeID     string `json:"type_id"`
	StepCount  int    `json:"step_count"`
	FieldCount int    `json:"field_count"`
}

// FormPublishedEvent is published when a new form version becomes active.
type FormPublishedEvent struct {
	Scope   string `json:"scope"`
	TypeID  string `json:"type_id"`
	StepID  string `json:"step_id,omitempty"`
	Version int    `json:"version"`
}

// FormRolledBackEvent is published when an older version is re-activated.
type FormRolledBackEvent struct {
	Scope   string `json:"scope"`
	TypeID  string `json:"type_id"`
	StepID  string `json:"step_id,omitempty"`
	Version int    `json:"version"`
}

// ProjectCreatedEvent is published when a project is registered.
type ProjectCreatedEvent struct {
	ProjectID    string `json:"project_id"`
	TrackingCode string `json:"tracking_code"`
	Kind         string `json:"kind"`
}

// ProjectAdvancedEvent is published when a project moves to its next stage.
type ProjectAdvancedEvent struct {
	ProjectID string `json:"project_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// ProjectFlaggedEvent is published when the monitor first sees a project
// running late. Reason is "overdue" or "slippage".
type ProjectFlaggedEvent struct {
	ProjectID    string    `json:"project_id"`
	TrackingCode string    `json:"tracking_code"`
	Reason       string    `json:"reason"`
	Target       time.Time `json:"target"`
	Progress     float64   `json:"progress"`
}

// Message is the wire envelope of every event.
type Message struct {
	Subject   string          `json:"subject"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// Publisher emits domain events.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, any) error { return nil }

// NATSPublisher publishes events as core NATS messages.
type NATSPublisher struct {
	conn *nats.Conn
	now  func() time.Time
}

// NewNATSPublisher creates a publisher on conn.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn, now: time.Now}
}

// Publish implements Publisher.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Marshal(subject, p.now(), payload)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Marshal wraps payload in a Message.
func Marshal(subject string, ts time.Time, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", subject, err)
	}
	return json.Marshal(Message{Subject: subject, Timestamp: ts.UTC(), Payload: raw})
}

// ParseMessage decodes a Message and its payload into T.
func ParseMessage[T any](data []byte) (Message, T, error) {
	var (
		msg Message
		out T
	)
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, out, fmt.Errorf("unmarshal event: %w", err)
	}
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		return msg, out, fmt.Errorf("unmarshal %s payload: %w", msg.Subject, err)
	}
	return msg, out, nil
}

// Recorder keeps published events in memory. Tests use it to assert on
// what a component emitted.
type Recorder struct {
	mu     sync.Mutex
	Events []Message
}

// Publish implements Publisher.
func (r *Recorder) Publish(_ context.Context, subject string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Message{Subject: subject, Timestamp: time.Now().UTC(), Payload: raw})
	return nil
}

// Subjects returns the subjects recorded so far, in order.
func (r *Recorder) Subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Subject
	}
	return out
}
