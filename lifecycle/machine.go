package lifecycle

import (
	"fmt"
	"time"
)

// State is the lifecycle part of a project record.
type State struct {
	Track            Track                `json:"track"`
	Status           Stage                `json:"status"`
	TargetCompletion time.Time            `json:"targetCompletionDate,omitzero"`
	Accomplishments  []Accomplishment     `json:"accomplishments"`
	Documents        map[Stage][]Document `json:"documents"`
	History          []Transition         `json:"history,omitempty"`
}

// Transition records one advance.
type Transition struct {
	From Stage     `json:"from"`
	To   Stage     `json:"to"`
	At   time.Time `json:"at"`
}

// NewState starts a project on the first stage of track with that stage's
// document checklist.
func NewState(track Track, target time.Time) (*State, error) {
	if !track.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTrack, track)
	}
	first := trackStages[track][0]
	return &State{
		Track:            track,
		Status:           first,
		TargetCompletion: target,
		Accomplishments:  []Accomplishment{},
		Documents:        map[Stage][]Document{first: DefaultDocuments(first)},
	}, nil
}

// Machine applies stage transitions.
type Machine struct {
	now func() time.Time
}

// NewMachine creates a Machine using time.Now.
func NewMachine() *Machine {
	return &Machine{now: time.Now}
}

// NewMachineWithClock creates a Machine with a fixed clock.
func NewMachineWithClock(now func() time.Time) *Machine {
	return &Machine{now: now}
}

// CanAdvance returns nil when s may move to its next stage, or the guard
// that blocks it.
func (m *Machine) CanAdvance(s *State) error {
	next, ok := s.Status.Next(s.Track)
	if !ok {
		return fmt.Errorf("%w: %s is the last stage of the %s track", ErrInvalidTransition, s.Status, s.Track)
	}
	if s.Status == StageImplementation && next == StageCompleted {
		if p := s.Progress(); !progressComplete(p) {
			return fmt.Errorf("%w: %.2f%%", ErrIncompleteProgress, p)
		}
		if err := s.Slippage(); err != nil {
			return err
		}
	}
	return nil
}

// Advance moves s to its next stage and seeds that stage's documents.
func (m *Machine) Advance(s *State) (Transition, error) {
	if err := m.CanAdvance(s); err != nil {
		return Transition{}, err
	}
	next, _ := s.Status.Next(s.Track)
	t := Transition{From: s.Status, To: next, At: m.now()}
	s.Status = next
	s.History = append(s.History, t)
	if s.Documents == nil {
		s.Documents = make(map[Stage][]Document)
	}
	if _, ok := s.Documents[next]; !ok {
		s.Documents[next] = DefaultDocuments(next)
	}
	return t, nil
}

// progressEpsilon absorbs float error in summed percentages.
const progressEpsilon = 1e-9

func progressComplete(p float64) bool {
	return p >= 100-progressEpsilon
}
