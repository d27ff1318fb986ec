package lifecycle

import "fmt"

// Stepper is the view state of the stage tabs. Current is the persisted
// stage; Active is the tab being viewed. Selecting a tab never changes
// Current.
type Stepper struct {
	Track   Track `json:"track"`
	Current int   `json:"current"`
	Active  int   `json:"active"`
}

// Panel describes one stage tab.
type Panel struct {
	Index      int   `json:"index"`
	Stage      Stage `json:"stage"`
	Accessible bool  `json:"accessible"`
	Completed  bool  `json:"completed"`
	Active     bool  `json:"active"`
}

// NewStepper opens the stepper on the project's current stage. A status
// that is not on the track is treated as the first stage.
func NewStepper(track Track, status Stage) (*Stepper, error) {
	if !track.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTrack, track)
	}
	current := max(StageIndex(track, status), 0)
	return &Stepper{Track: track, Current: current, Active: current}, nil
}

// Accessible reports whether tab i may be opened.
func (s *Stepper) Accessible(i int) bool {
	return i >= 0 && i <= s.Current
}

// Select opens tab i.
func (s *Stepper) Select(i int) error {
	if !s.Accessible(i) {
		return fmt.Errorf("%w: %d (current %d)", ErrStageLocked, i, s.Current)
	}
	s.Active = i
	return nil
}

// ActiveStage returns the stage of the open tab.
func (s *Stepper) ActiveStage() Stage {
	return trackStages[s.Track][s.Active]
}

// Panels lists every tab with its display flags.
func (s *Stepper) Panels() []Panel {
	stages := trackStages[s.Track]
	out := make([]Panel, len(stages))
	for i, st := range stages {
		out[i] = Panel{
			Index:      i,
			Stage:      st,
			Accessible: s.Accessible(i),
			Completed:  i < s.Current,
			Active:     i == s.Active,
		}
	}
	return out
}

// Sync moves Current to status after an advance and opens that tab.
func (s *Stepper) Sync(status Stage) {
	if i := StageIndex(s.Track, status); i >= 0 {
		s.Current = i
		s.Active = i
	}
}
