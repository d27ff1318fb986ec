package lifecycle

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Accomplishment is one dated progress report.
type Accomplishment struct {
	ID          string    `json:"id"`
	Date        time.Time `json:"date"`
	Percent     float64   `json:"percent"`
	Description string    `json:"description,omitempty"`
}

// SlippageError names the accomplishments dated after the target date.
type SlippageError struct {
	Target time.Time
	Late   []Accomplishment
}

func (e *SlippageError) Error() string {
	return fmt.Sprintf("%s: %d report(s) after %s", ErrSlippage, len(e.Late), e.Target.Format(time.DateOnly))
}

// Unwrap lets errors.Is match ErrSlippage.
func (e *SlippageError) Unwrap() error {
	return ErrSlippage
}

// Progress returns the summed accomplishment percent.
func (s *State) Progress() float64 {
	total := 0.0
	for _, a := range s.Accomplishments {
		total += a.Percent
	}
	return total
}

// Slippage returns a *SlippageError when any accomplishment is dated after
// the target completion date, or nil.
func (s *State) Slippage() error {
	if s.TargetCompletion.IsZero() {
		return nil
	}
	target := dateOnly(s.TargetCompletion)
	var late []Accomplishment
	for _, a := range s.Accomplishments {
		if dateOnly(a.Date).After(target) {
			late = append(late, a)
		}
	}
	if len(late) == 0 {
		return nil
	}
	return &SlippageError{Target: target, Late: late}
}

// AddAccomplishment records a progress report. The summed percent may not
// exceed 100.
func (s *State) AddAccomplishment(date time.Time, percent float64, description string) (Accomplishment, error) {
	a := Accomplishment{ID: uuid.New().String(), Date: date, Percent: percent, Description: description}
	if err := s.checkAccomplishment(a, s.Progress()); err != nil {
		return Accomplishment{}, err
	}
	s.Accomplishments = append(s.Accomplishments, a)
	s.sortAccomplishments()
	return a, nil
}

// UpdateAccomplishment edits the date and percent of a report.
func (s *State) UpdateAccomplishment(id string, date time.Time, percent float64) (Accomplishment, error) {
	i := s.accomplishmentIndex(id)
	if i < 0 {
		return Accomplishment{}, fmt.Errorf("%w: %s", ErrAccomplishmentMissing, id)
	}
	updated := s.Accomplishments[i]
	updated.Date = date
	updated.Percent = percent
	if err := s.checkAccomplishment(updated, s.Progress()-s.Accomplishments[i].Percent); err != nil {
		return Accomplishment{}, err
	}
	s.Accomplishments[i] = updated
	s.sortAccomplishments()
	return updated, nil
}

// RemoveAccomplishment deletes a report.
func (s *State) RemoveAccomplishment(id string) error {
	i := s.accomplishmentIndex(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrAccomplishmentMissing, id)
	}
	s.Accomplishments = slices.Delete(s.Accomplishments, i, i+1)
	return nil
}

// ExtendTargetDate moves the target completion date later.
func (s *State) ExtendTargetDate(target time.Time) error {
	if target.IsZero() {
		return fmt.Errorf("%w: date required", ErrInvalidTargetDate)
	}
	if !s.TargetCompletion.IsZero() && !dateOnly(target).After(dateOnly(s.TargetCompletion)) {
		return fmt.Errorf("%w: %s is not after %s", ErrInvalidTargetDate,
			target.Format(time.DateOnly), s.TargetCompletion.Format(time.DateOnly))
	}
	s.TargetCompletion = target
	return nil
}

func (s *State) checkAccomplishment(a Accomplishment, others float64) error {
	if a.Date.IsZero() {
		return fmt.Errorf("%w: date required", ErrInvalidAccomplishment)
	}
	if a.Percent <= 0 || a.Percent > 100 {
		return fmt.Errorf("%w: percent %.2f out of range", ErrInvalidAccomplishment, a.Percent)
	}
	if others+a.Percent > 100+progressEpsilon {
		return fmt.Errorf("%w: total %.2f exceeds 100", ErrInvalidAccomplishment, others+a.Percent)
	}
	return nil
}

func (s *State) accomplishmentIndex(id string) int {
	return slices.IndexFunc(s.Accomplishments, func(a Accomplishment) bool { return a.ID == id })
}

func (s *State) sortAccomplishments() {
	slices.SortStableFunc(s.Accomplishments, func(a, b Accomplishment) int {
		return a.Date.Compare(b.Date)
	})
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
