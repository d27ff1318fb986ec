// Package lifecycle models the stages a registered project moves through,
// the stepper that displays them, and the guards on advancing.
package lifecycle

import (
	"errors"
	"slices"
)

// Sentinel errors.
var (
	ErrStageLocked           = errors.New("stage is not yet reachable")
	ErrSlippage              = errors.New("accomplishment dated after target completion")
	ErrIncompleteProgress    = errors.New("accomplishment is below 100%")
	ErrInvalidTransition     = errors.New("invalid stage transition")
	ErrInvalidTrack          = errors.New("invalid track")
	ErrInvalidAccomplishment = errors.New("invalid accomplishment")
	ErrAccomplishmentMissing = errors.New("accomplishment not found")
	ErrInvalidTargetDate     = errors.New("invalid target completion date")
	ErrDocumentNotFound      = errors.New("document not found")
	ErrDocumentTransition    = errors.New("invalid document status transition")
)

// Stage is a project status shown as one stepper panel.
type Stage string

const (
	StageProposal       Stage = "Proposal"
	StageProcurement    Stage = "Procurement"
	StageImplementation Stage = "Implementation"
	StageCompleted      Stage = "Completed"
	StageInventory      Stage = "Inventory"
	StageForDelivery    Stage = "For Delivery"
	StageDelivered      Stage = "Delivered"
)

// String returns the string representation of the stage.
func (s Stage) String() string {
	return string(s)
}

// Track is the ordered stage sequence a project follows.
type Track string

const (
	// TrackStandard is followed by infrastructure, farm-to-market road and
	// RAED projects.
	TrackStandard Track = "standard"

	// TrackMachinery replaces construction with delivery.
	TrackMachinery Track = "machinery"
)

var trackStages = map[Track][]Stage{
	TrackStandard:  {StageProposal, StageProcurement, StageImplementation, StageCompleted, StageInventory},
	TrackMachinery: {StageProposal, StageProcurement, StageForDelivery, StageDelivered, StageInventory},
}

// IsValid returns true if the track is known.
func (t Track) IsValid() bool {
	_, ok := trackStages[t]
	return ok
}

// Stages returns the stages of the track in order.
func (t Track) Stages() []Stage {
	return slices.Clone(trackStages[t])
}

// StageIndex returns the position of status on track, or -1.
func StageIndex(track Track, status Stage) int {
	return slices.Index(trackStages[track], status)
}

// CanTransitionTo reports whether a project on track may move from s to
// target. Only the next stage is reachable:
//
//	Proposal → Procurement → Implementation → Completed → Inventory
//	Proposal → Procurement → For Delivery → Delivered → Inventory
func (s Stage) CanTransitionTo(track Track, target Stage) bool {
	i := StageIndex(track, s)
	if i < 0 {
		return false
	}
	return StageIndex(track, target) == i+1
}

// Next returns the stage after s on track.
func (s Stage) Next(track Track) (Stage, bool) {
	stages := trackStages[track]
	i := slices.Index(stages, s)
	if i < 0 || i+1 >= len(stages) {
		return "", false
	}
	return stages[i+1], true
}

// IsTerminal reports whether s is the last stage of track.
func (s Stage) IsTerminal(track Track) bool {
	stages := trackStages[track]
	return len(stages) > 0 && stages[len(stages)-1] == s
}
