// Package projects holds project registration: the creation wizards per
// project kind, the stored project records, tracking codes and the sample
// dataset the landing page searches.
package projects

import (
	"errors"
	"fmt"

	"github.com/abemis/portal/lifecycle"
)

// Sentinel errors.
var (
	ErrProjectNotFound = errors.New("project not found")
	ErrInvalidKind     = errors.New("invalid project kind")
	ErrValidation      = errors.New("validation failed")
	ErrWizardStep      = errors.New("invalid wizard step")
	ErrTrackingCode    = errors.New("invalid tracking code")
)

// Kind is the class of project being registered.
type Kind string

const (
	KindInfra     Kind = "infra"
	KindMachinery Kind = "machinery"
	KindFMR       Kind = "fmr"
	KindRAED      Kind = "raed"
)

// Kinds lists every kind.
var Kinds = []Kind{KindInfra, KindMachinery, KindFMR, KindRAED}

// ParseKind validates s as a kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

// IsValid returns true if the kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindInfra, KindMachinery, KindFMR, KindRAED:
		return true
	default:
		return false
	}
}

// String returns the string representation of the kind.
func (k Kind) String() string {
	return string(k)
}

// Label is the display name.
func (k Kind) Label() string {
	switch k {
	case KindInfra:
		return "Infrastructure"
	case KindMachinery:
		return "Machinery"
	case KindFMR:
		return "Farm-to-Market Road"
	case KindRAED:
		return "RAED Package"
	default:
		return string(k)
	}
}

// Track returns the lifecycle track projects of this kind follow.
func (k Kind) Track() lifecycle.Track {
	if k == KindMachinery {
		return lifecycle.TrackMachinery
	}
	return lifecycle.TrackStandard
}

// code is the tracking code prefix.
func (k Kind) code() string {
	switch k {
	case KindInfra:
		return "INF"
	case KindMachinery:
		return "MCH"
	case KindFMR:
		return "FMR"
	case KindRAED:
		return "RAD"
	default:
		return ""
	}
}

func kindFromCode(code string) (Kind, bool) {
	for _, k := range Kinds {
		if k.code() == code {
			return k, true
		}
	}
	return "", false
}
