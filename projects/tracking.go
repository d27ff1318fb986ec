package projects

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sqids/sqids-go"
)

const (
	trackingAlphabet  = "0123456789ABCDEFGHJKLMNPQRSTUVWXYZ"
	trackingMinLength = 6
)

// TrackingCoder turns a project sequence number into the code printed on
// the registration slip, such as "INF-2026-3K7QZP". The code decodes back
// to its year and sequence.
type TrackingCoder struct {
	sqids *sqids.Sqids
}

// NewTrackingCoder creates a coder.
func NewTrackingCoder() (*TrackingCoder, error) {
	s, err := sqids.New(sqids.Options{
		Alphabet:  trackingAlphabet,
		MinLength: trackingMinLength,
	})
	if err != nil {
		return nil, fmt.Errorf("create tracking coder: %w", err)
	}
	return &TrackingCoder{sqids: s}, nil
}

// Encode builds the tracking code of the seq-th project of kind in year.
func (c *TrackingCoder) Encode(kind Kind, year int, seq uint64) (string, error) {
	if !kind.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}
	if year < 0 {
		return "", fmt.Errorf("%w: year %d", ErrTrackingCode, year)
	}
	id, err := c.sqids.Encode([]uint64{uint64(year), seq})
	if err != nil {
		return "", fmt.Errorf("encode tracking code: %w", err)
	}
	return fmt.Sprintf("%s-%04d-%s", kind.code(), year, id), nil
}

// Decode parses a tracking code. Lowercase input is accepted.
func (c *TrackingCoder) Decode(code string) (kind Kind, year int, seq uint64, err error) {
	parts := strings.Split(NormalizeTrackingCode(code), "-")
	if len(parts) != 3 {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrTrackingCode, code)
	}
	kind, ok := kindFromCode(parts[0])
	if !ok {
		return "", 0, 0, fmt.Errorf("%w: unknown prefix %q", ErrTrackingCode, parts[0])
	}
	year, err = strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, fmt.Errorf("%w: year %q", ErrTrackingCode, parts[1])
	}
	nums := c.sqids.Decode(parts[2])
	if len(nums) != 2 || int(nums[0]) != year {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrTrackingCode, code)
	}
	// Reject non-canonical encodings of the same numbers.
	if canonical, _ := c.sqids.Encode(nums); canonical != parts[2] {
		return "", 0, 0, fmt.Errorf("%w: %q", ErrTrackingCode, code)
	}
	return kind, year, nums[1], nil
}

// NormalizeTrackingCode trims and upper-cases user input.
func NormalizeTrackingCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
