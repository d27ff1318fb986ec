package projects

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCoder(t *testing.T) *TrackingCoder {
	t.Helper()
	c, err := NewTrackingCoder()
	require.NoError(t, err)
	return c
}

func TestTrackingCoder_RoundTrip(t *testing.T) {
	c := newTestCoder(t)

	for _, kind := range Kinds {
		for _, seq := range []uint64{1, 2, 99, 123456} {
			code, err := c.Encode(kind, 2026, seq)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(code, kind.code()+"-2026-"), code)

			gotKind, gotYear, gotSeq, err := c.Decode(strings.ToLower(code))
			require.NoError(t, err)
			assert.Equal(t, kind, gotKind)
			assert.Equal(t, 2026, gotYear)
			assert.Equal(t, seq, gotSeq)
		}
	}
}

func TestTrackingCoder_Distinct(t *testing.T) {
	c := newTestCoder(t)
	seen := map[string]bool{}
	for seq := uint64(1); seq <= 200; seq++ {
		code, err := c.Encode(KindInfra, 2026, seq)
		require.NoError(t, err)
		require.False(t, seen[code], "duplicate %s", code)
		seen[code] = true
	}
}

func TestTrackingCoder_DecodeRejects(t *testing.T) {
	c := newTestCoder(t)
	good, err := c.Encode(KindFMR, 2026, 7)
	require.NoError(t, err)
	suffix := good[strings.LastIndex(good, "-")+1:]

	for _, code := range []string{
		"",
		"FMR-2026",
		"XXX-2026-" + suffix,
		"FMR-20x6-" + suffix,
		"FMR-2025-" + suffix,
	} {
		_, _, _, err := c.Decode(code)
		assert.ErrorIs(t, err, ErrTrackingCode, code)
	}

	_, err = c.Encode("greenhouse", 2026, 1)
	assert.ErrorIs(t, err, ErrInvalidKind)
}
