package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var opened = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func TestEvaluate_DefaultAndOverride(t *testing.T) {
	p := DefaultPolicy()

	d, err := Evaluate(p, opened, Sev2, "billing")
	require.NoError(t, err)
	assert.Equal(t, opened.Add(4*time.Hour), d.FirstResponseDueAt)
	assert.Equal(t, opened.Add(24*time.Hour), d.ResolutionDueAt)

	d, err = Evaluate(p, opened, Sev1, "security")
	require.NoError(t, err)
	assert.Equal(t, opened.Add(15*time.Minute), d.FirstResponseDueAt)

	// security has no sev3 override, falls back to default
	d, err = Evaluate(p, opened, Sev3, "security")
	require.NoError(t, err)
	assert.Equal(t, opened.Add(8*time.Hour), d.FirstResponseDueAt)

	_, err = Evaluate(p, opened, "sev9", "")
	assert.ErrorIs(t, err, ErrUnknownSeverity)
}

func TestParseSeverity(t *testing.T) {
	s, err := ParseSeverity("sev4")
	require.NoError(t, err)
	assert.Equal(t, Sev4, s)
	_, err = ParseSeverity("urgent")
	assert.ErrorIs(t, err, ErrUnknownSeverity)
}

func TestBreaches_Monotonic(t *testing.T) {
	d, err := Evaluate(DefaultPolicy(), opened, Sev1, "")
	require.NoError(t, err)

	before := Breaches(Flags{}, d, Facts{}, opened.Add(30*time.Minute))
	assert.Equal(t, Flags{}, before)

	afterFirst := Breaches(Flags{}, d, Facts{}, opened.Add(2*time.Hour))
	assert.True(t, afterFirst.FirstResponseBreached)
	assert.False(t, afterFirst.ResolutionBreached)

	// time going backwards never clears a flag
	rewound := Breaches(afterFirst, d, Facts{}, opened)
	assert.True(t, rewound.FirstResponseBreached)

	// a response stops the first response clock but keeps the existing flag
	responded := Breaches(afterFirst, d, Facts{FirstResponded: true}, opened.Add(5*time.Hour))
	assert.True(t, responded.FirstResponseBreached)
	assert.True(t, responded.ResolutionBreached)

	resolved := Breaches(Flags{}, d, Facts{FirstResponded: true, Resolved: true}, opened.Add(10*time.Hour))
	assert.Equal(t, Flags{}, resolved)
}

func TestPending(t *testing.T) {
	assert.Empty(t, Pending(Flags{FirstResponseBreached: true}, Flags{FirstResponseBreached: true}))
	assert.Equal(t, []string{"first_response", "resolution"}, Pending(Flags{}, Flags{FirstResponseBreached: true, ResolutionBreached: true}))
}
