// Package domain derives support case deadlines and breach flags.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Severity classifies a support case.
type Severity string

const (
	Sev1 Severity = "sev1"
	Sev2 Severity = "sev2"
	Sev3 Severity = "sev3"
	Sev4 Severity = "sev4"
)

var ErrUnknownSeverity = errors.New("unknown severity")

// ParseSeverity validates a severity string.
func ParseSeverity(raw string) (Severity, error) {
	switch s := Severity(raw); s {
	case Sev1, Sev2, Sev3, Sev4:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSeverity, raw)
	}
}

// Targets are the allowed durations for one severity.
type Targets struct {
	FirstResponse time.Duration
	Resolution    time.Duration
}

// Policy maps severities to targets with optional per-category overrides.
type Policy struct {
	Default   map[Severity]Targets
	Overrides map[string]map[Severity]Targets
}

// DefaultPolicy is used unless a deployment configures its own table.
func DefaultPolicy() Policy {
	return Policy{
		Default: map[Severity]Targets{
			Sev1: {FirstResponse: time.Hour, Resolution: 4 * time.Hour},
			Sev2: {FirstResponse: 4 * time.Hour, Resolution: 24 * time.Hour},
			Sev3: {FirstResponse: 8 * time.Hour, Resolution: 72 * time.Hour},
			Sev4: {FirstResponse: 24 * time.Hour, Resolution: 168 * time.Hour},
		},
		Overrides: map[string]map[Severity]Targets{
			"security": {
				Sev1: {FirstResponse: 15 * time.Minute, Resolution: 2 * time.Hour},
				Sev2: {FirstResponse: time.Hour, Resolution: 8 * time.Hour},
			},
		},
	}
}

// TargetsFor resolves the targets for a severity and category.
func (p Policy) TargetsFor(severity Severity, category string) (Targets, error) {
	if byCategory, ok := p.Overrides[category]; ok {
		if t, ok := byCategory[severity]; ok {
			return t, nil
		}
	}
	t, ok := p.Default[severity]
	if !ok {
		return Targets{}, fmt.Errorf("%w: %q", ErrUnknownSeverity, severity)
	}
	return t, nil
}

// Deadlines are the due-by timestamps of a case.
type Deadlines struct {
	FirstResponseDueAt time.Time
	ResolutionDueAt    time.Time
}

// Evaluate computes deadlines from the time the case was opened.
func Evaluate(p Policy, openedAt time.Time, severity Severity, category string) (Deadlines, error) {
	t, err := p.TargetsFor(severity, category)
	if err != nil {
		return Deadlines{}, err
	}
	return Deadlines{
		FirstResponseDueAt: openedAt.Add(t.FirstResponse),
		ResolutionDueAt:    openedAt.Add(t.Resolution),
	}, nil
}

// Flags are the breach booleans stored on the case projection.
type Flags struct {
	FirstResponseBreached bool
	ResolutionBreached    bool
}

// Facts are the lifecycle facts that stop each clock.
type Facts struct {
	FirstResponded bool
	Resolved       bool
}

// Breaches returns the flags at now. A flag that is already set stays set;
// clearing happens only through explicit case events.
func Breaches(prev Flags, d Deadlines, facts Facts, now time.Time) Flags {
	next := prev
	if !facts.FirstResponded && !d.FirstResponseDueAt.IsZero() && now.After(d.FirstResponseDueAt) {
		next.FirstResponseBreached = true
	}
	if !facts.Resolved && !d.ResolutionDueAt.IsZero() && now.After(d.ResolutionDueAt) {
		next.ResolutionBreached = true
	}
	return next
}

// Breach kinds reported by Pending.
const (
	KindFirstResponse = "first_response"
	KindResolution    = "resolution"
)

// Pending lists the breach kinds that became true between prev and next.
func Pending(prev, next Flags) []string {
	var kinds []string
	if next.FirstResponseBreached && !prev.FirstResponseBreached {
		kinds = append(kinds, KindFirstResponse)
	}
	if next.ResolutionBreached && !prev.ResolutionBreached {
		kinds = append(kinds, KindResolution)
	}
	return kinds
}
