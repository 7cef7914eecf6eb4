// Package models defines the core data structures for PhaseGuide.
//
// It includes the cycle phase enum, the intervention catalog record, and the
// generated text/audio guides shared between the pipeline and the guide cache.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Phase names one of the four segments of a menstrual cycle.
type Phase string

const (
	// PhaseMenstrual covers the bleeding days at the start of a cycle.
	PhaseMenstrual Phase = "menstrual"
	// PhaseFollicular covers the days between menstruation and ovulation.
	PhaseFollicular Phase = "follicular"
	// PhaseOvulatory covers the short window around ovulation.
	PhaseOvulatory Phase = "ovulatory"
	// PhaseLuteal covers the remainder of the cycle up to the next period.
	PhaseLuteal Phase = "luteal"
)

// AllPhases lists every phase in cycle order.
var AllPhases = []Phase{PhaseMenstrual, PhaseFollicular, PhaseOvulatory, PhaseLuteal}

// ErrUnknownPhase is returned when a string does not name a phase.
var ErrUnknownPhase = errors.New("unknown cycle phase")

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseMenstrual, PhaseFollicular, PhaseOvulatory, PhaseLuteal:
		return true
	}
	return false
}

// ParsePhase parses a phase name case-insensitively.
func ParsePhase(s string) (Phase, error) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownPhase, s)
	}
	return p, nil
}

// CycleInfo is the derived view of where a user is in their cycle.
// It is computed fresh for every request and never stored.
type CycleInfo struct {
	Phase               Phase      `json:"phase"`
	DayOfCycle          int        `json:"day_of_cycle"`           // 1..cycle length
	DaysUntilNextPeriod int        `json:"days_until_next_period"` // never negative
	EstimatedOvulation  *time.Time `json:"estimated_ovulation"`    // set only in the ovulatory phase
	EstimatedNextPeriod time.Time  `json:"estimated_next_period"`
}
