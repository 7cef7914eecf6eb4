package models

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors for catalog records.
var (
	ErrMissingTitle        = errors.New("intervention title is required")
	ErrMissingInstructions = errors.New("intervention must have at least one instruction")
	ErrMissingPhaseTags    = errors.New("intervention must be tagged with at least one phase")
	ErrNegativeDuration    = errors.New("intervention duration must not be negative")
)

// Intervention is a static, catalog-defined self-care practice.
// Title is the unique key used to look up generated guides.
type Intervention struct {
	Title            string   `json:"title" yaml:"title"`
	Description      string   `json:"description" yaml:"description"`
	DurationMinutes  int      `json:"duration_minutes" yaml:"duration_minutes"`
	Location         string   `json:"location" yaml:"location"`
	ResearchCitation string   `json:"research_citation" yaml:"research_citation"`
	Instructions     []string `json:"instructions" yaml:"instructions"`
	Modification     string   `json:"modification,omitempty" yaml:"modification,omitempty"`
	PhaseTags        []Phase  `json:"phase_tags" yaml:"phase_tags"`
}

// Validate checks that the intervention can be used by the generation pipeline.
func (i *Intervention) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return ErrMissingTitle
	}
	if len(i.Instructions) == 0 {
		return fmt.Errorf("%q: %w", i.Title, ErrMissingInstructions)
	}
	if len(i.PhaseTags) == 0 {
		return fmt.Errorf("%q: %w", i.Title, ErrMissingPhaseTags)
	}
	for _, p := range i.PhaseTags {
		if !p.Valid() {
			return fmt.Errorf("%q: %w: %q", i.Title, ErrUnknownPhase, p)
		}
	}
	if i.DurationMinutes < 0 {
		return fmt.Errorf("%q: %w", i.Title, ErrNegativeDuration)
	}
	return nil
}

// HasPhase reports whether the intervention is tagged with p.
func (i *Intervention) HasPhase(p Phase) bool {
	for _, tag := range i.PhaseTags {
		if tag == p {
			return true
		}
	}
	return false
}

// PrimaryPhase returns the first phase tag, used when a prompt needs a single phase.
func (i *Intervention) PrimaryPhase() Phase {
	if len(i.PhaseTags) == 0 {
		return ""
	}
	return i.PhaseTags[0]
}
