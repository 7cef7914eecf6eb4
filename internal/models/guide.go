package models

import (
	"errors"
	"fmt"
	"time"
)

// GuideMode identifies the delivery form of a generated guide.
type GuideMode string

const (
	// GuideModeText marks a step-by-step written guide.
	GuideModeText GuideMode = "text"
	// GuideModeAudio marks a narrated guide.
	GuideModeAudio GuideMode = "audio"
)

// CacheSchemaVersion is written into every persisted guide cache artifact.
const CacheSchemaVersion = "1.0"

// Guide validation errors.
var (
	ErrGuideMissingTitle   = errors.New("guide intervention title is required")
	ErrGuideNoSteps        = errors.New("text guide must have at least one step")
	ErrStepNumbering       = errors.New("guide steps must be numbered contiguously from 1")
	ErrNegativeStepSeconds = errors.New("guide step duration must not be negative")
	ErrWrongGuideMode      = errors.New("guide mode does not match guide type")
	ErrNegativeEstimate    = errors.New("guide estimated time must not be negative")
)

// GuideStep is one instruction in a text guide.
type GuideStep struct {
	StepNumber               int    `json:"step_number"`
	Instruction              string `json:"instruction"`
	DurationSeconds          int    `json:"duration_seconds"`
	BreathingCue             string `json:"breathing_cue,omitempty"`
	PhysiologicalExplanation string `json:"physiological_explanation,omitempty"`
}

// TextGuide is the generated written guide for an intervention.
type TextGuide struct {
	InterventionTitle    string      `json:"intervention_title"` // lookup key into the catalog, not an ownership edge
	Mode                 GuideMode   `json:"mode"`
	Introduction         string      `json:"introduction,omitempty"`
	Steps                []GuideStep `json:"steps"`
	ReflectionQuestion   string      `json:"reflection_question"`
	EstimatedTimeSeconds int         `json:"estimated_time_seconds"`
	Modification         string      `json:"modification,omitempty"`
	GeneratedAt          time.Time   `json:"generated_at"`
}

// Validate checks step numbering and durations.
func (g *TextGuide) Validate() error {
	if g.InterventionTitle == "" {
		return ErrGuideMissingTitle
	}
	if g.Mode != GuideModeText {
		return fmt.Errorf("%q: %w: %q", g.InterventionTitle, ErrWrongGuideMode, g.Mode)
	}
	if len(g.Steps) == 0 {
		return fmt.Errorf("%q: %w", g.InterventionTitle, ErrGuideNoSteps)
	}
	for i, s := range g.Steps {
		if s.StepNumber != i+1 {
			return fmt.Errorf("%q step %d: %w", g.InterventionTitle, s.StepNumber, ErrStepNumbering)
		}
		if s.DurationSeconds < 0 {
			return fmt.Errorf("%q step %d: %w", g.InterventionTitle, s.StepNumber, ErrNegativeStepSeconds)
		}
	}
	if g.EstimatedTimeSeconds < 0 {
		return fmt.Errorf("%q: %w", g.InterventionTitle, ErrNegativeEstimate)
	}
	return nil
}

// TotalStepSeconds sums the durations of all steps.
func (g *TextGuide) TotalStepSeconds() int {
	total := 0
	for _, s := range g.Steps {
		total += s.DurationSeconds
	}
	return total
}

// Clone returns a deep copy so callers cannot mutate cached state.
func (g TextGuide) Clone() TextGuide {
	if g.Steps != nil {
		steps := make([]GuideStep, len(g.Steps))
		copy(steps, g.Steps)
		g.Steps = steps
	}
	return g
}

// AudioGuide is the narrated form of a guide. AudioPayload is absent when
// speech synthesis was unavailable; the guide is still usable as text.
type AudioGuide struct {
	InterventionTitle    string    `json:"intervention_title"`
	Mode                 GuideMode `json:"mode"`
	NarrationScript      string    `json:"narration_script"`
	AudioPayload         []byte    `json:"audio_payload,omitempty"` // base64 in JSON
	ReflectionQuestion   string    `json:"reflection_question"`
	EstimatedTimeSeconds int       `json:"estimated_time_seconds"`
	GeneratedAt          time.Time `json:"generated_at"`
}

// HasAudio reports whether synthesized audio is attached.
func (g *AudioGuide) HasAudio() bool {
	return len(g.AudioPayload) > 0
}

// Validate checks the fields every audio guide must carry.
func (g *AudioGuide) Validate() error {
	if g.InterventionTitle == "" {
		return ErrGuideMissingTitle
	}
	if g.Mode != GuideModeAudio {
		return fmt.Errorf("%q: %w: %q", g.InterventionTitle, ErrWrongGuideMode, g.Mode)
	}
	if g.EstimatedTimeSeconds < 0 {
		return fmt.Errorf("%q: %w", g.InterventionTitle, ErrNegativeEstimate)
	}
	return nil
}

// Clone returns a deep copy so callers cannot mutate cached state.
func (g AudioGuide) Clone() AudioGuide {
	if g.AudioPayload != nil {
		payload := make([]byte, len(g.AudioPayload))
		copy(payload, g.AudioPayload)
		g.AudioPayload = payload
	}
	return g
}

// GuideCacheMetadata describes one persisted guide cache artifact.
// TotalInterventions must equal the number of guides stored alongside it.
type GuideCacheMetadata struct {
	Version            string    `json:"version"`
	GeneratedAt        time.Time `json:"generated_at"`
	TotalInterventions int       `json:"total_interventions"`
}

// NewGuideCacheMetadata builds metadata for a guide map of the given size.
func NewGuideCacheMetadata(count int, now time.Time) GuideCacheMetadata {
	return GuideCacheMetadata{
		Version:            CacheSchemaVersion,
		GeneratedAt:        now.UTC(),
		TotalInterventions: count,
	}
}

// CombinedGuide is the legacy single-store value holding both guide forms.
type CombinedGuide struct {
	Text  *TextGuide  `json:"text,omitempty"`
	Audio *AudioGuide `json:"audio,omitempty"`
}
