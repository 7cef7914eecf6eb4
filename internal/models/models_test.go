package models

import (
	"errors"
	"testing"
	"time"
)

func TestParsePhase(t *testing.T) {
	tests := []struct {
		in      string
		want    Phase
		wantErr bool
	}{
		{"menstrual", PhaseMenstrual, false},
		{" Luteal ", PhaseLuteal, false},
		{"OVULATORY", PhaseOvulatory, false},
		{"follicular", PhaseFollicular, false},
		{"winter", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParsePhase(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownPhase) {
				t.Errorf("ParsePhase(%q) expected ErrUnknownPhase, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePhase(%q) unexpected error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParsePhase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInterventionValidate(t *testing.T) {
	valid := Intervention{
		Title:        "Box Breathing",
		Instructions: []string{"Inhale for four counts"},
		PhaseTags:    []Phase{PhaseLuteal},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid intervention, got %v", err)
	}

	noTitle := valid
	noTitle.Title = "  "
	if err := noTitle.Validate(); !errors.Is(err, ErrMissingTitle) {
		t.Errorf("expected ErrMissingTitle, got %v", err)
	}

	noSteps := valid
	noSteps.Instructions = nil
	if err := noSteps.Validate(); !errors.Is(err, ErrMissingInstructions) {
		t.Errorf("expected ErrMissingInstructions, got %v", err)
	}

	badPhase := valid
	badPhase.PhaseTags = []Phase{"spring"}
	if err := badPhase.Validate(); !errors.Is(err, ErrUnknownPhase) {
		t.Errorf("expected ErrUnknownPhase, got %v", err)
	}

	if !valid.HasPhase(PhaseLuteal) || valid.HasPhase(PhaseMenstrual) {
		t.Error("HasPhase returned wrong result")
	}
	if valid.PrimaryPhase() != PhaseLuteal {
		t.Errorf("PrimaryPhase = %q", valid.PrimaryPhase())
	}
}

func TestTextGuideValidate(t *testing.T) {
	g := TextGuide{
		InterventionTitle: "Box Breathing",
		Mode:              GuideModeText,
		Steps: []GuideStep{
			{StepNumber: 1, Instruction: "Sit", DurationSeconds: 10},
			{StepNumber: 2, Instruction: "Breathe", DurationSeconds: 50},
		},
	}
	if err := g.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.TotalStepSeconds() != 60 {
		t.Errorf("TotalStepSeconds = %d, want 60", g.TotalStepSeconds())
	}

	gap := g.Clone()
	gap.Steps[1].StepNumber = 3
	if err := gap.Validate(); !errors.Is(err, ErrStepNumbering) {
		t.Errorf("expected ErrStepNumbering, got %v", err)
	}
	if g.Steps[1].StepNumber != 2 {
		t.Error("Clone shared the steps slice with the original")
	}

	wrongMode := g.Clone()
	wrongMode.Mode = GuideModeAudio
	if err := wrongMode.Validate(); !errors.Is(err, ErrWrongGuideMode) {
		t.Errorf("expected ErrWrongGuideMode, got %v", err)
	}

	negative := g.Clone()
	negative.EstimatedTimeSeconds = -1
	if err := negative.Validate(); !errors.Is(err, ErrNegativeEstimate) {
		t.Errorf("expected ErrNegativeEstimate, got %v", err)
	}
	audio := AudioGuide{InterventionTitle: "Box Breathing", Mode: GuideModeAudio, EstimatedTimeSeconds: -60}
	if err := audio.Validate(); !errors.Is(err, ErrNegativeEstimate) {
		t.Errorf("expected ErrNegativeEstimate for audio, got %v", err)
	}
}

func TestAudioGuideCloneAndHasAudio(t *testing.T) {
	g := AudioGuide{InterventionTitle: "Walk", Mode: GuideModeAudio}
	if g.HasAudio() {
		t.Error("expected no audio for empty payload")
	}
	g.AudioPayload = []byte{1, 2, 3}
	c := g.Clone()
	c.AudioPayload[0] = 9
	if g.AudioPayload[0] != 1 {
		t.Error("Clone shared the payload with the original")
	}
	if err := g.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestNewGuideCacheMetadata(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	m := NewGuideCacheMetadata(3, now)
	if m.Version != CacheSchemaVersion || m.TotalInterventions != 3 {
		t.Errorf("unexpected metadata: %+v", m)
	}
	if m.GeneratedAt.Location() != time.UTC || !m.GeneratedAt.Equal(now) {
		t.Errorf("expected UTC timestamp equal to input, got %v", m.GeneratedAt)
	}
}
