package pipeline

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/BTreeMap/PhaseGuide/internal/genai"
	"github.com/BTreeMap/PhaseGuide/internal/models"
)

// GenericReflectionQuestion closes fallback guides and generated guides that omit one.
const GenericReflectionQuestion = "How does your body feel now compared to when you started?"

// maxDescriptionRunes bounds the description embedded in the prompt.
const maxDescriptionRunes = 600

const systemPrompt = `You write short, calm, step-by-step guides for self-care practices.
Respond with a single JSON object and nothing else, using this shape:
{"introduction": string, "steps": [{"instruction": string, "duration_seconds": integer, "breathing_cue": string, "physiological_explanation": string}], "modification": string, "reflection_question": string}
Keep each instruction to one or two sentences. Do not give medical advice.`

// MaxStepSeconds bounds a single generated step duration.
const MaxStepSeconds = 24 * 60 * 60

var errNoUsableSteps = errors.New("no usable steps")

type generatedStep struct {
	Instruction              string   `json:"instruction"`
	DurationSeconds          *float64 `json:"duration_seconds"`
	BreathingCue             string   `json:"breathing_cue"`
	PhysiologicalExplanation string   `json:"physiological_explanation"`
}

type generatedGuide struct {
	Introduction       string          `json:"introduction"`
	Steps              []generatedStep `json:"steps"`
	Modification       string          `json:"modification"`
	ReflectionQuestion string          `json:"reflection_question"`
}

func validateGenerated(g generatedGuide) error {
	for _, s := range g.Steps {
		if strings.TrimSpace(s.Instruction) != "" {
			return nil
		}
	}
	return errNoUsableSteps
}

func buildUserPrompt(iv models.Intervention, stepCount int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a guide for the practice %q.\n", iv.Title)
	fmt.Fprintf(&b, "Description: %s\n", truncateRunes(strings.TrimSpace(iv.Description), maxDescriptionRunes))
	if iv.DurationMinutes > 0 {
		fmt.Fprintf(&b, "Duration: %d minutes\n", iv.DurationMinutes)
	}
	if iv.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", iv.Location)
	}
	if phase := iv.PrimaryPhase(); phase != "" {
		fmt.Fprintf(&b, "Cycle phase: %s\n", phase)
	}
	if iv.ResearchCitation != "" {
		fmt.Fprintf(&b, "Research basis: %s\n", iv.ResearchCitation)
	}
	fmt.Fprintf(&b, "Use exactly %d steps.", stepCount)
	return b.String()
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// parseTextGuide decodes the generator response into a TextGuide. Steps are
// renumbered from 1 in response order; blank steps are dropped.
func parseTextGuide(raw string, iv models.Intervention, now time.Time) (models.TextGuide, error) {
	g, err := genai.ExtractJSON[generatedGuide](raw, validateGenerated)
	if err != nil {
		return models.TextGuide{}, err
	}

	steps := make([]models.GuideStep, 0, len(g.Steps))
	for _, s := range g.Steps {
		instruction := strings.TrimSpace(s.Instruction)
		if instruction == "" {
			continue
		}
		seconds, err := stepSeconds(s.DurationSeconds)
		if err != nil {
			return models.TextGuide{}, fmt.Errorf("%w: step %d: %v", genai.ErrInvalidOutput, len(steps)+1, err)
		}
		steps = append(steps, models.GuideStep{
			StepNumber:               len(steps) + 1,
			Instruction:              instruction,
			DurationSeconds:          seconds,
			BreathingCue:             strings.TrimSpace(s.BreathingCue),
			PhysiologicalExplanation: strings.TrimSpace(s.PhysiologicalExplanation),
		})
	}

	modification := strings.TrimSpace(g.Modification)
	if modification == "" {
		modification = iv.Modification
	}
	question := strings.TrimSpace(g.ReflectionQuestion)
	if question == "" {
		question = GenericReflectionQuestion
	}

	tg := models.TextGuide{
		InterventionTitle:  iv.Title,
		Mode:               models.GuideModeText,
		Introduction:       strings.TrimSpace(g.Introduction),
		Steps:              steps,
		ReflectionQuestion: question,
		Modification:       modification,
		GeneratedAt:        now,
	}
	tg.EstimatedTimeSeconds = tg.TotalStepSeconds()
	if err := tg.Validate(); err != nil {
		return models.TextGuide{}, fmt.Errorf("%w: %v", genai.ErrInvalidOutput, err)
	}
	return tg, nil
}

// stepSeconds defaults an absent duration and rejects values that are not a
// usable number of seconds. An explicit zero is kept.
func stepSeconds(v *float64) (int, error) {
	if v == nil {
		return DefaultStepSeconds, nil
	}
	if math.IsNaN(*v) || *v < 0 || *v > MaxStepSeconds {
		return 0, fmt.Errorf("duration_seconds %v out of range [0, %d]", *v, MaxStepSeconds)
	}
	return int(math.Round(*v)), nil
}

// FallbackGuide builds a text guide straight from the catalog instructions,
// one DefaultStepSeconds step per instruction.
func FallbackGuide(iv models.Intervention, now time.Time) models.TextGuide {
	steps := make([]models.GuideStep, 0, len(iv.Instructions))
	for _, instruction := range iv.Instructions {
		instruction = strings.TrimSpace(instruction)
		if instruction == "" {
			continue
		}
		steps = append(steps, models.GuideStep{
			StepNumber:      len(steps) + 1,
			Instruction:     instruction,
			DurationSeconds: DefaultStepSeconds,
		})
	}
	if len(steps) == 0 {
		steps = append(steps, models.GuideStep{
			StepNumber:      1,
			Instruction:     strings.TrimSpace(iv.Title + ". " + iv.Description),
			DurationSeconds: DefaultStepSeconds,
		})
	}
	tg := models.TextGuide{
		InterventionTitle:  iv.Title,
		Mode:               models.GuideModeText,
		Introduction:       strings.TrimSpace(iv.Description),
		Steps:              steps,
		ReflectionQuestion: GenericReflectionQuestion,
		Modification:       iv.Modification,
		GeneratedAt:        now,
	}
	tg.EstimatedTimeSeconds = tg.TotalStepSeconds()
	return tg
}

// NarrationScript renders a text guide as a single script for speech synthesis.
func NarrationScript(tg models.TextGuide) string {
	var b strings.Builder
	if tg.Introduction != "" {
		b.WriteString(tg.Introduction)
		b.WriteString("\n\n")
	}
	for _, s := range tg.Steps {
		fmt.Fprintf(&b, "Step %d. %s", s.StepNumber, ensureSentence(s.Instruction))
		if s.BreathingCue != "" {
			b.WriteString(" ")
			b.WriteString(ensureSentence(s.BreathingCue))
		}
		b.WriteString("\n\n")
	}
	if tg.ReflectionQuestion != "" {
		b.WriteString("When you are ready, take a moment to reflect. ")
		b.WriteString(tg.ReflectionQuestion)
	}
	return strings.TrimSpace(b.String())
}

func ensureSentence(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return s
	}
	return s + "."
}
