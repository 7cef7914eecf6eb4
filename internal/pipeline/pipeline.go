// Package pipeline fills the guide cache from the intervention catalog.
//
// A run walks the interventions in order, asks the text generator for a
// structured guide, narrates it through the audio synthesizer and commits
// everything to the cache once at the end. Collaborator failures never abort
// a run: text falls back to the catalog instructions and audio is left out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/PhaseGuide/internal/guidecache"
	"github.com/BTreeMap/PhaseGuide/internal/models"
	"github.com/BTreeMap/PhaseGuide/internal/store"
	"github.com/google/uuid"
)

// TextGenerator produces a guide body from a system and user prompt.
type TextGenerator interface {
	GeneratePromptWithContext(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// AudioSynthesizer turns narration text into encoded audio.
type AudioSynthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

const (
	// DefaultDelay is the pause between interventions.
	DefaultDelay = 1500 * time.Millisecond
	// DefaultStepSeconds is used for steps the generator left untimed and for fallback steps.
	DefaultStepSeconds = 30
	// DefaultStepCount is the number of steps requested from the generator.
	DefaultStepCount = 5
)

// Failure stages.
const (
	StageText  = "text"
	StageAudio = "audio"
	StageGuide = "guide"
)

var (
	// ErrNoTextGenerator is recorded when a run has no text generator configured.
	ErrNoTextGenerator = errors.New("no text generator configured")
	// ErrNoSynthesizer is recorded when a run has no audio synthesizer configured.
	ErrNoSynthesizer = errors.New("no audio synthesizer configured")
	// ErrEmptyAudio is recorded when the synthesizer succeeds without returning audio.
	ErrEmptyAudio = errors.New("synthesizer returned no audio")
	// ErrPanic wraps a recovered panic from a single intervention.
	ErrPanic = errors.New("guide generation panicked")
)

// Failure describes one non-fatal problem during a run.
type Failure struct {
	Title string
	Stage string
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s [%s]: %v", f.Title, f.Stage, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Report summarizes a generation run.
type Report struct {
	RunID         string
	StartedAt     time.Time
	FinishedAt    time.Time
	Generated     []string
	Skipped       []string
	TextFallbacks []string
	AudioMissing  []string
	Failures      []Failure
	Metadata      models.GuideCacheMetadata
}

// Opts configures a Pipeline.
type Opts struct {
	Delay     time.Duration
	Force     bool
	SkipAudio bool
	StepCount int
	Now       func() time.Time
}

// Option is a functional option for configuring a Pipeline.
type Option func(*Opts)

// WithDelay sets the pause between interventions. Zero disables pacing.
func WithDelay(d time.Duration) Option {
	return func(o *Opts) {
		o.Delay = d
	}
}

// WithForce regenerates titles that are already cached.
func WithForce(force bool) Option {
	return func(o *Opts) {
		o.Force = force
	}
}

// WithoutAudio skips speech synthesis; audio guides are stored without payload.
func WithoutAudio() Option {
	return func(o *Opts) {
		o.SkipAudio = true
	}
}

// WithStepCount sets the number of steps requested from the text generator.
func WithStepCount(n int) Option {
	return func(o *Opts) {
		o.StepCount = n
	}
}

// WithNow overrides the clock used for timestamps.
func WithNow(now func() time.Time) Option {
	return func(o *Opts) {
		o.Now = now
	}
}

// Pipeline generates guides for a batch of interventions.
type Pipeline struct {
	text  TextGenerator
	audio AudioSynthesizer
	cache *guidecache.Cache
	opts  Opts
}

// New builds a Pipeline. text and audio may be nil; the run then uses the
// instruction fallback and stores audio guides without payload.
func New(text TextGenerator, audio AudioSynthesizer, cache *guidecache.Cache, opts ...Option) *Pipeline {
	o := Opts{
		Delay:     DefaultDelay,
		StepCount: DefaultStepCount,
		Now:       time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.StepCount <= 0 {
		o.StepCount = DefaultStepCount
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	return &Pipeline{text: text, audio: audio, cache: cache, opts: o}
}

// Run generates guides for every uncached intervention and commits the
// result once. The returned error is non-nil only when the run was cancelled,
// the existing cache could not be read, or the final commit failed; in those
// cases nothing new is persisted.
func (p *Pipeline) Run(ctx context.Context, interventions []models.Intervention) (Report, error) {
	report := Report{
		RunID:     uuid.NewString(),
		StartedAt: p.opts.Now(),
	}
	log := slog.With("run_id", report.RunID)
	log.Info("pipeline.Pipeline.Run: starting", "interventions", len(interventions), "force", p.opts.Force, "skip_audio", p.opts.SkipAudio)

	if err := p.ensureLoaded(ctx); err != nil {
		report.FinishedAt = p.opts.Now()
		return report, err
	}

	text := p.cache.TextGuides()
	audio := p.cache.AudioGuides()

	var pending []models.Intervention
	for _, iv := range interventions {
		if !p.opts.Force && p.cache.Has(iv.Title) {
			report.Skipped = append(report.Skipped, iv.Title)
			continue
		}
		pending = append(pending, iv)
	}
	log.Debug("pipeline.Pipeline.Run: work planned", "pending", len(pending), "skipped", len(report.Skipped))

	for i, iv := range pending {
		if i > 0 {
			if err := p.pause(ctx); err != nil {
				report.FinishedAt = p.opts.Now()
				log.Warn("pipeline.Pipeline.Run: cancelled, nothing committed", "completed", i, "pending", len(pending))
				return report, fmt.Errorf("generation run cancelled: %w", err)
			}
		}

		tg, ag, ok := p.generateOne(ctx, iv, &report)
		if err := ctx.Err(); err != nil {
			report.FinishedAt = p.opts.Now()
			log.Warn("pipeline.Pipeline.Run: cancelled, nothing committed", "completed", i, "pending", len(pending))
			return report, fmt.Errorf("generation run cancelled: %w", err)
		}
		if !ok {
			continue
		}
		text[iv.Title] = tg
		audio[iv.Title] = ag
		report.Generated = append(report.Generated, iv.Title)
	}

	if len(report.Generated) == 0 {
		log.Info("pipeline.Pipeline.Run: nothing generated, store left untouched")
		report.Metadata = p.cache.Metadata()
		report.FinishedAt = p.opts.Now()
		return report, nil
	}

	meta, err := p.cache.Commit(ctx, text, audio)
	if err != nil {
		report.FinishedAt = p.opts.Now()
		log.Error("pipeline.Pipeline.Run: commit failed", "error", err)
		return report, fmt.Errorf("committing generated guides: %w", err)
	}
	report.Metadata = meta
	report.FinishedAt = p.opts.Now()

	log.Info("pipeline.Pipeline.Run: done",
		"generated", len(report.Generated),
		"skipped", len(report.Skipped),
		"text_fallbacks", len(report.TextFallbacks),
		"audio_missing", len(report.AudioMissing),
		"failures", len(report.Failures),
		"duration", report.FinishedAt.Sub(report.StartedAt))
	return report, nil
}

// ensureLoaded makes sure both artifacts are in memory so the final commit
// carries forward every previously generated guide.
func (p *Pipeline) ensureLoaded(ctx context.Context) error {
	if p.cache.AudioLoaded() {
		return nil
	}
	err := p.cache.Load(ctx)
	switch {
	case err == nil, errors.Is(err, store.ErrCacheMissing):
		return nil
	case p.opts.Force:
		slog.Warn("pipeline.Pipeline.ensureLoaded: existing cache unreadable, regenerating from scratch", "error", err)
		return nil
	default:
		return fmt.Errorf("reading existing guides: %w", err)
	}
}

func (p *Pipeline) pause(ctx context.Context) error {
	if p.opts.Delay == 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.opts.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// generateOne produces both guides for iv. A panic is recorded and the
// intervention is left out of this run.
func (p *Pipeline) generateOne(ctx context.Context, iv models.Intervention, report *Report) (tg models.TextGuide, ag models.AudioGuide, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("pipeline.Pipeline.generateOne: recovered panic", "title", iv.Title, "panic", r)
			report.Failures = append(report.Failures, Failure{
				Title: iv.Title,
				Stage: StageGuide,
				Err:   fmt.Errorf("%w: %v", ErrPanic, r),
			})
			ok = false
		}
	}()

	now := p.opts.Now().UTC()
	tg, textErr := p.generateText(ctx, iv, now)
	if textErr != nil {
		slog.Warn("pipeline.Pipeline.generateOne: using instruction fallback", "title", iv.Title, "error", textErr)
		report.TextFallbacks = append(report.TextFallbacks, iv.Title)
		report.Failures = append(report.Failures, Failure{Title: iv.Title, Stage: StageText, Err: textErr})
		tg = FallbackGuide(iv, now)
	}

	ag = models.AudioGuide{
		InterventionTitle:    iv.Title,
		Mode:                 models.GuideModeAudio,
		NarrationScript:      NarrationScript(tg),
		ReflectionQuestion:   tg.ReflectionQuestion,
		EstimatedTimeSeconds: tg.EstimatedTimeSeconds,
		GeneratedAt:          now,
	}
	payload, audioErr := p.synthesize(ctx, ag.NarrationScript)
	switch {
	case audioErr != nil:
		slog.Warn("pipeline.Pipeline.generateOne: audio unavailable", "title", iv.Title, "error", audioErr)
		report.AudioMissing = append(report.AudioMissing, iv.Title)
		report.Failures = append(report.Failures, Failure{Title: iv.Title, Stage: StageAudio, Err: audioErr})
	case payload == nil:
		report.AudioMissing = append(report.AudioMissing, iv.Title)
	default:
		ag.AudioPayload = payload
	}

	slog.Debug("pipeline.Pipeline.generateOne: guides ready", "title", iv.Title, "steps", len(tg.Steps), "audio_bytes", len(ag.AudioPayload))
	return tg, ag, true
}

func (p *Pipeline) generateText(ctx context.Context, iv models.Intervention, now time.Time) (models.TextGuide, error) {
	if p.text == nil {
		return models.TextGuide{}, ErrNoTextGenerator
	}
	raw, err := p.text.GeneratePromptWithContext(ctx, systemPrompt, buildUserPrompt(iv, p.opts.StepCount))
	if err != nil {
		return models.TextGuide{}, fmt.Errorf("text generator: %w", err)
	}
	return parseTextGuide(raw, iv, now)
}

// synthesize returns (nil, nil) when audio is deliberately skipped.
func (p *Pipeline) synthesize(ctx context.Context, script string) ([]byte, error) {
	if p.opts.SkipAudio {
		return nil, nil
	}
	if p.audio == nil {
		return nil, ErrNoSynthesizer
	}
	payload, err := p.audio.Synthesize(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("audio synthesizer: %w", err)
	}
	if len(payload) == 0 {
		return nil, ErrEmptyAudio
	}
	return payload, nil
}
