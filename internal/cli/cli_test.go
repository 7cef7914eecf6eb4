package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BTreeMap/PhaseGuide/internal/guidecache"
	"github.com/BTreeMap/PhaseGuide/internal/lockfile"
	"github.com/BTreeMap/PhaseGuide/internal/models"
	"github.com/BTreeMap/PhaseGuide/internal/recommend"
	"github.com/BTreeMap/PhaseGuide/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "")
	return Config{
		StateDir: t.TempDir(),
		LogLevel: "error",
		Schedule: DefaultSchedule,
	}
}

func execute(t *testing.T, cfg Config, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(cfg)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPhaseCommand(t *testing.T) {
	cfg := testConfig(t)

	out, err := execute(t, cfg, "phase", "--last-period", "2024-01-01", "--today", "2024-01-20")
	require.NoError(t, err)
	assert.Contains(t, out, "luteal")
	assert.Contains(t, out, "20 of 28")
	assert.Contains(t, out, "2024-01-29")

	out, err = execute(t, cfg, "phase", "--last-period", "2024-01-01", "--today", "2024-01-15", "--json")
	require.NoError(t, err)
	var info models.CycleInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, models.PhaseOvulatory, info.Phase)
	require.NotNil(t, info.EstimatedOvulation)
	assert.Equal(t, "2024-01-15", info.EstimatedOvulation.Format(dateLayout))
}

func TestPhaseCommandErrors(t *testing.T) {
	cfg := testConfig(t)

	_, err := execute(t, cfg, "phase", "--last-period", "2024-01-01", "--cycle-length", "0")
	assert.ErrorContains(t, err, "invalid cycle configuration")

	_, err = execute(t, cfg, "phase", "--last-period", "01/02/2024")
	assert.ErrorContains(t, err, "invalid --last-period")

	_, err = execute(t, cfg, "phase")
	assert.Error(t, err)
}

func TestGenerateThenRecommend(t *testing.T) {
	cfg := testConfig(t)

	out, err := execute(t, cfg, "generate", "--delay", "0", "--no-audio")
	require.NoError(t, err)
	assert.Contains(t, out, "generated:      7")
	assert.Contains(t, out, "text fallbacks: 7")

	out, err = execute(t, cfg, "generate", "--delay", "0", "--no-audio")
	require.NoError(t, err)
	assert.Contains(t, out, "generated:      0")
	assert.Contains(t, out, "skipped:        7")

	out, err = execute(t, cfg, "recommend", "--last-period", "2024-01-01", "--today", "2024-01-20", "--json")
	require.NoError(t, err)
	var rec recommend.Recommendation
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, models.PhaseLuteal, rec.Cycle.Phase)
	require.NotEmpty(t, rec.Items)
	for _, item := range rec.Items {
		require.NotNil(t, item.Guide, item.Intervention.Title)
		assert.NoError(t, item.Guide.Validate())
	}

	out, err = execute(t, cfg, "recommend", "--last-period", "2024-01-01", "--today", "2024-01-20", "--audio")
	require.NoError(t, err)
	assert.Contains(t, out, "Box Breathing")
	assert.Contains(t, out, "narration: false")
}

func TestGenerateOnlyUnknownTitle(t *testing.T) {
	cfg := testConfig(t)
	_, err := execute(t, cfg, "generate", "--delay", "0", "--only", "Nope")
	assert.ErrorContains(t, err, `"Nope" is not in the catalog`)
}

func TestGenerateRespectsLock(t *testing.T) {
	cfg := testConfig(t)
	lock, err := lockfile.AcquireLock(cfg.StateDir, "test")
	require.NoError(t, err)
	defer lock.Release()

	_, err = execute(t, cfg, "generate", "--delay", "0")
	assert.ErrorIs(t, err, lockfile.ErrLocked)
}

func TestSplitAndExport(t *testing.T) {
	cfg := testConfig(t)

	text := models.TextGuide{
		InterventionTitle: "Box Breathing",
		Mode:              models.GuideModeText,
		Steps:             []models.GuideStep{{StepNumber: 1, Instruction: "Inhale for four", DurationSeconds: 16}},
	}
	audio := models.AudioGuide{InterventionTitle: "Box Breathing", Mode: models.GuideModeAudio, NarrationScript: "Inhale."}
	orphan := models.TextGuide{InterventionTitle: "Orphan", Mode: models.GuideModeText}
	combined := map[string]models.CombinedGuide{
		"Box Breathing": {Text: &text, Audio: &audio},
		"Orphan":        {Text: &orphan},
	}

	in := filepath.Join(t.TempDir(), "combined.json")
	f, err := os.Create(in)
	require.NoError(t, err)
	require.NoError(t, guidecache.WriteCombined(f, combined, time.Now()))
	require.NoError(t, f.Close())

	out, err := execute(t, cfg, "split", "--in", in)
	require.NoError(t, err)
	assert.Contains(t, out, "1 text, 1 audio")
	assert.Contains(t, out, `skipped "Orphan"`)

	fs, err := store.NewFileStore(cfg.StateDir)
	require.NoError(t, err)
	meta, guides, err := fs.LoadText(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, meta.TotalInterventions)
	assert.Equal(t, "Inhale for four", guides["Box Breathing"].Steps[0].Instruction)

	exported := filepath.Join(t.TempDir(), "export.json")
	_, err = execute(t, cfg, "export", "--out", exported)
	require.NoError(t, err)
	ef, err := os.Open(exported)
	require.NoError(t, err)
	defer ef.Close()
	back, err := guidecache.ReadCombined(ef)
	require.NoError(t, err)
	require.Contains(t, back, "Box Breathing")
	assert.Equal(t, "Inhale.", back["Box Breathing"].Audio.NarrationScript)
}

func TestExportWithoutStore(t *testing.T) {
	cfg := testConfig(t)
	_, err := execute(t, cfg, "export")
	assert.ErrorIs(t, err, store.ErrCacheMissing)
}

func TestCatalogCommand(t *testing.T) {
	cfg := testConfig(t)

	out, err := execute(t, cfg, "catalog")
	require.NoError(t, err)
	assert.Contains(t, out, "Restorative Child's Pose")
	assert.Contains(t, out, "Evening Wind-Down Stretch")

	out, err = execute(t, cfg, "catalog", "--phase", "ovulatory", "--json")
	require.NoError(t, err)
	var ivs []models.Intervention
	require.NoError(t, json.Unmarshal([]byte(out), &ivs))
	require.NotEmpty(t, ivs)
	for _, iv := range ivs {
		assert.True(t, iv.HasPhase(models.PhaseOvulatory), iv.Title)
	}

	_, err = execute(t, cfg, "catalog", "--phase", "spring")
	assert.ErrorIs(t, err, models.ErrUnknownPhase)
}

func TestCatalogValidate(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`interventions:
  - title: Stretch
    instructions: [Reach up]
    phase_tags: [luteal]
`), 0o644))

	out, err := execute(t, cfg, "catalog", "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "1 interventions OK")

	require.NoError(t, os.WriteFile(path, []byte(`interventions:
  - title: Stretch
    instructions: [Reach up]
    phase_tags: [winter]
`), 0o644))
	_, err = execute(t, cfg, "catalog", "validate", path)
	assert.Error(t, err)
}

func TestScheduleRejectsBadCron(t *testing.T) {
	cfg := testConfig(t)
	_, err := execute(t, cfg, "schedule", "--cron", "every tuesday")
	assert.ErrorContains(t, err, "invalid schedule")
}

func TestSetLogLevel(t *testing.T) {
	require.NoError(t, SetLogLevel("debug"))
	require.NoError(t, SetLogLevel("WARN"))
	require.NoError(t, SetLogLevel(""))
	assert.Error(t, SetLogLevel("loud"))
}

func TestLoadEnvironmentConfig(t *testing.T) {
	t.Setenv("PHASEGUIDE_STATE_DIR", "/srv/phaseguide")
	t.Setenv("GENERATION_DELAY", "250ms")
	t.Setenv("GENAI_DEBUG", "yes")
	t.Setenv("GENERATION_SCHEDULE", "")

	cfg := LoadEnvironmentConfig()
	assert.Equal(t, "/srv/phaseguide", cfg.StateDir)
	assert.Equal(t, 250*time.Millisecond, cfg.GenerationDelay)
	assert.True(t, cfg.GenAIDebug)
	assert.Equal(t, DefaultSchedule, cfg.Schedule)
}

func TestScheduleWatchCatalogNeedsFile(t *testing.T) {
	cfg := testConfig(t)
	_, err := execute(t, cfg, "schedule", "--watch-catalog")
	assert.ErrorContains(t, err, "--watch-catalog needs a catalog file")
}
