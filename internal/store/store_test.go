package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/BTreeMap/PhaseGuide/internal/models"
)

func sampleGuides() (map[string]models.TextGuide, map[string]models.AudioGuide) {
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	text := map[string]models.TextGuide{
		"Box Breathing": {
			InterventionTitle: "Box Breathing",
			Mode:              models.GuideModeText,
			Introduction:      "Settle in.",
			Steps: []models.GuideStep{
				{StepNumber: 1, Instruction: "Inhale for four", DurationSeconds: 4, BreathingCue: "in"},
				{StepNumber: 2, Instruction: "Exhale for four", DurationSeconds: 4},
			},
			ReflectionQuestion:   "How do you feel?",
			EstimatedTimeSeconds: 8,
			GeneratedAt:          at,
		},
		"Brisk Morning Walk": {
			InterventionTitle:    "Brisk Morning Walk",
			Mode:                 models.GuideModeText,
			Steps:                []models.GuideStep{{StepNumber: 1, Instruction: "Walk", DurationSeconds: 30}},
			ReflectionQuestion:   "What did you notice?",
			EstimatedTimeSeconds: 30,
			GeneratedAt:          at,
		},
	}
	audio := map[string]models.AudioGuide{
		"Box Breathing": {
			InterventionTitle:    "Box Breathing",
			Mode:                 models.GuideModeAudio,
			NarrationScript:      "Settle in. Inhale for four.",
			AudioPayload:         []byte{0x49, 0x44, 0x33, 0x00, 0xff},
			ReflectionQuestion:   "How do you feel?",
			EstimatedTimeSeconds: 8,
			GeneratedAt:          at,
		},
		"Brisk Morning Walk": {
			InterventionTitle:    "Brisk Morning Walk",
			Mode:                 models.GuideModeAudio,
			NarrationScript:      "Walk.",
			ReflectionQuestion:   "What did you notice?",
			EstimatedTimeSeconds: 30,
			GeneratedAt:          at,
		},
	}
	return text, audio
}

// exerciseGuideStore runs the shared contract checks against any backend.
func exerciseGuideStore(t *testing.T, s GuideStore) {
	t.Helper()
	ctx := context.Background()

	if _, err := s.Load(ctx); !errors.Is(err, ErrCacheMissing) {
		t.Fatalf("expected ErrCacheMissing before first commit, got %v", err)
	}
	if _, _, err := s.LoadText(ctx); !errors.Is(err, ErrCacheMissing) {
		t.Fatalf("expected ErrCacheMissing from LoadText, got %v", err)
	}

	text, audio := sampleGuides()
	meta, err := s.Commit(ctx, text, audio)
	if err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if meta.TotalInterventions != len(text) || meta.Version != models.CacheSchemaVersion {
		t.Errorf("unexpected metadata %+v", meta)
	}

	snap, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !reflect.DeepEqual(snap.Text, text) {
		t.Errorf("text guides differ after round trip:\n got %+v\nwant %+v", snap.Text, text)
	}
	if !reflect.DeepEqual(snap.Audio, audio) {
		t.Errorf("audio guides differ after round trip:\n got %+v\nwant %+v", snap.Audio, audio)
	}
	if snap.TextMetadata.TotalInterventions != 2 || snap.AudioMetadata.TotalInterventions != 2 {
		t.Errorf("unexpected metadata counts: %+v %+v", snap.TextMetadata, snap.AudioMetadata)
	}

	textMeta, textOnly, err := s.LoadText(ctx)
	if err != nil {
		t.Fatalf("LoadText failed: %v", err)
	}
	if textMeta.TotalInterventions != 2 || !reflect.DeepEqual(textOnly, text) {
		t.Errorf("LoadText returned unexpected data")
	}
	if _, audioOnly, err := s.LoadAudio(ctx); err != nil || len(audioOnly) != 2 {
		t.Errorf("LoadAudio returned %d guides, err %v", len(audioOnly), err)
	}

	// a second commit fully replaces the first
	delete(text, "Brisk Morning Walk")
	delete(audio, "Brisk Morning Walk")
	if _, err := s.Commit(ctx, text, audio); err != nil {
		t.Fatalf("second commit failed: %v", err)
	}
	snap, err = s.Load(ctx)
	if err != nil {
		t.Fatalf("load after second commit failed: %v", err)
	}
	if _, ok := snap.Text["Brisk Morning Walk"]; ok {
		t.Error("removed guide still present after full replacement")
	}
	if len(snap.Text) != 1 || len(snap.Audio) != 1 {
		t.Errorf("expected 1 guide per artifact, got %d/%d", len(snap.Text), len(snap.Audio))
	}

	bad := map[string]models.TextGuide{"Key": {InterventionTitle: "Other", Mode: models.GuideModeText}}
	if _, err := s.Commit(ctx, bad, nil); !errors.Is(err, ErrTitleMismatch) {
		t.Errorf("expected ErrTitleMismatch, got %v", err)
	}
	// the rejected commit must leave the previous store intact
	if snap, err = s.Load(ctx); err != nil || len(snap.Text) != 1 {
		t.Errorf("store changed after rejected commit: %d guides, err %v", len(snap.Text), err)
	}
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	defer s.Close()
	exerciseGuideStore(t, s)
}

func TestFileStoreRequiresStateDir(t *testing.T) {
	if _, err := NewFileStore(""); err == nil {
		t.Error("expected error for empty state dir")
	}
}

func TestFileStoreDetectsCountMismatch(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	text, audio := sampleGuides()
	if _, err := s.Commit(context.Background(), text, audio); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	dir, err := s.currentDir()
	if err != nil {
		t.Fatalf("currentDir failed: %v", err)
	}
	path := filepath.Join(dir, TextArtifactName)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	tampered := strings.Replace(string(data), `"total_interventions": 2`, `"total_interventions": 5`, 1)
	if tampered == string(data) {
		t.Fatal("test setup: metadata count not found in artifact")
	}
	if err := os.WriteFile(path, []byte(tampered), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, _, err := s.LoadText(context.Background()); !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("expected ErrCacheCorrupt, got %v", err)
	}
	if _, err := s.Load(context.Background()); !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("expected ErrCacheCorrupt from Load, got %v", err)
	}
}

func TestFileStoreDetectsGarbage(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	text, audio := sampleGuides()
	if _, err := s.Commit(context.Background(), text, audio); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	dir, _ := s.currentDir()
	if err := os.WriteFile(filepath.Join(dir, AudioArtifactName), []byte("module.exports = {"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if _, _, err := s.LoadAudio(context.Background()); !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("expected ErrCacheCorrupt, got %v", err)
	}
	// the text path does not touch the audio artifact
	if _, _, err := s.LoadText(context.Background()); err != nil {
		t.Errorf("LoadText should not depend on the audio artifact: %v", err)
	}
}

func TestFileStorePrunesOldGenerations(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	text, audio := sampleGuides()
	for i := 0; i < 4; i++ {
		if _, err := s.Commit(context.Background(), text, audio); err != nil {
			t.Fatalf("commit %d failed: %v", i, err)
		}
	}
	entries, err := os.ReadDir(s.Root())
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	gens := 0
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), generationPrefix) {
			gens++
		}
	}
	if gens != keepGenerations {
		t.Errorf("expected %d generations after pruning, got %d", keepGenerations, gens)
	}
	if _, err := s.Load(context.Background()); err != nil {
		t.Errorf("live generation unreadable after pruning: %v", err)
	}
}

func TestFileStoreLoadFollowsMovedLink(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	ctx := context.Background()
	text, audio := sampleGuides()
	if _, err := s.Commit(ctx, text, audio); err != nil {
		t.Fatalf("first commit failed: %v", err)
	}
	stale, err := s.currentDir()
	if err != nil {
		t.Fatalf("currentDir failed: %v", err)
	}
	delete(text, "Box Breathing")
	delete(audio, "Box Breathing")
	for i := 0; i < keepGenerations; i++ {
		if _, err := s.Commit(ctx, text, audio); err != nil {
			t.Fatalf("commit %d failed: %v", i, err)
		}
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be pruned, stat err = %v", stale, err)
	}

	// a reader that resolved the link before the commits lands on the newest generation
	snap, err := s.loadFrom(stale)
	if err != nil {
		t.Fatalf("loadFrom stale generation failed: %v", err)
	}
	if _, ok := snap.Text["Box Breathing"]; ok {
		t.Error("expected the newest generation, got the pruned one")
	}
	if len(snap.Text) != len(text) || len(snap.Audio) != len(audio) {
		t.Errorf("snapshot sizes = %d/%d, want %d/%d", len(snap.Text), len(snap.Audio), len(text), len(audio))
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "guides.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()
	exerciseGuideStore(t, s)
}

func TestSQLiteStoreDetectsCountMismatch(t *testing.T) {
	s, err := NewSQLiteStore(WithSQLiteDSN(filepath.Join(t.TempDir(), "guides.db")))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()
	text, audio := sampleGuides()
	if _, err := s.Commit(context.Background(), text, audio); err != nil {
		t.Fatalf("commit failed: %v", err)
	}
	if _, err := s.db.Exec(`DELETE FROM text_guides WHERE title = 'Box Breathing'`); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, _, err := s.LoadText(context.Background()); !errors.Is(err, ErrCacheCorrupt) {
		t.Errorf("expected ErrCacheCorrupt, got %v", err)
	}
}

func TestSQLiteStoreRequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); !errors.Is(err, ErrDSNNotSet) {
		t.Errorf("expected ErrDSNNotSet, got %v", err)
	}
}

func TestPostgresStore(t *testing.T) {
	// This test requires a running PostgreSQL instance.
	// Set the DATABASE_URL environment variable for connection string.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	pgStore, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer pgStore.Close()
	// Clean up tables before test
	pgStore.db.Exec("DELETE FROM text_guides")
	pgStore.db.Exec("DELETE FROM audio_guides")
	pgStore.db.Exec("DELETE FROM guide_cache_metadata")
	exerciseGuideStore(t, pgStore)
}

func TestDetectDSNType(t *testing.T) {
	tests := map[string]string{
		"postgres://user:pw@localhost/db":  "postgres",
		"postgresql://localhost/db":        "postgres",
		"host=localhost dbname=phaseguide": "postgres",
		"/var/lib/phaseguide/guides.db":    "sqlite",
		"file:guides.db?cache=shared":      "sqlite",
	}
	for dsn, want := range tests {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}

func TestNewSelectsBackend(t *testing.T) {
	dir := t.TempDir()
	s, err := New(WithStateDir(dir))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := s.(*FileStore); !ok {
		t.Errorf("expected *FileStore without DSN, got %T", s)
	}

	s, err = New(WithDSN(filepath.Join(dir, "guides.db")))
	if err != nil {
		t.Fatalf("New with sqlite DSN failed: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("expected *SQLiteStore for file DSN, got %T", s)
	}
}

func TestDollarPlaceholders(t *testing.T) {
	got := dollarPlaceholders("INSERT INTO t (a, b) VALUES (?, ?)")
	if got != "INSERT INTO t (a, b) VALUES ($1, $2)" {
		t.Errorf("unexpected rebind: %s", got)
	}
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}
