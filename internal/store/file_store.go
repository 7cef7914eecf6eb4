package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BTreeMap/PhaseGuide/internal/models"
)

// File backend layout constants.
const (
	// GuidesDirName is created under the state directory to hold all generations.
	GuidesDirName = "guides"
	// CurrentLinkName is the symlink naming the live generation.
	CurrentLinkName = "current"
	// TextArtifactName and AudioArtifactName are the two files of a generation.
	TextArtifactName  = "text_guides.json"
	AudioArtifactName = "audio_guides.json"

	generationPrefix = "gen-"
	// keepGenerations is how many generations survive pruning, so a reader that
	// resolved an earlier link can usually finish.
	keepGenerations = 3
	// loadAttempts bounds how often Load follows a moved link after its
	// generation was pruned mid-read.
	loadAttempts = 3
	// DefaultDirPermissions defines the default permissions for store directories
	DefaultDirPermissions = 0755
)

// textArtifact is the on-disk shape of the text-guide store.
type textArtifact struct {
	Metadata models.GuideCacheMetadata   `json:"metadata"`
	Guides   map[string]models.TextGuide `json:"guides"`
}

// audioArtifact is the on-disk shape of the audio-guide store.
type audioArtifact struct {
	Metadata models.GuideCacheMetadata `json:"metadata"`
	Guides   []models.AudioGuide       `json:"guides"`
}

// FileStore keeps the two artifacts as JSON files inside a generation
// directory and publishes a generation by swapping the "current" symlink.
type FileStore struct {
	root string
	now  func() time.Time
}

// Compile-time check that FileStore implements GuideStore.
var _ GuideStore = (*FileStore)(nil)

// NewFileStore creates a file store under <stateDir>/guides.
func NewFileStore(stateDir string) (*FileStore, error) {
	if stateDir == "" {
		return nil, fmt.Errorf("state directory not set")
	}
	root := filepath.Join(stateDir, GuidesDirName)
	if err := os.MkdirAll(root, DefaultDirPermissions); err != nil {
		slog.Error("FileStore: failed to create guides directory", "error", err, "dir", root)
		return nil, fmt.Errorf("failed to create guides directory: %w", err)
	}
	slog.Debug("FileStore: guides directory verified/created", "dir", root)
	return &FileStore{root: root, now: time.Now}, nil
}

// Root returns the directory holding the generations.
func (s *FileStore) Root() string { return s.root }

// currentDir resolves the live generation directory.
func (s *FileStore) currentDir() (string, error) {
	target, err := os.Readlink(filepath.Join(s.root, CurrentLinkName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrCacheMissing
		}
		return "", fmt.Errorf("failed to resolve current generation: %w", err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(s.root, target)
	}
	return target, nil
}

// Load reads both artifacts from the same generation.
func (s *FileStore) Load(ctx context.Context) (Snapshot, error) {
	dir, err := s.currentDir()
	if err != nil {
		return Snapshot{}, err
	}
	return s.loadFrom(dir)
}

// loadFrom reads dir and, if it vanished under a concurrent commit, retries
// against the generation the link now points to.
func (s *FileStore) loadFrom(dir string) (Snapshot, error) {
	for attempt := 1; ; attempt++ {
		snap, err := loadGeneration(dir)
		if err == nil || !errors.Is(err, ErrCacheMissing) || attempt == loadAttempts {
			return snap, err
		}
		next, lerr := s.currentDir()
		if lerr != nil || next == dir {
			return Snapshot{}, err
		}
		slog.Debug("FileStore.Load: generation pruned during read, retrying", "dir", dir, "current", next)
		dir = next
	}
}

func loadGeneration(dir string) (Snapshot, error) {
	var err error
	var snap Snapshot
	if snap.TextMetadata, snap.Text, err = readTextArtifact(dir); err != nil {
		return Snapshot{}, err
	}
	if snap.AudioMetadata, snap.Audio, err = readAudioArtifact(dir); err != nil {
		return Snapshot{}, err
	}
	slog.Debug("FileStore.Load succeeded", "dir", dir, "text", len(snap.Text), "audio", len(snap.Audio))
	return snap, nil
}

// LoadText reads the text artifact only.
func (s *FileStore) LoadText(ctx context.Context) (models.GuideCacheMetadata, map[string]models.TextGuide, error) {
	dir, err := s.currentDir()
	if err != nil {
		return models.GuideCacheMetadata{}, nil, err
	}
	return readTextArtifact(dir)
}

// LoadAudio reads the audio artifact only.
func (s *FileStore) LoadAudio(ctx context.Context) (models.GuideCacheMetadata, map[string]models.AudioGuide, error) {
	dir, err := s.currentDir()
	if err != nil {
		return models.GuideCacheMetadata{}, nil, err
	}
	return readAudioArtifact(dir)
}

// Commit writes a new generation directory and then swaps the current link to it.
func (s *FileStore) Commit(ctx context.Context, text map[string]models.TextGuide, audio map[string]models.AudioGuide) (models.GuideCacheMetadata, error) {
	if err := validateCommit(text, audio); err != nil {
		return models.GuideCacheMetadata{}, err
	}
	now := s.now()
	textMeta := models.NewGuideCacheMetadata(len(text), now)
	audioMeta := models.NewGuideCacheMetadata(len(audio), now)

	dir, err := os.MkdirTemp(s.root, generationPrefix+now.UTC().Format("20060102T150405.000000000")+"-")
	if err != nil {
		return models.GuideCacheMetadata{}, fmt.Errorf("failed to create generation directory: %w", err)
	}

	audioList := make([]models.AudioGuide, 0, len(audio))
	for _, title := range sortedTitles(audio) {
		audioList = append(audioList, audio[title])
	}
	if text == nil {
		text = map[string]models.TextGuide{}
	}

	if err := writeJSONFile(filepath.Join(dir, TextArtifactName), textArtifact{Metadata: textMeta, Guides: text}); err != nil {
		os.RemoveAll(dir)
		return models.GuideCacheMetadata{}, err
	}
	if err := writeJSONFile(filepath.Join(dir, AudioArtifactName), audioArtifact{Metadata: audioMeta, Guides: audioList}); err != nil {
		os.RemoveAll(dir)
		return models.GuideCacheMetadata{}, err
	}

	if err := s.swapCurrent(filepath.Base(dir)); err != nil {
		os.RemoveAll(dir)
		return models.GuideCacheMetadata{}, err
	}
	slog.Info("FileStore.Commit succeeded", "generation", filepath.Base(dir), "text", len(text), "audio", len(audio))

	s.prune(filepath.Base(dir))
	return textMeta, nil
}

// swapCurrent atomically points the current link at generation.
func (s *FileStore) swapCurrent(generation string) error {
	tmp := filepath.Join(s.root, fmt.Sprintf(".%s-%d", CurrentLinkName, s.now().UnixNano()))
	if err := os.Symlink(generation, tmp); err != nil {
		return fmt.Errorf("failed to create generation link: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.root, CurrentLinkName)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish generation: %w", err)
	}
	return nil
}

// prune removes all but the newest generations. Failures are logged only.
func (s *FileStore) prune(live string) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		slog.Warn("FileStore.prune: failed to list generations", "error", err)
		return
	}
	var gens []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), generationPrefix) && e.Name() != live {
			gens = append(gens, e.Name())
		}
	}
	// names embed the commit timestamp, so lexical order is commit order
	sort.Strings(gens)
	for len(gens) > keepGenerations-1 {
		old := gens[0]
		gens = gens[1:]
		if err := os.RemoveAll(filepath.Join(s.root, old)); err != nil {
			slog.Warn("FileStore.prune: failed to remove generation", "generation", old, "error", err)
			continue
		}
		slog.Debug("FileStore.prune: removed generation", "generation", old)
	}
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error { return nil }

func readTextArtifact(dir string) (models.GuideCacheMetadata, map[string]models.TextGuide, error) {
	var a textArtifact
	if err := readJSONFile(filepath.Join(dir, TextArtifactName), &a); err != nil {
		return models.GuideCacheMetadata{}, nil, err
	}
	if a.Guides == nil {
		a.Guides = map[string]models.TextGuide{}
	}
	if err := checkCount("text", a.Metadata, len(a.Guides)); err != nil {
		return models.GuideCacheMetadata{}, nil, err
	}
	return a.Metadata, a.Guides, nil
}

func readAudioArtifact(dir string) (models.GuideCacheMetadata, map[string]models.AudioGuide, error) {
	var a audioArtifact
	if err := readJSONFile(filepath.Join(dir, AudioArtifactName), &a); err != nil {
		return models.GuideCacheMetadata{}, nil, err
	}
	guides := make(map[string]models.AudioGuide, len(a.Guides))
	for _, g := range a.Guides {
		if _, dup := guides[g.InterventionTitle]; dup {
			return models.GuideCacheMetadata{}, nil, fmt.Errorf("%w: duplicate audio guide %q", ErrCacheCorrupt, g.InterventionTitle)
		}
		guides[g.InterventionTitle] = g
	}
	if err := checkCount("audio", a.Metadata, len(guides)); err != nil {
		return models.GuideCacheMetadata{}, nil, err
	}
	return a.Metadata, guides, nil
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrCacheMissing, filepath.Base(path))
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: decoding %s: %v", ErrCacheCorrupt, filepath.Base(path), err)
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	return f.Close()
}
