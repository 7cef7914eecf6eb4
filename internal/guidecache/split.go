package guidecache

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/BTreeMap/PhaseGuide/internal/models"
)

// SplitResult holds the two independent stores produced from a combined payload.
type SplitResult struct {
	TextMetadata  models.GuideCacheMetadata
	Text          map[string]models.TextGuide
	AudioMetadata models.GuideCacheMetadata
	Audio         map[string]models.AudioGuide
	Skipped       []string // titles missing a half or naming another title, sorted
}

// Split partitions a combined title -> {text, audio} payload into a text-only
// map and an audio-only map. Entries lacking either half, or whose guides name
// a different title than their key, are skipped and logged. Guides without a
// title or mode take them from the key and map.
func Split(combined map[string]models.CombinedGuide, now time.Time) SplitResult {
	res := SplitResult{
		Text:  make(map[string]models.TextGuide, len(combined)),
		Audio: make(map[string]models.AudioGuide, len(combined)),
	}
	for _, title := range sortedKeys(combined) {
		entry := combined[title]
		if entry.Text == nil || entry.Audio == nil {
			slog.Warn("guidecache.Split: skipping entry without both text and audio",
				"title", title, "has_text", entry.Text != nil, "has_audio", entry.Audio != nil)
			res.Skipped = append(res.Skipped, title)
			continue
		}
		text, audio := entry.Text.Clone(), entry.Audio.Clone()
		if text.InterventionTitle == "" {
			text.InterventionTitle = title
		}
		if audio.InterventionTitle == "" {
			audio.InterventionTitle = title
		}
		if text.InterventionTitle != title || audio.InterventionTitle != title {
			slog.Warn("guidecache.Split: skipping entry whose guides name another title",
				"title", title, "text_title", text.InterventionTitle, "audio_title", audio.InterventionTitle)
			res.Skipped = append(res.Skipped, title)
			continue
		}
		if text.Mode == "" {
			text.Mode = models.GuideModeText
		}
		if audio.Mode == "" {
			audio.Mode = models.GuideModeAudio
		}
		res.Text[title] = text
		res.Audio[title] = audio
	}
	res.TextMetadata = models.NewGuideCacheMetadata(len(res.Text), now)
	res.AudioMetadata = models.NewGuideCacheMetadata(len(res.Audio), now)
	slog.Debug("guidecache.Split: done", "input", len(combined), "split", len(res.Text), "skipped", len(res.Skipped))
	return res
}

// Merge rebuilds a combined payload from split stores. Titles present in only
// one map produce an entry with the other half nil.
func Merge(text map[string]models.TextGuide, audio map[string]models.AudioGuide) map[string]models.CombinedGuide {
	out := make(map[string]models.CombinedGuide, len(text))
	for title, g := range text {
		g := g.Clone()
		entry := out[title]
		entry.Text = &g
		out[title] = entry
	}
	for title, g := range audio {
		g := g.Clone()
		entry := out[title]
		entry.Audio = &g
		out[title] = entry
	}
	return out
}

// ReadCombined decodes a legacy combined payload. Both a bare title map and a
// {"metadata": ..., "guides": {...}} wrapper are accepted.
func ReadCombined(r io.Reader) (map[string]models.CombinedGuide, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading combined payload: %w", err)
	}

	var wrapped struct {
		Metadata *models.GuideCacheMetadata      `json:"metadata"`
		Guides   map[string]models.CombinedGuide `json:"guides"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Metadata != nil && wrapped.Guides != nil {
		return wrapped.Guides, nil
	}

	var bare map[string]models.CombinedGuide
	if err := json.Unmarshal(data, &bare); err != nil {
		return nil, fmt.Errorf("decoding combined payload: %w", err)
	}
	return bare, nil
}

// WriteCombined encodes a combined payload with its metadata wrapper.
func WriteCombined(w io.Writer, combined map[string]models.CombinedGuide, now time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Metadata models.GuideCacheMetadata       `json:"metadata"`
		Guides   map[string]models.CombinedGuide `json:"guides"`
	}{
		Metadata: models.NewGuideCacheMetadata(len(combined), now),
		Guides:   combined,
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
