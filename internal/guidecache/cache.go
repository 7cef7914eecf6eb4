// Package guidecache is the read-many, write-rare view of generated guides.
//
// A Cache loads a snapshot from a store.GuideStore once and serves exact-title
// lookups from memory. Commit writes the store and then swaps the in-memory
// snapshot in one step, so concurrent readers see the old or the new guides,
// never a mix.
package guidecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/BTreeMap/PhaseGuide/internal/models"
	"github.com/BTreeMap/PhaseGuide/internal/store"
)

// snapshot is immutable once published.
type snapshot struct {
	metadata    models.GuideCacheMetadata
	text        map[string]models.TextGuide
	audio       map[string]models.AudioGuide
	audioLoaded bool
}

var emptySnapshot = &snapshot{
	text:  map[string]models.TextGuide{},
	audio: map[string]models.AudioGuide{},
}

// Cache serves guide lookups backed by a GuideStore.
type Cache struct {
	store   store.GuideStore
	current atomic.Pointer[snapshot]
}

// New returns an empty cache over s. Call Load or LoadText before lookups.
func New(s store.GuideStore) *Cache {
	c := &Cache{store: s}
	c.current.Store(emptySnapshot)
	return c
}

// Load reads both artifacts. store.ErrCacheMissing leaves the cache empty and
// is returned so the caller can treat it as "no guides yet"; any other error
// leaves the previous snapshot in place.
func (c *Cache) Load(ctx context.Context) error {
	snap, err := c.store.Load(ctx)
	if err != nil {
		return c.loadFailed("Load", err)
	}
	c.current.Store(&snapshot{
		metadata:    snap.TextMetadata,
		text:        snap.Text,
		audio:       snap.Audio,
		audioLoaded: true,
	})
	slog.Debug("guidecache.Cache.Load: snapshot published", "text", len(snap.Text), "audio", len(snap.Audio))
	return nil
}

// LoadText reads only the text artifact. Audio lookups miss until Load is called.
func (c *Cache) LoadText(ctx context.Context) error {
	meta, text, err := c.store.LoadText(ctx)
	if err != nil {
		return c.loadFailed("LoadText", err)
	}
	c.current.Store(&snapshot{
		metadata: meta,
		text:     text,
		audio:    map[string]models.AudioGuide{},
	})
	slog.Debug("guidecache.Cache.LoadText: snapshot published", "text", len(text))
	return nil
}

func (c *Cache) loadFailed(op string, err error) error {
	if errors.Is(err, store.ErrCacheMissing) {
		slog.Info("guidecache.Cache." + op + ": no guide cache yet, starting empty")
		c.current.Store(emptySnapshot)
		return err
	}
	if errors.Is(err, store.ErrCacheCorrupt) {
		slog.Error("guidecache.Cache."+op+": guide cache is corrupt, keeping previous snapshot", "error", err)
	} else {
		slog.Error("guidecache.Cache."+op+": failed to load guide cache", "error", err)
	}
	return fmt.Errorf("loading guide cache: %w", err)
}

// LookupText returns the text guide for an exact, case-sensitive title.
func (c *Cache) LookupText(title string) (models.TextGuide, bool) {
	g, ok := c.current.Load().text[title]
	if !ok {
		return models.TextGuide{}, false
	}
	return g.Clone(), true
}

// LookupAudio returns the audio guide for an exact, case-sensitive title.
func (c *Cache) LookupAudio(title string) (models.AudioGuide, bool) {
	g, ok := c.current.Load().audio[title]
	if !ok {
		return models.AudioGuide{}, false
	}
	return g.Clone(), true
}

// Has reports whether a text guide exists for title.
func (c *Cache) Has(title string) bool {
	_, ok := c.current.Load().text[title]
	return ok
}

// Metadata returns the metadata of the loaded text artifact.
func (c *Cache) Metadata() models.GuideCacheMetadata {
	return c.current.Load().metadata
}

// AudioLoaded reports whether the audio artifact is part of the current snapshot.
func (c *Cache) AudioLoaded() bool {
	return c.current.Load().audioLoaded
}

// Len returns the number of cached text guides.
func (c *Cache) Len() int {
	return len(c.current.Load().text)
}

// Titles returns the cached titles in sorted order.
func (c *Cache) Titles() []string {
	text := c.current.Load().text
	titles := make([]string, 0, len(text))
	for t := range text {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}

// TextGuides returns a copy of every cached text guide.
func (c *Cache) TextGuides() map[string]models.TextGuide {
	text := c.current.Load().text
	out := make(map[string]models.TextGuide, len(text))
	for k, v := range text {
		out[k] = v.Clone()
	}
	return out
}

// AudioGuides returns a copy of every cached audio guide.
func (c *Cache) AudioGuides() map[string]models.AudioGuide {
	audio := c.current.Load().audio
	out := make(map[string]models.AudioGuide, len(audio))
	for k, v := range audio {
		out[k] = v.Clone()
	}
	return out
}

// Commit replaces the persisted store with the given maps and then publishes
// them as the in-memory snapshot. The maps are copied; later mutation by the
// caller does not affect the cache.
func (c *Cache) Commit(ctx context.Context, text map[string]models.TextGuide, audio map[string]models.AudioGuide) (models.GuideCacheMetadata, error) {
	textCopy := make(map[string]models.TextGuide, len(text))
	for k, v := range text {
		textCopy[k] = v.Clone()
	}
	audioCopy := make(map[string]models.AudioGuide, len(audio))
	for k, v := range audio {
		audioCopy[k] = v.Clone()
	}

	meta, err := c.store.Commit(ctx, textCopy, audioCopy)
	if err != nil {
		slog.Error("guidecache.Cache.Commit: store commit failed", "error", err)
		return models.GuideCacheMetadata{}, fmt.Errorf("committing guide cache: %w", err)
	}
	c.current.Store(&snapshot{
		metadata:    meta,
		text:        textCopy,
		audio:       audioCopy,
		audioLoaded: true,
	})
	slog.Info("guidecache.Cache.Commit: snapshot published", "text", len(textCopy), "audio", len(audioCopy))
	return meta, nil
}
