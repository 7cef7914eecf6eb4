package store

import (
	"fmt"
	"sort"

	"github.com/BTreeMap/PhaseGuide/internal/models"
)

// nilIfEmpty returns nil for an empty payload so nullable columns store NULL.
func nilIfEmpty(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// validateCommit checks that every key matches the guide it points to.
func validateCommit(text map[string]models.TextGuide, audio map[string]models.AudioGuide) error {
	for title, g := range text {
		if g.InterventionTitle != title {
			return fmt.Errorf("%w: text key %q, guide %q", ErrTitleMismatch, title, g.InterventionTitle)
		}
	}
	for title, g := range audio {
		if g.InterventionTitle != title {
			return fmt.Errorf("%w: audio key %q, guide %q", ErrTitleMismatch, title, g.InterventionTitle)
		}
	}
	return nil
}

// checkCount enforces the metadata invariant for one artifact.
func checkCount(artifact string, meta models.GuideCacheMetadata, stored int) error {
	if meta.TotalInterventions != stored {
		return fmt.Errorf("%w: %s metadata lists %d interventions but %d are stored",
			ErrCacheCorrupt, artifact, meta.TotalInterventions, stored)
	}
	return nil
}

// sortedTitles returns map keys in a stable order for deterministic writes.
func sortedTitles[V any](m map[string]V) []string {
	titles := make([]string, 0, len(m))
	for t := range m {
		titles = append(titles, t)
	}
	sort.Strings(titles)
	return titles
}
