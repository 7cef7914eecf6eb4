// Package recommend answers "what should I do today" for a cycle position.
package recommend

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/PhaseGuide/internal/catalog"
	"github.com/BTreeMap/PhaseGuide/internal/cycle"
	"github.com/BTreeMap/PhaseGuide/internal/guidecache"
	"github.com/BTreeMap/PhaseGuide/internal/models"
)

// Item is one recommended intervention with whatever guide is cached for it.
type Item struct {
	Intervention models.Intervention `json:"intervention"`
	Guide        *models.TextGuide   `json:"guide,omitempty"`
	HasAudio     bool                `json:"has_audio"`
}

// Recommendation is the cycle position plus the matching interventions.
type Recommendation struct {
	Cycle models.CycleInfo `json:"cycle"`
	Items []Item           `json:"interventions"`
}

// Service joins the cycle calculator, the catalog and the guide cache.
type Service struct {
	catalog *catalog.Catalog
	cache   *guidecache.Cache
}

// NewService builds a Service. cache may be nil, in which case no guides are attached.
func NewService(c *catalog.Catalog, cache *guidecache.Cache) *Service {
	return &Service{catalog: c, cache: cache}
}

// Recommend detects the phase for the given cycle and returns the catalog
// interventions tagged with it, in catalog order.
func (s *Service) Recommend(lastPeriod time.Time, cycleLength int, now time.Time) (Recommendation, error) {
	info, err := cycle.DetectPhase(lastPeriod, cycleLength, now)
	if err != nil {
		return Recommendation{}, fmt.Errorf("detecting cycle phase: %w", err)
	}

	interventions := s.catalog.ForPhase(info.Phase)
	rec := Recommendation{Cycle: info, Items: make([]Item, 0, len(interventions))}
	for _, iv := range interventions {
		item := Item{Intervention: iv}
		if s.cache != nil {
			if g, ok := s.cache.LookupText(iv.Title); ok {
				item.Guide = &g
			}
			if a, ok := s.cache.LookupAudio(iv.Title); ok {
				item.HasAudio = a.HasAudio()
			}
		}
		rec.Items = append(rec.Items, item)
	}

	slog.Debug("recommend.Service.Recommend: done", "phase", info.Phase, "day", info.DayOfCycle, "items", len(rec.Items))
	return rec, nil
}
