package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/PhaseGuide/internal/models"
)

// Artifact names used as keys in guide_cache_metadata.
const (
	artifactText  = "text"
	artifactAudio = "audio"
)

// sqlGuideStore implements GuideStore over database/sql. Queries are written
// with "?" placeholders and rebound for the active driver.
type sqlGuideStore struct {
	db     *sql.DB
	name   string // backend name used in log lines
	rebind func(string) string
	readTx *sql.TxOptions
	now    func() time.Time
}

func (s *sqlGuideStore) Load(ctx context.Context) (Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, s.readTx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	var snap Snapshot
	if snap.TextMetadata, snap.Text, err = s.loadText(ctx, tx); err != nil {
		return Snapshot{}, err
	}
	if snap.AudioMetadata, snap.Audio, err = s.loadAudio(ctx, tx); err != nil {
		return Snapshot{}, err
	}
	slog.Debug(s.name+".Load succeeded", "text", len(snap.Text), "audio", len(snap.Audio))
	return snap, nil
}

func (s *sqlGuideStore) LoadText(ctx context.Context) (models.GuideCacheMetadata, map[string]models.TextGuide, error) {
	tx, err := s.db.BeginTx(ctx, s.readTx)
	if err != nil {
		return models.GuideCacheMetadata{}, nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()
	return s.loadText(ctx, tx)
}

func (s *sqlGuideStore) LoadAudio(ctx context.Context) (models.GuideCacheMetadata, map[string]models.AudioGuide, error) {
	tx, err := s.db.BeginTx(ctx, s.readTx)
	if err != nil {
		return models.GuideCacheMetadata{}, nil, fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()
	return s.loadAudio(ctx, tx)
}

func (s *sqlGuideStore) loadMetadata(ctx context.Context, tx *sql.Tx, artifact string) (models.GuideCacheMetadata, error) {
	var m models.GuideCacheMetadata
	err := tx.QueryRowContext(ctx,
		s.rebind(`SELECT version, generated_at, total_interventions FROM guide_cache_metadata WHERE artifact = ?`),
		artifact,
	).Scan(&m.Version, &m.GeneratedAt, &m.TotalInterventions)
	if errors.Is(err, sql.ErrNoRows) {
		return m, ErrCacheMissing
	}
	if err != nil {
		slog.Error(s.name+" metadata query failed", "artifact", artifact, "error", err)
		return m, fmt.Errorf("failed to query %s metadata: %w", artifact, err)
	}
	m.GeneratedAt = m.GeneratedAt.UTC()
	return m, nil
}

func (s *sqlGuideStore) loadText(ctx context.Context, tx *sql.Tx) (models.GuideCacheMetadata, map[string]models.TextGuide, error) {
	meta, err := s.loadMetadata(ctx, tx, artifactText)
	if err != nil {
		return meta, nil, err
	}
	rows, err := tx.QueryContext(ctx, `SELECT title, guide_json FROM text_guides`)
	if err != nil {
		return meta, nil, fmt.Errorf("failed to query text guides: %w", err)
	}
	defer rows.Close()

	guides := make(map[string]models.TextGuide)
	for rows.Next() {
		var title string
		var body []byte
		if err := rows.Scan(&title, &body); err != nil {
			return meta, nil, fmt.Errorf("failed to scan text guide row: %w", err)
		}
		var g models.TextGuide
		if err := json.Unmarshal(body, &g); err != nil {
			return meta, nil, fmt.Errorf("%w: decoding text guide %q: %v", ErrCacheCorrupt, title, err)
		}
		guides[title] = g
	}
	if err := rows.Err(); err != nil {
		return meta, nil, fmt.Errorf("failed to iterate text guide rows: %w", err)
	}
	if err := checkCount(artifactText, meta, len(guides)); err != nil {
		return meta, nil, err
	}
	return meta, guides, nil
}

func (s *sqlGuideStore) loadAudio(ctx context.Context, tx *sql.Tx) (models.GuideCacheMetadata, map[string]models.AudioGuide, error) {
	meta, err := s.loadMetadata(ctx, tx, artifactAudio)
	if err != nil {
		return meta, nil, err
	}
	rows, err := tx.QueryContext(ctx, `SELECT title, guide_json, audio_payload FROM audio_guides`)
	if err != nil {
		return meta, nil, fmt.Errorf("failed to query audio guides: %w", err)
	}
	defer rows.Close()

	guides := make(map[string]models.AudioGuide)
	for rows.Next() {
		var title string
		var body, payload []byte
		if err := rows.Scan(&title, &body, &payload); err != nil {
			return meta, nil, fmt.Errorf("failed to scan audio guide row: %w", err)
		}
		var g models.AudioGuide
		if err := json.Unmarshal(body, &g); err != nil {
			return meta, nil, fmt.Errorf("%w: decoding audio guide %q: %v", ErrCacheCorrupt, title, err)
		}
		if len(payload) > 0 {
			g.AudioPayload = payload
		}
		guides[title] = g
	}
	if err := rows.Err(); err != nil {
		return meta, nil, fmt.Errorf("failed to iterate audio guide rows: %w", err)
	}
	if err := checkCount(artifactAudio, meta, len(guides)); err != nil {
		return meta, nil, err
	}
	return meta, guides, nil
}

// Commit replaces every row of both artifacts inside one transaction.
func (s *sqlGuideStore) Commit(ctx context.Context, text map[string]models.TextGuide, audio map[string]models.AudioGuide) (models.GuideCacheMetadata, error) {
	if err := validateCommit(text, audio); err != nil {
		return models.GuideCacheMetadata{}, err
	}
	now := s.now()
	textMeta := models.NewGuideCacheMetadata(len(text), now)
	audioMeta := models.NewGuideCacheMetadata(len(audio), now)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.GuideCacheMetadata{}, fmt.Errorf("failed to begin commit transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{`DELETE FROM text_guides`, `DELETE FROM audio_guides`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return models.GuideCacheMetadata{}, fmt.Errorf("failed to clear guides: %w", err)
		}
	}

	insertText := s.rebind(`INSERT INTO text_guides (title, guide_json) VALUES (?, ?)`)
	for _, title := range sortedTitles(text) {
		body, err := json.Marshal(text[title])
		if err != nil {
			return models.GuideCacheMetadata{}, fmt.Errorf("failed to encode text guide %q: %w", title, err)
		}
		if _, err := tx.ExecContext(ctx, insertText, title, string(body)); err != nil {
			slog.Error(s.name+".Commit text insert failed", "title", title, "error", err)
			return models.GuideCacheMetadata{}, fmt.Errorf("failed to insert text guide %q: %w", title, err)
		}
	}

	insertAudio := s.rebind(`INSERT INTO audio_guides (title, guide_json, audio_payload) VALUES (?, ?, ?)`)
	for _, title := range sortedTitles(audio) {
		g := audio[title]
		payload := g.AudioPayload
		g.AudioPayload = nil
		body, err := json.Marshal(g)
		if err != nil {
			return models.GuideCacheMetadata{}, fmt.Errorf("failed to encode audio guide %q: %w", title, err)
		}
		if _, err := tx.ExecContext(ctx, insertAudio, title, string(body), nilIfEmpty(payload)); err != nil {
			slog.Error(s.name+".Commit audio insert failed", "title", title, "error", err)
			return models.GuideCacheMetadata{}, fmt.Errorf("failed to insert audio guide %q: %w", title, err)
		}
	}

	upsert := s.rebind(`INSERT INTO guide_cache_metadata (artifact, version, generated_at, total_interventions)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (artifact) DO UPDATE SET version = excluded.version,
			generated_at = excluded.generated_at, total_interventions = excluded.total_interventions`)
	for artifact, m := range map[string]models.GuideCacheMetadata{artifactText: textMeta, artifactAudio: audioMeta} {
		if _, err := tx.ExecContext(ctx, upsert, artifact, m.Version, m.GeneratedAt, m.TotalInterventions); err != nil {
			return models.GuideCacheMetadata{}, fmt.Errorf("failed to write %s metadata: %w", artifact, err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error(s.name+".Commit failed", "error", err)
		return models.GuideCacheMetadata{}, fmt.Errorf("failed to commit guide cache: %w", err)
	}
	slog.Info(s.name+".Commit succeeded", "text", len(text), "audio", len(audio))
	return textMeta, nil
}

func (s *sqlGuideStore) Close() error {
	return s.db.Close()
}

// questionMarks leaves "?" placeholders untouched.
func questionMarks(q string) string { return q }

// dollarPlaceholders rewrites "?" placeholders as $1, $2, ...
func dollarPlaceholders(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}
