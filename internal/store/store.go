// Package store provides persistence backends for the generated-guide cache.
//
// A GuideStore holds two independent artifacts: the text guides and the audio
// guides, each with its own metadata block. Commit replaces both in a single
// atomic step so readers observe either the previous or the new store, never a mix.
package store

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BTreeMap/PhaseGuide/internal/models"
)

var (
	// ErrCacheMissing means no store has been committed yet. Callers treat it as
	// "no guides generated yet".
	ErrCacheMissing = errors.New("guide cache not found")
	// ErrCacheCorrupt means the persisted store cannot be trusted, e.g. its
	// metadata count disagrees with the number of stored guides.
	ErrCacheCorrupt = errors.New("guide cache corrupt")
	// ErrTitleMismatch is returned on commit when a map key differs from the guide's title.
	ErrTitleMismatch = errors.New("guide title does not match its key")
	// ErrDSNNotSet is returned by SQL backends created without a DSN.
	ErrDSNNotSet = errors.New("database DSN not set")
)

// Snapshot is one consistent read of both artifacts.
type Snapshot struct {
	TextMetadata  models.GuideCacheMetadata
	Text          map[string]models.TextGuide
	AudioMetadata models.GuideCacheMetadata
	Audio         map[string]models.AudioGuide
}

// GuideStore is the durable key/value store behind the guide cache.
type GuideStore interface {
	// Load reads both artifacts from the same committed generation.
	Load(ctx context.Context) (Snapshot, error)
	// LoadText reads the text-guide artifact only.
	LoadText(ctx context.Context) (models.GuideCacheMetadata, map[string]models.TextGuide, error)
	// LoadAudio reads the audio-guide artifact only.
	LoadAudio(ctx context.Context) (models.GuideCacheMetadata, map[string]models.AudioGuide, error)
	// Commit atomically replaces both artifacts and returns the text metadata written.
	Commit(ctx context.Context, text map[string]models.TextGuide, audio map[string]models.AudioGuide) (models.GuideCacheMetadata, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration for store backends.
type Opts struct {
	DSN      string // database connection string or SQLite file path
	StateDir string // root directory for the file backend
	Kind     string // "file", "sqlite" or "postgres"; derived from the DSN when empty
}

// Option configures a store backend.
type Option func(*Opts)

// WithSQLiteDSN selects the SQLite backend at the given file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Kind = "sqlite"
	}
}

// WithPostgresDSN selects the PostgreSQL backend.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
		o.Kind = "postgres"
	}
}

// WithDSN sets a DSN and lets New pick the backend via DetectDSNType.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithStateDir sets the directory used by the file backend.
func WithStateDir(dir string) Option {
	return func(o *Opts) { o.StateDir = dir }
}

// DetectDSNType returns "postgres" for PostgreSQL connection strings and "sqlite" otherwise.
func DetectDSNType(dsn string) string {
	lower := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") ||
		strings.Contains(lower, "host=") || strings.Contains(lower, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}

// New builds the backend selected by the options: a SQL backend when a DSN is
// set, otherwise the file backend rooted at the state directory.
func New(opts ...Option) (GuideStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	kind := cfg.Kind
	if kind == "" {
		if cfg.DSN != "" {
			kind = DetectDSNType(cfg.DSN)
		} else {
			kind = "file"
		}
	}
	slog.Debug("store.New: selecting backend", "kind", kind, "dsn_set", cfg.DSN != "", "state_dir", cfg.StateDir)

	switch kind {
	case "postgres":
		return NewPostgresStore(opts...)
	case "sqlite":
		return NewSQLiteStore(opts...)
	default:
		return NewFileStore(cfg.StateDir)
	}
}
