package cli

import (
	"fmt"
	"log/slog"

	"github.com/BTreeMap/PhaseGuide/internal/catalog"
	"github.com/BTreeMap/PhaseGuide/internal/genai"
	"github.com/BTreeMap/PhaseGuide/internal/pipeline"
	"github.com/BTreeMap/PhaseGuide/internal/speech"
	"github.com/BTreeMap/PhaseGuide/internal/store"
)

// App carries the resolved configuration shared by all commands.
type App struct {
	cfg Config
}

// openStore builds the guide store: a SQL backend when a DSN is configured,
// otherwise the file backend in the state directory.
func (a *App) openStore() (store.GuideStore, error) {
	var opts []store.Option
	if a.cfg.DatabaseURL != "" {
		if store.DetectDSNType(a.cfg.DatabaseURL) == "postgres" {
			slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
			opts = append(opts, store.WithPostgresDSN(a.cfg.DatabaseURL))
		} else {
			slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", a.cfg.DatabaseURL)
			opts = append(opts, store.WithSQLiteDSN(a.cfg.DatabaseURL))
		}
	} else {
		opts = append(opts, store.WithStateDir(a.cfg.StateDir))
	}
	st, err := store.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("opening guide store: %w", err)
	}
	return st, nil
}

func (a *App) loadCatalog() (*catalog.Catalog, error) {
	c, err := catalog.LoadOrDefault(a.cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("loading intervention catalog: %w", err)
	}
	return c, nil
}

// textGenerator returns nil when no OpenAI key is configured; the pipeline
// then builds every guide from the catalog instructions.
func (a *App) textGenerator() pipeline.TextGenerator {
	if a.cfg.OpenAIKey == "" {
		slog.Warn("App.textGenerator: OPENAI_API_KEY not set, guides will use catalog instructions")
		return nil
	}
	opts := []genai.Option{
		genai.WithAPIKey(a.cfg.OpenAIKey),
		genai.WithDebugMode(a.cfg.GenAIDebug),
		genai.WithStateDir(a.cfg.StateDir),
	}
	if a.cfg.OpenAIModel != "" {
		opts = append(opts, genai.WithModel(a.cfg.OpenAIModel))
	}
	client, err := genai.NewClient(opts...)
	if err != nil {
		slog.Warn("App.textGenerator: text generator unavailable", "error", err)
		return nil
	}
	return client
}

// synthesizer returns nil when no ElevenLabs key is configured.
func (a *App) synthesizer() pipeline.AudioSynthesizer {
	if a.cfg.ElevenLabsKey == "" {
		slog.Warn("App.synthesizer: ELEVENLABS_API_KEY not set, audio guides will have no payload")
		return nil
	}
	return speech.NewElevenLabsClient(a.cfg.ElevenLabsKey,
		speech.WithVoice(a.cfg.ElevenLabsVoice),
		speech.WithStability(a.cfg.VoiceStability),
		speech.WithSimilarity(a.cfg.VoiceSimilarity),
	)
}
