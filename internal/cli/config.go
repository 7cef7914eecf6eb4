package cli

import (
	"log/slog"
	"os"
	"time"

	"github.com/BTreeMap/PhaseGuide/internal/pipeline"
	"github.com/BTreeMap/PhaseGuide/internal/speech"
	"github.com/BTreeMap/PhaseGuide/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for PhaseGuide state data
	DefaultStateDir = "/var/lib/phaseguide"
	// DefaultSchedule regenerates missing guides once a day
	DefaultSchedule = "@daily"
)

// Config holds environment configuration. Command line flags use these values as defaults.
type Config struct {
	StateDir        string
	DatabaseURL     string
	CatalogPath     string
	OpenAIKey       string
	OpenAIModel     string
	GenAIDebug      bool
	ElevenLabsKey   string
	ElevenLabsVoice string
	VoiceStability  float64
	VoiceSimilarity float64
	GenerationDelay time.Duration
	Schedule        string
	LogLevel        string
}

// LoadEnvironmentConfig loads configuration from environment variables and .env file.
func LoadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:        util.GetEnvOrDefault("PHASEGUIDE_STATE_DIR", DefaultStateDir),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		CatalogPath:     os.Getenv("PHASEGUIDE_CATALOG"),
		OpenAIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:     os.Getenv("OPENAI_MODEL"),
		GenAIDebug:      util.ParseBoolEnv("GENAI_DEBUG", false),
		ElevenLabsKey:   os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoice: os.Getenv("ELEVENLABS_VOICE_ID"),
		VoiceStability:  util.ParseFloatEnv("ELEVENLABS_STABILITY", speech.DefaultStability),
		VoiceSimilarity: util.ParseFloatEnv("ELEVENLABS_SIMILARITY", speech.DefaultSimilarity),
		GenerationDelay: util.ParseDurationEnv("GENERATION_DELAY", pipeline.DefaultDelay),
		Schedule:        util.GetEnvOrDefault("GENERATION_SCHEDULE", DefaultSchedule),
		LogLevel:        util.GetEnvOrDefault("PHASEGUIDE_LOG_LEVEL", "info"),
	}

	slog.Debug("environment variables loaded",
		"PHASEGUIDE_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"PHASEGUIDE_CATALOG", config.CatalogPath,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_MODEL", config.OpenAIModel,
		"GENAI_DEBUG", config.GenAIDebug,
		"ELEVENLABS_API_KEY_SET", config.ElevenLabsKey != "",
		"ELEVENLABS_VOICE_ID", config.ElevenLabsVoice,
		"GENERATION_DELAY", config.GenerationDelay,
		"GENERATION_SCHEDULE", config.Schedule)

	return config
}
