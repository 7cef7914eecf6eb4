package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

var logLevel = new(slog.LevelVar)

// InitializeLogger installs a structured text logger writing to w. Logs go to
// a separate stream from command output so results can be piped.
func InitializeLogger(w io.Writer, level string) error {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})))
	return SetLogLevel(level)
}

// SetLogLevel changes the level of the installed logger: debug, info, warn or error.
func SetLogLevel(level string) error {
	if strings.TrimSpace(level) == "" {
		return nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logLevel.Set(l)
	return nil
}
