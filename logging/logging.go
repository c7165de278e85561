// Package logging constructs the process-wide zerolog logger.
//
// The terminal belongs to the TUI, so log output goes to a file. The path
// comes from VIDEOFORGE_LOG (empty disables logging entirely) and the level
// from VIDEOFORGE_LOG_LEVEL.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds the application logger. The returned closer is nil when no log
// file is open.
func New() (zerolog.Logger, func() error) {
	path := os.Getenv("VIDEOFORGE_LOG")
	if path == "" {
		return zerolog.Nop(), nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil
	}

	level := zerolog.InfoLevel
	if s := os.Getenv("VIDEOFORGE_LOG_LEVEL"); s != "" {
		if parsed, err := zerolog.ParseLevel(s); err == nil {
			level = parsed
		}
	}

	logger := zerolog.New(f).
		Level(level).
		With().
		Timestamp().
		Logger()

	return logger, f.Close
}
