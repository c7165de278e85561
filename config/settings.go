package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const settingsFileName = "last_settings.yaml"

// DefaultConfigDir resolves the directory for presets and settings:
// $VIDEOFORGE_CONFIG_DIR when set, otherwise ~/.videoforge.
func DefaultConfigDir() string {
	if dir := os.Getenv("VIDEOFORGE_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".videoforge"
	}
	return filepath.Join(home, ".videoforge")
}

// SettingsStore persists the last-used options between sessions so a launch
// picks up where the previous one left off. Path fields and other transient
// state are never written.
type SettingsStore struct {
	dir string
	log zerolog.Logger
}

func NewSettingsStore(dir string, log zerolog.Logger) *SettingsStore {
	return &SettingsStore{dir: dir, log: log.With().Str("component", "settings").Logger()}
}

func (s *SettingsStore) file() string { return filepath.Join(s.dir, settingsFileName) }

// Save writes the persistable subset of cfg. A save failure is logged, never
// fatal; stale settings are preferable to a crash on exit.
func (s *SettingsStore) Save(cfg JobConfig) {
	cfg.InputPath = ""
	cfg.OutputPath = ""
	cfg.SubtitlePath = ""
	cfg.SubtitleEnabled = false
	cfg.WatermarkPath = ""
	cfg.MergeInputs = nil
	cfg.TrimStart = 0
	cfg.TrimEnd = 0

	if err := s.write(cfg); err != nil {
		s.log.Warn().Err(err).Msg("could not save settings")
	}
}

func (s *SettingsStore) write(cfg JobConfig) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return os.WriteFile(s.file(), data, 0o644)
}

// Load returns the stored settings merged over DefaultConfig. When nothing
// has been stored yet (or the file is unreadable) the defaults win.
func (s *SettingsStore) Load() JobConfig {
	cfg := DefaultConfig()
	data, err := os.ReadFile(s.file())
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Err(err).Msg("could not read settings")
		}
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		s.log.Warn().Err(err).Msg("malformed settings file ignored")
		return DefaultConfig()
	}
	return cfg
}
