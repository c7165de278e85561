package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// builtinPresets maps a preset name to the mutation it applies over
// DefaultConfig. Presets are partial by construction: anything the function
// does not touch keeps its default.
var builtinPresets = map[string]func(*JobConfig){
	"WhatsApp Size": func(c *JobConfig) {
		c.CRF = 32
		c.PresetSpeed = "fast"
		c.ChangeResolution = true
		c.ResolutionPreset = Resolution480p
		c.AudioBitrateKbps = 64
		c.AutoNameSuffix = "_whatsapp"
	},
	"Email Size": func(c *JobConfig) {
		c.CRF = 35
		c.PresetSpeed = "fast"
		c.ChangeResolution = true
		c.ResolutionPreset = Resolution480p
		c.AudioBitrateKbps = 64
		c.NormalizeAudio = true
		c.AutoNameSuffix = "_email"
	},
	"YouTube 1080p": func(c *JobConfig) {
		c.CRF = 18
		c.PresetSpeed = "slow"
		c.ChangeResolution = true
		c.ResolutionPreset = Resolution1080p
		c.AudioBitrateKbps = 192
		c.NormalizeAudio = true
		c.AutoNameSuffix = "_yt1080p"
	},
	"Instagram Reel": func(c *JobConfig) {
		c.CRF = 22
		c.ChangeResolution = true
		c.ResolutionPreset = ResolutionCustom
		c.OutputWidth = 1080
		c.OutputHeight = 1920
		c.AudioBitrateKbps = 128
		c.NormalizeAudio = true
		c.FPSLimit = 30
		c.FPSLimitEnabled = true
		c.AutoNameSuffix = "_reel"
	},
	"Twitter GIF": func(c *JobConfig) {
		c.CRF = 28
		c.ChangeResolution = true
		c.ResolutionPreset = ResolutionCustom
		c.OutputWidth = 480
		c.OutputFormat = "gif"
		c.MuteAudio = true
		c.TrimEnabled = true
		c.TrimEnd = 15
		c.CreateGIF = true
		c.GIFFPS = 12
		c.GIFWidth = 480
		c.AutoNameSuffix = "_twitter"
	},
	"Extract Audio (MP3)": func(c *JobConfig) {
		c.ExtractAudioOnly = true
		c.AudioFormat = "mp3"
		c.AudioBitrateKbps = 192
		c.OutputFormat = "mp3"
		c.AutoNameSuffix = "_audio"
	},
	"Podcast Audio (WAV)": func(c *JobConfig) {
		c.ExtractAudioOnly = true
		c.AudioFormat = "wav"
		c.AudioBitrateKbps = 192
		c.OutputFormat = "wav"
		c.NormalizeAudio = true
		c.AutoNameSuffix = "_podcast"
	},
	"High Quality Archive": func(c *JobConfig) {
		c.CRF = 18
		c.PresetSpeed = "veryslow"
		c.OutputFormat = "mkv"
		c.AudioBitrateKbps = 256
		c.AutoNameSuffix = "_hq"
	},
}

const presetsFileName = "presets.yaml"

// PresetManager holds the built-in presets plus user presets persisted as a
// YAML document mapping preset name to a partial JobConfig. User presets are
// stored as raw nodes so that a preset written by a newer version survives a
// load/save cycle untouched.
type PresetManager struct {
	dir  string
	user map[string]yaml.Node
	log  zerolog.Logger
}

// NewPresetManager loads user presets from dir (created on first save).
// A missing or unreadable presets file is not an error; built-ins still work.
func NewPresetManager(dir string, log zerolog.Logger) *PresetManager {
	m := &PresetManager{
		dir:  dir,
		user: make(map[string]yaml.Node),
		log:  log.With().Str("component", "presets").Logger(),
	}
	m.load()
	return m
}

func (m *PresetManager) file() string { return filepath.Join(m.dir, presetsFileName) }

func (m *PresetManager) load() {
	data, err := os.ReadFile(m.file())
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Warn().Err(err).Msg("could not read user presets")
		}
		return
	}
	if err := yaml.Unmarshal(data, &m.user); err != nil {
		m.log.Warn().Err(err).Msg("malformed presets file ignored")
		m.user = make(map[string]yaml.Node)
	}
}

func (m *PresetManager) save() error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("create preset dir: %w", err)
	}
	data, err := yaml.Marshal(m.user)
	if err != nil {
		return fmt.Errorf("encode presets: %w", err)
	}
	return os.WriteFile(m.file(), data, 0o644)
}

// Names returns every preset name, built-ins first, each group sorted.
func (m *PresetManager) Names() []string {
	builtin := make([]string, 0, len(builtinPresets))
	for name := range builtinPresets {
		builtin = append(builtin, name)
	}
	sort.Strings(builtin)

	var user []string
	for name := range m.user {
		if _, shadowed := builtinPresets[name]; !shadowed {
			user = append(user, name)
		}
	}
	sort.Strings(user)
	return append(builtin, user...)
}

// IsBuiltin reports whether name is one of the shipped presets.
func (m *PresetManager) IsBuiltin(name string) bool {
	_, ok := builtinPresets[name]
	return ok
}

// Get resolves a preset name to a full JobConfig: the preset's specified
// fields merged over DefaultConfig. Built-ins shadow user presets of the
// same name. Returns false if the name is unknown.
func (m *PresetManager) Get(name string) (JobConfig, bool) {
	if apply, ok := builtinPresets[name]; ok {
		cfg := DefaultConfig()
		apply(&cfg)
		return cfg, true
	}
	node, ok := m.user[name]
	if !ok {
		return JobConfig{}, false
	}
	cfg := DefaultConfig()
	if err := node.Decode(&cfg); err != nil {
		m.log.Warn().Err(err).Str("preset", name).Msg("preset did not decode")
		return JobConfig{}, false
	}
	return cfg, true
}

// SaveUserPreset persists cfg under name. Path fields never belong in a
// preset; they are stripped before writing.
func (m *PresetManager) SaveUserPreset(name string, cfg JobConfig) error {
	if name == "" {
		return fmt.Errorf("preset name is empty")
	}
	if m.IsBuiltin(name) {
		return fmt.Errorf("preset %q is built in", name)
	}
	cfg.InputPath = ""
	cfg.OutputPath = ""
	cfg.SubtitlePath = ""
	cfg.WatermarkPath = ""
	cfg.MergeInputs = nil

	var node yaml.Node
	if err := node.Encode(cfg); err != nil {
		return fmt.Errorf("encode preset %q: %w", name, err)
	}
	m.user[name] = node
	return m.save()
}

// DeleteUserPreset removes a user preset. Returns false if it did not exist.
func (m *PresetManager) DeleteUserPreset(name string) (bool, error) {
	if _, ok := m.user[name]; !ok {
		return false, nil
	}
	delete(m.user, name)
	return true, m.save()
}
