package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HWAccel identifies a hardware encoder backend requested for a job.
type HWAccel string

const (
	HWNone         HWAccel = "none"
	HWNVENC        HWAccel = "nvenc"
	HWAMF          HWAccel = "amf"
	HWVideoToolbox HWAccel = "videotoolbox"
	HWQSV          HWAccel = "qsv"
)

// Rotation names one of the supported rotate operations.
type Rotation string

const (
	RotateNone  Rotation = "none"
	Rotate90CW  Rotation = "90cw"
	Rotate180   Rotation = "180"
	Rotate90CCW Rotation = "90ccw"
)

// Resolution preset names understood by the command builder.
const (
	ResolutionOriginal = "Original"
	Resolution4K       = "4K"
	Resolution1080p    = "1080p"
	Resolution720p     = "720p"
	Resolution480p     = "480p"
	Resolution360p     = "360p"
	ResolutionCustom   = "Custom"
)

// Watermark corner positions.
const (
	WatermarkTopLeft     = "topleft"
	WatermarkTopRight    = "topright"
	WatermarkBottomLeft  = "bottomleft"
	WatermarkBottomRight = "bottomright"
)

const (
	// CRFMin and CRFMax bound the Constant Rate Factor accepted by Validate.
	CRFMin = 0
	CRFMax = 51
	// SpeedMin and SpeedMax bound the playback speed multiplier.
	SpeedMin = 0.25
	SpeedMax = 4.0
)

// ErrSameSourceAndDestination is returned when a job's output path resolves
// to its input path. Matched with errors.Is.
var ErrSameSourceAndDestination = errors.New("output path is the same as the input path")

// InvalidConfigError reports a JobConfig that failed validation. It is
// produced before any process is launched.
type InvalidConfigError struct {
	Field  string
	Reason string
	err    error
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

func (e *InvalidConfigError) Unwrap() error { return e.err }

// JobConfig is the complete, immutable description of one requested
// transformation. YAML tags double as the persisted preset schema; unknown
// keys are ignored on load and missing keys fall back to DefaultConfig.
type JobConfig struct {
	// Input/Output
	InputPath    string `yaml:"input_path,omitempty"`
	OutputPath   string `yaml:"output_path,omitempty"`
	OutputFolder string `yaml:"output_folder,omitempty"`

	// Compression
	CRF         int     `yaml:"crf"`
	PresetSpeed string  `yaml:"preset_speed"`
	UseHWAccel  bool    `yaml:"use_hw_accel"`
	HWAccel     HWAccel `yaml:"hw_accel"`

	// Resolution
	ChangeResolution bool   `yaml:"change_resolution"`
	OutputWidth      int    `yaml:"output_width"`
	OutputHeight     int    `yaml:"output_height"`
	ResolutionPreset string `yaml:"resolution_preset"`
	ScaleAlgo        string `yaml:"scale_algo"`

	// Container format: mp4, mkv, mov, avi, webm, gif, mp3, aac, wav, opus
	OutputFormat string `yaml:"output_format"`

	// Audio
	AudioFormat      string `yaml:"audio_format"`
	AudioBitrateKbps int    `yaml:"audio_bitrate_kbps"`
	MuteAudio        bool   `yaml:"mute_audio"`
	NormalizeAudio   bool   `yaml:"normalize_audio"`

	// Trim (seconds; TrimEnd 0 means "until the end")
	TrimEnabled bool    `yaml:"trim_enabled"`
	TrimStart   float64 `yaml:"trim_start"`
	TrimEnd     float64 `yaml:"trim_end"`

	// Special operations
	ExtractAudioOnly bool     `yaml:"extract_audio_only"`
	CreateGIF        bool     `yaml:"create_gif"`
	GIFFPS           int      `yaml:"gif_fps"`
	GIFWidth         int      `yaml:"gif_width"`
	MergeInputs      []string `yaml:"merge_inputs,omitempty"`

	// Watermark overlay
	WatermarkPath     string `yaml:"watermark_path,omitempty"`
	WatermarkPosition string `yaml:"watermark_position"`

	// Auto-naming
	AutoNameSuffix string `yaml:"auto_name_suffix"`

	// Video filters
	FPSLimit        int      `yaml:"fps_limit"`
	FPSLimitEnabled bool     `yaml:"fps_limit_enabled"`
	Rotate          Rotation `yaml:"rotate"`
	FlipH           bool     `yaml:"flip_h"`
	FlipV           bool     `yaml:"flip_v"`
	SpeedFactor     float64  `yaml:"speed_factor"`

	// Subtitle burn-in
	SubtitlePath    string `yaml:"subtitle_path,omitempty"`
	SubtitleEnabled bool   `yaml:"subtitle_enabled"`
}

// DefaultConfig returns the baseline configuration every preset and every
// persisted document is merged over.
func DefaultConfig() JobConfig {
	return JobConfig{
		CRF:               23,
		PresetSpeed:       "medium",
		UseHWAccel:        true,
		HWAccel:           HWNone,
		ResolutionPreset:  ResolutionOriginal,
		ScaleAlgo:         "lanczos",
		OutputFormat:      "mp4",
		AudioFormat:       "aac",
		AudioBitrateKbps:  128,
		GIFFPS:            10,
		GIFWidth:          480,
		WatermarkPosition: WatermarkBottomRight,
		AutoNameSuffix:    "_vf",
		Rotate:            RotateNone,
		SpeedFactor:       1.0,
	}
}

var validRotations = map[Rotation]bool{
	RotateNone: true, Rotate90CW: true, Rotate180: true, Rotate90CCW: true,
}

var validWatermarkPositions = map[string]bool{
	WatermarkTopLeft: true, WatermarkTopRight: true,
	WatermarkBottomLeft: true, WatermarkBottomRight: true,
}

// Validate checks every invariant the command builder relies on. It is
// called before a job is enqueued so bad configurations never reach a
// process launch.
func (c JobConfig) Validate() error {
	if c.InputPath == "" {
		return &InvalidConfigError{Field: "input_path", Reason: "no input file"}
	}
	if c.OutputPath != "" && samePath(c.InputPath, c.OutputPath) {
		return &InvalidConfigError{
			Field:  "output_path",
			Reason: "output would overwrite the input file",
			err:    ErrSameSourceAndDestination,
		}
	}
	if c.CRF < CRFMin || c.CRF > CRFMax {
		return &InvalidConfigError{
			Field:  "crf",
			Reason: fmt.Sprintf("%d outside [%d, %d]", c.CRF, CRFMin, CRFMax),
		}
	}
	if c.SpeedFactor < SpeedMin || c.SpeedFactor > SpeedMax {
		return &InvalidConfigError{
			Field:  "speed_factor",
			Reason: fmt.Sprintf("%.2f outside [%.2f, %.2f]", c.SpeedFactor, SpeedMin, SpeedMax),
		}
	}
	if c.TrimEnabled && c.TrimStart < 0 {
		return &InvalidConfigError{Field: "trim_start", Reason: "negative trim start"}
	}
	if c.TrimEnabled && c.TrimEnd > 0 && c.TrimEnd <= c.TrimStart {
		return &InvalidConfigError{
			Field:  "trim_end",
			Reason: fmt.Sprintf("trim end %.3f not after trim start %.3f", c.TrimEnd, c.TrimStart),
		}
	}
	if c.ChangeResolution && c.ResolutionPreset == ResolutionCustom &&
		c.OutputWidth <= 0 && c.OutputHeight <= 0 {
		return &InvalidConfigError{
			Field:  "output_width",
			Reason: "custom resolution needs a positive width or height",
		}
	}
	if c.ChangeResolution && (c.OutputWidth < 0 || c.OutputHeight < 0) {
		return &InvalidConfigError{Field: "output_width", Reason: "negative dimension"}
	}
	if c.FPSLimitEnabled && c.FPSLimit <= 0 {
		return &InvalidConfigError{Field: "fps_limit", Reason: "fps cap must be positive"}
	}
	if !validRotations[c.Rotate] {
		return &InvalidConfigError{Field: "rotate", Reason: fmt.Sprintf("unknown rotation %q", c.Rotate)}
	}
	if c.SubtitleEnabled && c.SubtitlePath == "" {
		return &InvalidConfigError{Field: "subtitle_path", Reason: "subtitle burn-in enabled without a file"}
	}
	if c.WatermarkPath != "" && !validWatermarkPositions[c.WatermarkPosition] {
		return &InvalidConfigError{
			Field:  "watermark_position",
			Reason: fmt.Sprintf("unknown position %q", c.WatermarkPosition),
		}
	}
	if c.AudioBitrateKbps <= 0 {
		return &InvalidConfigError{Field: "audio_bitrate_kbps", Reason: "audio bitrate must be positive"}
	}
	return nil
}

// samePath compares two paths after cleaning and, where possible, absolute
// resolution. Case folding is deliberately not applied; on case-insensitive
// filesystems FFmpeg itself refuses in-place writes.
func samePath(a, b string) bool {
	ca, cb := filepath.Clean(a), filepath.Clean(b)
	if ca == cb {
		return true
	}
	aa, errA := filepath.Abs(ca)
	ab, errB := filepath.Abs(cb)
	return errA == nil && errB == nil && aa == ab
}

// OutputPathFor derives the output file path for an input. The configured
// output folder wins over the input's directory, the extension follows the
// output format (or the audio format when extracting audio), and an existing
// file at the target bumps a numeric counter instead of being overwritten.
func (c JobConfig) OutputPathFor(inputPath string) string {
	ext := c.OutputFormat
	if c.ExtractAudioOnly {
		ext = c.AudioFormat
	}
	if ext == "" {
		ext = strings.TrimPrefix(filepath.Ext(inputPath), ".")
	}

	suffix := c.AutoNameSuffix
	if suffix == "" {
		suffix = "_vf"
	}

	dir := c.OutputFolder
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}

	stem := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	out := filepath.Join(dir, fmt.Sprintf("%s%s.%s", stem, suffix, ext))
	for counter := 1; pathExists(out); counter++ {
		out = filepath.Join(dir, fmt.Sprintf("%s%s_%d.%s", stem, suffix, counter, ext))
	}
	return out
}

func pathExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
