// Package ffmpeg locates the external FFmpeg tools, probes media files, and
// builds argument vectors. Nothing in this package decodes or encodes media;
// every transformation is delegated to the ffmpeg binary.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"videoforge/config"
)

// ErrToolNotFound means no ffmpeg executable could be located. Processing is
// blocked until the user installs FFmpeg or points VIDEOFORGE_FFMPEG at it.
var ErrToolNotFound = errors.New("ffmpeg executable not found")

// hwEncoderName maps a requested backend to the FFmpeg encoder that serves it.
var hwEncoderName = map[config.HWAccel]string{
	config.HWNVENC:        "h264_nvenc",
	config.HWAMF:          "h264_amf",
	config.HWVideoToolbox: "h264_videotoolbox",
	config.HWQSV:          "h264_qsv",
}

// EncoderFor returns the FFmpeg encoder name for a hardware-accel choice.
func EncoderFor(accel config.HWAccel) (string, bool) {
	enc, ok := hwEncoderName[accel]
	return enc, ok
}

// Capabilities describes what the host can do. Detected once at startup and
// never mutated afterwards; re-detection builds a fresh value.
type Capabilities struct {
	FFmpegPath  string
	FFprobePath string
	Version     string
	// HWEncoders holds the encoder names that passed a trivial test encode,
	// e.g. "h264_nvenc".
	HWEncoders []string
}

// Has reports whether the named encoder was confirmed usable.
func (c *Capabilities) Has(encoder string) bool {
	if c == nil {
		return false
	}
	for _, e := range c.HWEncoders {
		if e == encoder {
			return true
		}
	}
	return false
}

// runFunc executes an external command and returns its combined output.
// Swapped out in tests.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCombined(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Detector locates ffmpeg/ffprobe and probes hardware encoder usability.
type Detector struct {
	// FFmpegPath and FFprobePath override the search when non-empty.
	FFmpegPath  string
	FFprobePath string

	log        zerolog.Logger
	lookPath   func(string) (string, error)
	run        runFunc
	searchDirs []string
}

func NewDetector(log zerolog.Logger) *Detector {
	return &Detector{
		log:        log.With().Str("component", "detect").Logger(),
		lookPath:   exec.LookPath,
		run:        runCombined,
		searchDirs: wellKnownDirs(),
	}
}

// wellKnownDirs are checked after PATH, mirroring where installers commonly
// drop the binaries.
func wellKnownDirs() []string {
	home, _ := os.UserHomeDir()
	return []string{
		`C:\ffmpeg\bin`,
		`C:\Program Files\ffmpeg\bin`,
		filepath.Join(home, "ffmpeg", "bin"),
		"/usr/local/bin",
		"/opt/homebrew/bin",
	}
}

func (d *Detector) find(override, name string) string {
	if override != "" {
		if _, err := os.Stat(override); err == nil {
			return override
		}
		d.log.Warn().Str("path", override).Msgf("configured %s path does not exist", name)
	}
	if p, err := d.lookPath(name); err == nil {
		return p
	}
	for _, dir := range d.searchDirs {
		for _, candidate := range []string{filepath.Join(dir, name), filepath.Join(dir, name+".exe")} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate
			}
		}
	}
	return ""
}

// Detect locates the executables and confirms which hardware encoders are
// usable. Idempotent and safe to call repeatedly; a missing hardware backend
// is recorded as absent, never an error. Only a missing ffmpeg binary fails,
// with ErrToolNotFound.
func (d *Detector) Detect(ctx context.Context) (*Capabilities, error) {
	ffmpeg := d.find(d.FFmpegPath, "ffmpeg")
	if ffmpeg == "" {
		return nil, fmt.Errorf("detect: %w", ErrToolNotFound)
	}
	caps := &Capabilities{
		FFmpegPath:  ffmpeg,
		FFprobePath: d.find(d.FFprobePath, "ffprobe"),
	}
	if caps.FFprobePath == "" {
		d.log.Warn().Msg("ffprobe not found; metadata probing disabled")
	}

	caps.Version = d.version(ctx, ffmpeg)
	caps.HWEncoders = d.probeHardwareEncoders(ctx, ffmpeg)

	d.log.Info().
		Str("ffmpeg", caps.FFmpegPath).
		Str("ffprobe", caps.FFprobePath).
		Str("version", caps.Version).
		Strs("hw_encoders", caps.HWEncoders).
		Msg("capabilities detected")
	return caps, nil
}

func (d *Detector) version(ctx context.Context, ffmpeg string) string {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	out, err := d.run(ctx, ffmpeg, "-version")
	if err != nil {
		return ""
	}
	if i := strings.IndexByte(string(out), '\n'); i >= 0 {
		return strings.TrimSpace(string(out[:i]))
	}
	return strings.TrimSpace(string(out))
}

// probeHardwareEncoders lists compiled-in encoders, then confirms each
// candidate with a trivial test encode. A compiled-in encoder is not enough:
// NVENC on a machine without an NVIDIA card still shows up in -encoders but
// fails at open time.
func (d *Detector) probeHardwareEncoders(ctx context.Context, ffmpeg string) []string {
	listCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := d.run(listCtx, ffmpeg, "-hide_banner", "-encoders")
	if err != nil {
		d.log.Warn().Err(err).Msg("could not list encoders")
		return nil
	}
	listing := string(out)

	var confirmed []string
	for _, accel := range []config.HWAccel{config.HWNVENC, config.HWAMF, config.HWVideoToolbox, config.HWQSV} {
		enc := hwEncoderName[accel]
		if !strings.Contains(listing, enc) {
			continue
		}
		if d.testEncode(ctx, ffmpeg, enc) {
			confirmed = append(confirmed, enc)
		} else {
			d.log.Debug().Str("encoder", enc).Msg("encoder compiled in but unusable")
		}
	}
	return confirmed
}

func (d *Detector) testEncode(ctx context.Context, ffmpeg, encoder string) bool {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := d.run(ctx, ffmpeg,
		"-hide_banner", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=black:s=128x128:d=0.1",
		"-frames:v", "1",
		"-c:v", encoder,
		"-f", "null", "-",
	)
	return err == nil
}
