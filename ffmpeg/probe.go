package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ProbeErrorKind classifies why a probe failed.
type ProbeErrorKind string

const (
	ProbeFileUnreadable       ProbeErrorKind = "file_unreadable"
	ProbeUnsupportedContainer ProbeErrorKind = "unsupported_container"
	ProbeTimeout              ProbeErrorKind = "probe_timeout"
)

// ProbeError is a per-file failure. It never aborts a batch; callers either
// skip the file or proceed with degraded metadata.
type ProbeError struct {
	Path string
	Kind ProbeErrorKind
	Err  error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %s", e.Path, e.Kind)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// MediaInfo is the structured description of a media file as reported by
// ffprobe. Duration is in seconds.
type MediaInfo struct {
	Path        string
	Duration    float64
	Width       int
	Height      int
	FPS         float64
	VideoCodec  string
	AudioCodec  string
	BitrateKbps int
	FileSize    int64
	FormatName  string
	HasAudio    bool
}

// ResolutionLabel returns a short display label for the video resolution.
func (i *MediaInfo) ResolutionLabel() string {
	switch {
	case i.Height >= 2160:
		return "4K (2160p)"
	case i.Height >= 1080:
		return "1080p"
	case i.Height >= 720:
		return "720p"
	case i.Height >= 480:
		return "480p"
	case i.Height >= 360:
		return "360p"
	default:
		return fmt.Sprintf("%d×%d", i.Width, i.Height)
	}
}

const defaultProbeTimeout = 15 * time.Second

// Prober invokes ffprobe and parses its JSON output.
type Prober struct {
	path    string
	timeout time.Duration
	run     runFunc
	log     zerolog.Logger
}

func NewProber(caps *Capabilities, log zerolog.Logger) *Prober {
	return &Prober{
		path:    caps.FFprobePath,
		timeout: defaultProbeTimeout,
		run:     runCombined,
		log:     log.With().Str("component", "probe").Logger(),
	}
}

// ffprobe emits numeric fields as JSON strings; these mirror its schema.
type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeFormat struct {
	Duration       string `json:"duration"`
	BitRate        string `json:"bit_rate"`
	FormatLongName string `json:"format_long_name"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	RFrameRate string `json:"r_frame_rate"`
}

// Probe extracts metadata for one file. Failures come back as a *ProbeError;
// malformed or partial ffprobe output is mapped to an error variant, never a
// panic.
func (p *Prober) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, &ProbeError{Path: path, Kind: ProbeFileUnreadable, Err: err}
	}
	if p.path == "" {
		return nil, &ProbeError{Path: path, Kind: ProbeFileUnreadable, Err: ErrToolNotFound}
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.run(ctx, p.path,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &ProbeError{Path: path, Kind: ProbeTimeout, Err: err}
		}
		return nil, &ProbeError{Path: path, Kind: ProbeUnsupportedContainer, Err: err}
	}

	var raw probeOutput
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, &ProbeError{Path: path, Kind: ProbeUnsupportedContainer, Err: err}
	}

	info := &MediaInfo{
		Path:       path,
		FileSize:   stat.Size(),
		FormatName: raw.Format.FormatLongName,
	}
	info.Duration, _ = strconv.ParseFloat(raw.Format.Duration, 64)
	if bps, err := strconv.ParseInt(raw.Format.BitRate, 10, 64); err == nil {
		info.BitrateKbps = int(bps / 1000)
	}

	for _, s := range raw.Streams {
		switch s.CodecType {
		case "video":
			if info.VideoCodec != "" {
				continue
			}
			info.VideoCodec = s.CodecName
			info.Width = s.Width
			info.Height = s.Height
			info.FPS = parseFrameRate(s.RFrameRate)
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
			info.HasAudio = true
		}
	}

	if info.Duration <= 0 && info.VideoCodec == "" && !info.HasAudio {
		return nil, &ProbeError{
			Path: path,
			Kind: ProbeUnsupportedContainer,
			Err:  errors.New("no usable streams in probe output"),
		}
	}
	return info, nil
}

// parseFrameRate handles fractional formats like "24000/1001" or "23.976".
func parseFrameRate(fpsStr string) float64 {
	fpsStr = strings.TrimSpace(fpsStr)
	if fpsStr == "" {
		return 0
	}
	if strings.Contains(fpsStr, "/") {
		parts := strings.Split(fpsStr, "/")
		if len(parts) == 2 {
			num, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
			den, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
			if err1 == nil && err2 == nil && den > 0 {
				return num / den
			}
		}
		return 0
	}
	fps, _ := strconv.ParseFloat(fpsStr, 64)
	return fps
}
