package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"

	"videoforge/config"
)

// Command is a fully rendered FFmpeg invocation: the argument vector handed
// verbatim to the process launcher (no shell interpretation) plus any
// warnings recorded while building, e.g. a hardware encoder fallback.
type Command struct {
	Args       []string
	OutputPath string
	Warnings   []string
}

// resolutionMap maps preset names to explicit dimensions.
var resolutionMap = map[string][2]int{
	config.Resolution4K:    {3840, 2160},
	config.Resolution1080p: {1920, 1080},
	config.Resolution720p:  {1280, 720},
	config.Resolution480p:  {854, 480},
	config.Resolution360p:  {640, 360},
}

type codecPair struct {
	video string
	audio string
}

// formatCodecMap holds the default codecs per container. An empty video
// codec marks an audio-only format.
var formatCodecMap = map[string]codecPair{
	"mp4":  {video: "libx264", audio: "aac"},
	"mkv":  {video: "libx264", audio: "aac"},
	"mov":  {video: "libx264", audio: "aac"},
	"avi":  {video: "libxvid", audio: "mp3"},
	"webm": {video: "libvpx-vp9", audio: "libopus"},
	"gif":  {video: "gif"},
	"mp3":  {audio: "libmp3lame"},
	"aac":  {audio: "aac"},
	"wav":  {audio: "pcm_s16le"},
	"opus": {audio: "libopus"},
}

// rotateFilter maps rotate option names to FFmpeg transpose chains.
var rotateFilter = map[config.Rotation]string{
	config.Rotate90CW:  "transpose=1",
	config.Rotate180:   "transpose=2,transpose=2",
	config.Rotate90CCW: "transpose=2",
}

var watermarkOverlayPos = map[string]string{
	config.WatermarkTopLeft:     "10:10",
	config.WatermarkTopRight:    "W-w-10:10",
	config.WatermarkBottomLeft:  "10:H-h-10",
	config.WatermarkBottomRight: "W-w-10:H-h-10",
}

// Build renders a JobConfig into a concrete argument vector. Pure and
// deterministic: the same config and capabilities always produce the same
// args, byte for byte. No I/O happens here; path existence and process
// launch are the caller's concern. A requested hardware encoder that the
// host lacks degrades to the software encoder with a recorded warning,
// never an error.
func Build(cfg config.JobConfig, caps *Capabilities) (*Command, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.OutputPath == "" {
		return nil, &config.InvalidConfigError{Field: "output_path", Reason: "no output path"}
	}

	format := strings.ToLower(cfg.OutputFormat)
	cmd := &Command{OutputPath: cfg.OutputPath}
	args := []string{"-hide_banner", "-y"}

	// Trim start as input seeking; faster than decoding up to the cut and it
	// keeps the cut ahead of every filter in the graph.
	if cfg.TrimEnabled && cfg.TrimStart > 0 {
		args = append(args, "-ss", formatSeconds(cfg.TrimStart))
	}
	args = append(args, "-i", cfg.InputPath)

	watermark := cfg.WatermarkPath != "" && !cfg.ExtractAudioOnly &&
		!isAudioOnlyFormat(format) && format != "gif" && len(cfg.MergeInputs) == 0
	if watermark {
		args = append(args, "-i", cfg.WatermarkPath)
	}
	for _, extra := range cfg.MergeInputs {
		args = append(args, "-i", extra)
	}

	if cfg.TrimEnabled && cfg.TrimEnd > 0 {
		if d := cfg.TrimEnd - cfg.TrimStart; d > 0 {
			args = append(args, "-t", formatSeconds(d))
		}
	}

	// Audio-only outputs skip the whole video pipeline.
	if cfg.ExtractAudioOnly || isAudioOnlyFormat(format) {
		cmd.Args = buildAudioExtract(args, cfg)
		return cmd, nil
	}

	// GIF is a different command shape (palette generation), not a flag.
	if format == "gif" || cfg.CreateGIF {
		cmd.Args = buildGIF(args, cfg)
		return cmd, nil
	}

	if len(cfg.MergeInputs) > 0 {
		cmd.Args = buildMerge(args, cfg)
		return cmd, nil
	}

	codecs, ok := formatCodecMap[format]
	if !ok {
		codecs = codecPair{video: "libx264", audio: "aac"}
	}

	codecArgs, warning := videoCodecArgs(cfg, caps, codecs.video, format)
	args = append(args, codecArgs...)
	if warning != "" {
		cmd.Warnings = append(cmd.Warnings, warning)
	}

	vf := videoFilters(cfg)
	af := audioFilters(cfg)

	if watermark {
		args = append(args, "-filter_complex", watermarkGraph(vf, cfg.WatermarkPosition),
			"-map", "[vout]", "-map", "0:a?")
	} else if len(vf) > 0 {
		args = append(args, "-vf", strings.Join(vf, ","))
	}
	if len(af) > 0 {
		args = append(args, "-af", strings.Join(af, ","))
	}

	if cfg.MuteAudio {
		args = append(args, "-an")
	} else {
		args = append(args, audioCodecArgs(cfg, codecs.audio)...)
	}

	switch format {
	case "mp4":
		args = append(args, "-movflags", "+faststart")
	case "webm":
		args = append(args, "-deadline", "good")
	}

	cmd.Args = append(args, cfg.OutputPath)
	return cmd, nil
}

// videoCodecArgs selects the encoder and its quality flags. Hardware
// encoders only apply to h264-in-mp4/mkv/mov outputs; when the requested
// backend is missing from caps the software encoder is substituted and the
// substitution reported as a warning.
func videoCodecArgs(cfg config.JobConfig, caps *Capabilities, videoCodec, format string) ([]string, string) {
	crf := strconv.Itoa(cfg.CRF)

	hwEligible := cfg.UseHWAccel && cfg.HWAccel != config.HWNone &&
		videoCodec == "libx264" && (format == "mp4" || format == "mkv" || format == "mov")
	if hwEligible {
		enc, known := EncoderFor(cfg.HWAccel)
		if known && caps.Has(enc) {
			switch cfg.HWAccel {
			case config.HWNVENC, config.HWAMF:
				// NVENC/AMF have no -crf; constant quality goes through -cq.
				return []string{"-c:v", enc, "-rc:v", "vbr", "-cq:v", crf}, ""
			case config.HWQSV:
				return []string{"-c:v", enc, "-global_quality", crf}, ""
			default:
				return []string{"-c:v", enc, "-q:v", crf}, ""
			}
		}
		warning := fmt.Sprintf("hardware encoder %s unavailable, falling back to libx264", cfg.HWAccel)
		return []string{"-c:v", "libx264", "-crf", crf, "-preset", cfg.PresetSpeed}, warning
	}

	switch videoCodec {
	case "libx264":
		return []string{"-c:v", "libx264", "-crf", crf, "-preset", cfg.PresetSpeed}, ""
	case "libvpx-vp9":
		return []string{"-c:v", "libvpx-vp9", "-crf", crf, "-b:v", "0"}, ""
	default:
		return []string{"-c:v", videoCodec}, ""
	}
}

// videoFilters assembles the -vf chain. The order is fixed and load-bearing:
// scale → fps cap → rotate → flip → speed → subtitle burn-in. Subtitles are
// rendered last so they are never distorted by scaling or rotation.
func videoFilters(cfg config.JobConfig) []string {
	var filters []string

	if cfg.ChangeResolution {
		w, h := cfg.OutputWidth, cfg.OutputHeight
		if dims, ok := resolutionMap[cfg.ResolutionPreset]; ok {
			w, h = dims[0], dims[1]
		}
		algo := cfg.ScaleAlgo
		if algo == "" {
			algo = "lanczos"
		}
		switch {
		case w > 0 && h > 0:
			filters = append(filters, fmt.Sprintf("scale=%d:%d:flags=%s", w, h, algo))
		case w > 0:
			filters = append(filters, fmt.Sprintf("scale=%d:-2:flags=%s", w, algo))
		case h > 0:
			filters = append(filters, fmt.Sprintf("scale=-2:%d:flags=%s", h, algo))
		}
	}

	if cfg.FPSLimitEnabled && cfg.FPSLimit > 0 {
		filters = append(filters, fmt.Sprintf("fps=%d", cfg.FPSLimit))
	}

	if f, ok := rotateFilter[cfg.Rotate]; ok {
		filters = append(filters, f)
	}
	if cfg.FlipH {
		filters = append(filters, "hflip")
	}
	if cfg.FlipV {
		filters = append(filters, "vflip")
	}

	if cfg.SpeedFactor != 1.0 {
		filters = append(filters, fmt.Sprintf("setpts=%.4f*PTS", 1.0/cfg.SpeedFactor))
	}

	if cfg.SubtitleEnabled && cfg.SubtitlePath != "" {
		filters = append(filters, fmt.Sprintf("subtitles='%s'", escapeFilterPath(cfg.SubtitlePath)))
	}

	return filters
}

// audioFilters assembles the -af chain: normalize, then tempo adjustment.
func audioFilters(cfg config.JobConfig) []string {
	var filters []string
	if cfg.NormalizeAudio {
		filters = append(filters, "dynaudnorm")
	}
	if cfg.SpeedFactor != 1.0 {
		filters = append(filters, atempoChain(cfg.SpeedFactor)...)
	}
	return filters
}

// atempoChain decomposes a speed factor into atempo filters. atempo only
// accepts [0.5, 100.0], so out-of-range factors are chained.
func atempoChain(factor float64) []string {
	var filters []string
	remaining := factor
	for remaining < 0.5 {
		filters = append(filters, "atempo=0.5")
		remaining /= 0.5
	}
	for remaining > 2.0 {
		filters = append(filters, "atempo=2.0")
		remaining /= 2.0
	}
	return append(filters, fmt.Sprintf("atempo=%.4f", remaining))
}

// audioCodecArgs encodes the audio track with the container's default codec.
// AudioFormat only steers audio-only outputs; forcing it here would produce
// codec/container combinations FFmpeg rejects (aac in webm, opus in avi).
func audioCodecArgs(cfg config.JobConfig, containerDefault string) []string {
	codec := containerDefault
	if codec == "" {
		return []string{"-an"}
	}
	args := []string{"-c:a", codec}
	if codec == "aac" {
		// Old FFmpeg builds treat aac as experimental; harmless on modern ones.
		args = append(args, "-strict", "-2")
	}
	return append(args, "-b:a", fmt.Sprintf("%dk", cfg.AudioBitrateKbps))
}

func buildAudioExtract(args []string, cfg config.JobConfig) []string {
	args = append(args, "-vn")
	codec := "aac"
	if pair, ok := formatCodecMap[strings.ToLower(cfg.AudioFormat)]; ok && pair.audio != "" {
		codec = pair.audio
	}
	args = append(args, "-c:a", codec)
	if codec == "aac" {
		args = append(args, "-strict", "-2")
	}
	if af := audioFilters(cfg); len(af) > 0 {
		args = append(args, "-af", strings.Join(af, ","))
	}
	args = append(args, "-b:a", fmt.Sprintf("%dk", cfg.AudioBitrateKbps))
	return append(args, cfg.OutputPath)
}

// buildGIF renders the two-pass palette pipeline in a single invocation:
// generate a palette from the scaled stream, then map colors through it.
func buildGIF(args []string, cfg config.JobConfig) []string {
	width := cfg.GIFWidth
	if width <= 0 {
		width = 480
	}
	fps := cfg.GIFFPS
	if fps <= 0 {
		fps = 10
	}
	algo := cfg.ScaleAlgo
	if algo == "" {
		algo = "lanczos"
	}
	graph := fmt.Sprintf(
		"[0:v]scale=%d:-1:flags=%s,fps=%d,split[a][b];[a]palettegen[p];[b][p]paletteuse",
		width, algo, fps,
	)
	args = append(args, "-filter_complex", graph)
	return append(args, cfg.OutputPath)
}

// buildMerge concatenates the main input with MergeInputs using the concat
// filter. All inputs must carry one video and one audio stream.
func buildMerge(args []string, cfg config.JobConfig) []string {
	n := 1 + len(cfg.MergeInputs)
	var graph strings.Builder
	for i := 0; i < n; i++ {
		fmt.Fprintf(&graph, "[%d:v][%d:a]", i, i)
	}
	fmt.Fprintf(&graph, "concat=n=%d:v=1:a=1[outv][outa]", n)
	args = append(args,
		"-filter_complex", graph.String(),
		"-map", "[outv]",
		"-map", "[outa]",
	)
	return append(args, cfg.OutputPath)
}

// watermarkGraph folds the -vf chain and the overlay into one filter_complex
// graph, keeping the documented filter order ahead of the overlay.
func watermarkGraph(vf []string, position string) string {
	pos, ok := watermarkOverlayPos[position]
	if !ok {
		pos = watermarkOverlayPos[config.WatermarkBottomRight]
	}
	if len(vf) == 0 {
		return fmt.Sprintf("[0:v][1:v]overlay=%s[vout]", pos)
	}
	return fmt.Sprintf("[0:v]%s[vid];[vid][1:v]overlay=%s[vout]", strings.Join(vf, ","), pos)
}

func isAudioOnlyFormat(format string) bool {
	pair, ok := formatCodecMap[format]
	return ok && pair.video == ""
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.ReplaceAll(p, ":", `\:`)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
