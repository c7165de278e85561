package ffmpeg

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoforge/config"
)

func baseConfig() config.JobConfig {
	cfg := config.DefaultConfig()
	cfg.InputPath = "/videos/in.mp4"
	cfg.OutputPath = "/videos/out.mp4"
	cfg.UseHWAccel = false
	return cfg
}

func softwareCaps() *Capabilities {
	return &Capabilities{FFmpegPath: "/usr/bin/ffmpeg"}
}

func argIndex(args []string, want string) int {
	for i, a := range args {
		if a == want {
			return i
		}
	}
	return -1
}

func TestBuildIsDeterministic(t *testing.T) {
	cfg := baseConfig()
	cfg.ChangeResolution = true
	cfg.ResolutionPreset = config.Resolution720p
	cfg.NormalizeAudio = true
	cfg.TrimEnabled = true
	cfg.TrimStart = 2.5
	cfg.TrimEnd = 10

	a, err := Build(cfg, softwareCaps())
	require.NoError(t, err)
	b, err := Build(cfg, softwareCaps())
	require.NoError(t, err)
	assert.Equal(t, a.Args, b.Args)
}

func TestBuildBasicCompression(t *testing.T) {
	cfg := baseConfig()
	cmd, err := Build(cfg, softwareCaps())
	require.NoError(t, err)

	joined := strings.Join(cmd.Args, " ")
	assert.Contains(t, joined, "-i /videos/in.mp4")
	assert.Contains(t, joined, "-c:v libx264 -crf 23 -preset medium")
	assert.Contains(t, joined, "-movflags +faststart")
	assert.Equal(t, "/videos/out.mp4", cmd.Args[len(cmd.Args)-1])
	assert.Empty(t, cmd.Warnings)
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := baseConfig()
	cfg.CRF = 99
	_, err := Build(cfg, softwareCaps())
	assert.Error(t, err)
}

func TestBuildTrimPrecedesFilters(t *testing.T) {
	cfg := baseConfig()
	cfg.TrimEnabled = true
	cfg.TrimStart = 3
	cfg.TrimEnd = 9
	cfg.ChangeResolution = true
	cfg.ResolutionPreset = config.Resolution480p

	cmd, err := Build(cfg, softwareCaps())
	require.NoError(t, err)

	ss := argIndex(cmd.Args, "-ss")
	in := argIndex(cmd.Args, "-i")
	vf := argIndex(cmd.Args, "-vf")
	require.GreaterOrEqual(t, ss, 0)
	require.GreaterOrEqual(t, vf, 0)
	assert.Less(t, ss, in, "seek must be an input option")
	assert.Less(t, in, vf)
	assert.Equal(t, "3.000", cmd.Args[ss+1])

	tIdx := argIndex(cmd.Args, "-t")
	require.GreaterOrEqual(t, tIdx, 0)
	assert.Equal(t, "6.000", cmd.Args[tIdx+1])
}

func TestBuildFilterOrderScaleBeforeSubtitles(t *testing.T) {
	cfg := baseConfig()
	cfg.ChangeResolution = true
	cfg.ResolutionPreset = config.Resolution720p
	cfg.FPSLimitEnabled = true
	cfg.FPSLimit = 30
	cfg.Rotate = config.Rotate90CW
	cfg.SpeedFactor = 2.0
	cfg.SubtitleEnabled = true
	cfg.SubtitlePath = "/videos/subs.srt"

	cmd, err := Build(cfg, softwareCaps())
	require.NoError(t, err)

	vf := argIndex(cmd.Args, "-vf")
	require.GreaterOrEqual(t, vf, 0)
	graph := cmd.Args[vf+1]

	order := []string{"scale=1280:720", "fps=30", "transpose=1", "setpts=", "subtitles="}
	last := -1
	for _, part := range order {
		idx := strings.Index(graph, part)
		require.GreaterOrEqual(t, idx, 0, part)
		assert.Greater(t, idx, last, "%s out of order in %s", part, graph)
		last = idx
	}
}

func TestBuildCustomResolutionKeepsAspect(t *testing.T) {
	cfg := baseConfig()
	cfg.ChangeResolution = true
	cfg.ResolutionPreset = config.ResolutionCustom
	cfg.OutputWidth = 640

	cmd, err := Build(cfg, softwareCaps())
	require.NoError(t, err)
	assert.Contains(t, strings.Join(cmd.Args, " "), "scale=640:-2:flags=lanczos")
}

func TestBuildHardwareEncoderWhenAvailable(t *testing.T) {
	cfg := baseConfig()
	cfg.UseHWAccel = true
	cfg.HWAccel = config.HWNVENC
	caps := &Capabilities{FFmpegPath: "/usr/bin/ffmpeg", HWEncoders: []string{"h264_nvenc"}}

	cmd, err := Build(cfg, caps)
	require.NoError(t, err)

	joined := strings.Join(cmd.Args, " ")
	assert.Contains(t, joined, "-c:v h264_nvenc")
	assert.Contains(t, joined, "-cq:v 23")
	assert.NotContains(t, joined, "-crf")
	assert.Empty(t, cmd.Warnings)
}

func TestBuildHardwareFallbackWarns(t *testing.T) {
	cfg := baseConfig()
	cfg.UseHWAccel = true
	cfg.HWAccel = config.HWNVENC

	cmd, err := Build(cfg, softwareCaps())
	require.NoError(t, err)

	assert.Contains(t, strings.Join(cmd.Args, " "), "-c:v libx264")
	require.Len(t, cmd.Warnings, 1)
	assert.Contains(t, cmd.Warnings[0], "falling back to libx264")
}

func TestBuildQSVUsesGlobalQuality(t *testing.T) {
	cfg := baseConfig()
	cfg.UseHWAccel = true
	cfg.HWAccel = config.HWQSV
	caps := &Capabilities{FFmpegPath: "/usr/bin/ffmpeg", HWEncoders: []string{"h264_qsv"}}

	cmd, err := Build(cfg, caps)
	require.NoError(t, err)
	assert.Contains(t, strings.Join(cmd.Args, " "), "-global_quality 23")
}

func TestBuildHardwareSkippedForWebM(t *testing.T) {
	cfg := baseConfig()
	cfg.UseHWAccel = true
	cfg.HWAccel = config.HWNVENC
	cfg.OutputFormat = "webm"
	cfg.OutputPath = "/videos/out.webm"
	caps := &Capabilities{FFmpegPath: "/usr/bin/ffmpeg", HWEncoders: []string{"h264_nvenc"}}

	cmd, err := Build(cfg, caps)
	require.NoError(t, err)

	joined := strings.Join(cmd.Args, " ")
	assert.Contains(t, joined, "-c:v libvpx-vp9")
	assert.Contains(t, joined, "-b:v 0")
	assert.Contains(t, joined, "-deadline good")
	assert.Empty(t, cmd.Warnings)
}

func TestBuildMuteStripsAudio(t *testing.T) {
	cfg := baseConfig()
	cfg.MuteAudio = true

	cmd, err := Build(cfg, softwareCaps())
	require.NoError(t, err)

	joined := strings.Join(cmd.Args, " ")
	assert.Contains(t, joined, "-an")
	assert.NotContains(t, joined, "-c:a")
	assert.NotContains(t, joined, "-b:a")
}

func TestBuildNormalizeAndSpeedAudioChain(t *testing.T) {
	cfg := baseConfig()
	cfg.NormalizeAudio = true
	cfg.SpeedFactor = 3.0

	cmd, err := Build(cfg, softwareCaps())
	require.NoError(t, err)

	af := argIndex(cmd.Args, "-af")
	require.GreaterOrEqual(t, af, 0)
	assert.Equal(t, "dynaudnorm,atempo=2.0,atempo=1.5000", cmd.Args[af+1])
}

func TestAtempoChainStaysInRange(t *testing.T) {
	for _, factor := range []float64{0.25, 0.5, 1.5, 2.0, 3.0, 4.0} {
		product := 1.0
		for _, f := range atempoChain(factor) {
			val, err := strconv.ParseFloat(strings.TrimPrefix(f, "atempo="), 64)
			require.NoError(t, err, f)
			assert.GreaterOrEqual(t, val, 0.5, "factor %f", factor)
			assert.LessOrEqual(t, val, 2.0, "factor %f", factor)
			product *= val
		}
		assert.InDelta(t, factor, product, 0.001)
	}
}

func TestBuildGIFPalettePipeline(t *testing.T) {
	cfg := baseConfig()
	cfg.OutputFormat = "gif"
	cfg.OutputPath = "/videos/out.gif"
	cfg.GIFWidth = 320
	cfg.GIFFPS = 12

	cmd, err := Build(cfg, softwareCaps())
	require.NoError(t, err)

	fc := argIndex(cmd.Args, "-filter_complex")
	require.GreaterOrEqual(t, fc, 0)
	graph := cmd.Args[fc+1]
	assert.Contains(t, graph, "scale=320:-1")
	assert.Contains(t, graph, "fps=12")
	assert.Contains(t, graph, "palettegen")
	assert.Contains(t, graph, "paletteuse")
	assert.Less(t, strings.Index(graph, "palettegen"), strings.Index(graph, "paletteuse"))
}

func TestBuildAudioExtract(t *testing.T) {
	cfg := baseConfig()
	cfg.ExtractAudioOnly = true
	cfg.AudioFormat = "mp3"
	cfg.AudioBitrateKbps = 192
	cfg.OutputPath = "/videos/out.mp3"

	cmd, err := Build(cfg, softwareCaps())
	require.NoError(t, err)

	joined := strings.Join(cmd.Args, " ")
	assert.Contains(t, joined, "-vn")
	assert.Contains(t, joined, "-c:a libmp3lame")
	assert.Contains(t, joined, "-b:a 192k")
	assert.NotContains(t, joined, "-c:v")
}

func TestBuildMergeConcatGraph(t *testing.T) {
	cfg := baseConfig()
	cfg.MergeInputs = []string{"/videos/part2.mp4", "/videos/part3.mp4"}

	cmd, err := Build(cfg, softwareCaps())
	require.NoError(t, err)

	joined := strings.Join(cmd.Args, " ")
	assert.Equal(t, 3, strings.Count(joined, "-i "))

	fc := argIndex(cmd.Args, "-filter_complex")
	require.GreaterOrEqual(t, fc, 0)
	assert.Contains(t, cmd.Args[fc+1], "concat=n=3:v=1:a=1")
	assert.Contains(t, joined, "-map [outv]")
	assert.Contains(t, joined, "-map [outa]")
}

func TestBuildWatermarkOverlay(t *testing.T) {
	cfg := baseConfig()
	cfg.WatermarkPath = "/videos/logo.png"
	cfg.WatermarkPosition = config.WatermarkTopLeft
	cfg.ChangeResolution = true
	cfg.ResolutionPreset = config.Resolution720p

	cmd, err := Build(cfg, softwareCaps())
	require.NoError(t, err)

	joined := strings.Join(cmd.Args, " ")
	assert.Equal(t, 2, strings.Count(joined, "-i "))

	fc := argIndex(cmd.Args, "-filter_complex")
	require.GreaterOrEqual(t, fc, 0)
	graph := cmd.Args[fc+1]
	assert.Contains(t, graph, "scale=1280:720")
	assert.Contains(t, graph, "overlay=10:10")
	assert.Less(t, strings.Index(graph, "scale"), strings.Index(graph, "overlay"))
	assert.Equal(t, -1, argIndex(cmd.Args, "-vf"))
}

func TestEscapeFilterPath(t *testing.T) {
	assert.Equal(t, `C\:/subs/movie.srt`, escapeFilterPath(`C:\subs\movie.srt`))
	assert.Equal(t, "/plain/path.srt", escapeFilterPath("/plain/path.srt"))
}
