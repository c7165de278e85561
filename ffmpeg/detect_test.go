package ffmpeg

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoforge/config"
)

const encoderListing = `Encoders:
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder
 V....D h264_qsv             H.264 / AVC (Intel Quick Sync Video)
 A....D aac                  AAC (Advanced Audio Coding)
`

type fakeExec struct {
	paths      map[string]string
	encodeFail map[string]bool
	calls      []string
}

func (f *fakeExec) lookPath(name string) (string, error) {
	if p, ok := f.paths[name]; ok {
		return p, nil
	}
	return "", errors.New("not found")
}

func (f *fakeExec) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, strings.Join(args, " "))
	joined := strings.Join(args, " ")
	switch {
	case joined == "-version":
		return []byte("ffmpeg version 6.1.1 Copyright (c) 2000-2023\nbuilt with gcc\n"), nil
	case strings.Contains(joined, "-encoders"):
		return []byte(encoderListing), nil
	case strings.Contains(joined, "lavfi"):
		for enc, fail := range f.encodeFail {
			if strings.Contains(joined, enc) && fail {
				return nil, errors.New("encoder open failed")
			}
		}
		return nil, nil
	}
	return nil, nil
}

func newTestDetector(f *fakeExec) *Detector {
	d := NewDetector(zerolog.Nop())
	d.lookPath = f.lookPath
	d.run = f.run
	d.searchDirs = nil
	return d
}

func TestDetectMissingFFmpeg(t *testing.T) {
	d := newTestDetector(&fakeExec{paths: map[string]string{}})
	_, err := d.Detect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestDetectConfirmsCompiledInEncoders(t *testing.T) {
	f := &fakeExec{paths: map[string]string{
		"ffmpeg":  "/usr/bin/ffmpeg",
		"ffprobe": "/usr/bin/ffprobe",
	}}
	caps, err := newTestDetector(f).Detect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/usr/bin/ffmpeg", caps.FFmpegPath)
	assert.Equal(t, "/usr/bin/ffprobe", caps.FFprobePath)
	assert.Equal(t, "ffmpeg version 6.1.1 Copyright (c) 2000-2023", caps.Version)

	// Only encoders present in the listing are test-encoded; amf and
	// videotoolbox never get a confirmation attempt.
	assert.ElementsMatch(t, []string{"h264_nvenc", "h264_qsv"}, caps.HWEncoders)
	for _, call := range f.calls {
		assert.NotContains(t, call, "h264_amf")
	}
}

func TestDetectDropsEncoderFailingTestEncode(t *testing.T) {
	f := &fakeExec{
		paths:      map[string]string{"ffmpeg": "/usr/bin/ffmpeg"},
		encodeFail: map[string]bool{"h264_nvenc": true},
	}
	caps, err := newTestDetector(f).Detect(context.Background())
	require.NoError(t, err)

	assert.False(t, caps.Has("h264_nvenc"))
	assert.True(t, caps.Has("h264_qsv"))
}

func TestDetectMissingFFprobeIsNotFatal(t *testing.T) {
	f := &fakeExec{paths: map[string]string{"ffmpeg": "/usr/bin/ffmpeg"}}
	caps, err := newTestDetector(f).Detect(context.Background())
	require.NoError(t, err)
	assert.Empty(t, caps.FFprobePath)
}

func TestEncoderForCoversAllBackends(t *testing.T) {
	for accel, want := range map[config.HWAccel]string{
		config.HWNVENC:        "h264_nvenc",
		config.HWAMF:          "h264_amf",
		config.HWVideoToolbox: "h264_videotoolbox",
		config.HWQSV:          "h264_qsv",
	} {
		got, ok := EncoderFor(accel)
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := EncoderFor(config.HWNone)
	assert.False(t, ok)
}

func TestCapabilitiesHasNilReceiver(t *testing.T) {
	var caps *Capabilities
	assert.False(t, caps.Has("h264_nvenc"))
}
