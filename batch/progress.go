// Package batch sequences transcode jobs, supervises the external FFmpeg
// processes, and reports progress and terminal states over an event channel.
package batch

import (
	"regexp"
	"strconv"
)

// FFmpeg's stderr status lines carry a timestamp-shaped token, e.g.
// "frame= 120 fps=60 q=28 time=00:00:04.00 bitrate=...". The grammar is an
// external tool's free text: parsing fails soft, an unmatched line is just
// log output.
var (
	progressTimeRe = regexp.MustCompile(`time=(\d+):(\d+):(\d+(?:\.\d+)?)`)
	durationLineRe = regexp.MustCompile(`Duration: (\d+):(\d+):(\d+(?:\.\d+)?)`)
)

// ParseProgressTime extracts the output timestamp from a status line and
// returns it in seconds.
func ParseProgressTime(line string) (float64, bool) {
	return parseClock(progressTimeRe, line)
}

// ParseDurationLine extracts the stream duration FFmpeg prints while opening
// the input. Used as a fallback when probing failed and the total duration
// is unknown.
func ParseDurationLine(line string) (float64, bool) {
	return parseClock(durationLineRe, line)
}

func parseClock(re *regexp.Regexp, line string) (float64, bool) {
	m := re.FindStringSubmatch(line)
	if len(m) != 4 {
		return 0, false
	}
	h, err1 := strconv.Atoi(m[1])
	min, err2 := strconv.Atoi(m[2])
	sec, err3 := strconv.ParseFloat(m[3], 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return float64(h)*3600 + float64(min)*60 + sec, true
}

// clampFraction keeps a progress fraction inside [0, 1].
func clampFraction(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
