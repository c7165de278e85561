package tui

import (
	"strings"
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"

	"videoforge/batch"
)

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1048576, "1.0 MiB"},
		{5 * 1024 * 1024 * 1024, "5.0 GiB"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatBytes(tc.in))
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{42 * time.Second, "0:42"},
		{2*time.Minute + 5*time.Second, "2:05"},
		{time.Hour + 3*time.Minute + 7*time.Second, "1:03:07"},
		{-time.Second, "—"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, formatDuration(tc.in))
	}
}

// For any path and sane max length, truncatePath never exceeds the limit.
func TestTruncatePath_Property(t *testing.T) {
	f := func(path string, max uint8) bool {
		maxLen := int(max)
		if maxLen < 25 {
			maxLen += 25
		}
		return len(truncatePath(path, maxLen)) <= maxLen
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 1000}); err != nil {
		t.Error(err)
	}
}

func TestTruncatePathKeepsBothEnds(t *testing.T) {
	long := "/very/long/directory/structure/with/a/deeply/nested/file_name.mp4"
	got := truncatePath(long, 40)
	assert.LessOrEqual(t, len(got), 40)
	assert.Contains(t, got, " ... ")
	assert.True(t, strings.HasPrefix(long, got[:5]))
	assert.True(t, strings.HasSuffix(long, got[len(got)-5:]))
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab   ", padRight("ab", 5))
	assert.Equal(t, "abcdef", padRight("abcdef", 5))
}

func TestStateGlyphCoversEveryState(t *testing.T) {
	states := []batch.State{
		batch.StateQueued,
		batch.StateRunning,
		batch.StateSucceeded,
		batch.StateFailed,
		batch.StateCancelled,
	}
	seen := map[string]bool{}
	for _, s := range states {
		g := stateGlyph(s)
		assert.NotEmpty(t, g)
		assert.NotEqual(t, "?", g)
		seen[g] = true
	}
	assert.Len(t, seen, len(states), "each state renders a distinct glyph")
}
