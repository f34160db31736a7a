package log

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarn)
	t.Cleanup(func() { SetLevel(LevelInfo) })

	Info("hidden", "k", "v")
	require.Empty(t, buf.String())

	Warn("fallback used", "requested", "2025-06-10", "used", "2025-06-12", "dangling")
	Error("write failed", errors.New("disk full"), "path", "docs/gebetszeiten.ics")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `"level":"warn"`)
	require.Contains(t, lines[0], `"requested":"2025-06-10"`)
	require.NotContains(t, lines[0], "dangling")
	require.Contains(t, lines[1], `"level":"error"`)
	require.Contains(t, lines[1], `"error":"disk full"`)
	require.Contains(t, lines[1], `"path":"docs/gebetszeiten.ics"`)
}

func TestParseLevel(t *testing.T) {
	lvl, ok := ParseLevel("debug")
	require.True(t, ok)
	require.Equal(t, LevelDebug, lvl)

	lvl, ok = ParseLevel(" Warning ")
	require.True(t, ok)
	require.Equal(t, LevelWarn, lvl)

	lvl, ok = ParseLevel("verbose")
	require.False(t, ok)
	require.Equal(t, LevelInfo, lvl)
}
