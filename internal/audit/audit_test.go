package audit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogWriteAndReadToday(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)

	l.Write(Entry{Action: "task_create", Agent: "-", TaskID: "abc123", Status: "ok", Details: "write a poem"})
	l.Write(Entry{Action: "dispatch", Agent: "OLLAMA_WORKER", TaskID: "abc123", Status: "ok"})

	lines := l.ReadToday(10)
	require.Len(t, lines, 2)
	require.True(t, strings.Contains(lines[0], "task_create"))
	require.True(t, strings.Contains(lines[0], "abc123"))
	require.True(t, strings.Contains(lines[1], "OLLAMA_WORKER"))
}

func TestLogReadTodayLimit(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		l.Write(Entry{Action: "ping", Status: "ok"})
	}
	lines := l.ReadToday(2)
	require.Len(t, lines, 2)
}

func TestLogReadTodayMissingFile(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)
	require.Empty(t, l.ReadToday(10))
}
