// Copyright 2025 James Ross
package audit

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogger_Record_WritesNDJSONLine(t *testing.T) {
	dir := t.TempDir()
	l, err := New(dir)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Record("10.0.0.1", "bots.delete", "bot-1", "ok", "soft delete"))
	require.NoError(t, l.Record("10.0.0.1", "jobs.release", "job-1", "error", "conflict"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Contains(t, entries[0].Name(), "audit-")

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)

	var lines []Entry
	for _, raw := range splitLines(data) {
		var e Entry
		require.NoError(t, json.Unmarshal(raw, &e))
		lines = append(lines, e)
	}
	require.Len(t, lines, 2)
	require.Equal(t, "bots.delete", lines[0].Action)
	require.Equal(t, "ok", lines[0].Outcome)
	require.Equal(t, "jobs.release", lines[1].Action)
	require.Equal(t, "error", lines[1].Outcome)
}

func splitLines(data []byte) [][]byte {
	var out [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				out = append(out, data[start:i])
			}
			start = i + 1
		}
	}
	return out
}
