package runlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"datanerd/internal/types"
)

func testRun(id, createdAt string) *types.Run {
	return &types.Run{
		ID:        id,
		CreatedAt: createdAt,
		UserID:    "demo",
		Config:    types.RunConfig{MemoryMode: types.MemoryModeBaseline},
		Query:     "top products by sales last month",
		Response:  "Top products by sales:",
	}
}

func TestFileFor(t *testing.T) {
	require.Equal(t, "runs-20260204.jsonl", FileFor("2026-02-04T09:15:00.000Z"))
	require.Equal(t, "runs-20260204.jsonl", FileFor("2026-02-04"))
}

func TestAppendAndReadAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "runs")
	w := NewWriter(dir)

	require.NoError(t, w.Append(testRun("run-1", "2026-02-04T09:00:00.000Z")))
	require.NoError(t, w.Append(testRun("run-2", "2026-02-04T10:00:00.000Z")))
	require.NoError(t, w.Append(testRun("run-3", "2026-02-05T08:00:00.000Z")))

	// One file per UTC day.
	require.FileExists(t, filepath.Join(dir, "runs-20260204.jsonl"))
	require.FileExists(t, filepath.Join(dir, "runs-20260205.jsonl"))

	runs, err := ReadAll(dir)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	require.Equal(t, "run-1", runs[0].ID)
	require.Equal(t, "run-2", runs[1].ID)
	require.Equal(t, "run-3", runs[2].ID)
	require.Equal(t, "demo", runs[0].UserID)
	require.Equal(t, types.MemoryModeBaseline, runs[0].Config.MemoryMode)
}

func TestReadAllSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	require.NoError(t, w.Append(testRun("run-1", "2026-02-04T09:00:00.000Z")))

	path := filepath.Join(dir, "runs-20260204.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("{not json\n\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, w.Append(testRun("run-2", "2026-02-04T10:00:00.000Z")))

	runs, err := ReadAll(dir)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "run-1", runs[0].ID)
	require.Equal(t, "run-2", runs[1].ID)
}

func TestReadAllEmptyDir(t *testing.T) {
	runs, err := ReadAll(t.TempDir())
	require.NoError(t, err)
	require.Empty(t, runs)
}
