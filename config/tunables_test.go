package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefault_FillsEveryField(t *testing.T) {
	d := Default()
	require.Greater(t, d.MaxThreads, 0)
	require.Equal(t, defaultHazardSlotsPerThread, d.HazardSlotsPerThread)
	require.Equal(t, float64(defaultRebuildChangeFactor), d.RebuildChangeFactor)
	require.Equal(t, uint32(defaultRebuildMinSize), d.RebuildMinSize)
	require.Equal(t, defaultToBeDeletedDrainBatch, d.ToBeDeletedDrainBatch)
}

func TestLoad_PartialFileFillsRemainingDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tunables.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rebuild_min_size": 20}`), 0o644))

	tn, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint32(20), tn.RebuildMinSize)
	require.Greater(t, tn.MaxThreads, 0, "omitted field falls back to the runtime default")
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestReloadableDiff_IgnoresConstructionFixedFields(t *testing.T) {
	cur := Default()
	next := cur
	next.MaxThreads = cur.MaxThreads + 4
	next.RebuildMinSize = cur.RebuildMinSize + 1

	merged, changed := cur.reloadableDiff(next)
	require.True(t, changed)
	require.Equal(t, cur.MaxThreads, merged.MaxThreads, "MaxThreads must not be affected by a reload")
	require.Equal(t, next.RebuildMinSize, merged.RebuildMinSize)
}

func TestReloadableDiff_NoChangeReportsFalse(t *testing.T) {
	cur := Default()
	_, changed := cur.reloadableDiff(cur)
	require.False(t, changed)
}

func TestWatcher_PicksUpFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tunables.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"rebuild_min_size": 5}`), 0o644))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	defer w.Close()

	require.Equal(t, uint32(5), w.Current().RebuildMinSize)

	require.NoError(t, os.WriteFile(path, []byte(`{"rebuild_min_size": 30}`), 0o644))

	require.Eventually(t, func() bool {
		return w.Current().RebuildMinSize == 30
	}, 2*time.Second, 10*time.Millisecond, "watcher should observe the updated file")
}
