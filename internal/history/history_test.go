package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verifyshot/internal/runner"
)

func sampleResult(id string, started time.Time, status string) runner.Result {
	return runner.Result{
		RunID:  id,
		RunDir: filepath.Join("/work/runs", id),
		Manifest: runner.Manifest{
			RunID:           id,
			StartedAt:       started,
			FinishedAt:      started.Add(3 * time.Second),
			TargetURL:       "http://localhost:5173/report/dummy.server.com",
			Engine:          "playwright",
			Status:          status,
			ConsoleMessages: 2,
			Steps: []runner.StepRecord{
				{Index: 1, Kind: "screenshot", Label: "01-server-list", Screenshot: "01-server-list.png"},
				{Index: 2, Kind: "click_text", Name: "click server2.com"},
				{Index: 3, Kind: "screenshot", Label: "02-server-selected", Screenshot: "02-server-selected.png"},
			},
		},
	}
}

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRecordAndGet(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC)

	require.NoError(t, db.Record(ctx, sampleResult("run-a", started, runner.StatusPassed)))

	r, err := db.Get(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, "run-a", r.ID)
	assert.True(t, started.Equal(r.StartedAt))
	assert.Equal(t, 3*time.Second, r.FinishedAt.Sub(r.StartedAt))
	assert.Equal(t, "playwright", r.Engine)
	assert.Equal(t, runner.StatusPassed, r.Status)
	assert.Equal(t, 2, r.ConsoleMessages)
	assert.Equal(t, filepath.Join("/work/runs", "run-a"), r.RunDir)

	caps, err := db.Captures(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, caps, 2)
	assert.Equal(t, "01-server-list", caps[0].Label)
	assert.Equal(t, filepath.Join("/work/runs", "run-a", "artifacts", "01-server-list.png"), caps[0].Path)
	assert.Equal(t, "02-server-selected", caps[1].Label)
}

func TestGetUnknown(t *testing.T) {
	db := openTest(t)
	_, err := db.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	_, err = db.Latest(context.Background())
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListNewestFirst(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.Record(ctx, sampleResult("old", base, runner.StatusPassed)))
	require.NoError(t, db.Record(ctx, sampleResult("new", base.Add(time.Hour), runner.StatusFailed)))
	require.NoError(t, db.Record(ctx, sampleResult("mid", base.Add(time.Minute), runner.StatusPassed)))

	runs, err := db.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})

	runs, err = db.List(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	latest, err := db.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "new", latest.ID)
	assert.Equal(t, runner.StatusFailed, latest.Status)
}

func TestRecordReplaces(t *testing.T) {
	db := openTest(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	res := sampleResult("run-a", started, runner.StatusPassed)
	require.NoError(t, db.Record(ctx, res))

	res.Manifest.Status = runner.StatusFailed
	res.Manifest.Error = "ready: readiness marker did not appear"
	res.Manifest.Steps = res.Manifest.Steps[:1]
	require.NoError(t, db.Record(ctx, res))

	r, err := db.Get(ctx, "run-a")
	require.NoError(t, err)
	assert.Equal(t, runner.StatusFailed, r.Status)
	assert.Equal(t, "ready: readiness marker did not appear", r.Error)

	caps, err := db.Captures(ctx, "run-a")
	require.NoError(t, err)
	assert.Len(t, caps, 1)

	runs, err := db.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, db.Record(context.Background(), sampleResult("run-a", time.Now(), runner.StatusPassed)))
	require.NoError(t, db.Close())

	db, err = Open(dir)
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, filepath.Join(dir, DBFile), db.Path())

	_, err = db.Get(context.Background(), "run-a")
	assert.NoError(t, err)
}
