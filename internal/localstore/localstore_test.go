package localstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/hirebot/internal/store"
)

func openTemp(t *testing.T) (*DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, path
}

func TestKV_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)

	require.NoError(t, db.KV.Set(ctx, map[string]any{
		"waiting": []string{"1", "2"},
		"enabled": true,
	}))
	require.NoError(t, db.KV.Set(ctx, map[string]any{"enabled": false}))

	got, err := db.KV.Get(ctx, "waiting", "enabled", "absent")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	var ids []string
	ok, err := store.Decode(got, "waiting", &ids)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"1", "2"}, ids)
	assert.JSONEq(t, `false`, string(got["enabled"]))

	require.NoError(t, db.KV.Remove(ctx, "waiting"))
	got, err = db.KV.Get(ctx, "waiting", "enabled")
	require.NoError(t, err)
	assert.NotContains(t, got, "waiting")

	require.NoError(t, db.KV.Clear(ctx))
	got, err = db.KV.Get(ctx, "enabled")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKV_GetNoKeys(t *testing.T) {
	db, _ := openTemp(t)
	got, err := db.KV.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKV_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	db, path := openTemp(t)
	require.NoError(t, db.KV.Set(ctx, map[string]any{"processed": []string{"a"}}))
	require.NoError(t, db.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.KV.Get(ctx, "processed")
	require.NoError(t, err)
	assert.JSONEq(t, `["a"]`, string(got["processed"]))
}

func TestResumes(t *testing.T) {
	ctx := context.Background()
	db, _ := openTemp(t)
	now := time.Date(2025, 3, 1, 10, 0, 0, 123, time.UTC)

	id1, err := db.Resumes.Add(ctx, store.ResumeRecord{Name: "张三", Timestamp: now, Status: store.StatusDownloaded})
	require.NoError(t, err)
	id2, err := db.Resumes.Add(ctx, store.ResumeRecord{Name: "李四", Timestamp: now, Status: "skipped"})
	require.NoError(t, err)
	assert.Greater(t, id2, id1)

	all, err := db.Resumes.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "张三", all[0].Name)
	assert.True(t, now.Equal(all[0].Timestamp))

	byStatus, err := db.Resumes.Query(ctx, store.FieldStatus, store.StatusDownloaded)
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, id1, byStatus[0].ID)

	exists, err := db.Resumes.ExistsByName(ctx, "李四")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = db.Resumes.ExistsByName(ctx, "王五")
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = db.Resumes.Query(ctx, "id; DROP TABLE resumes", "1")
	assert.Error(t, err)

	require.NoError(t, db.Resumes.Clear(ctx))
	all, err = db.Resumes.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestResumes_RejectsInvalidRecord(t *testing.T) {
	db, _ := openTemp(t)
	_, err := db.Resumes.Add(context.Background(), store.ResumeRecord{Status: store.StatusDownloaded})
	assert.Error(t, err)
}
