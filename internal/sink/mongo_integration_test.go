package sink

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBatch []Item

func (b testBatch) Items() []Item   { return b }
func (b testBatch) PageURL() string { return "https://example.com/search_result" }

func TestMongo_UpsertsByKey(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set, skipping integration test")
	}

	ctx := context.Background()
	m, err := NewMongo(ctx, uri, "hirebot_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	defer func() {
		_ = m.Drop(ctx)
		_ = m.Close(ctx)
	}()

	batch := testBatch{
		{Key: "note:a", Value: map[string]string{"title": "a"}},
		{Key: "note:b", Value: map[string]string{"title": "b"}},
	}
	require.NoError(t, m.Emit(ctx, Event{Action: "feedsUpdated", Data: batch}))
	require.NoError(t, m.Emit(ctx, Event{Action: "feedsUpdated", Data: batch[:1]}))
	require.NoError(t, m.Emit(ctx, Event{Action: "collectorStatus", Data: "ignored"}))

	n, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
