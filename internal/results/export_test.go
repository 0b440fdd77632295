package results_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creatorcrawl/internal/crawler"
	"github.com/JakeFAU/creatorcrawl/internal/results"
	"github.com/JakeFAU/creatorcrawl/internal/storage/memory"
)

func TestExportWritesSnapshot(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	entries := []crawler.Entry{{Username: "alpha"}, {Username: "beta"}}

	uri, err := results.Export(context.Background(), blobs, "exports/results.json", entries)
	require.NoError(t, err)
	assert.Equal(t, "memory://exports/results.json", uri)

	obj, ok := blobs.Get("exports/results.json")
	require.True(t, ok)
	assert.Equal(t, results.ContentType, obj.ContentType)

	var decoded []crawler.Entry
	require.NoError(t, json.Unmarshal(obj.Data, &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "beta", decoded[1].Username)
}

func TestExportEmptyCollection(t *testing.T) {
	t.Parallel()

	blobs := memory.NewBlobStore()
	_, err := results.Export(context.Background(), blobs, "r.json", nil)
	require.NoError(t, err)
	obj, _ := blobs.Get("r.json")
	assert.JSONEq(t, "[]", string(obj.Data))
}

func TestExportPropagatesStoreFailure(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := results.Export(ctx, memory.NewBlobStore(), "r.json", nil)
	require.ErrorIs(t, err, context.Canceled)
}
