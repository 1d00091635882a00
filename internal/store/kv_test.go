package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteKVStore_Docs(t *testing.T) {
	kv, err := NewSQLiteKVStore("")
	require.NoError(t, err)
	defer func() { _ = kv.Close() }()
	ctx := context.Background()

	// Given: an unknown document
	doc, err := kv.GetDoc(ctx, "doc-1")
	require.NoError(t, err)
	assert.Nil(t, doc)

	// When: it moves from processing to processed
	require.NoError(t, kv.PutDoc(ctx, &DocRecord{ID: "doc-1", Summary: "hello", Length: 5, Status: DocStatusProcessing}))
	first, err := kv.GetDoc(ctx, "doc-1")
	require.NoError(t, err)
	require.NoError(t, kv.PutDoc(ctx, &DocRecord{ID: "doc-1", Summary: "hello", Length: 5, ChunkCount: 1, Status: DocStatusProcessed}))

	// Then: status changes and CreatedAt is kept
	got, err := kv.GetDoc(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, DocStatusProcessed, got.Status)
	assert.Equal(t, 1, got.ChunkCount)
	assert.Equal(t, first.CreatedAt.UnixNano(), got.CreatedAt.UnixNano())
}

func TestSQLiteKVStore_ChunksInInputOrder(t *testing.T) {
	kv, err := NewSQLiteKVStore("")
	require.NoError(t, err)
	defer func() { _ = kv.Close() }()
	ctx := context.Background()

	require.NoError(t, kv.PutChunks(ctx, []*ChunkRecord{
		{ID: "c1", DocID: "d", Content: "one", Tokens: 1, Order: 0},
		{ID: "c2", DocID: "d", Content: "two", Tokens: 1, Order: 1},
		{ID: "c3", DocID: "d", Content: "three", Tokens: 1, Order: 2},
	}))

	got, err := kv.GetChunks(ctx, []string{"c3", "nope", "c1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "three", got[0].Content)
	assert.Equal(t, "one", got[1].Content)

	docs, chunks, err := kv.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, docs)
	assert.Equal(t, 3, chunks)
}

func TestSQLiteKVStore_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv_store.db")
	kv, err := NewSQLiteKVStore(path)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, kv.PutChunks(ctx, []*ChunkRecord{{ID: "c1", DocID: "d", Content: "kept"}}))
	require.NoError(t, kv.Finalize(ctx))
	require.NoError(t, kv.Close())

	reopened, err := NewSQLiteKVStore(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	got, err := reopened.GetChunks(ctx, []string{"c1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Content)
}
