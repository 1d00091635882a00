package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keywordBackends(t *testing.T) map[string]func(path string) KeywordIndex {
	return map[string]func(path string) KeywordIndex{
		KeywordBackendSQLite: func(path string) KeywordIndex {
			idx, err := NewSQLiteBM25Index(path, DefaultKeywordConfig())
			require.NoError(t, err)
			return idx
		},
		KeywordBackendBleve: func(path string) KeywordIndex {
			idx, err := NewBleveBM25Index(path, DefaultKeywordConfig())
			require.NoError(t, err)
			return idx
		},
	}
}

func TestKeywordIndex_SearchRanksMatches(t *testing.T) {
	for name, open := range keywordBackends(t) {
		t.Run(name, func(t *testing.T) {
			// Given: three indexed descriptions
			idx := open("")
			defer func() { _ = idx.Close() }()
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, []*Document{
				{ID: "ent-alpha", Content: "Alpha is a researcher who loves Beta"},
				{ID: "ent-gamma", Content: "Gamma is a company in Zurich"},
				{ID: "rel-ab", Content: "Alpha loves Beta deeply, Beta loves Alpha"},
			}))

			// When: searching for a term in two of them
			results, err := idx.Search(ctx, "who loves beta?", 10)
			require.NoError(t, err)

			// Then: only those two are returned, best first, with positive scores
			require.Len(t, results, 2)
			ids := []string{results[0].DocID, results[1].DocID}
			assert.ElementsMatch(t, []string{"ent-alpha", "rel-ab"}, ids)
			assert.Greater(t, results[0].Score, 0.0)
			assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
			assert.Equal(t, 3, idx.Count())
		})
	}
}

func TestKeywordIndex_StopWordsOnlyQuery(t *testing.T) {
	for name, open := range keywordBackends(t) {
		t.Run(name, func(t *testing.T) {
			idx := open("")
			defer func() { _ = idx.Close() }()
			require.NoError(t, idx.Index(context.Background(), []*Document{{ID: "1", Content: "the and of"}}))

			results, err := idx.Search(context.Background(), "the of", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestKeywordIndex_ReindexAndDelete(t *testing.T) {
	for name, open := range keywordBackends(t) {
		t.Run(name, func(t *testing.T) {
			idx := open("")
			defer func() { _ = idx.Close() }()
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, []*Document{{ID: "1", Content: "apples oranges"}}))

			// When: the document is replaced with new content
			require.NoError(t, idx.Index(ctx, []*Document{{ID: "1", Content: "pears"}}))

			// Then: the old content no longer matches
			results, err := idx.Search(ctx, "apples", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
			assert.Equal(t, 1, idx.Count())

			require.NoError(t, idx.Delete(ctx, []string{"1"}))
			assert.Equal(t, 0, idx.Count())
		})
	}
}

func TestKeywordIndex_Persists(t *testing.T) {
	for name := range keywordBackends(t) {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			idx, err := NewKeywordIndex(dir, name, DefaultKeywordConfig())
			require.NoError(t, err)
			ctx := context.Background()
			require.NoError(t, idx.Index(ctx, []*Document{{ID: "x", Content: "persistent keyword"}}))
			require.NoError(t, idx.Finalize(ctx))
			require.NoError(t, idx.Close())

			reopened, err := NewKeywordIndex(dir, name, DefaultKeywordConfig())
			require.NoError(t, err)
			defer func() { _ = reopened.Close() }()
			results, err := reopened.Search(ctx, "keyword", 5)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "x", results[0].DocID)
		})
	}
}

func TestNewKeywordIndex_UnknownBackend(t *testing.T) {
	_, err := NewKeywordIndex(filepath.Join(t.TempDir(), "k"), "lucene", DefaultKeywordConfig())
	assert.Error(t, err)
}

func TestTokenizeText(t *testing.T) {
	tokens := TokenizeText("Hello, World! a über-fast 42")
	assert.Equal(t, []string{"hello", "world", "über", "fast", "42"}, tokens)

	filtered := FilterStopWords(TokenizeText("who does Alpha love"), BuildStopWordMap(DefaultStopWords))
	assert.Equal(t, []string{"alpha", "love"}, filtered)
}
