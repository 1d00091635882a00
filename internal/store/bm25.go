package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
)

const (
	textTokenizerName  = "amanrag_text_tokenizer"
	textStopFilterName = "amanrag_text_stop"
	textAnalyzerName   = "amanrag_text_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(textTokenizerName, textTokenizerConstructor)
	_ = registry.RegisterTokenFilter(textStopFilterName, textStopFilterConstructor)
}

// BleveBM25Index implements KeywordIndex with bleve/v2.
type BleveBM25Index struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

var _ KeywordIndex = (*BleveBM25Index)(nil)

type bleveDocument struct {
	Content string `json:"content"`
}

// NewBleveBM25Index opens or creates a bleve index at path. An empty path
// creates an in-memory index. A corrupted index directory is cleared.
func NewBleveBM25Index(path string, _ KeywordConfig) (*BleveBM25Index, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if verr := validateIndexIntegrity(path); verr != nil {
			slog.Warn("keyword_index_corrupted",
				slog.String("path", path),
				slog.String("error", verr.Error()))
			if err := os.RemoveAll(path); err != nil {
				return nil, fmt.Errorf("keyword index corrupted at %s and cannot remove: %w", path, err)
			}
		}
		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}
	return &BleveBM25Index{index: idx, path: path}, nil
}

func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("index_meta.json unreadable: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()
	err := indexMapping.AddCustomAnalyzer(textAnalyzerName, map[string]any{
		"type":          custom.Name,
		"tokenizer":     textTokenizerName,
		"token_filters": []string{textStopFilterName},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = textAnalyzerName
	return indexMapping, nil
}

// Index adds or replaces documents in one batch.
func (b *BleveBM25Index) Index(_ context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument{Content: doc.Content}); err != nil {
			return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search runs an OR match query over content, best BM25 first.
func (b *BleveBM25Index) Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, fmt.Errorf("index is closed")
	}
	if strings.TrimSpace(query) == "" {
		return []*KeywordResult{}, nil
	}

	mq := bleve.NewMatchQuery(query)
	mq.SetField("content")
	req := bleve.NewSearchRequest(mq)
	req.Size = limit
	req.IncludeLocations = true

	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*KeywordResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		results = append(results, &KeywordResult{
			DocID:        hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}
	return results, nil
}

// Delete removes documents from the index.
func (b *BleveBM25Index) Delete(_ context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete documents: %w", err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (b *BleveBM25Index) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	n, _ := b.index.DocCount()
	return int(n)
}

// Finalize is a no-op: bleve persists each batch.
func (b *BleveBM25Index) Finalize(context.Context) error {
	return nil
}

// Close closes the index. Idempotent.
func (b *BleveBM25Index) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}

func matchedTerms(hit *search.DocumentMatch) []string {
	var terms []string
	for term := range hit.Locations["content"] {
		terms = append(terms, term)
	}
	return terms
}

func textTokenizerConstructor(map[string]any, *registry.Cache) (analysis.Tokenizer, error) {
	return textTokenizer{}, nil
}

// textTokenizer feeds bleve the same terms TokenizeText produces.
type textTokenizer struct{}

func (textTokenizer) Tokenize(input []byte) analysis.TokenStream {
	lower := strings.ToLower(string(input))
	locs := termRegex.FindAllStringIndex(lower, -1)
	stream := make(analysis.TokenStream, 0, len(locs))
	pos := 1
	for _, l := range locs {
		term := lower[l[0]:l[1]]
		if len([]rune(term)) < 2 {
			continue
		}
		stream = append(stream, &analysis.Token{
			Term:     []byte(term),
			Start:    l[0],
			End:      l[1],
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
	}
	return stream
}

func textStopFilterConstructor(map[string]any, *registry.Cache) (analysis.TokenFilter, error) {
	return stopFilter{stopWords: BuildStopWordMap(DefaultStopWords)}, nil
}

type stopFilter struct {
	stopWords map[string]struct{}
}

func (f stopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input))
	for _, tok := range input {
		if _, stop := f.stopWords[string(tok.Term)]; !stop {
			out = append(out, tok)
		}
	}
	return out
}
