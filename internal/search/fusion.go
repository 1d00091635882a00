// Package search fuses keyword and vector matches and reranks retrieved
// chunks for the retrieval engine.
package search

import (
	"sort"

	"github.com/Aman-CERP/amanrag/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
const DefaultRRFConstant = 60

// Weights scales each source's contribution to the fused score.
type Weights struct {
	Keyword  float64
	Semantic float64
}

// DefaultWeights gives keyword and vector matches equal say.
func DefaultWeights() Weights {
	return Weights{Keyword: 0.5, Semantic: 0.5}
}

// FusedResult is one record after RRF fusion.
type FusedResult struct {
	ID           string
	RRFScore     float64 // normalized 0-1
	KeywordScore float64
	KeywordRank  int // 1-indexed, 0 if absent
	VecScore     float64
	VecRank      int // 1-indexed, 0 if absent
	InBothLists  bool
	MatchedTerms []string
}

// RRFFusion combines keyword and vector results with Reciprocal Rank Fusion:
//
//	RRF_score(d) = Σ weight_i / (k + rank_i)
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion with k=60.
func NewRRFFusion() *RRFFusion {
	return &RRFFusion{K: DefaultRRFConstant}
}

// NewRRFFusionWithK creates a fusion with a custom k. k <= 0 uses 60.
func NewRRFFusionWithK(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse combines keyword and vector results. A record present in one list
// only gets the other source's contribution at rank max(len)+1.
//
// Order: RRFScore desc, InBothLists first, KeywordScore desc, ID asc.
func (f *RRFFusion) Fuse(
	keyword []*store.KeywordResult,
	vec []*store.VectorResult,
	weights Weights,
) []*FusedResult {
	if len(keyword) == 0 && len(vec) == 0 {
		return []*FusedResult{}
	}

	scores := make(map[string]*FusedResult, len(keyword)+len(vec))

	for rank, r := range keyword {
		result := f.getOrCreate(scores, r.DocID)
		if result.KeywordRank != 0 {
			continue
		}
		result.KeywordScore = r.Score
		result.KeywordRank = rank + 1
		result.MatchedTerms = r.MatchedTerms
		result.RRFScore += weights.Keyword / float64(f.K+rank+1)
	}

	for rank, r := range vec {
		result := f.getOrCreate(scores, r.ID)
		if result.VecRank != 0 {
			continue
		}
		result.VecScore = float64(r.Score)
		result.VecRank = rank + 1
		result.RRFScore += weights.Semantic / float64(f.K+rank+1)
		if result.KeywordRank > 0 {
			result.InBothLists = true
		}
	}

	missingRank := max(len(keyword), len(vec)) + 1
	for _, r := range scores {
		if r.KeywordRank == 0 && r.VecRank > 0 {
			r.RRFScore += weights.Keyword / float64(f.K+missingRank)
		}
		if r.VecRank == 0 && r.KeywordRank > 0 {
			r.RRFScore += weights.Semantic / float64(f.K+missingRank)
		}
	}

	results := f.toSortedSlice(scores)
	f.normalize(results)
	return results
}

// IDs returns the fused IDs in rank order, at most limit (0 = all).
func IDs(results []*FusedResult, limit int) []string {
	if limit <= 0 || limit > len(results) {
		limit = len(results)
	}
	ids := make([]string, limit)
	for i := range ids {
		ids[i] = results[i].ID
	}
	return ids
}

func (f *RRFFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ID: id}
	m[id] = r
	return r
}

func (f *RRFFusion) toSortedSlice(m map[string]*FusedResult) []*FusedResult {
	results := make([]*FusedResult, 0, len(m))
	for _, r := range m {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})
	return results
}

// compare reports whether a ranks before b.
func (f *RRFFusion) compare(a, b *FusedResult) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InBothLists != b.InBothLists {
		return a.InBothLists
	}
	if a.KeywordScore != b.KeywordScore {
		return a.KeywordScore > b.KeywordScore
	}
	return a.ID < b.ID
}

// normalize scales scores so the best result is 1.0.
func (f *RRFFusion) normalize(results []*FusedResult) {
	if len(results) == 0 {
		return
	}
	maxScore := results[0].RRFScore
	if maxScore == 0 {
		return
	}
	for _, r := range results {
		r.RRFScore /= maxScore
	}
}
