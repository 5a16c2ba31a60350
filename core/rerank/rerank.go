// Package rerank implements lexical reranking of retrieval candidates: an
// ephemeral, in-memory bleve index scores candidates by BM25 against the
// query, and the result is blended with each candidate's upstream semantic
// score.
package rerank

import (
	"context"
	"sort"

	"github.com/blevesearch/bleve/v2"
	"github.com/google/uuid"

	"github.com/ragengine/corpusqa/helper"
)

// Candidate is one chunk entering the rerank stage, carrying whatever
// semantic score it already has (0 if it arrived from a non-semantic
// stage, e.g. the graph).
type Candidate struct {
	ChunkID        uuid.UUID
	Text           string
	SemanticScore  float64
}

// Result is a reranked candidate annotated with its lexical and combined
// scores.
type Result struct {
	ChunkID       uuid.UUID
	Text          string
	SemanticScore float64
	LexicalScore  float64
	Score         float64
}

// bleveDoc is the ephemeral per-call document shape indexed for scoring.
type bleveDoc struct {
	Content string `json:"content"`
}

// Rerank tokenizes query and each candidate's text, scores by BM25 via a
// fresh in-memory bleve index, normalizes each score to [0,1) via s/(s+1),
// and combines with the upstream semantic score as 0.6*semantic +
// 0.4*lexical. Returns the top k by combined score. Empty candidates yield
// an empty result. Any internal bleve error falls back to ordering by
// semantic score alone.
func Rerank(ctx context.Context, query string, candidates []Candidate, k int) ([]Result, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	lexical, err := bm25Scores(ctx, query, candidates)
	if err != nil {
		return fallbackBySemantic(candidates, k), nil
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		l := lexical[c.ChunkID]
		normalized := l / (l + 1)
		combined := 0.6*c.SemanticScore + 0.4*normalized
		results = append(results, Result{
			ChunkID:       c.ChunkID,
			Text:          c.Text,
			SemanticScore: c.SemanticScore,
			LexicalScore:  normalized,
			Score:         combined,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })

	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func bm25Scores(ctx context.Context, query string, candidates []Candidate) (map[uuid.UUID]float64, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, helper.NewError("rerank bleve.NewMemOnly", err)
	}
	defer idx.Close()

	batch := idx.NewBatch()
	for _, c := range candidates {
		if err := batch.Index(c.ChunkID.String(), bleveDoc{Content: c.Text}); err != nil {
			return nil, helper.NewError("rerank batch index", err)
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, helper.NewError("rerank batch execute", err)
	}

	matchQuery := bleve.NewMatchQuery(query)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = len(candidates)

	searchResult, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, helper.NewError("rerank search", err)
	}

	scores := make(map[uuid.UUID]float64, len(candidates))
	for _, hit := range searchResult.Hits {
		id, err := uuid.Parse(hit.ID)
		if err != nil {
			continue
		}
		scores[id] = hit.Score
	}
	return scores, nil
}

func fallbackBySemantic(candidates []Candidate, k int) []Result {
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		results = append(results, Result{
			ChunkID:       c.ChunkID,
			Text:          c.Text,
			SemanticScore: c.SemanticScore,
			Score:         c.SemanticScore,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results
}
