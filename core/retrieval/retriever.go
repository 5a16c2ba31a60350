// Package retrieval implements the Retriever: the central orchestrator that
// takes a routed-to-retrieve query (plus any paraphrases) and a document
// filter and returns a ranked, deduplicated set of chunks with provenance.
// It fans out to the vector index (semantic), the graph store (structural),
// and a lexical reranker, merging and filtering between stages the way the
// teacher's old strategy layer merged vector and graph results into one
// scored map before a final sort and truncate.
package retrieval

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"

	"github.com/ragengine/corpusqa/core/pipeline"
	"github.com/ragengine/corpusqa/core/rerank"
	"github.com/ragengine/corpusqa/core/vectorindex"
	"github.com/ragengine/corpusqa/database"
	"github.com/ragengine/corpusqa/helper"
	"github.com/ragengine/corpusqa/model"
)

// DefaultTopK is the default number of chunks to return per query.
const DefaultTopK = 10

// fuzzyFilenameThreshold is the minimum Jaro-Winkler similarity between an
// entity token and a filename token for the smart filter's fuzzy fallback
// to count as a match (tolerating minor filename/entity spelling drift).
const fuzzyFilenameThreshold = 0.85

// Candidate is one chunk surviving the merge stage, annotated with where it
// came from and (if it arrived via the vector index) its semantic score.
type Candidate struct {
	ChunkID       uuid.UUID
	DocumentRID   uuid.UUID
	Text          string
	Source        string
	Citation      model.Citation
	SemanticScore float64
	Origins       []string // "semantic", "graph"
}

// RankedChunk is a final, reranked retrieval result.
type RankedChunk struct {
	ChunkID       uuid.UUID
	DocumentRID   uuid.UUID
	Text          string
	Source        string
	Citation      model.Citation
	SemanticScore float64
	LexicalScore  float64
	Score         float64
	Origins       []string
}

// Retriever is the Stage 1-7 hybrid retrieval pipeline.
type Retriever struct {
	VectorIndex     *vectorindex.Index
	GraphStore      *database.GraphStore
	EntityExtractor pipeline.EntityExtractFunc // optional; Stage 4 is skipped if nil
	TopK            int
}

// New constructs a Retriever. topK <= 0 uses DefaultTopK.
func New(vi *vectorindex.Index, gs *database.GraphStore, entityExtractor pipeline.EntityExtractFunc, topK int) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Retriever{VectorIndex: vi, GraphStore: gs, EntityExtractor: entityExtractor, TopK: topK}
}

// Retrieve runs the full hybrid pipeline for queries (|queries| in [1, N+1],
// queries[0] is the original question and any remainder are paraphrases)
// against the optional document filter, and returns up to 2*topK chunks.
func (r *Retriever) Retrieve(ctx context.Context, queries []string, docFilter []uuid.UUID) ([]RankedChunk, error) {
	if len(queries) == 0 {
		return nil, helper.NewErrorKind("retriever.Retrieve", helper.KindInput, errEmptyQueries{})
	}

	topK := r.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	wantSize := 2 * topK

	docFilterStrings := make([]string, len(docFilter))
	for i, id := range docFilter {
		docFilterStrings[i] = id.String()
	}

	merged := map[string]*Candidate{}

	// Stage 1 - Semantic.
	semanticHits, err := r.VectorIndex.Search(ctx, queries[0], 20, docFilterStrings)
	if err != nil {
		return nil, err
	}
	for _, hit := range semanticHits {
		key := mergeKey(hit.ChunkID, hit.Text)
		merged[key] = &Candidate{
			ChunkID:       hit.ChunkID,
			Text:          hit.Text,
			Source:        hit.Source,
			Citation:      hit.Citation,
			SemanticScore: hit.Score,
			Origins:       []string{"semantic"},
		}
	}

	// Stage 2 - Graph.
	seeds := make([]*model.Chunk, 0, len(semanticHits))
	for _, hit := range semanticHits {
		seeds = append(seeds, &model.Chunk{ID: hit.ChunkID})
	}
	if len(seeds) > 0 {
		graphHits, err := r.GraphStore.TraversalRetrieve(ctx, seeds, 2, 15)
		if err == nil {
			r.mergeGraphChunks(ctx, merged, graphHits, "graph")
		}
	}

	candidates := candidateSlice(merged)

	// Stage 4 - Smart filter.
	if r.EntityExtractor != nil {
		candidates = r.smartFilter(ctx, queries[0], candidates)
	}

	// Stage 5 - Rerank.
	ranked, err := r.rerankCandidates(ctx, queries[0], candidates, wantSize)
	if err != nil {
		return nil, err
	}

	// Variation pass: for each paraphrase, top up if below target size.
	for _, q := range queries[1:] {
		if len(ranked) >= wantSize {
			break
		}
		extra, err := r.GraphStore.QuerySimilarChunks(ctx, q, docFilter, wantSize-len(ranked))
		if err != nil {
			continue
		}
		for _, chunk := range extra {
			key := mergeKey(chunk.ID, chunk.Content)
			if _, exists := merged[key]; exists {
				continue
			}
			source, citation := r.resolveSource(ctx, chunk)
			cand := Candidate{
				ChunkID:     chunk.ID,
				DocumentRID: chunk.DocumentRID,
				Text:        chunk.Content,
				Source:      source,
				Citation:    citation,
				Origins:     []string{"variation"},
			}
			merged[key] = &cand
			ranked = append(ranked, RankedChunk{
				ChunkID:  cand.ChunkID,
				Text:     cand.Text,
				Source:   cand.Source,
				Citation: cand.Citation,
				Origins:  cand.Origins,
			})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if len(ranked) > wantSize {
		ranked = ranked[:wantSize]
	}
	return ranked, nil
}

func (r *Retriever) mergeGraphChunks(ctx context.Context, merged map[string]*Candidate, chunks []*model.Chunk, origin string) {
	for _, chunk := range chunks {
		key := mergeKey(chunk.ID, chunk.Content)
		if existing, exists := merged[key]; exists {
			existing.Origins = appendOrigin(existing.Origins, origin)
			continue
		}
		source, citation := r.resolveSource(ctx, chunk)
		merged[key] = &Candidate{
			ChunkID:     chunk.ID,
			DocumentRID: chunk.DocumentRID,
			Text:        chunk.Content,
			Source:      source,
			Citation:    citation,
			Origins:     []string{origin},
		}
	}
}

func (r *Retriever) resolveSource(ctx context.Context, chunk *model.Chunk) (string, model.Citation) {
	doc, err := r.GraphStore.Documents.SelectDocument(chunk.DocumentRID)
	if err != nil {
		return "", chunk.Citation
	}
	return doc.Source, chunk.Citation
}

// smartFilter extracts entities from the query and, if any entity name (or a
// >=3-char token of it) occurs in a candidate's source filename, drops every
// candidate whose source does not match. Falls back to content-token
// matching if no filename matches. If both produce an empty set, filtering
// is skipped entirely.
func (r *Retriever) smartFilter(ctx context.Context, queryText string, candidates []*Candidate) []*Candidate {
	entities, err := r.EntityExtractor(queryText)
	if err != nil || len(entities) == 0 {
		return candidates
	}

	tokens := entityTokens(entities)
	if len(tokens) == 0 {
		return candidates
	}

	byFilename := filterCandidates(candidates, tokens, func(c *Candidate) string { return c.Source })
	if len(byFilename) > 0 {
		return byFilename
	}

	byContent := filterCandidates(candidates, tokens, func(c *Candidate) string { return c.Text })
	if len(byContent) > 0 {
		return byContent
	}

	return candidates
}

func entityTokens(entities []*model.Entity) []string {
	seen := map[string]bool{}
	var tokens []string
	for _, e := range entities {
		for _, tok := range strings.Fields(e.Name) {
			tok = strings.ToLower(tok)
			if len(tok) < 3 || seen[tok] {
				continue
			}
			seen[tok] = true
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

func filterCandidates(candidates []*Candidate, tokens []string, field func(*Candidate) string) []*Candidate {
	var out []*Candidate
	for _, c := range candidates {
		haystack := strings.ToLower(field(c))
		if haystack == "" {
			continue
		}
		if tokenMatches(haystack, tokens) {
			out = append(out, c)
		}
	}
	return out
}

// tokenMatches reports whether any token occurs verbatim in haystack, or is
// a close enough fuzzy match (Jaro-Winkler) to one of haystack's own words
// to tolerate minor spelling drift between entity names and filenames.
func tokenMatches(haystack string, tokens []string) bool {
	words := strings.FieldsFunc(haystack, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == '/' || r == ' '
	})
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			return true
		}
		for _, w := range words {
			if matchr.JaroWinkler(tok, w, false) >= fuzzyFilenameThreshold {
				return true
			}
		}
	}
	return false
}

func (r *Retriever) rerankCandidates(ctx context.Context, queryText string, candidates []*Candidate, k int) ([]RankedChunk, error) {
	byID := make(map[uuid.UUID]*Candidate, len(candidates))
	rerankCandidates := make([]rerank.Candidate, 0, len(candidates))
	for _, c := range candidates {
		byID[c.ChunkID] = c
		rerankCandidates = append(rerankCandidates, rerank.Candidate{
			ChunkID:       c.ChunkID,
			Text:          c.Text,
			SemanticScore: c.SemanticScore,
		})
	}

	results, err := rerank.Rerank(ctx, queryText, rerankCandidates, k)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedChunk, 0, len(results))
	for _, res := range results {
		c := byID[res.ChunkID]
		ranked = append(ranked, RankedChunk{
			ChunkID:       res.ChunkID,
			DocumentRID:   c.DocumentRID,
			Text:          res.Text,
			Source:        c.Source,
			Citation:      c.Citation,
			SemanticScore: res.SemanticScore,
			LexicalScore:  res.LexicalScore,
			Score:         res.Score,
			Origins:       c.Origins,
		})
	}
	return ranked, nil
}

func candidateSlice(merged map[string]*Candidate) []*Candidate {
	out := make([]*Candidate, 0, len(merged))
	for _, c := range merged {
		out = append(out, c)
	}
	return out
}

func appendOrigin(origins []string, origin string) []string {
	for _, o := range origins {
		if o == origin {
			return origins
		}
	}
	return append(origins, origin)
}

// mergeKey prefers the chunk id but falls back to a hash of the first 100
// characters of its text, so the same passage surfaced via two different
// paths (with two different IDs, e.g. a re-chunked duplicate) still merges.
func mergeKey(id uuid.UUID, text string) string {
	if id != uuid.Nil {
		return "id:" + id.String()
	}
	prefix := text
	if len(prefix) > 100 {
		prefix = prefix[:100]
	}
	h := fnv.New64a()
	h.Write([]byte(prefix))
	return fmt.Sprintf("text:%x", h.Sum64())
}

type errEmptyQueries struct{}

func (errEmptyQueries) Error() string { return "at least one query is required" }
