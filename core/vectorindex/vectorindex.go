// Package vectorindex implements the append-only approximate-nearest-neighbor
// index over chunk embeddings. It is deliberately independent of the
// relational graph store: embeddings are encoded, persisted, and searched
// entirely in-process, keyed only by chunk id.
package vectorindex

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/ragengine/corpusqa/helper"
	"github.com/ragengine/corpusqa/model"
)

// EmbedFunc encodes a single piece of text to a vector. Implementations are
// expected to return a unit-norm embedding; Add normalizes defensively
// regardless.
type EmbedFunc func(text string) ([]float32, error)

// Entry is a chunk's retained vector-index row: the vector itself plus
// enough metadata to answer a search without a round-trip to the graph
// store. Mirrors the persisted vector_metadata.pkl record shape
// ({text, doc_id, chunk_id, source, citation}).
type Entry struct {
	ChunkID  uuid.UUID
	DocID    string
	Source   string
	Text     string
	Citation model.Citation
	Vector   []float32
}

// AddInput pairs a chunk with the source filename of its owning document,
// since Chunk itself carries no document-level metadata.
type AddInput struct {
	Chunk  *model.Chunk
	Source string
}

// SearchResult is one ranked hit from Search.
type SearchResult struct {
	ChunkID  uuid.UUID
	DocID    string
	Source   string
	Text     string
	Citation model.Citation
	Score    float64
	Distance float64
}

// Stats summarizes the index's current contents.
type Stats struct {
	TotalVectors      int
	Dimension         int
	DistinctDocuments int
}

// Config configures a new Index.
type Config struct {
	// StoragePath is the directory holding vector_index.bin and
	// vector_metadata.pkl.
	StoragePath string
	// Dimension is the embedding dimension this deployment is fixed to.
	Dimension int
	// ModelName identifies the embedding model; persisted in the metadata
	// header so a later load under a different model fails fast.
	ModelName string
	Embed     EmbedFunc
}

// persistedMetadata is the gob-encoded shape of vector_metadata.pkl.
type persistedMetadata struct {
	ModelName string
	Dimension int
	Entries   []Entry
}

// Index is the in-process ANN index. add/search/delete/persist are safe for
// concurrent use: writes take the exclusive side of mu, searches the shared
// side, matching the single-writer/many-reader discipline.
type Index struct {
	mu          sync.RWMutex
	graph       *hnsw.Graph[uint64]
	entries     []Entry
	keyOf       map[uuid.UUID]uint64
	dimension   int
	modelName   string
	storagePath string
	embed       EmbedFunc
	fileLock    *flock.Flock
}

const (
	indexFileName    = "vector_index.bin"
	metadataFileName = "vector_metadata.pkl"
	lockFileName     = ".vectorindex.lock"
)

// New constructs an Index, loading any persisted state found under
// cfg.StoragePath. If persisted metadata names a different embedding model
// than cfg.ModelName, New fails fast rather than silently mixing vector
// spaces.
func New(cfg Config) (*Index, error) {
	if cfg.Dimension <= 0 {
		return nil, helper.NewErrorKind("vectorindex.New", helper.KindInput, fmt.Errorf("dimension must be positive"))
	}
	if err := os.MkdirAll(cfg.StoragePath, 0o755); err != nil {
		return nil, helper.NewError("vectorindex.New mkdir", err)
	}

	idx := &Index{
		graph:       newGraph(),
		keyOf:       make(map[uuid.UUID]uint64),
		dimension:   cfg.Dimension,
		modelName:   cfg.ModelName,
		storagePath: cfg.StoragePath,
		embed:       cfg.Embed,
		fileLock:    flock.New(filepath.Join(cfg.StoragePath, lockFileName)),
	}

	if err := idx.load(); err != nil {
		return nil, err
	}

	return idx, nil
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.EuclideanDistance
	g.M = 16
	g.EfSearch = 20
	return g
}

// Add batch-encodes chunk texts to unit-norm embeddings and appends them to
// the index, then persists atomically. Embedding or encode failures for a
// single chunk skip that chunk rather than aborting the whole batch.
func (idx *Index) Add(ctx context.Context, items []AddInput) error {
	if len(items) == 0 {
		return nil
	}
	if idx.embed == nil {
		return helper.NewErrorKind("vectorindex.Add", helper.KindDependencyUnavailable, fmt.Errorf("no embedder configured"))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, item := range items {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c := item.Chunk
		vec, err := idx.embed(c.Content)
		if err != nil {
			continue
		}
		if len(vec) != idx.dimension {
			continue
		}
		normalize(vec)

		key := uint64(len(idx.entries))
		idx.graph.Add(hnsw.MakeNode(key, vec))

		entry := Entry{
			ChunkID:  c.ID,
			DocID:    c.DocumentRID.String(),
			Source:   item.Source,
			Text:     c.Content,
			Citation: c.Citation,
			Vector:   vec,
		}
		idx.entries = append(idx.entries, entry)
		idx.keyOf[c.ID] = key
	}

	return idx.persistLocked()
}

// Search encodes query and retrieves up to k nearest chunks. When docFilter
// is non-empty, k'=k*2 candidates are retrieved first, filtered to the
// allowed document set, then truncated to k.
func (idx *Index) Search(ctx context.Context, query string, k int, docFilter []string) ([]SearchResult, error) {
	if idx.embed == nil {
		return nil, helper.NewErrorKind("vectorindex.Search", helper.KindDependencyUnavailable, fmt.Errorf("no embedder configured"))
	}

	vec, err := idx.embed(query)
	if err != nil {
		return nil, helper.NewError("vectorindex.Search embed", err)
	}
	if len(vec) != idx.dimension {
		return nil, helper.NewErrorKind("vectorindex.Search", helper.KindInternal, fmt.Errorf("query embedding dimension %d != index dimension %d", len(vec), idx.dimension))
	}
	normalize(vec)

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.entries) == 0 {
		return nil, nil
	}

	fetchK := k
	filterSet := toSet(docFilter)
	if len(filterSet) > 0 {
		fetchK = k * 2
	}
	if fetchK > len(idx.entries) {
		fetchK = len(idx.entries)
	}
	if fetchK <= 0 {
		return nil, nil
	}

	nodes := idx.graph.Search(vec, fetchK)

	results := make([]SearchResult, 0, len(nodes))
	for _, node := range nodes {
		if int(node.Key) >= len(idx.entries) {
			continue
		}
		entry := idx.entries[node.Key]
		if len(filterSet) > 0 && !filterSet[entry.DocID] {
			continue
		}
		distance := float64(idx.graph.Distance(vec, node.Value))
		results = append(results, SearchResult{
			ChunkID:  entry.ChunkID,
			DocID:    entry.DocID,
			Source:   entry.Source,
			Text:     entry.Text,
			Citation: entry.Citation,
			Distance: distance,
			Score:    1.0 / (1.0 + distance),
		})
		if len(results) >= k {
			break
		}
	}

	return results, nil
}

// Delete removes every vector belonging to docID. Because the underlying
// HNSW structure does not support point deletion, the index is rebuilt from
// the retained metadata entries that survive the filter, then persisted.
func (idx *Index) Delete(ctx context.Context, docID string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	retained := idx.entries[:0:0]
	for _, e := range idx.entries {
		if e.DocID != docID {
			retained = append(retained, e)
		}
	}

	idx.rebuildLocked(retained)

	return idx.persistLocked()
}

// rebuildLocked replaces the graph with a fresh one built from entries, in
// order, assigning keys 0..len(entries)-1. Caller must hold mu.
func (idx *Index) rebuildLocked(entries []Entry) {
	g := newGraph()
	keyOf := make(map[uuid.UUID]uint64, len(entries))
	for i, e := range entries {
		key := uint64(i)
		g.Add(hnsw.MakeNode(key, e.Vector))
		keyOf[e.ChunkID] = key
	}
	idx.graph = g
	idx.entries = entries
	idx.keyOf = keyOf
}

// Stats reports total vectors, the fixed embedding dimension, and the count
// of distinct documents represented.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	docs := make(map[string]struct{})
	for _, e := range idx.entries {
		docs[e.DocID] = struct{}{}
	}

	return Stats{
		TotalVectors:      len(idx.entries),
		Dimension:         idx.dimension,
		DistinctDocuments: len(docs),
	}
}

// VectorsForDocument returns the chunk ids currently indexed for docID,
// used by invariant checks that compare VectorIndex and GraphStore counts.
func (idx *Index) VectorsForDocument(docID string) []uuid.UUID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var ids []uuid.UUID
	for _, e := range idx.entries {
		if e.DocID == docID {
			ids = append(ids, e.ChunkID)
		}
	}
	return ids
}

// persistLocked writes the graph and metadata to disk atomically (temp file
// then rename), guarded by an on-disk flock so a concurrent process cannot
// interleave its own persist. Caller must hold mu (read or write).
func (idx *Index) persistLocked() error {
	if err := idx.fileLock.Lock(); err != nil {
		return helper.NewError("vectorindex persist lock", err)
	}
	defer idx.fileLock.Unlock()

	indexPath := filepath.Join(idx.storagePath, indexFileName)
	if err := atomicWrite(indexPath, func(f *os.File) error {
		return idx.graph.Export(f)
	}); err != nil {
		return helper.NewError("vectorindex persist index", err)
	}

	metaPath := filepath.Join(idx.storagePath, metadataFileName)
	meta := persistedMetadata{
		ModelName: idx.modelName,
		Dimension: idx.dimension,
		Entries:   idx.entries,
	}
	if err := atomicWrite(metaPath, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	}); err != nil {
		return helper.NewError("vectorindex persist metadata", err)
	}

	return nil
}

// load reads persisted state, if present. A missing index is a fresh start,
// not an error. A metadata file naming a different embedding model fails
// fast: the caller almost certainly pointed a new deployment at old state.
func (idx *Index) load() error {
	metaPath := filepath.Join(idx.storagePath, metadataFileName)
	metaFile, err := os.Open(metaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return helper.NewError("vectorindex load metadata", err)
	}
	defer metaFile.Close()

	var meta persistedMetadata
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return helper.NewError("vectorindex decode metadata", err)
	}

	if meta.ModelName != "" && idx.modelName != "" && meta.ModelName != idx.modelName {
		return helper.NewErrorKind("vectorindex load", helper.KindIndexInconsistency,
			fmt.Errorf("persisted index was built with model %q, deployment is configured for %q", meta.ModelName, idx.modelName))
	}
	if meta.Dimension != 0 && meta.Dimension != idx.dimension {
		return helper.NewErrorKind("vectorindex load", helper.KindIndexInconsistency,
			fmt.Errorf("persisted index dimension %d != configured dimension %d", meta.Dimension, idx.dimension))
	}

	indexPath := filepath.Join(idx.storagePath, indexFileName)
	indexFile, err := os.Open(indexPath)
	if err != nil {
		if os.IsNotExist(err) {
			// Metadata survived without its graph; rebuild from vectors.
			idx.rebuildLocked(meta.Entries)
			return nil
		}
		return helper.NewError("vectorindex load index", err)
	}
	defer indexFile.Close()

	g := newGraph()
	if err := g.Import(bufio.NewReader(indexFile)); err != nil {
		return helper.NewError("vectorindex import graph", err)
	}

	idx.graph = g
	idx.entries = meta.Entries
	idx.keyOf = make(map[uuid.UUID]uint64, len(meta.Entries))
	for i, e := range meta.Entries {
		idx.keyOf[e.ChunkID] = uint64(i)
	}

	return nil
}

func atomicWrite(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func normalize(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

func toSet(ss []string) map[string]bool {
	if len(ss) == 0 {
		return nil
	}
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
