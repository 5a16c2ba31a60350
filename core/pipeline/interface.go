package pipeline

import "github.com/ragengine/corpusqa/model"

// ChunkFunc is a function that splits text into chunks with their hierarchical paths
// The path should follow ltree format (e.g., "doc.chapter1.section2.chunk3")
type ChunkFunc func(text string, basePath string) ([]ChunkWithPath, error)

// EmbedFunc is a function that generates embeddings for text
type EmbedFunc func(text string) ([]float32, error)

// EntityExtractFunc extracts entities from text
// Returns a list of entities with their types and metadata
type EntityExtractFunc func(text string) ([]*model.Entity, error)

// ChunkWithPath represents a chunk with its hierarchical path
type ChunkWithPath struct {
	Content    string
	Path       string // ltree path
	StartPos   *int
	EndPos     *int
	ChunkIndex *int
	Metadata   map[string]interface{}
	Citation   model.Citation // populated by WithPositionMap, zero value otherwise
}

// Pipeline combines chunking, embedding, and entity extraction functions used
// at ingestion time. Embeddings are not attached to the chunks it produces:
// the caller indexes chunk content through the VectorIndex after insert,
// keyed by the chunk's assigned ID.
type Pipeline struct {
	Chunker         ChunkFunc
	Embedder        EmbedFunc
	EntityExtractor EntityExtractFunc // Optional
}

// NewPipeline creates a new processing pipeline
func NewPipeline(chunker ChunkFunc, embedder EmbedFunc) *Pipeline {
	return &Pipeline{
		Chunker:  chunker,
		Embedder: embedder,
	}
}

// SetEntityExtractor sets the entity extraction function
func (p *Pipeline) SetEntityExtractor(extractor EntityExtractFunc) {
	p.EntityExtractor = extractor
}

// ProcessingResult contains chunks and any entities extracted from them.
type ProcessingResult struct {
	Chunks   []*model.Chunk
	Entities map[int][]*model.Entity // keyed by index into Chunks
}

// Process processes text through the chunker, returning chunks without entities.
func (p *Pipeline) Process(text string, basePath string) ([]*model.Chunk, error) {
	result, err := p.ProcessWithExtraction(text, basePath)
	if err != nil {
		return nil, err
	}
	return result.Chunks, nil
}

// ProcessWithExtraction splits text into chunks and, if an EntityExtractor is
// set, extracts entities per chunk. Extraction failures on one chunk do not
// abort processing of the rest.
func (p *Pipeline) ProcessWithExtraction(text string, basePath string) (*ProcessingResult, error) {
	chunksWithPath, err := p.Chunker(text, basePath)
	if err != nil {
		return nil, err
	}

	chunks := make([]*model.Chunk, 0, len(chunksWithPath))
	entities := make(map[int][]*model.Entity)

	for i, cwp := range chunksWithPath {
		chunk := &model.Chunk{
			Content:    cwp.Content,
			Path:       cwp.Path,
			StartPos:   cwp.StartPos,
			EndPos:     cwp.EndPos,
			ChunkIndex: cwp.ChunkIndex,
			Metadata:   cwp.Metadata,
			Citation:   cwp.Citation,
		}
		chunks = append(chunks, chunk)

		if p.EntityExtractor != nil {
			extracted, err := p.EntityExtractor(cwp.Content)
			if err == nil && len(extracted) > 0 {
				entities[i] = extracted
			}
		}
	}

	return &ProcessingResult{Chunks: chunks, Entities: entities}, nil
}
