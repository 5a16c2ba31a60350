package grapher

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/ragengine/corpusqa/core/engine"
	"github.com/ragengine/corpusqa/core/llmclient"
	"github.com/ragengine/corpusqa/core/pipeline"
	"github.com/ragengine/corpusqa/core/query"
	"github.com/ragengine/corpusqa/core/retrieval"
	"github.com/ragengine/corpusqa/core/vectorindex"
	"github.com/ragengine/corpusqa/database"
	"github.com/ragengine/corpusqa/helper"
	"github.com/ragengine/corpusqa/model"
	loadSql "github.com/ragengine/corpusqa/sql"
)

// AskResponse is the shape Ask returns: the answer, its citations/sources/
// entities, the routing strategy taken, and (when retrieval ran) the
// evaluation score and attempt count.
type AskResponse = engine.Response

// Grapher wires the database-backed knowledge graph, the ANN vector index,
// the hybrid retriever, and the query-time engine into one façade for
// document ingestion and question answering.
type Grapher struct {
	DB          *helper.Database
	GraphStore  *database.GraphStore
	VectorIndex *vectorindex.Index
	Pipeline    *pipeline.Pipeline // ingestion-time chunk/embed/entity-extract
	Retriever   *retrieval.Retriever
	Engine      *engine.Engine
	log         *slog.Logger
}

// NewGrapher opens the database, ensures its schema, and wires the four
// handlers into a GraphStore. The vector index, pipeline, retriever, and
// engine are attached afterward via UseDefaultPipeline, or via SetPipeline
// and the exported VectorIndex/Retriever/Engine fields, so callers can swap
// in test doubles before first use.
func NewGrapher(dbConfig *helper.DatabaseConfiguration) (*Grapher, error) {
	opts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{Level: slog.LevelInfo},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, opts))

	db, err := helper.NewDatabase(dbConfig)
	if err != nil {
		return nil, helper.NewError("open database", err)
	}
	if err := loadSql.Init(db.Instance); err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// Handlers are constructed in dependency order: documents before
	// chunks before entities before edges. force=false so functions are
	// not reloaded if they already exist.
	documents, err := database.NewDocumentsDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create documents handler", err)
	}
	chunks, err := database.NewChunksDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create chunks handler", err)
	}
	entities, err := database.NewEntitiesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create entities handler", err)
	}
	edges, err := database.NewEdgesDBHandler(db, false)
	if err != nil {
		return nil, helper.NewError("create edges handler", err)
	}

	return &Grapher{
		DB:         db,
		GraphStore: database.NewGraphStore(documents, chunks, entities, edges),
		log:        logger,
	}, nil
}

// Close closes the database connection.
func (g *Grapher) Close() error {
	if g.DB != nil && g.DB.Instance != nil {
		return g.DB.Instance.Close()
	}
	return nil
}

// SetPipeline sets the ingestion-time chunking/embedding/entity-extraction
// pipeline.
func (g *Grapher) SetPipeline(p *pipeline.Pipeline) {
	g.Pipeline = p
}

// UseDefaultPipeline wires up DefaultChunker (500 char max chunks, 0.7
// similarity threshold), DefaultEmbedder (all-MiniLM-L6-v2, 384
// dimensions), and DefaultEntityExtractorBasic, then constructs the vector
// index, retriever, and engine on top of them. storagePath is the
// directory the ANN index persists to; llm is the client the engine and
// query-understanding stages call.
func (g *Grapher) UseDefaultPipeline(storagePath string, embeddingDim int, llm *llmclient.Client) error {
	chunker := pipeline.DefaultChunker(500, 0.7)
	embedder, err := pipeline.DefaultEmbedder()
	if err != nil {
		return helper.NewError("create default embedder", err)
	}
	entityExtractor, err := pipeline.DefaultEntityExtractorBasic()
	if err != nil {
		return helper.NewError("create default entity extractor", err)
	}

	g.Pipeline = pipeline.NewPipeline(chunker, embedder)
	g.Pipeline.SetEntityExtractor(entityExtractor)

	vi, err := vectorindex.New(vectorindex.Config{
		StoragePath: storagePath,
		Dimension:   embeddingDim,
		ModelName:   "all-MiniLM-L6-v2",
		Embed:       vectorindex.EmbedFunc(embedder),
	})
	if err != nil {
		return helper.NewError("create vector index", err)
	}
	g.VectorIndex = vi

	g.Retriever = retrieval.New(vi, g.GraphStore, entityExtractor, retrieval.DefaultTopK)
	g.Engine = engine.New(g.Retriever, llm)
	return nil
}

// IngestDocument chunks, embeds, and indexes a document end to end:
// 1. Inserts the document and its chunks into the knowledge graph
//    (Document--CONTAINS-->Chunk), assigning the document's ID/RID.
// 2. Extracts entities per chunk and links them with MENTIONS edges.
// 3. Adds every chunk's embedding to the vector index.
// The document's Content field is used for chunking but never persisted;
// it is cleared before the graph insert. When doc.Positions is set (a page
// or audio-segment position map from the external parser), each chunk's
// Citation is computed by intersecting its character interval with that map
// per the Chunker's position-map contract. Returns the number of chunks
// inserted.
func (g *Grapher) IngestDocument(ctx context.Context, doc *model.Document) (int, error) {
	if g.Pipeline == nil {
		return 0, helper.NewError("ingest document", fmt.Errorf("pipeline not set, call UseDefaultPipeline or SetPipeline first"))
	}
	if doc.Content == "" {
		return 0, helper.NewError("ingest document", fmt.Errorf("document content is empty"))
	}

	content := doc.Content
	positions := doc.Positions
	doc.Content = ""
	doc.Positions = nil

	chunker := g.Pipeline.Chunker
	if len(positions) > 0 {
		chunker = pipeline.WithPositionMap(chunker, doc.MediaType, positions)
	}
	runPipeline := &pipeline.Pipeline{Chunker: chunker, Embedder: g.Pipeline.Embedder, EntityExtractor: g.Pipeline.EntityExtractor}

	result, err := runPipeline.ProcessWithExtraction(content, fmt.Sprintf("doc_%s", doc.Source))
	if err != nil {
		return 0, helper.NewError("chunk document", err)
	}

	for _, chunk := range result.Chunks {
		if chunk.Metadata == nil {
			chunk.Metadata = make(model.Metadata)
		}
		for key, value := range doc.Metadata {
			if _, exists := chunk.Metadata[key]; !exists {
				chunk.Metadata[key] = value
			}
		}
	}

	if err := g.GraphStore.AddDocument(doc, result.Chunks); err != nil {
		return 0, helper.NewError("add document to graph", err)
	}

	g.log.Info("ingested document",
		slog.String("document_id", doc.RID.String()),
		slog.Int("chunks", len(result.Chunks)))

	for idx, chunk := range result.Chunks {
		for _, ent := range result.Entities[idx] {
			if _, err := g.GraphStore.AddEntity(chunk.ID, ent.Name, ent.Type, 1.0); err != nil {
				g.log.Warn("failed to add entity", slog.String("entity", ent.Name), slog.String("error", err.Error()))
			}
		}
	}

	if g.VectorIndex != nil {
		inputs := make([]vectorindex.AddInput, len(result.Chunks))
		for i, chunk := range result.Chunks {
			inputs[i] = vectorindex.AddInput{Chunk: chunk, Source: doc.Source}
		}
		if err := g.VectorIndex.Add(ctx, inputs); err != nil {
			return len(result.Chunks), helper.NewError("index chunks", err)
		}
	}

	return len(result.Chunks), nil
}

// ChunkDataInput is one entry of the ingestion wire contract's chunk_data
// array: a chunk already split and (optionally) cited by the external
// parser that extracted the document's text.
type ChunkDataInput struct {
	Text      string
	StartIdx  int
	EndIdx    int
	Citation  *model.Citation // already computed by the external parser, if any
	ChunkIdx  int
	SourceTag string // external chunk_id, stored on the chunk's Path
}

// IngestChunkDocument ingests a document whose chunking already happened
// upstream (the ingestion wire contract's chunk_data shape): each entry's
// Citation is used if the external parser supplied one, otherwise it is
// computed by intersecting [StartIdx, EndIdx) with doc.Positions, same as
// IngestDocument does for raw content. Unlike IngestDocument this never
// invokes the pipeline's Chunker.
func (g *Grapher) IngestChunkDocument(ctx context.Context, doc *model.Document, chunkData []ChunkDataInput) (int, error) {
	if len(chunkData) == 0 {
		return 0, helper.NewError("ingest chunk document", fmt.Errorf("chunk_data is empty"))
	}

	positions := doc.Positions
	doc.Content = ""
	doc.Positions = nil

	chunks := make([]*model.Chunk, len(chunkData))
	for i, cd := range chunkData {
		start, end := cd.StartIdx, cd.EndIdx
		citation := model.Citation{}
		if cd.Citation != nil {
			citation = *cd.Citation
		} else if len(positions) > 0 {
			citation = pipeline.CitationForRange(doc.MediaType, positions, start, end)
		}
		idx := cd.ChunkIdx
		path := fmt.Sprintf("doc_%s.chunk%d", doc.Source, i)
		if cd.SourceTag != "" {
			path = fmt.Sprintf("doc_%s.%s", doc.Source, cd.SourceTag)
		}
		chunks[i] = &model.Chunk{
			Content:    cd.Text,
			Path:       path,
			Citation:   citation,
			StartPos:   &start,
			EndPos:     &end,
			ChunkIndex: &idx,
			Metadata:   model.Metadata{},
		}
		for key, value := range doc.Metadata {
			chunks[i].Metadata[key] = value
		}
	}

	if err := g.GraphStore.AddDocument(doc, chunks); err != nil {
		return 0, helper.NewError("add document to graph", err)
	}

	g.log.Info("ingested pre-chunked document",
		slog.String("document_id", doc.RID.String()),
		slog.Int("chunks", len(chunks)))

	if g.Pipeline != nil && g.Pipeline.EntityExtractor != nil {
		for _, chunk := range chunks {
			entities, err := g.Pipeline.EntityExtractor(chunk.Content)
			if err != nil {
				continue
			}
			for _, ent := range entities {
				if _, err := g.GraphStore.AddEntity(chunk.ID, ent.Name, ent.Type, 1.0); err != nil {
					g.log.Warn("failed to add entity", slog.String("entity", ent.Name), slog.String("error", err.Error()))
				}
			}
		}
	}

	if g.VectorIndex != nil {
		inputs := make([]vectorindex.AddInput, len(chunks))
		for i, chunk := range chunks {
			inputs[i] = vectorindex.AddInput{Chunk: chunk, Source: doc.Source}
		}
		if err := g.VectorIndex.Add(ctx, inputs); err != nil {
			return len(chunks), helper.NewError("index chunks", err)
		}
	}

	return len(chunks), nil
}

// DeleteDocument removes a document, its chunks, their edges, and any
// entities orphaned by the removal from both the graph store and the
// vector index.
func (g *Grapher) DeleteDocument(ctx context.Context, docRID uuid.UUID) error {
	if err := g.GraphStore.DeleteDocument(ctx, docRID); err != nil {
		return helper.NewError("delete document from graph", err)
	}
	if g.VectorIndex != nil {
		if err := g.VectorIndex.Delete(ctx, docRID.String()); err != nil {
			return helper.NewError("delete document from vector index", err)
		}
	}
	return nil
}

// Ask runs the full query-time state machine for one question: classify,
// route, and either reply directly, ask for clarification, or retrieve
// with the bounded evaluation/retry loop.
func (g *Grapher) Ask(ctx context.Context, question string, history []query.Turn, docFilter []uuid.UUID, documentCount int) (*AskResponse, error) {
	if g.Engine == nil {
		return nil, helper.NewError("ask", fmt.Errorf("engine not initialized, call UseDefaultPipeline first"))
	}
	return g.Engine.Answer(ctx, question, history, docFilter, documentCount), nil
}
