package grapher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/ragengine/corpusqa/core/engine"
	"github.com/ragengine/corpusqa/core/llmclient"
	"github.com/ragengine/corpusqa/core/pipeline"
	"github.com/ragengine/corpusqa/core/retrieval"
	"github.com/ragengine/corpusqa/core/vectorindex"
	"github.com/ragengine/corpusqa/helper"
	"github.com/ragengine/corpusqa/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEmbedder is a deterministic embedder: same text always yields the same
// vector, distinct texts differ, so similarity search behaves predictably
// without downloading a real sentence-transformer model.
func testEmbedder(dimension int) pipeline.EmbedFunc {
	return func(text string) ([]float32, error) {
		embedding := make([]float32, dimension)
		for i := 0; i < dimension; i++ {
			embedding[i] = float32((len(text)+i)%100) / 100.0
		}
		return embedding, nil
	}
}

func stubLLM(t *testing.T, response string) *llmclient.Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": response})
	}))
	t.Cleanup(server.Close)
	return llmclient.New(llmclient.Config{BaseURL: server.URL, Model: "test-model"})
}

// wireTestPipeline attaches a pipeline, vector index, retriever, and engine
// to g without touching the real ONNX-backed DefaultEmbedder/
// DefaultEntityExtractorBasic, mirroring what UseDefaultPipeline does but
// with fast, deterministic test doubles in their place.
func wireTestPipeline(t *testing.T, g *Grapher, llm *llmclient.Client) {
	t.Helper()
	const dim = 16

	embedder := testEmbedder(dim)
	p := pipeline.NewPipeline(pipeline.SentenceChunker(2), embedder)
	g.SetPipeline(p)

	dir, err := os.MkdirTemp("", "grapher-vectorindex-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	vi, err := vectorindex.New(vectorindex.Config{
		StoragePath: dir,
		Dimension:   dim,
		ModelName:   "test-embedder",
		Embed:       vectorindex.EmbedFunc(embedder),
	})
	require.NoError(t, err)
	g.VectorIndex = vi

	g.Retriever = retrieval.New(vi, g.GraphStore, nil, retrieval.DefaultTopK)
	g.Engine = engine.New(g.Retriever, llm)
}

func TestNewGrapher(t *testing.T) {
	helper.SetTestDatabaseConfigEnvs(t, dbPort)
	dbConfig := helper.NewDatabaseConfiguration()

	t.Run("valid call", func(t *testing.T) {
		g, err := NewGrapher(dbConfig)
		require.NoError(t, err)
		require.NotNil(t, g)
		assert.NotNil(t, g.DB)
		assert.NotNil(t, g.GraphStore)
		assert.Nil(t, g.Pipeline, "pipeline should be nil until SetPipeline/UseDefaultPipeline")

		assert.NoError(t, g.Close())
	})

	t.Run("Close handles a zero-value Grapher gracefully", func(t *testing.T) {
		g := &Grapher{}
		assert.NoError(t, g.Close())
	})
}

func TestSetPipeline(t *testing.T) {
	g := initGrapher(t)

	chunker := pipeline.SentenceChunker(5)
	embedder := testEmbedder(16)
	p := pipeline.NewPipeline(chunker, embedder)

	g.SetPipeline(p)
	assert.Equal(t, p, g.Pipeline)

	g.SetPipeline(nil)
	assert.Nil(t, g.Pipeline)
}

func TestIngestDocument(t *testing.T) {
	g := initGrapher(t)
	wireTestPipeline(t, g, stubLLM(t, "a test answer"))
	ctx := context.Background()

	t.Run("ingests content into chunks and the vector index", func(t *testing.T) {
		doc := &model.Document{
			Title:   "Test Document",
			Source:  "test",
			Content: "This is a test document with some content. It should be split into chunks and processed.",
			Metadata: model.Metadata{
				"test": "value",
			},
		}

		numChunks, err := g.IngestDocument(ctx, doc)
		require.NoError(t, err)
		assert.Greater(t, numChunks, 0)
		assert.NotEqual(t, "", doc.RID.String())
		assert.Greater(t, doc.ID, int64(0))
		assert.Equal(t, "", doc.Content, "content should be cleared after ingestion")

		stats, err := g.GraphStore.ComputeStats()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, stats.Chunks, numChunks)

		assert.NoError(t, g.DeleteDocument(ctx, doc.RID))
	})

	t.Run("errors when pipeline is not set", func(t *testing.T) {
		bare := initGrapher(t)
		doc := &model.Document{Title: "T", Source: "test", Content: "content"}

		numChunks, err := bare.IngestDocument(ctx, doc)
		require.Error(t, err)
		assert.Equal(t, 0, numChunks)
	})

	t.Run("errors when content is empty", func(t *testing.T) {
		doc := &model.Document{Title: "T", Source: "test", Content: ""}

		numChunks, err := g.IngestDocument(ctx, doc)
		require.Error(t, err)
		assert.Equal(t, 0, numChunks)
	})

	t.Run("preserves document metadata", func(t *testing.T) {
		doc := &model.Document{
			Title:   "Metadata Document",
			Source:  "test_metadata",
			Content: "Content for the metadata test.",
			Metadata: model.Metadata{
				"author": "Test Author",
				"topic":  "testing",
			},
		}

		_, err := g.IngestDocument(ctx, doc)
		require.NoError(t, err)

		retrieved, err := g.GraphStore.Documents.SelectDocument(doc.RID)
		require.NoError(t, err)
		assert.Equal(t, "Test Author", retrieved.Metadata["author"])

		assert.NoError(t, g.DeleteDocument(ctx, doc.RID))
	})
}

func TestAskRoutesBeforeRetrieving(t *testing.T) {
	g := initGrapher(t)
	wireTestPipeline(t, g, stubLLM(t, "irrelevant"))
	ctx := context.Background()

	resp, err := g.Ask(ctx, "hi there", nil, nil, 1)
	require.NoError(t, err)
	assert.Contains(t, resp.Answer, "Hello")
}

func TestAskRetrievesAndCites(t *testing.T) {
	g := initGrapher(t)
	wireTestPipeline(t, g, stubLLM(t, "Paris is the capital of France."))
	g.Engine.QualityThreshold = 0 // resolve on first attempt regardless of score
	ctx := context.Background()

	doc := &model.Document{
		Title:   "Geography",
		Source:  "geography.pdf",
		Content: "Paris is the capital of France. It is known for the Eiffel Tower.",
		Metadata: model.Metadata{},
	}
	_, err := g.IngestDocument(ctx, doc)
	require.NoError(t, err)

	resp, err := g.Ask(ctx, "What is the capital of France?", nil, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, "retrieve", resp.Strategy)
	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "geography.pdf", resp.Sources[0])

	assert.NoError(t, g.DeleteDocument(ctx, doc.RID))
}

func TestIngestDocumentComputesPageCitations(t *testing.T) {
	g := initGrapher(t)
	wireTestPipeline(t, g, stubLLM(t, "irrelevant"))
	ctx := context.Background()

	text := "Page one content here. Page two content starts now."
	doc := &model.Document{
		Title:     "Paginated",
		Source:    "paginated.pdf",
		MediaType: model.MediaTypePDF,
		Content:   text,
		Positions: []model.PositionSpan{
			{StartChar: 0, EndChar: 23, Page: 1},
			{StartChar: 23, EndChar: len(text), Page: 2},
		},
	}

	_, err := g.IngestDocument(ctx, doc)
	require.NoError(t, err)

	chunks, err := g.GraphStore.Chunks.SelectAllChunksByDocument(doc.RID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	sawCitation := false
	for _, c := range chunks {
		if c.Citation.Kind == model.CitationPage {
			sawCitation = true
			for _, p := range c.Citation.Pages {
				assert.LessOrEqual(t, p, 2, "citation must resolve within the source's page count")
				assert.GreaterOrEqual(t, p, 1)
			}
		}
	}
	assert.True(t, sawCitation, "expected at least one chunk to carry a page citation")
	assert.Empty(t, doc.Positions, "Positions must be cleared after ingestion, same as Content")

	assert.NoError(t, g.DeleteDocument(ctx, doc.RID))
}

func TestIngestChunkDocumentUsesExternalCitations(t *testing.T) {
	g := initGrapher(t)
	ctx := context.Background()

	startOfClip, endOfClip := 12.0, 18.5
	citation := model.NewTimeCitation(startOfClip, endOfClip, "")
	doc := &model.Document{
		Title:     "Interview Clip",
		Source:    "interview.mp3",
		MediaType: model.MediaTypeAudio,
	}

	numChunks, err := g.IngestChunkDocument(ctx, doc, []ChunkDataInput{
		{Text: "This is the transcribed clip.", StartIdx: 0, EndIdx: 30, Citation: &citation, SourceTag: "seg0"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, numChunks)

	chunks, err := g.GraphStore.Chunks.SelectAllChunksByDocument(doc.RID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, model.CitationTime, chunks[0].Citation.Kind)
	assert.Equal(t, startOfClip, chunks[0].Citation.StartTime)
	assert.Equal(t, endOfClip, chunks[0].Citation.EndTime)

	assert.NoError(t, g.DeleteDocument(ctx, doc.RID))
}
