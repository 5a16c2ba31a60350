package database

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ragengine/corpusqa/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunksNewChunksDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewChunksDBHandler", func(t *testing.T) {
		_, err := NewDocumentsDBHandler(database, true)
		require.NoError(t, err, "Expected NewDocumentsDBHandler to not return an error")

		chunksDbHandler, err := NewChunksDBHandler(database, true)
		assert.NoError(t, err, "Expected NewChunksDBHandler to not return an error")
		require.NotNil(t, chunksDbHandler, "Expected NewChunksDBHandler to return a non-nil instance")
		require.NotNil(t, chunksDbHandler.db, "Expected NewChunksDBHandler to have a non-nil database instance")
		require.NotNil(t, chunksDbHandler.db.Instance, "Expected NewChunksDBHandler to have a non-nil database connection instance")
	})

	t.Run("Invalid call NewChunksDBHandler with nil database", func(t *testing.T) {
		_, err := NewChunksDBHandler(nil, false)
		assert.Error(t, err, "Expected error when creating ChunksDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func newTestDocument(t *testing.T, documentsDbHandler *DocumentsDBHandler, title, source string) *model.Document {
	doc := &model.Document{
		Title:    title,
		Source:   source,
		Metadata: map[string]interface{}{},
	}
	require.NoError(t, documentsDbHandler.InsertDocument(doc))
	return doc
}

func TestChunksInsert(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	chunksDbHandler, err := NewChunksDBHandler(database, true)
	require.NoError(t, err)

	doc := newTestDocument(t, documentsDbHandler, "Test Document", "test_source.txt")

	t.Run("Insert chunk", func(t *testing.T) {
		startPos := 0
		endPos := 20
		chunkIndex := 0
		chunk := &model.Chunk{
			DocumentID: doc.ID,
			Content:    "This is a test chunk",
			Path:       "root.section1",
			StartPos:   &startPos,
			EndPos:     &endPos,
			ChunkIndex: &chunkIndex,
			Metadata:   map[string]interface{}{"type": "paragraph"},
		}

		err := chunksDbHandler.InsertChunk(chunk)
		assert.NoError(t, err, "Expected Insert to not return an error")
		assert.NotEmpty(t, chunk.ID, "Expected inserted chunk to have an ID")
		assert.WithinDuration(t, chunk.CreatedAt, time.Now(), 2*time.Second, "Expected CreatedAt to be set")
	})

	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksGet(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	chunksDbHandler, err := NewChunksDBHandler(database, true)
	require.NoError(t, err)

	doc := newTestDocument(t, documentsDbHandler, "Test Document", "test_source.txt")

	chunk := &model.Chunk{
		DocumentID: doc.ID,
		Content:    "Test content",
		Path:       "root",
		Metadata:   map[string]interface{}{},
	}
	require.NoError(t, chunksDbHandler.InsertChunk(chunk))

	retrievedChunk, err := chunksDbHandler.SelectChunk(chunk.ID)
	assert.NoError(t, err, "Expected Get to not return an error")
	assert.NotNil(t, retrievedChunk, "Expected Get to return a non-nil chunk")
	assert.Equal(t, chunk.ID, retrievedChunk.ID, "Expected chunk IDs to match")
	assert.Equal(t, chunk.Content, retrievedChunk.Content, "Expected chunk content to match")

	chunksDbHandler.DeleteChunk(chunk.ID)
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksGetContext(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	chunksDbHandler, err := NewChunksDBHandler(database, true)
	require.NoError(t, err)

	doc := newTestDocument(t, documentsDbHandler, "Test Document", "test.txt")

	chunk := &model.Chunk{DocumentID: doc.ID, Content: "Test content", Path: "root", Metadata: map[string]interface{}{}}
	require.NoError(t, chunksDbHandler.InsertChunk(chunk))

	retrievedChunk, err := chunksDbHandler.GetChunk(t.Context(), chunk.ID)
	require.NoError(t, err, "GetChunk satisfies graph.GraphDB and should behave like SelectChunk")
	assert.Equal(t, chunk.ID, retrievedChunk.ID)

	chunksDbHandler.DeleteChunk(chunk.ID)
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksGetByDocument(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	chunksDbHandler, err := NewChunksDBHandler(database, true)
	require.NoError(t, err)

	doc := newTestDocument(t, documentsDbHandler, "Test Document", "test.txt")

	chunkCount := 3
	chunks := make([]*model.Chunk, chunkCount)
	for i := 0; i < chunkCount; i++ {
		index := i
		chunks[i] = &model.Chunk{
			DocumentID: doc.ID,
			Content:    "Test content",
			Path:       "root",
			ChunkIndex: &index,
			Metadata:   map[string]interface{}{},
		}
		require.NoError(t, chunksDbHandler.InsertChunk(chunks[i]))
	}

	retrievedChunks, err := chunksDbHandler.SelectAllChunksByDocument(doc.RID)
	assert.NoError(t, err, "Expected GetByDocument to not return an error")
	assert.Len(t, retrievedChunks, chunkCount, "Expected to retrieve all chunks")

	for _, chunk := range chunks {
		chunksDbHandler.DeleteChunk(chunk.ID)
	}
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksDelete(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	chunksDbHandler, err := NewChunksDBHandler(database, true)
	require.NoError(t, err)

	doc := newTestDocument(t, documentsDbHandler, "Test Document", "test.txt")

	chunk := &model.Chunk{DocumentID: doc.ID, Content: "Test content", Path: "root", Metadata: map[string]interface{}{}}
	require.NoError(t, chunksDbHandler.InsertChunk(chunk))

	err = chunksDbHandler.DeleteChunk(chunk.ID)
	assert.NoError(t, err, "Expected Delete to not return an error")

	_, err = chunksDbHandler.SelectChunk(chunk.ID)
	assert.Error(t, err, "Expected Get to return an error for deleted chunk")

	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksDeleteByDocument(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	chunksDbHandler, err := NewChunksDBHandler(database, true)
	require.NoError(t, err)

	doc := newTestDocument(t, documentsDbHandler, "Test Document", "test.txt")

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		chunk := &model.Chunk{DocumentID: doc.ID, Content: "Test content", Path: "root", Metadata: map[string]interface{}{}}
		require.NoError(t, chunksDbHandler.InsertChunk(chunk))
		ids = append(ids, chunk.ID)
	}

	deleted, err := chunksDbHandler.DeleteChunksByDocument(doc.RID)
	assert.NoError(t, err)
	assert.ElementsMatch(t, ids, deleted)

	remaining, err := chunksDbHandler.SelectAllChunksByDocument(doc.RID)
	assert.NoError(t, err)
	assert.Empty(t, remaining)

	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksSelectAllChunksByPathDescendant(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	chunksDbHandler, err := NewChunksDBHandler(database, true)
	require.NoError(t, err)

	doc := newTestDocument(t, documentsDbHandler, "Test Document", "test.txt")

	chunks := []*model.Chunk{
		{DocumentID: doc.ID, Content: "Root content", Path: "root", Metadata: map[string]interface{}{}},
		{DocumentID: doc.ID, Content: "Section 1", Path: "root.section1", Metadata: map[string]interface{}{}},
		{DocumentID: doc.ID, Content: "Section 2", Path: "root.section2", Metadata: map[string]interface{}{}},
		{DocumentID: doc.ID, Content: "Paragraph 1", Path: "root.section1.para1", Metadata: map[string]interface{}{}},
	}

	for _, chunk := range chunks {
		require.NoError(t, chunksDbHandler.InsertChunk(chunk))
	}

	t.Run("Get all descendants", func(t *testing.T) {
		descendants, err := chunksDbHandler.SelectAllChunksByPathDescendant("root")
		assert.NoError(t, err)
		assert.Len(t, descendants, 4, "Expected 4 nodes (root + 3 descendants)")
	})

	t.Run("Get descendants of section", func(t *testing.T) {
		descendants, err := chunksDbHandler.SelectAllChunksByPathDescendant("root.section1")
		assert.NoError(t, err)
		assert.Len(t, descendants, 2, "Expected 2 nodes (section1 + para1)")
		paths := make(map[string]bool)
		for _, chunk := range descendants {
			paths[chunk.Path] = true
		}
		assert.True(t, paths["root.section1"])
		assert.True(t, paths["root.section1.para1"])
	})

	t.Run("Get descendants of leaf", func(t *testing.T) {
		descendants, err := chunksDbHandler.SelectAllChunksByPathDescendant("root.section1.para1")
		assert.NoError(t, err)
		assert.Len(t, descendants, 1, "Expected 1 node (the leaf itself)")
		assert.Equal(t, "root.section1.para1", descendants[0].Path)
	})

	for _, chunk := range chunks {
		chunksDbHandler.DeleteChunk(chunk.ID)
	}
	documentsDbHandler.DeleteDocument(doc.RID)
}

func TestChunksSelectAllChunksByPathAncestor(t *testing.T) {
	database := initDB(t)

	documentsDbHandler, err := NewDocumentsDBHandler(database, true)
	require.NoError(t, err)

	chunksDbHandler, err := NewChunksDBHandler(database, true)
	require.NoError(t, err)

	doc := newTestDocument(t, documentsDbHandler, "Test Document", "test.txt")

	chunks := []*model.Chunk{
		{DocumentID: doc.ID, Content: "Root content", Path: "root", Metadata: map[string]interface{}{}},
		{DocumentID: doc.ID, Content: "Section 1", Path: "root.section1", Metadata: map[string]interface{}{}},
		{DocumentID: doc.ID, Content: "Paragraph 1", Path: "root.section1.para1", Metadata: map[string]interface{}{}},
	}

	for _, chunk := range chunks {
		require.NoError(t, chunksDbHandler.InsertChunk(chunk))
	}

	t.Run("Get all ancestors of leaf", func(t *testing.T) {
		ancestors, err := chunksDbHandler.SelectAllChunksByPathAncestor("root.section1.para1")
		assert.NoError(t, err)
		assert.Len(t, ancestors, 3, "Expected 3 nodes (self + 2 ancestors)")

		paths := make(map[string]bool)
		for _, chunk := range ancestors {
			paths[chunk.Path] = true
		}
		assert.True(t, paths["root"])
		assert.True(t, paths["root.section1"])
		assert.True(t, paths["root.section1.para1"])
	})

	t.Run("Get ancestors of root", func(t *testing.T) {
		ancestors, err := chunksDbHandler.SelectAllChunksByPathAncestor("root")
		assert.NoError(t, err)
		assert.Len(t, ancestors, 1, "Expected 1 node (root itself)")
		assert.Equal(t, "root", ancestors[0].Path)
	})

	for _, chunk := range chunks {
		chunksDbHandler.DeleteChunk(chunk.ID)
	}
	documentsDbHandler.DeleteDocument(doc.RID)
}
