package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ragengine/corpusqa/helper"
	"github.com/ragengine/corpusqa/model"
	"github.com/ragengine/corpusqa/sql"
)

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
// Embedding storage and similarity search are VectorIndex's concern, not the
// graph store's: chunks here carry only text, position, and citation.
type ChunksDBHandlerFunctions interface {
	InsertChunk(chunk *model.Chunk) error
	SelectChunk(id uuid.UUID) (*model.Chunk, error)
	SelectAllChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error)
	SelectAllChunksByPathDescendant(path string) ([]*model.Chunk, error)
	SelectAllChunksByPathAncestor(path string) ([]*model.Chunk, error)
	DeleteChunk(id uuid.UUID) error
	DeleteChunksByDocument(documentRID uuid.UUID) ([]uuid.UUID, error)
}

// ChunksDBHandler handles chunk-related database operations.
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler, loading
// chunk-related SQL functions and ensuring the table exists.
func NewChunksDBHandler(db *helper.Database, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	chunksDbHandler := &ChunksDBHandler{db: db}

	if err := sql.LoadChunksSql(chunksDbHandler.db.Instance, force); err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	if err := chunksDbHandler.CreateTable(); err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table if it does not already exist.
func (h *ChunksDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_chunks();`)
	if err != nil {
		log.Panicf("error initializing chunks table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// InsertChunk inserts a new chunk.
func (h *ChunksDBHandler) InsertChunk(chunk *model.Chunk) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_chunk($1, $2, $3, $4, $5, $6, $7)`,
		chunk.DocumentID,
		chunk.Content,
		chunk.Path,
		chunk.Citation,
		chunk.StartPos,
		chunk.EndPos,
		chunk.ChunkIndex,
	)

	err := row.Scan(
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.DocumentRID,
		&chunk.Content,
		&chunk.Path,
		&chunk.Citation,
		&chunk.StartPos,
		&chunk.EndPos,
		&chunk.ChunkIndex,
		&chunk.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectChunk retrieves a chunk by ID.
func (h *ChunksDBHandler) SelectChunk(id uuid.UUID) (*model.Chunk, error) {
	return h.selectChunkContext(context.Background(), id)
}

// GetChunk implements graph.GraphDB.
func (h *ChunksDBHandler) GetChunk(ctx context.Context, id uuid.UUID) (*model.Chunk, error) {
	return h.selectChunkContext(ctx, id)
}

func (h *ChunksDBHandler) selectChunkContext(ctx context.Context, id uuid.UUID) (*model.Chunk, error) {
	row := h.db.Instance.QueryRowContext(ctx, `SELECT * FROM select_chunk($1)`, id)

	chunk := &model.Chunk{}
	err := row.Scan(
		&chunk.ID,
		&chunk.DocumentID,
		&chunk.DocumentRID,
		&chunk.Content,
		&chunk.Path,
		&chunk.Citation,
		&chunk.StartPos,
		&chunk.EndPos,
		&chunk.ChunkIndex,
		&chunk.CreatedAt,
	)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return chunk, nil
}

// SelectAllChunksByDocument retrieves all chunks for a document.
func (h *ChunksDBHandler) SelectAllChunksByDocument(documentRID uuid.UUID) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_chunks_by_document($1)`, documentRID)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// SelectAllChunksByPathDescendant retrieves chunks that are descendants of the given path.
func (h *ChunksDBHandler) SelectAllChunksByPathDescendant(path string) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_chunks_by_path_descendant($1)`, path)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// SelectAllChunksByPathAncestor retrieves chunks that are ancestors of the given path.
func (h *ChunksDBHandler) SelectAllChunksByPathAncestor(path string) ([]*model.Chunk, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_chunks_by_path_ancestor($1)`, path)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// DeleteChunk deletes a chunk by ID.
func (h *ChunksDBHandler) DeleteChunk(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(`SELECT delete_chunk($1)`, id)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteChunksByDocument deletes every chunk belonging to a document and
// returns the deleted chunk IDs so the caller can remove them from the
// VectorIndex and re-check entity orphan status.
func (h *ChunksDBHandler) DeleteChunksByDocument(documentRID uuid.UUID) ([]uuid.UUID, error) {
	chunks, err := h.SelectAllChunksByDocument(documentRID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, 0, len(chunks))
	for _, c := range chunks {
		if err := h.DeleteChunk(c.ID); err != nil {
			return ids, err
		}
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func scanChunks(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	for rows.Next() {
		chunk := &model.Chunk{}
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.DocumentRID,
			&chunk.Content,
			&chunk.Path,
			&chunk.Citation,
			&chunk.StartPos,
			&chunk.EndPos,
			&chunk.ChunkIndex,
			&chunk.CreatedAt,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return chunks, nil
}
