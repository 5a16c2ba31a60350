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

// EdgesDBHandlerFunctions defines the interface for Edges database operations.
type EdgesDBHandlerFunctions interface {
	InsertContainsEdge(documentRID uuid.UUID, chunkID uuid.UUID) error
	InsertMentionsEdge(chunkID uuid.UUID, entityID uuid.UUID, weight float64) error
	SelectEdge(id uuid.UUID) (*model.Edge, error)
	DeleteEdge(id uuid.UUID) error
	DeleteEdgesForChunk(chunkID uuid.UUID) error
	EntitiesMentionedByChunk(ctx context.Context, chunkID uuid.UUID) ([]uuid.UUID, error)
	ChunksMentioningEntity(ctx context.Context, entityID uuid.UUID) ([]uuid.UUID, error)
}

// EdgesDBHandler handles edge-related database operations.
type EdgesDBHandler struct {
	db *helper.Database
}

// NewEdgesDBHandler creates a new edges database handler, loading
// edge-related SQL functions and ensuring the table exists.
func NewEdgesDBHandler(db *helper.Database, force bool) (*EdgesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	edgesDbHandler := &EdgesDBHandler{db: db}

	if err := sql.LoadEdgesSql(edgesDbHandler.db.Instance, force); err != nil {
		return nil, helper.NewError("load edges sql", err)
	}

	if err := edgesDbHandler.CreateTable(); err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EdgesDBHandler")

	return edgesDbHandler, nil
}

// CreateTable creates the 'edges' table if it does not already exist.
func (h *EdgesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_edges();`)
	if err != nil {
		log.Panicf("error initializing edges table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table edges")

	return nil
}

// InsertContainsEdge records that documentRID CONTAINS chunkID.
func (h *EdgesDBHandler) InsertContainsEdge(documentRID uuid.UUID, chunkID uuid.UUID) error {
	edge := &model.Edge{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_edge($1, $2, $3, $4, $5, $6, $7)`,
		documentRID, nil, chunkID, nil, model.EdgeTypeContains, 1.0, model.Metadata{},
	)
	return scanEdge(row, edge)
}

// InsertMentionsEdge records that chunkID MENTIONS entityID with the given
// weight (the extractor's confidence score).
func (h *EdgesDBHandler) InsertMentionsEdge(chunkID uuid.UUID, entityID uuid.UUID, weight float64) error {
	edge := &model.Edge{}
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_edge($1, $2, $3, $4, $5, $6, $7)`,
		nil, chunkID, nil, entityID, model.EdgeTypeMentions, weight, model.Metadata{},
	)
	return scanEdge(row, edge)
}

// UpsertMentionsEdge records an observation of chunkID mentioning entityID:
// if a MENTIONS edge between the two already exists its weight is
// incremented by weight (the mention-counter behavior the graph store
// contract requires on repeated observations), otherwise a new edge is
// inserted at the given weight.
func (h *EdgesDBHandler) UpsertMentionsEdge(chunkID uuid.UUID, entityID uuid.UUID, weight float64) error {
	res, err := h.db.Instance.Exec(
		`UPDATE edges SET weight = weight + $3
		 WHERE edge_type = 'mentions' AND source_chunk_id = $1 AND target_entity_id = $2`,
		chunkID, entityID, weight,
	)
	if err != nil {
		return helper.NewError("update mentions weight", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return helper.NewError("rows affected", err)
	}
	if affected > 0 {
		return nil
	}

	return h.InsertMentionsEdge(chunkID, entityID, weight)
}

// SelectEdge retrieves an edge by ID.
func (h *EdgesDBHandler) SelectEdge(id uuid.UUID) (*model.Edge, error) {
	edge := &model.Edge{}
	row := h.db.Instance.QueryRow(`SELECT * FROM select_edge($1)`, id)
	if err := scanEdge(row, edge); err != nil {
		return nil, err
	}
	return edge, nil
}

// DeleteEdge deletes an edge by ID.
func (h *EdgesDBHandler) DeleteEdge(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(`SELECT delete_edge($1)`, id)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteEdgesForChunk removes every edge touching chunkID, whether it is the
// CONTAINS target or the MENTIONS source.
func (h *EdgesDBHandler) DeleteEdgesForChunk(chunkID uuid.UUID) error {
	_, err := h.db.Instance.Exec(
		`DELETE FROM edges WHERE target_chunk_id = $1 OR source_chunk_id = $1`,
		chunkID,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// EntitiesMentionedByChunk implements graph.GraphDB: the entities a chunk's
// MENTIONS edges point to.
func (h *EdgesDBHandler) EntitiesMentionedByChunk(ctx context.Context, chunkID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT target_entity_id FROM edges WHERE edge_type = 'mentions' AND source_chunk_id = $1`,
		chunkID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, helper.NewError("scan", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ChunksMentioningEntity implements graph.GraphDB: every chunk with a
// MENTIONS edge pointing to entityID.
func (h *EdgesDBHandler) ChunksMentioningEntity(ctx context.Context, entityID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT source_chunk_id FROM edges WHERE edge_type = 'mentions' AND target_entity_id = $1`,
		entityID,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, helper.NewError("scan", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanEdge(row interface{ Scan(...interface{}) error }, edge *model.Edge) error {
	err := row.Scan(
		&edge.ID,
		&edge.SourceDocumentRID,
		&edge.SourceChunkID,
		&edge.TargetChunkID,
		&edge.TargetEntityID,
		&edge.EdgeType,
		&edge.Weight,
		&edge.Metadata,
		&edge.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}
	return nil
}
