package database

import (
	"fmt"
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/ragengine/corpusqa/helper"
	"github.com/ragengine/corpusqa/model"
	"github.com/ragengine/corpusqa/sql"
)

// EntitiesDBHandlerFunctions defines the interface for Entities database operations.
type EntitiesDBHandlerFunctions interface {
	InsertEntity(entity *model.Entity) error
	SelectEntity(id uuid.UUID) (*model.Entity, error)
	SelectEntityByName(name string, entityType string) (*model.Entity, error)
	SelectEntitiesBySearch(searchTerm string, entityType *string, limit int) ([]*model.Entity, error)
	SelectEntitiesByType(entityType string, limit int) ([]*model.Entity, error)
	DeleteEntity(id uuid.UUID) error
	DeleteOrphanedEntities(candidateIDs []uuid.UUID) ([]uuid.UUID, error)
}

// EntitiesDBHandler handles entity-related database operations.
type EntitiesDBHandler struct {
	db *helper.Database
}

// NewEntitiesDBHandler creates a new entities database handler, loading
// entity-related SQL functions and ensuring the table exists.
func NewEntitiesDBHandler(db *helper.Database, force bool) (*EntitiesDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	entitiesDbHandler := &EntitiesDBHandler{db: db}

	if err := sql.LoadEntitiesSql(entitiesDbHandler.db.Instance, force); err != nil {
		return nil, helper.NewError("load entities sql", err)
	}

	if err := entitiesDbHandler.CreateTable(); err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesDBHandler")

	return entitiesDbHandler, nil
}

// CreateTable creates the 'entities' table if it does not already exist.
func (h *EntitiesDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_entities();`)
	if err != nil {
		log.Panicf("error initializing entities table: %#v", err)
	}

	h.db.Logger.Info("Checked/created table entities")

	return nil
}

// InsertEntity inserts a new entity, or returns the existing row if one with
// the same (name, type) already exists.
func (h *EntitiesDBHandler) InsertEntity(entity *model.Entity) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM insert_entity($1, $2, $3)`,
		entity.Name,
		entity.Type,
		entity.Metadata,
	)

	err := row.Scan(
		&entity.ID,
		&entity.Name,
		&entity.Type,
		&entity.Metadata,
		&entity.CreatedAt,
	)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectEntity retrieves an entity by ID.
func (h *EntitiesDBHandler) SelectEntity(id uuid.UUID) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRow(`SELECT * FROM select_entity($1)`, id)

	err := row.Scan(&entity.ID, &entity.Name, &entity.Type, &entity.Metadata, &entity.CreatedAt)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntityByName retrieves an entity by name and type.
func (h *EntitiesDBHandler) SelectEntityByName(name string, entityType string) (*model.Entity, error) {
	entity := &model.Entity{}
	row := h.db.Instance.QueryRow(`SELECT * FROM select_entity_by_name($1, $2)`, name, entityType)

	err := row.Scan(&entity.ID, &entity.Name, &entity.Type, &entity.Metadata, &entity.CreatedAt)
	if err != nil {
		return nil, helper.NewError("scan", err)
	}

	return entity, nil
}

// SelectEntitiesBySearch searches entities by name pattern. Maintenance/debugging operation.
func (h *EntitiesDBHandler) SelectEntitiesBySearch(searchTerm string, entityType *string, limit int) ([]*model.Entity, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM search_entities($1, $2, $3)`, searchTerm, entityType, limit)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// SelectEntitiesByType retrieves entities by type. Maintenance/debugging operation.
func (h *EntitiesDBHandler) SelectEntitiesByType(entityType string, limit int) ([]*model.Entity, error) {
	rows, err := h.db.Instance.Query(`SELECT * FROM select_entities_by_type($1, $2)`, entityType, limit)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	return scanEntities(rows)
}

// DeleteEntity deletes an entity by ID.
func (h *EntitiesDBHandler) DeleteEntity(id uuid.UUID) error {
	_, err := h.db.Instance.Exec(`SELECT delete_entity($1)`, id)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// UpdateEntityMetadata replaces an entity's metadata.
func (h *EntitiesDBHandler) UpdateEntityMetadata(id uuid.UUID, metadata model.Metadata) error {
	_, err := h.db.Instance.Exec(`UPDATE entities SET metadata = $2 WHERE id = $1`, id, metadata)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}

// DeleteOrphanedEntities deletes every candidate entity that no longer has
// any MENTIONS edge pointing to it (i.e. its last mentioning chunk was just
// removed), returning the IDs actually deleted.
func (h *EntitiesDBHandler) DeleteOrphanedEntities(candidateIDs []uuid.UUID) ([]uuid.UUID, error) {
	var deleted []uuid.UUID
	for _, id := range candidateIDs {
		var mentionCount int
		err := h.db.Instance.QueryRow(
			`SELECT count(*) FROM edges WHERE edge_type = 'mentions' AND target_entity_id = $1`,
			id,
		).Scan(&mentionCount)
		if err != nil {
			return deleted, helper.NewError("count mentions", err)
		}
		if mentionCount == 0 {
			if err := h.DeleteEntity(id); err != nil {
				return deleted, err
			}
			deleted = append(deleted, id)
		}
	}
	return deleted, nil
}

func scanEntities(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]*model.Entity, error) {
	var entities []*model.Entity
	for rows.Next() {
		entity := &model.Entity{}
		err := rows.Scan(&entity.ID, &entity.Name, &entity.Type, &entity.Metadata, &entity.CreatedAt)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		entities = append(entities, entity)
	}

	if err := rows.Err(); err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return entities, nil
}
