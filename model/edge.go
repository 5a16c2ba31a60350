package model

import (
	"time"

	"github.com/google/uuid"
)

// EdgeType is the closed set of relationships the graph store models:
// a document CONTAINS its chunks, and a chunk MENTIONS an entity extracted
// from it.
type EdgeType string

const (
	EdgeTypeContains EdgeType = "contains"
	EdgeTypeMentions EdgeType = "mentions"
)

// Edge represents a directed relationship between a document/chunk/entity.
// Exactly one of (SourceDocumentRID, SourceChunkID) and one of
// (TargetChunkID, TargetEntityID) is populated, depending on EdgeType:
// CONTAINS uses SourceDocumentRID->TargetChunkID, MENTIONS uses
// SourceChunkID->TargetEntityID.
type Edge struct {
	ID                uuid.UUID  `json:"id"`
	SourceDocumentRID *uuid.UUID `json:"source_document_rid,omitempty"`
	SourceChunkID     *uuid.UUID `json:"source_chunk_id,omitempty"`
	TargetChunkID     *uuid.UUID `json:"target_chunk_id,omitempty"`
	TargetEntityID    *uuid.UUID `json:"target_entity_id,omitempty"`
	EdgeType          EdgeType   `json:"edge_type"`
	Weight            float64    `json:"weight"`
	Metadata          Metadata   `json:"metadata,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}
