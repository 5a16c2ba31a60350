package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ragengine/corpusqa/core/graph"
	"github.com/ragengine/corpusqa/helper"
	"github.com/ragengine/corpusqa/model"
)

// GraphStore composes the documents/chunks/entities/edges handlers into the
// single labeled-property-graph facade the retrieval and ingestion paths
// talk to, mirroring grapher.go's construction-order discipline (documents
// before chunks before entities before edges).
type GraphStore struct {
	Documents *DocumentsDBHandler
	Chunks    *ChunksDBHandler
	Entities  *EntitiesDBHandler
	Edges     *EdgesDBHandler
}

// NewGraphStore wires the four handlers into a GraphStore. All handlers
// must already be initialized against the same database.
func NewGraphStore(documents *DocumentsDBHandler, chunks *ChunksDBHandler, entities *EntitiesDBHandler, edges *EdgesDBHandler) *GraphStore {
	return &GraphStore{Documents: documents, Chunks: chunks, Entities: entities, Edges: edges}
}

// GetChunk implements graph.GraphDB.
func (g *GraphStore) GetChunk(ctx context.Context, id uuid.UUID) (*model.Chunk, error) {
	return g.Chunks.GetChunk(ctx, id)
}

// EntitiesMentionedByChunk implements graph.GraphDB.
func (g *GraphStore) EntitiesMentionedByChunk(ctx context.Context, chunkID uuid.UUID) ([]uuid.UUID, error) {
	return g.Edges.EntitiesMentionedByChunk(ctx, chunkID)
}

// ChunksMentioningEntity implements graph.GraphDB.
func (g *GraphStore) ChunksMentioningEntity(ctx context.Context, entityID uuid.UUID) ([]uuid.UUID, error) {
	return g.Edges.ChunksMentioningEntity(ctx, entityID)
}

// AddDocument upserts the document node and, for each chunk, upserts a
// chunk node linked to it by CONTAINS. Chunks are stamped with the
// document's assigned ID/RID before insertion.
func (g *GraphStore) AddDocument(doc *model.Document, chunks []*model.Chunk) error {
	if err := g.Documents.InsertDocument(doc); err != nil {
		return helper.NewError("graphstore add document", err)
	}

	for i, chunk := range chunks {
		chunk.DocumentID = doc.ID
		if err := g.Chunks.InsertChunk(chunk); err != nil {
			return helper.NewError(fmt.Sprintf("graphstore add chunk %d", i), err)
		}
		if err := g.Edges.InsertContainsEdge(doc.RID, chunk.ID); err != nil {
			return helper.NewError(fmt.Sprintf("graphstore link chunk %d", i), err)
		}
	}
	return nil
}

// AddEntity upserts a (name, type) entity and merges a MENTIONS edge from
// chunkID to it, incrementing the edge's weight on repeated observations.
func (g *GraphStore) AddEntity(chunkID uuid.UUID, name string, entityType string, weight float64) (*model.Entity, error) {
	entity := &model.Entity{Name: name, Type: entityType, Metadata: model.Metadata{}}
	if err := g.Entities.InsertEntity(entity); err != nil {
		return nil, helper.NewError("graphstore add entity", err)
	}
	if err := g.Edges.UpsertMentionsEdge(chunkID, entity.ID, weight); err != nil {
		return nil, helper.NewError("graphstore mention edge", err)
	}
	return entity, nil
}

// QuerySimilarChunks returns up to limit chunks belonging to the documents
// whose title or source contains queryText (case-insensitive; at most 50
// documents are searched), optionally restricted to docFilter. Chunk content
// itself is not searched. Selection is not
// semantic: it is a complement to the vector index, used for the
// variation pass and as a graph-driven fallback. Time-bounded; on timeout
// it retries at most twice with the limit halved each time before giving
// up and returning an empty list.
func (g *GraphStore) QuerySimilarChunks(ctx context.Context, queryText string, docFilter []uuid.UUID, limit int) ([]*model.Chunk, error) {
	allowed := toUUIDSet(docFilter)

	attemptLimit := limit
	for attempt := 0; attempt < 3; attempt++ {
		chunks, err := g.querySimilarChunksOnce(ctx, queryText, allowed, attemptLimit)
		if err == nil {
			return chunks, nil
		}
		if helper.KindOf(err) != helper.KindDependencyTimeout {
			return nil, err
		}
		attemptLimit /= 2
		if attemptLimit <= 0 {
			break
		}
	}
	return nil, nil
}

func (g *GraphStore) querySimilarChunksOnce(ctx context.Context, queryText string, allowed map[uuid.UUID]bool, limit int) ([]*model.Chunk, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	docs, err := g.Documents.SelectDocumentsBySearch(queryText, 50)
	if err != nil {
		if ctx.Err() != nil {
			return nil, helper.NewErrorKind("graphstore query similar chunks", helper.KindDependencyTimeout, err)
		}
		return nil, helper.NewError("graphstore query similar chunks", err)
	}

	var results []*model.Chunk
	for _, doc := range docs {
		if len(allowed) > 0 && !allowed[doc.RID] {
			continue
		}
		chunks, err := g.Chunks.SelectAllChunksByDocument(doc.RID)
		if err != nil {
			continue
		}
		results = append(results, chunks...)
		if len(results) >= limit {
			break
		}
	}

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// TraversalRetrieve seeds a bounded same-document hop expansion from each
// seed chunk, expanding by shared-entity adjacency up to maxDepth hops and
// keeping only chunks of the seed's own document, and returns at most
// maxNodes chunks (seeds included). The walk itself may pass through chunks
// of other documents; those chunks are not returned.
func (g *GraphStore) TraversalRetrieve(ctx context.Context, seeds []*model.Chunk, maxDepth int, maxNodes int) ([]*model.Chunk, error) {
	seen := map[uuid.UUID]bool{}
	var out []*model.Chunk

	for _, seed := range seeds {
		if len(out) >= maxNodes {
			break
		}
		nodes, err := graph.BFS(ctx, g, seed.ID, maxDepth)
		if err != nil || len(nodes) == 0 {
			continue
		}
		seedDoc := nodes[0].Chunk.DocumentRID
		for _, n := range nodes {
			if n.Chunk.DocumentRID != seedDoc || seen[n.Chunk.ID] {
				continue
			}
			seen[n.Chunk.ID] = true
			out = append(out, n.Chunk)
			if len(out) >= maxNodes {
				break
			}
		}
	}
	return out, nil
}

// EntityMention is one entity reachable from a document, annotated with
// how many of the document's chunks mention it.
type EntityMention struct {
	Entity       *model.Entity
	MentionCount int
}

// DocumentEntities returns every entity reachable from docRID via
// CONTAINS->MENTIONS, aggregated with mention counts, ordered by count
// descending.
func (g *GraphStore) DocumentEntities(ctx context.Context, docRID uuid.UUID) ([]EntityMention, error) {
	chunks, err := g.Chunks.SelectAllChunksByDocument(docRID)
	if err != nil {
		return nil, helper.NewError("graphstore document entities", err)
	}

	counts := map[uuid.UUID]int{}
	for _, chunk := range chunks {
		entityIDs, err := g.Edges.EntitiesMentionedByChunk(ctx, chunk.ID)
		if err != nil {
			continue
		}
		for _, id := range entityIDs {
			counts[id]++
		}
	}

	mentions := make([]EntityMention, 0, len(counts))
	for id, count := range counts {
		entity, err := g.Entities.SelectEntity(id)
		if err != nil {
			continue
		}
		mentions = append(mentions, EntityMention{Entity: entity, MentionCount: count})
	}

	sortMentionsDesc(mentions)
	return mentions, nil
}

func sortMentionsDesc(mentions []EntityMention) {
	for i := 1; i < len(mentions); i++ {
		for j := i; j > 0 && mentions[j].MentionCount > mentions[j-1].MentionCount; j-- {
			mentions[j], mentions[j-1] = mentions[j-1], mentions[j]
		}
	}
}

// DeleteDocument removes docRID's document and chunk nodes and any entity
// that was mentioned only by this document's chunks (the orphan set).
// Idempotent: deleting an already-absent document is a no-op.
func (g *GraphStore) DeleteDocument(ctx context.Context, docRID uuid.UUID) error {
	chunkIDs, err := g.Chunks.DeleteChunksByDocument(docRID)
	if err != nil {
		return helper.NewError("graphstore delete document chunks", err)
	}

	candidateEntities := map[uuid.UUID]bool{}
	for _, chunkID := range chunkIDs {
		entityIDs, err := g.Edges.EntitiesMentionedByChunk(ctx, chunkID)
		if err == nil {
			for _, id := range entityIDs {
				candidateEntities[id] = true
			}
		}
		if err := g.Edges.DeleteEdgesForChunk(chunkID); err != nil {
			return helper.NewError("graphstore delete document edges", err)
		}
	}

	if err := g.Documents.DeleteDocument(docRID); err != nil {
		return helper.NewError("graphstore delete document", err)
	}

	candidates := make([]uuid.UUID, 0, len(candidateEntities))
	for id := range candidateEntities {
		candidates = append(candidates, id)
	}
	if _, err := g.Entities.DeleteOrphanedEntities(candidates); err != nil {
		return helper.NewError("graphstore delete orphaned entities", err)
	}
	return nil
}

// Stats summarizes the graph store's current contents.
type Stats struct {
	Documents int
	Chunks    int
	Entities  int
	Edges     int
}

// ComputeStats returns counts of documents, chunks, entities, and edges.
func (g *GraphStore) ComputeStats() (Stats, error) {
	var stats Stats
	row := g.Documents.db.Instance.QueryRow(`SELECT
		(SELECT count(*) FROM documents),
		(SELECT count(*) FROM chunks),
		(SELECT count(*) FROM entities),
		(SELECT count(*) FROM edges)`)
	if err := row.Scan(&stats.Documents, &stats.Chunks, &stats.Entities, &stats.Edges); err != nil {
		return stats, helper.NewError("graphstore stats", err)
	}
	return stats, nil
}

func toUUIDSet(ids []uuid.UUID) map[uuid.UUID]bool {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
