// Package graph implements bounded hop expansion over the knowledge graph:
// from a chunk, step to the entities it mentions, then to the other chunks
// that mention those same entities. Each chunk-to-chunk step (via a shared
// entity) counts as one hop.
package graph

import (
	"context"

	"github.com/google/uuid"
	"github.com/ragengine/corpusqa/model"
)

// GraphDB is the minimal read surface traversal needs from the graph store.
type GraphDB interface {
	GetChunk(ctx context.Context, id uuid.UUID) (*model.Chunk, error)
	EntitiesMentionedByChunk(ctx context.Context, chunkID uuid.UUID) ([]uuid.UUID, error)
	ChunksMentioningEntity(ctx context.Context, entityID uuid.UUID) ([]uuid.UUID, error)
}

// TraversalResult contains a chunk and its distance from the source.
type TraversalResult struct {
	Chunk    *model.Chunk
	Distance int
	Path     []uuid.UUID // chunk IDs from source to this chunk
}

// BFS performs breadth-first hop expansion from a source chunk, following
// shared-entity adjacency up to maxHops steps.
func BFS(ctx context.Context, db GraphDB, sourceID uuid.UUID, maxHops int) ([]*TraversalResult, error) {
	sourceChunk, err := db.GetChunk(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	visited := map[uuid.UUID]bool{sourceID: true}
	queue := []TraversalResult{{Chunk: sourceChunk, Distance: 0, Path: []uuid.UUID{sourceID}}}

	var results []*TraversalResult
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		results = append(results, &current)

		if current.Distance >= maxHops {
			continue
		}

		neighbors, err := neighborChunkIDs(ctx, db, current.Chunk.ID)
		if err != nil {
			return nil, err
		}

		for _, targetID := range neighbors {
			if visited[targetID] {
				continue
			}
			targetChunk, err := db.GetChunk(ctx, targetID)
			if err != nil {
				continue // chunk may have been deleted concurrently
			}
			visited[targetID] = true

			newPath := append(append([]uuid.UUID(nil), current.Path...), targetID)
			queue = append(queue, TraversalResult{
				Chunk:    targetChunk,
				Distance: current.Distance + 1,
				Path:     newPath,
			})
		}
	}

	return results, nil
}

// DFS performs depth-first hop expansion from a source chunk.
func DFS(ctx context.Context, db GraphDB, sourceID uuid.UUID, maxHops int) ([]*TraversalResult, error) {
	sourceChunk, err := db.GetChunk(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	visited := map[uuid.UUID]bool{}
	var results []*TraversalResult
	dfsRecursive(ctx, db, sourceChunk, 0, maxHops, []uuid.UUID{sourceID}, visited, &results)
	return results, nil
}

func dfsRecursive(
	ctx context.Context,
	db GraphDB,
	current *model.Chunk,
	distance int,
	maxHops int,
	path []uuid.UUID,
	visited map[uuid.UUID]bool,
	results *[]*TraversalResult,
) {
	visited[current.ID] = true
	*results = append(*results, &TraversalResult{
		Chunk:    current,
		Distance: distance,
		Path:     append([]uuid.UUID(nil), path...),
	})

	if distance >= maxHops {
		return
	}

	neighbors, err := neighborChunkIDs(ctx, db, current.ID)
	if err != nil {
		return
	}

	for _, targetID := range neighbors {
		if visited[targetID] {
			continue
		}
		targetChunk, err := db.GetChunk(ctx, targetID)
		if err != nil {
			continue
		}
		newPath := append(append([]uuid.UUID(nil), path...), targetID)
		dfsRecursive(ctx, db, targetChunk, distance+1, maxHops, newPath, visited, results)
	}
}

// GetNeighbors retrieves the immediate (1-hop) shared-entity neighbors of a chunk.
func GetNeighbors(ctx context.Context, db GraphDB, chunkID uuid.UUID) ([]*model.Chunk, error) {
	results, err := BFS(ctx, db, chunkID, 1)
	if err != nil {
		return nil, err
	}

	neighbors := make([]*model.Chunk, 0, len(results))
	for _, r := range results {
		if r.Chunk.ID != chunkID {
			neighbors = append(neighbors, r.Chunk)
		}
	}
	return neighbors, nil
}

func neighborChunkIDs(ctx context.Context, db GraphDB, chunkID uuid.UUID) ([]uuid.UUID, error) {
	entities, err := db.EntitiesMentionedByChunk(ctx, chunkID)
	if err != nil {
		return nil, err
	}

	seen := map[uuid.UUID]bool{}
	var neighbors []uuid.UUID
	for _, entityID := range entities {
		chunks, err := db.ChunksMentioningEntity(ctx, entityID)
		if err != nil {
			return nil, err
		}
		for _, id := range chunks {
			if id == chunkID || seen[id] {
				continue
			}
			seen[id] = true
			neighbors = append(neighbors, id)
		}
	}
	return neighbors, nil
}
