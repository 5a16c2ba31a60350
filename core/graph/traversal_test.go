package graph

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/ragengine/corpusqa/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockGraphDB implements GraphDB entirely in memory via entity adjacency,
// matching the shared-entity hop model: two chunks are neighbors iff they
// both mention at least one common entity.
type mockGraphDB struct {
	chunks        map[uuid.UUID]*model.Chunk
	entitiesOf    map[uuid.UUID][]uuid.UUID // chunkID -> entity IDs it mentions
	chunksForEnt  map[uuid.UUID][]uuid.UUID // entityID -> chunk IDs mentioning it
}

func newMockGraphDB() *mockGraphDB {
	return &mockGraphDB{
		chunks:       make(map[uuid.UUID]*model.Chunk),
		entitiesOf:   make(map[uuid.UUID][]uuid.UUID),
		chunksForEnt: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (m *mockGraphDB) addChunk(c *model.Chunk) {
	m.chunks[c.ID] = c
}

func (m *mockGraphDB) mention(chunkID, entityID uuid.UUID) {
	m.entitiesOf[chunkID] = append(m.entitiesOf[chunkID], entityID)
	m.chunksForEnt[entityID] = append(m.chunksForEnt[entityID], chunkID)
}

func (m *mockGraphDB) GetChunk(ctx context.Context, id uuid.UUID) (*model.Chunk, error) {
	c, ok := m.chunks[id]
	if !ok {
		return nil, assert.AnError
	}
	return c, nil
}

func (m *mockGraphDB) EntitiesMentionedByChunk(ctx context.Context, chunkID uuid.UUID) ([]uuid.UUID, error) {
	return m.entitiesOf[chunkID], nil
}

func (m *mockGraphDB) ChunksMentioningEntity(ctx context.Context, entityID uuid.UUID) ([]uuid.UUID, error) {
	return m.chunksForEnt[entityID], nil
}

// buildLinearGraph wires A-B-C via shared entities (A,B share e1; B,C share
// e2) and A-D via a separate shared entity e3, mirroring the old
// A->B->C, A->D fixture shape under the new hop model.
func buildLinearGraph() (*mockGraphDB, uuid.UUID, uuid.UUID, uuid.UUID, uuid.UUID) {
	db := newMockGraphDB()

	idA, idB, idC, idD := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	e1, e2, e3 := uuid.New(), uuid.New(), uuid.New()

	db.addChunk(&model.Chunk{ID: idA, Content: "Chunk A", Path: "doc.a"})
	db.addChunk(&model.Chunk{ID: idB, Content: "Chunk B", Path: "doc.b"})
	db.addChunk(&model.Chunk{ID: idC, Content: "Chunk C", Path: "doc.c"})
	db.addChunk(&model.Chunk{ID: idD, Content: "Chunk D", Path: "doc.d"})

	db.mention(idA, e1)
	db.mention(idB, e1)
	db.mention(idB, e2)
	db.mention(idC, e2)
	db.mention(idA, e3)
	db.mention(idD, e3)

	return db, idA, idB, idC, idD
}

func TestBFS(t *testing.T) {
	db, idA, idB, idC, idD := buildLinearGraph()

	results, err := BFS(context.Background(), db, idA, 2)
	require.NoError(t, err)

	byID := map[uuid.UUID]*TraversalResult{}
	for _, r := range results {
		byID[r.Chunk.ID] = r
	}

	assert.Contains(t, byID, idA)
	assert.Equal(t, 0, byID[idA].Distance)

	assert.Contains(t, byID, idB)
	assert.Equal(t, 1, byID[idB].Distance)

	assert.Contains(t, byID, idD)
	assert.Equal(t, 1, byID[idD].Distance)

	assert.Contains(t, byID, idC)
	assert.Equal(t, 2, byID[idC].Distance)
}

func TestBFS_MaxHopsZero(t *testing.T) {
	db, idA, _, _, _ := buildLinearGraph()

	results, err := BFS(context.Background(), db, idA, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, idA, results[0].Chunk.ID)
}

func TestDFS(t *testing.T) {
	db, idA, idB, idC, idD := buildLinearGraph()

	results, err := DFS(context.Background(), db, idA, 2)
	require.NoError(t, err)

	seen := map[uuid.UUID]bool{}
	for _, r := range results {
		seen[r.Chunk.ID] = true
	}
	assert.True(t, seen[idA])
	assert.True(t, seen[idB])
	assert.True(t, seen[idC])
	assert.True(t, seen[idD])
}

func TestGetNeighbors(t *testing.T) {
	db, idA, idB, _, idD := buildLinearGraph()

	neighbors, err := GetNeighbors(context.Background(), db, idA)
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, len(neighbors))
	for _, c := range neighbors {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{idB, idD}, ids)
}

func TestBFS_UnknownSource(t *testing.T) {
	db := newMockGraphDB()
	_, err := BFS(context.Background(), db, uuid.New(), 2)
	assert.Error(t, err)
}
