package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func chunk(id, text string) domain.Chunk {
	return domain.Chunk{DocumentID: "d", ChunkID: id, Text: text}
}

func seeded(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Upsert(ctx,
		[]domain.Chunk{chunk("a", "east"), chunk("b", "north-east"), chunk("c", "north"), chunk("d", "west")},
		[][]float64{{1, 0}, {1, 1}, {0, 3}, {-1, 0}},
	))
	return s
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)

	t.Run("sorted and bounded by k", func(t *testing.T) {
		res, err := s.Query(ctx, []float64{1, 0}, 2, -1)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "a", res[0].Chunk.ChunkID)
		assert.Equal(t, "b", res[1].Chunk.ChunkID)
		assert.InDelta(t, 1.0, res[0].Score, 1e-9)
		assert.InDelta(t, 0.7071, res[1].Score, 1e-4)
	})

	t.Run("threshold filters", func(t *testing.T) {
		res, err := s.Query(ctx, []float64{1, 0}, 10, 0.5)
		require.NoError(t, err)
		require.Len(t, res, 2)
		for _, r := range res {
			assert.GreaterOrEqual(t, r.Score, 0.5)
		}
	})

	t.Run("nothing above threshold is empty, not error", func(t *testing.T) {
		res, err := s.Query(ctx, []float64{0, -1}, 3, 0.5)
		require.NoError(t, err)
		assert.NotNil(t, res)
		assert.Empty(t, res)
	})

	t.Run("zero vector matches nothing", func(t *testing.T) {
		res, err := s.Query(ctx, []float64{0, 0}, 3, -1)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := s.Query(ctx, []float64{1, 0, 0}, 3, 0)
		assert.Error(t, err)
	})
}

func TestUpsertReplacesByChunkID(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	require.NoError(t, s.Upsert(ctx, []domain.Chunk{chunk("d", "now east")}, [][]float64{{1, 0}}))
	assert.Equal(t, 4, s.Len())

	res, err := s.Query(ctx, []float64{1, 0}, 2, 0.99)
	require.NoError(t, err)
	assert.Len(t, res, 2)
}

func TestUpsertValidates(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	assert.Error(t, s.Upsert(ctx, []domain.Chunk{chunk("a", "x")}, [][]float64{{1}}), "not initialized")
	require.NoError(t, s.Init(ctx, 2))
	assert.Error(t, s.Upsert(ctx, []domain.Chunk{chunk("a", "x")}, nil))
	assert.Error(t, s.Upsert(ctx, []domain.Chunk{chunk("a", "x")}, [][]float64{{1, 2, 3}}))
	assert.Error(t, s.Init(ctx, 0))
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := seeded(t)
	require.NoError(t, s.Clear(ctx))
	assert.Equal(t, 0, s.Len())

	res, err := s.Query(ctx, []float64{1, 0}, 3, 0)
	require.NoError(t, err)
	assert.Empty(t, res)

	require.NoError(t, s.Upsert(ctx, []domain.Chunk{chunk("a", "x")}, [][]float64{{1, 0}}), "dimension survives clear")
}
