package pgvector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"ragchat/internal/domain"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping pgvector test in short mode (requires docker)")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pg, err := postgres.Run(ctx,
		"pgvector/pgvector:pg17",
		postgres.WithDatabase("ragchat"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(context.Background()) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestStorage(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	s, err := NewStorage(ctx, Config{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, Migrate(dsn), "migrating twice is a no-op")
	require.NoError(t, s.Init(ctx, 2))

	chunks := []domain.Chunk{
		{DocumentID: "d", ChunkID: "d:0", Source: "a.pdf", Text: "east", Index: 0, Metadata: map[string]any{"page": 0}},
		{DocumentID: "d", ChunkID: "d:1", Source: "a.pdf", Text: "north-east", Index: 1},
		{DocumentID: "d", ChunkID: "d:2", Source: "a.pdf", Text: "west", Index: 2},
	}
	require.NoError(t, s.Upsert(ctx, chunks, [][]float64{{1, 0}, {1, 1}, {-1, 0}}))

	t.Run("threshold and order", func(t *testing.T) {
		res, err := s.Query(ctx, []float64{1, 0}, 3, 0.5)
		require.NoError(t, err)
		require.Len(t, res, 2)
		assert.Equal(t, "east", res[0].Chunk.Text)
		assert.InDelta(t, 1.0, res[0].Score, 1e-6)
		assert.Equal(t, "north-east", res[1].Chunk.Text)
		assert.EqualValues(t, 0, res[0].Chunk.Metadata["page"])
	})

	t.Run("k bounds results", func(t *testing.T) {
		res, err := s.Query(ctx, []float64{1, 0}, 1, -1)
		require.NoError(t, err)
		assert.Len(t, res, 1)
	})

	t.Run("zero vector matches nothing", func(t *testing.T) {
		res, err := s.Query(ctx, []float64{0, 0}, 3, -1)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("upsert replaces by chunk id", func(t *testing.T) {
		require.NoError(t, s.Upsert(ctx, chunks[2:], [][]float64{{0, 1}}))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("dimension change truncates", func(t *testing.T) {
		require.NoError(t, s.Init(ctx, 3))
		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("clear", func(t *testing.T) {
		require.NoError(t, s.Upsert(ctx, chunks[:1], [][]float64{{1, 0, 0}}))
		require.NoError(t, s.Clear(ctx))
		res, err := s.Query(ctx, []float64{1, 0, 0}, 3, -1)
		require.NoError(t, err)
		assert.Empty(t, res)
	})
}
