// Package pgvector stores chunk embeddings in Postgres using the pgvector
// extension. The schema is applied from embedded migrations on open.
package pgvector

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"ragchat/internal/domain"
	"ragchat/internal/retry"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Config struct {
	DSN string
}

// Storage implements domain.VectorStore on a single ragchat_chunks table.
type Storage struct {
	db        *sql.DB
	dimension int
}

// NewStorage connects, pings and migrates the database.
func NewStorage(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.DSN == "" {
		return nil, errors.New("pgvector dsn is required")
	}
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, retry.Classify("pgvector ping", err)
	}
	if err := Migrate(cfg.DSN); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Storage{db: db}, nil
}

// Migrate applies the embedded migrations; an up-to-date schema is not an error.
func Migrate(dsn string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	defer m.Close()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Init truncates the table when the stored vectors have another dimension.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	var existing int
	err := s.db.QueryRowContext(ctx, `SELECT vector_dims(embedding) FROM ragchat_chunks LIMIT 1`).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return retry.Classify("pgvector init", err)
	case existing != dimension:
		if _, err := s.db.ExecContext(ctx, `TRUNCATE ragchat_chunks`); err != nil {
			return retry.Classify("pgvector init", err)
		}
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return retry.Classify("pgvector upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ragchat_chunks (id, chunk_id, document_id, source, idx, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chunk_id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			source = EXCLUDED.source,
			idx = EXCLUDED.idx,
			content = EXCLUDED.content,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding`)
	if err != nil {
		return retry.Classify("pgvector upsert", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if s.dimension > 0 && len(vectors[i]) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		if c.Metadata == nil {
			meta = []byte("{}")
		}
		_, err = stmt.ExecContext(ctx,
			uuid.New(),
			c.ChunkID,
			c.DocumentID,
			c.Source,
			c.Index,
			c.Text,
			meta,
			pgvector.NewVector(toFloat32(vectors[i])),
		)
		if err != nil {
			return retry.Classify("pgvector upsert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return retry.Classify("pgvector upsert", err)
	}
	return nil
}

// Query ranks by cosine similarity, 1 - cosine distance.
func (s *Storage) Query(ctx context.Context, vector []float64, k int, threshold float64) ([]domain.SearchResult, error) {
	results := []domain.SearchResult{}
	// a zero vector has undefined cosine distance, which Postgres orders as NaN
	if k <= 0 || isZero(vector) {
		return results, nil
	}
	q := pgvector.NewVector(toFloat32(vector))
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_id, document_id, source, idx, content, metadata, 1 - (embedding <=> $1) AS score
		FROM ragchat_chunks
		WHERE 1 - (embedding <=> $1) >= $2
		ORDER BY embedding <=> $1
		LIMIT $3`, q, threshold, k)
	if err != nil {
		return nil, retry.Classify("pgvector query", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c    domain.Chunk
			meta []byte
			r    domain.SearchResult
		)
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.Source, &c.Index, &c.Text, &meta, &r.Score); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &c.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		r.Chunk = c
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, retry.Classify("pgvector query", err)
	}
	return results, nil
}

func (s *Storage) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `TRUNCATE ragchat_chunks`); err != nil {
		return retry.Classify("pgvector clear", err)
	}
	return nil
}

// Count returns the number of stored chunks.
func (s *Storage) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM ragchat_chunks`).Scan(&n)
	return n, err
}

func (s *Storage) Close() error { return s.db.Close() }

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 && !math.IsNaN(x) {
			return false
		}
	}
	return true
}
