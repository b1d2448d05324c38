package memory

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"

	"ragchat/internal/domain"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	norms     []float64
	chunks    []domain.Chunk
}

func NewStorage() *Storage { return &Storage{} }

// Init sets the dimension and drops anything stored.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.vectors, s.norms, s.chunks = nil, nil, nil
	return nil
}

func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return errors.New("store not initialized")
	}
	for _, v := range vectors {
		if len(v) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
	}
	index := make(map[string]int, len(s.chunks))
	for i, c := range s.chunks {
		index[c.ChunkID] = i
	}
	for i, c := range chunks {
		n := norm(vectors[i])
		if j, ok := index[c.ChunkID]; ok {
			s.chunks[j], s.vectors[j], s.norms[j] = c, vectors[i], n
			continue
		}
		index[c.ChunkID] = len(s.chunks)
		s.chunks = append(s.chunks, c)
		s.vectors = append(s.vectors, vectors[i])
		s.norms = append(s.norms, n)
	}
	return nil
}

// Query ranks every stored vector by cosine similarity and returns at most k
// results scoring at least threshold, best first.
func (s *Storage) Query(ctx context.Context, vector []float64, k int, threshold float64) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		return []domain.SearchResult{}, nil
	}
	if len(s.vectors) > 0 && len(vector) != s.dimension {
		return nil, errors.New("query vector dimension mismatch")
	}
	qn := norm(vector)
	results := make([]domain.SearchResult, 0, min(k, len(s.vectors)))
	if qn == 0 {
		return results, nil
	}
	var all []domain.SearchResult
	for i := range s.vectors {
		if s.norms[i] == 0 {
			continue
		}
		score := dot(s.vectors[i], vector) / (s.norms[i] * qn)
		if score >= threshold {
			all = append(all, domain.SearchResult{Chunk: s.chunks[i], Score: score})
		}
	}
	slices.SortStableFunc(all, func(a, b domain.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(all) > k {
		all = all[:k]
	}
	return append(results, all...), nil
}

// Len is the number of stored chunks.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors, s.norms, s.chunks = nil, nil, nil
	return nil
}

func (s *Storage) Close() error { return nil }

func dot(a, b []float64) float64 {
	n := min(len(a), len(b))
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float64) float64 { return math.Sqrt(dot(v, v)) }
