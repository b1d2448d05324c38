package domain

import "context"

// Document is one unit of loaded source text. PDFs yield one Document per page.
type Document struct {
	ID       string
	Path     string
	Content  string
	Metadata map[string]any
}

// Chunk is a bounded segment of a document used for indexing and retrieval.
type Chunk struct {
	DocumentID string
	ChunkID    string
	Source     string
	Text       string
	Index      int
	Metadata   map[string]any
}

// SearchResult represents a matching chunk with its similarity score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Loader reads a single file into one or more documents.
type Loader interface {
	Load(ctx context.Context, path string) ([]Document, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
type Chunker interface {
	Chunk(document Document) ([]Chunk, error)
}

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(ctx context.Context, corpus []string) error
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// VectorStore persists vectors and supports thresholded similarity search.
// Query returns at most k results with score >= threshold, best first.
type VectorStore interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []Chunk, vectors [][]float64) error
	Query(ctx context.Context, vector []float64, k int, threshold float64) ([]SearchResult, error)
	Clear(ctx context.Context) error
	Close() error
}

// Generator sends a prompt to a language model and returns its completion.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Summarizer produces a brief summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
