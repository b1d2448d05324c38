// Package service owns the question-answering session: it builds the index
// from a folder and answers questions against it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"ragchat/internal/cache"
	"ragchat/internal/domain"
	"ragchat/internal/loader"
	"ragchat/internal/metrics"
	"ragchat/internal/prompt"
)

// User-facing messages returned in place of an answer.
const (
	MsgNotIngested  = "Please ingest a folder with documents first."
	MsgInvalidQuery = "Please enter a valid query."
)

// ErrNotIngested is returned by Retrieve before any successful ingest.
var ErrNotIngested = errors.New("no documents ingested")

type State int

const (
	StateEmpty State = iota
	StateReady
)

func (s State) String() string {
	if s == StateReady {
		return "ready"
	}
	return "empty"
}

// FolderLoader reads a folder into documents.
type FolderLoader interface {
	Load(ctx context.Context, dir string) (*loader.Result, error)
}

// Deps are the pipeline stages. Summarizer, Cache, Metrics and Logger are optional.
type Deps struct {
	Loader     FolderLoader
	Chunker    domain.Chunker
	Embedder   domain.Embedder
	Store      domain.VectorStore
	Generator  domain.Generator
	Summarizer domain.Summarizer
	Cache      cache.Cache
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

type Options struct {
	K                   int
	ScoreThreshold      float64
	SummaryMaxSentences int
	EmbedWorkers        int
}

// IngestReport describes a successful ingestion.
type IngestReport struct {
	Folder    string
	Files     int
	Skipped   []string
	Documents int
	Chunks    int
	Summary   string
	Duration  time.Duration
}

// Answer is the outcome of Ask. Sources is empty for informational replies.
type Answer struct {
	Text    string
	Sources []domain.SearchResult
	Cached  bool
}

// RAGService is the session. Ingest and Clear hold the write lock; Ask and
// Retrieve hold the read lock, so questions run concurrently with each other
// but never against a half-built index.
type RAGService struct {
	deps Deps
	opts Options
	log  *slog.Logger

	mu      sync.RWMutex
	state   State
	epoch   uint64
	session string
	folder  string
	chunks  []domain.Chunk
}

func NewRAGService(deps Deps, opts Options) *RAGService {
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if opts.K <= 0 {
		opts.K = 3
	}
	if opts.SummaryMaxSentences <= 0 {
		opts.SummaryMaxSentences = 3
	}
	if opts.EmbedWorkers <= 0 {
		opts.EmbedWorkers = 4
	}
	return &RAGService{
		deps:    deps,
		opts:    opts,
		log:     deps.Logger,
		session: uuid.NewString(),
	}
}

func (s *RAGService) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Folder is the folder behind the active index, empty when Empty.
func (s *RAGService) Folder() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.folder
}

// Ingest replaces the index with the contents of folder.
func (s *RAGService) Ingest(ctx context.Context, folder string) (report *IngestReport, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	started := time.Now()
	defer func() {
		n := 0
		if report != nil {
			n = report.Chunks
		}
		s.deps.Metrics.Ingest(err, n)
	}()

	t := time.Now()
	loaded, err := s.deps.Loader.Load(ctx, folder)
	if err != nil {
		return nil, err
	}
	s.deps.Metrics.Stage("load", t)

	var chunks []domain.Chunk
	var texts []string
	var corpus strings.Builder
	for _, d := range loaded.Documents {
		cs, err := s.deps.Chunker.Chunk(d)
		if err != nil {
			return nil, domain.NewError(domain.KindMalformedInput, "chunk", fmt.Errorf("%s: %w", d.Path, err))
		}
		for _, c := range cs {
			if strings.TrimSpace(c.Text) == "" {
				continue
			}
			chunks = append(chunks, c)
			texts = append(texts, c.Text)
		}
		corpus.WriteString(d.Content)
		corpus.WriteString("\n")
	}
	if len(chunks) == 0 {
		s.log.Warn("No documents to index",
			slog.String("folder", folder),
			slog.Int("files", loaded.Files),
			slog.Int("skipped", len(loaded.Skipped)))
		return nil, domain.NewError(domain.KindNoDocuments, "ingest",
			fmt.Errorf("no loadable documents in %s (supported: .pdf, .txt)", folder))
	}

	if err := s.deps.Embedder.Prepare(ctx, texts); err != nil {
		return nil, wrap(domain.KindMalformedInput, "prepare embedder", err)
	}
	// from here on the previous index is no longer trustworthy
	fail := func(err error) (*IngestReport, error) {
		s.reset()
		return nil, err
	}

	t = time.Now()
	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return fail(wrap(domain.KindServiceUnavailable, "embed", err))
	}
	s.deps.Metrics.Stage("embed", t)

	dim := s.deps.Embedder.Dimension()
	if dim <= 0 {
		dim = len(vectors[0])
	}
	t = time.Now()
	if err := s.deps.Store.Init(ctx, dim); err != nil {
		return fail(wrap(domain.KindServiceUnavailable, "init store", err))
	}
	if err := s.deps.Store.Clear(ctx); err != nil {
		return fail(wrap(domain.KindServiceUnavailable, "clear store", err))
	}
	if err := s.deps.Store.Upsert(ctx, chunks, vectors); err != nil {
		return fail(wrap(domain.KindServiceUnavailable, "upsert", err))
	}
	s.deps.Metrics.Stage("index", t)

	summary := ""
	if s.deps.Summarizer != nil {
		if summary, err = s.deps.Summarizer.Summarize(corpus.String(), s.opts.SummaryMaxSentences); err != nil {
			s.log.Warn("Summary failed", slog.Any("error", err))
			summary = ""
		}
	}

	s.chunks = chunks
	s.folder = folder
	s.state = StateReady
	s.epoch++

	report = &IngestReport{
		Folder:    folder,
		Files:     loaded.Files,
		Skipped:   loaded.Skipped,
		Documents: len(loaded.Documents),
		Chunks:    len(chunks),
		Summary:   summary,
		Duration:  time.Since(started),
	}
	s.log.Info("Ingested folder",
		slog.String("folder", folder),
		slog.Int("documents", report.Documents),
		slog.Int("chunks", report.Chunks),
		slog.Int("skipped", len(report.Skipped)),
		slog.Duration("took", report.Duration))
	return report, nil
}

// embedAll embeds texts with a bounded number of concurrent calls, keeping order.
func (s *RAGService) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.EmbedWorkers)
	for i, text := range texts {
		g.Go(func() error {
			v, err := s.deps.Embedder.Embed(gctx, text)
			if err != nil {
				return err
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Ask answers query from the active index. Informational replies (nothing
// ingested, blank query) come back as an Answer, not an error.
func (s *RAGService) Ask(ctx context.Context, query string) (*Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state == StateEmpty {
		s.deps.Metrics.Ask(metrics.OutcomeNotIngested)
		return &Answer{Text: MsgNotIngested}, nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		s.deps.Metrics.Ask(metrics.OutcomeInvalidQuery)
		return &Answer{Text: MsgInvalidQuery}, nil
	}

	scope := s.scope()
	if text, ok, err := s.deps.Cache.Get(ctx, scope, query); err != nil {
		s.log.Warn("Cache lookup failed", slog.Any("error", err))
	} else if ok {
		s.deps.Metrics.Ask(metrics.OutcomeCached)
		return &Answer{Text: text, Cached: true}, nil
	}

	results, err := s.retrieve(ctx, query)
	if err != nil {
		s.deps.Metrics.Ask(metrics.OutcomeError)
		return nil, err
	}

	t := time.Now()
	text, err := s.deps.Generator.Generate(ctx, prompt.Build(query, results))
	if err != nil {
		s.deps.Metrics.Ask(metrics.OutcomeError)
		return nil, wrap(domain.KindServiceUnavailable, "generate", err)
	}
	s.deps.Metrics.Stage("generate", t)

	if err := s.deps.Cache.Set(ctx, scope, query, text); err != nil {
		s.log.Warn("Cache store failed", slog.Any("error", err))
	}
	s.deps.Metrics.Ask(metrics.OutcomeAnswered)
	s.log.Debug("Answered", slog.String("query", query), slog.Int("sources", len(results)))
	return &Answer{Text: text, Sources: results}, nil
}

// Retrieve runs only the retrieval stage.
func (s *RAGService) Retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateEmpty {
		return nil, ErrNotIngested
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.NewError(domain.KindMalformedInput, "retrieve", errors.New("empty query"))
	}
	return s.retrieve(ctx, query)
}

func (s *RAGService) retrieve(ctx context.Context, query string) ([]domain.SearchResult, error) {
	t := time.Now()
	vec, err := s.deps.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, wrap(domain.KindServiceUnavailable, "embed query", err)
	}
	s.deps.Metrics.Stage("embed_query", t)

	// a corpus-fitted embedder maps unseen words to the zero vector
	if isZero(vec) {
		return enforce(lexicalSearch(s.chunks, query), s.opts.K, s.opts.ScoreThreshold), nil
	}

	t = time.Now()
	res, err := s.deps.Store.Query(ctx, vec, s.opts.K, s.opts.ScoreThreshold)
	if err != nil {
		return nil, wrap(domain.KindServiceUnavailable, "query store", err)
	}
	s.deps.Metrics.Stage("retrieve", t)
	return enforce(res, s.opts.K, s.opts.ScoreThreshold), nil
}

// Clear drops the index and returns to Empty.
func (s *RAGService) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.deps.Store.Clear(ctx)
	s.reset()
	if err != nil {
		return wrap(domain.KindServiceUnavailable, "clear store", err)
	}
	s.log.Info("Cleared session")
	return nil
}

// Close releases the store and cache.
func (s *RAGService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.deps.Store.Close(), s.deps.Cache.Close())
}

func (s *RAGService) reset() {
	s.state = StateEmpty
	s.chunks = nil
	s.folder = ""
	s.epoch++
	s.deps.Metrics.Cleared()
}

// wrap gives err the kind unless a component already classified it.
// Deadline errors always become timeouts.
func wrap(kind domain.Kind, op string, err error) error {
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		kind = domain.KindTimeout
	}
	return domain.NewError(kind, op, err)
}

func (s *RAGService) scope() string {
	return fmt.Sprintf("%s:%d", s.session, s.epoch)
}

// enforce keeps at most k results scoring at least threshold, best first,
// whatever order the backend returned them in.
func enforce(results []domain.SearchResult, k int, threshold float64) []domain.SearchResult {
	out := make([]domain.SearchResult, 0, len(results))
	for _, r := range results {
		if !math.IsNaN(r.Score) && r.Score >= threshold {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b domain.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func isZero(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

var unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// lexicalSearch scores every chunk by token overlap with the query using the
// Ochiai coefficient |A∩B| / sqrt(|A||B|).
func lexicalSearch(chunks []domain.Chunk, query string) []domain.SearchResult {
	qset := toTokenSet(query)
	if len(qset) == 0 {
		return nil
	}
	out := make([]domain.SearchResult, 0, len(chunks))
	for _, c := range chunks {
		cset := toTokenSet(c.Text)
		if len(cset) == 0 {
			continue
		}
		inter := 0
		for t := range cset {
			if _, ok := qset[t]; ok {
				inter++
			}
		}
		if inter == 0 {
			continue
		}
		score := float64(inter) / math.Sqrt(float64(len(qset))*float64(len(cset)))
		out = append(out, domain.SearchResult{Chunk: c, Score: score})
	}
	return out
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}
