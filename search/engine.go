// Package search implements hybrid ranking over the chunk store:
// vector and lexical candidate retrieval, score normalization and
// weighted fusion, and paper-level aggregation with pagination.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"papers/types"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInvalidQuery         = errors.New("invalid query")
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	ErrStoreUnavailable     = errors.New("store unavailable")
)

const (
	weightTolerance = 1e-6
	retryBackoff    = 150 * time.Millisecond
)

// Storer is the read-only slice of the store the engine needs.
type Storer interface {
	SearchByVector(ctx context.Context, embedding []float32, limit int) ([]types.ChunkMatch, error)
	SearchByText(ctx context.Context, query string, limit int) ([]types.ChunkMatch, error)
	GetPapersByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]types.Paper, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options configure a single ranking invocation. Passed explicitly on
// every call so concurrent requests with different preferences cannot
// interfere through shared state.
type Options struct {
	SemanticWeight float64
	TextWeight     float64
	CandidateK     int // per-source retrieval depth
	TopK           int // result count cap
	Offset         int
	Limit          int
}

// DefaultOptions mirror the product defaults: fusion favors the
// semantic signal 0.7/0.3, 50 candidates per source, 10 results.
func DefaultOptions() Options {
	return Options{
		SemanticWeight: 0.7,
		TextWeight:     0.3,
		CandidateK:     50,
		TopK:           10,
		Limit:          10,
	}
}

// Result is an ordered result page. Degraded marks responses ranked
// from a single source after the other one failed.
type Result struct {
	Results  []types.SearchResult `json:"results"`
	Degraded bool                 `json:"degraded"`
}

type Engine struct {
	store    Storer
	embedder Embedder
	logger   *slog.Logger
}

func NewEngine(store Storer, embedder Embedder, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		logger:   logger,
	}
}

type searchMode int

const (
	modeHybrid searchMode = iota
	modeSemantic
	modeLexical
)

// Search runs the full hybrid pipeline: concurrent vector and lexical
// retrieval, fusion under the given weights, paper aggregation and
// pagination. If the embedding oracle or the vector query fails after
// one retry, the request degrades to lexical-only ranking with the
// lexical weight renormalized to 1.0 and Degraded set on the result.
func (e *Engine) Search(ctx context.Context, query string, opts Options) (*Result, error) {
	return e.run(ctx, query, opts, modeHybrid)
}

// SemanticSearch ranks by vector similarity alone. Embedding failure
// is fatal here since there is no other signal to fall back on.
func (e *Engine) SemanticSearch(ctx context.Context, query string, opts Options) (*Result, error) {
	opts.SemanticWeight, opts.TextWeight = 1, 0
	return e.run(ctx, query, opts, modeSemantic)
}

// TextSearch ranks by full-text relevance alone.
func (e *Engine) TextSearch(ctx context.Context, query string, opts Options) (*Result, error) {
	opts.SemanticWeight, opts.TextWeight = 0, 1
	return e.run(ctx, query, opts, modeLexical)
}

func (e *Engine) run(ctx context.Context, query string, opts Options, mode searchMode) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}
	opts, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if opts.TopK == 0 {
		return &Result{Results: []types.SearchResult{}}, nil
	}

	vecMatches, lexMatches, vecDown, lexDown, err := e.retrieve(ctx, query, opts, mode)
	if err != nil {
		return nil, err
	}

	// Single-source fallback: the surviving source's weight is
	// renormalized to carry the whole score.
	wVec, wLex := opts.SemanticWeight, opts.TextWeight
	if vecDown {
		wVec, wLex = 0, 1
	} else if lexDown {
		wVec, wLex = 1, 0
	}
	degraded := vecDown || lexDown

	fused := fuse(vecMatches, lexMatches, wVec, wLex)
	papers := aggregate(fused)
	if len(papers) > opts.TopK {
		papers = papers[:opts.TopK]
	}
	page := paginate(papers, opts.Offset, opts.Limit)

	results, err := e.attachMetadata(ctx, page, opts.Offset)
	if err != nil {
		return nil, err
	}
	return &Result{Results: results, Degraded: degraded}, nil
}

// retrieve fans out the candidate queries. The two sources have no
// ordering dependency, so they run concurrently and join before fusion.
func (e *Engine) retrieve(ctx context.Context, query string, opts Options, mode searchMode) (vec, lex []types.ChunkMatch, vecDown, lexDown bool, err error) {
	var vecErr, lexErr error

	g, gctx := errgroup.WithContext(ctx)
	if mode != modeLexical {
		g.Go(func() error {
			vec, vecErr = e.vectorCandidates(gctx, query, opts.CandidateK)
			return nil
		})
	}
	if mode != modeSemantic {
		g.Go(func() error {
			lex, lexErr = withRetry(gctx, func() ([]types.ChunkMatch, error) {
				return e.store.SearchByText(gctx, query, opts.CandidateK)
			})
			if lexErr != nil {
				lexErr = fmt.Errorf("%w: %v", ErrStoreUnavailable, lexErr)
			}
			return nil
		})
	}
	_ = g.Wait()

	if ctx.Err() != nil {
		return nil, nil, false, false, ctx.Err()
	}

	switch mode {
	case modeSemantic:
		if vecErr != nil {
			return nil, nil, false, false, vecErr
		}
	case modeLexical:
		if lexErr != nil {
			return nil, nil, false, false, lexErr
		}
	default:
		if vecErr != nil && lexErr != nil {
			return nil, nil, false, false, fmt.Errorf("%w: all retrieval sources failed", ErrStoreUnavailable)
		}
		if vecErr != nil {
			e.logger.Warn("[SEARCH] vector retrieval failed, degrading to lexical-only", "error", vecErr)
			vec, vecDown = nil, true
		}
		if lexErr != nil {
			e.logger.Warn("[SEARCH] lexical retrieval failed, ranking on vector candidates only", "error", lexErr)
			lex, lexDown = nil, true
		}
	}
	return vec, lex, vecDown, lexDown, nil
}

func (e *Engine) vectorCandidates(ctx context.Context, query string, limit int) ([]types.ChunkMatch, error) {
	embedding, err := withRetry(ctx, func() ([]float32, error) {
		return e.embedder.Embed(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}

	matches, err := withRetry(ctx, func() ([]types.ChunkMatch, error) {
		return e.store.SearchByVector(ctx, embedding, limit)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return matches, nil
}

// attachMetadata resolves paper metadata for the result page with a
// single batched lookup, never one query per row.
func (e *Engine) attachMetadata(ctx context.Context, page []fusedChunk, offset int) ([]types.SearchResult, error) {
	results := make([]types.SearchResult, 0, len(page))
	if len(page) == 0 {
		return results, nil
	}

	ids := make([]uuid.UUID, 0, len(page))
	for _, fc := range page {
		ids = append(ids, fc.paperID)
	}
	metadata, err := e.store.GetPapersByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	for _, fc := range page {
		paper, ok := metadata[fc.paperID]
		if !ok {
			// Paper row gone mid-ingestion; drop the orphan.
			e.logger.Warn("[SEARCH] no metadata for matched paper", "paper_id", fc.paperID)
			continue
		}
		results = append(results, types.SearchResult{
			PaperID:      fc.paperID,
			Title:        paper.Title,
			Author:       paper.Author,
			Publisher:    paper.Publisher,
			Year:         paper.Year,
			ChunkText:    fc.content,
			Score:        fc.fused,
			VectorScore:  fc.vec,
			LexicalScore: fc.lex,
			Rank:         offset + len(results) + 1,
		})
	}
	return results, nil
}

func resolveOptions(opts Options) (Options, error) {
	def := DefaultOptions()
	if opts.SemanticWeight == 0 && opts.TextWeight == 0 {
		opts.SemanticWeight = def.SemanticWeight
		opts.TextWeight = def.TextWeight
	}
	if opts.SemanticWeight < 0 || opts.TextWeight < 0 {
		return opts, fmt.Errorf("%w: weights must be non-negative", ErrInvalidQuery)
	}
	if math.Abs(opts.SemanticWeight+opts.TextWeight-1) > weightTolerance {
		return opts, fmt.Errorf("%w: weights must sum to 1", ErrInvalidQuery)
	}
	if opts.CandidateK <= 0 {
		opts.CandidateK = def.CandidateK
	}
	if opts.TopK < 0 {
		return opts, fmt.Errorf("%w: top_k must not be negative", ErrInvalidQuery)
	}
	if opts.Limit <= 0 {
		opts.Limit = def.Limit
	}
	if opts.Offset < 0 {
		return opts, fmt.Errorf("%w: offset must not be negative", ErrInvalidQuery)
	}
	return opts, nil
}

// withRetry runs fn, retrying once after a short backoff on failure.
// Validation never comes through here; only the I/O calls do.
func withRetry[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	out, err := fn()
	if err == nil || ctx.Err() != nil {
		return out, err
	}
	select {
	case <-ctx.Done():
		return out, ctx.Err()
	case <-time.After(retryBackoff):
	}
	return fn()
}
