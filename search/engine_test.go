package search

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"papers/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	vec      []types.ChunkMatch
	lex      []types.ChunkMatch
	papers   map[uuid.UUID]types.Paper
	vecErr   error
	lexErr   error
	paperErr error

	vecCalls   int
	lexCalls   int
	paperCalls int
}

func (f *fakeStore) SearchByVector(_ context.Context, _ []float32, _ int) ([]types.ChunkMatch, error) {
	f.vecCalls++
	return f.vec, f.vecErr
}

func (f *fakeStore) SearchByText(_ context.Context, _ string, _ int) ([]types.ChunkMatch, error) {
	f.lexCalls++
	return f.lex, f.lexErr
}

func (f *fakeStore) GetPapersByIDs(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]types.Paper, error) {
	f.paperCalls++
	if f.paperErr != nil {
		return nil, f.paperErr
	}
	out := make(map[uuid.UUID]types.Paper, len(ids))
	for _, id := range ids {
		if p, ok := f.papers[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

type fakeEmbedder struct {
	embedding []float32
	err       error
	calls     int
}

func (f *fakeEmbedder) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return f.embedding, f.err
}

var (
	paperA = uuid.MustParse("10000000-0000-0000-0000-00000000000a")
	paperB = uuid.MustParse("10000000-0000-0000-0000-00000000000b")
	chunkA = uuid.MustParse("20000000-0000-0000-0000-00000000000a")
	chunkB = uuid.MustParse("20000000-0000-0000-0000-00000000000b")
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// scenarioStore reproduces the two-paper setup: chunk A nearest by
// embedding (distance 0.1) but lexically weak, chunk B the reverse.
func scenarioStore() *fakeStore {
	return &fakeStore{
		vec: []types.ChunkMatch{
			{ChunkID: chunkA, PaperID: paperA, Index: 0, Content: "chunk a", Score: 0.1},
			{ChunkID: chunkB, PaperID: paperB, Index: 0, Content: "chunk b", Score: 0.3},
		},
		lex: []types.ChunkMatch{
			{ChunkID: chunkB, PaperID: paperB, Index: 0, Content: "chunk b", Score: 0.9},
			{ChunkID: chunkA, PaperID: paperA, Index: 0, Content: "chunk a", Score: 0.4},
		},
		papers: map[uuid.UUID]types.Paper{
			paperA: {ID: paperA, Title: "Paper A"},
			paperB: {ID: paperB, Title: "Paper B"},
		},
	}
}

func TestSearchWorkedScenario(t *testing.T) {
	store := scenarioStore()
	engine := NewEngine(store, &fakeEmbedder{embedding: []float32{1}}, testLogger())

	result, err := engine.Search(context.Background(), "query", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, result.Results, 2)
	assert.False(t, result.Degraded)

	// B: 0.7*1/(1.3) + 0.3*1 = 0.838; A: 0.7*1/(1.1) + 0.3*0 = 0.636
	assert.Equal(t, "Paper B", result.Results[0].Title)
	assert.InDelta(t, 0.838, result.Results[0].Score, 0.001)
	assert.Equal(t, "Paper A", result.Results[1].Title)
	assert.InDelta(t, 0.636, result.Results[1].Score, 0.001)

	assert.Equal(t, 1, result.Results[0].Rank)
	assert.Equal(t, 2, result.Results[1].Rank)
	// metadata resolved in a single batched lookup
	assert.Equal(t, 1, store.paperCalls)
}

func TestSearchScoresBoundedAndMonotonic(t *testing.T) {
	weights := []struct{ wv, wl float64 }{
		{0, 1}, {0.3, 0.7}, {0.5, 0.5}, {0.7, 0.3}, {1, 0},
	}
	for _, w := range weights {
		store := scenarioStore()
		engine := NewEngine(store, &fakeEmbedder{embedding: []float32{1}}, testLogger())

		opts := DefaultOptions()
		opts.SemanticWeight, opts.TextWeight = w.wv, w.wl
		result, err := engine.Search(context.Background(), "query", opts)
		require.NoError(t, err)

		prev := 1.0
		for _, r := range result.Results {
			assert.GreaterOrEqual(t, r.Score, 0.0)
			assert.LessOrEqual(t, r.Score, 1.0)
			assert.LessOrEqual(t, r.Score, prev, "scores must be non-increasing")
			prev = r.Score
		}
	}
}

func TestSearchDeterministic(t *testing.T) {
	store := scenarioStore()
	engine := NewEngine(store, &fakeEmbedder{embedding: []float32{1}}, testLogger())

	first, err := engine.Search(context.Background(), "query", DefaultOptions())
	require.NoError(t, err)
	second, err := engine.Search(context.Background(), "query", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, first.Results, second.Results)
}

func TestSearchDegradesToLexicalOnly(t *testing.T) {
	embedErr := errors.New("oracle down")

	degradedStore := scenarioStore()
	engine := NewEngine(degradedStore, &fakeEmbedder{err: embedErr}, testLogger())
	degradedResult, err := engine.Search(context.Background(), "query", DefaultOptions())
	require.NoError(t, err)
	assert.True(t, degradedResult.Degraded)
	require.NotEmpty(t, degradedResult.Results)

	lexStore := scenarioStore()
	lexEngine := NewEngine(lexStore, &fakeEmbedder{embedding: []float32{1}}, testLogger())
	lexResult, err := lexEngine.TextSearch(context.Background(), "query", DefaultOptions())
	require.NoError(t, err)

	// lexical weight renormalized to 1.0: same ranking as lexical-only
	assert.Equal(t, lexResult.Results, degradedResult.Results)
}

func TestSearchEmbedderRetriedOnce(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("oracle down")}
	engine := NewEngine(scenarioStore(), embedder, testLogger())

	_, err := engine.Search(context.Background(), "query", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 2, embedder.calls)
}

func TestSearchVectorOnlyWhenLexicalFails(t *testing.T) {
	store := scenarioStore()
	store.lexErr = errors.New("fts down")
	engine := NewEngine(store, &fakeEmbedder{embedding: []float32{1}}, testLogger())

	result, err := engine.Search(context.Background(), "query", DefaultOptions())
	require.NoError(t, err)
	assert.True(t, result.Degraded)
	require.Len(t, result.Results, 2)
	// semantic weight renormalized to 1.0: nearest chunk wins
	assert.Equal(t, "Paper A", result.Results[0].Title)
}

func TestSearchFailsWhenBothSourcesFail(t *testing.T) {
	store := scenarioStore()
	store.lexErr = errors.New("fts down")
	engine := NewEngine(store, &fakeEmbedder{err: errors.New("oracle down")}, testLogger())

	_, err := engine.Search(context.Background(), "query", DefaultOptions())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestSemanticSearchEmbedderFailureIsFatal(t *testing.T) {
	engine := NewEngine(scenarioStore(), &fakeEmbedder{err: errors.New("oracle down")}, testLogger())

	_, err := engine.SemanticSearch(context.Background(), "query", DefaultOptions())
	assert.ErrorIs(t, err, ErrEmbeddingUnavailable)
}

func TestSearchInvalidInput(t *testing.T) {
	engine := NewEngine(scenarioStore(), &fakeEmbedder{embedding: []float32{1}}, testLogger())
	ctx := context.Background()

	t.Run("empty query", func(t *testing.T) {
		_, err := engine.Search(ctx, "   ", DefaultOptions())
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("negative weight", func(t *testing.T) {
		opts := DefaultOptions()
		opts.SemanticWeight, opts.TextWeight = -0.2, 1.2
		_, err := engine.Search(ctx, "query", opts)
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("weights not summing to one", func(t *testing.T) {
		opts := DefaultOptions()
		opts.SemanticWeight, opts.TextWeight = 0.5, 0.2
		_, err := engine.Search(ctx, "query", opts)
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})

	t.Run("negative offset", func(t *testing.T) {
		opts := DefaultOptions()
		opts.Offset = -1
		_, err := engine.Search(ctx, "query", opts)
		assert.ErrorIs(t, err, ErrInvalidQuery)
	})
}

func TestSearchBoundaries(t *testing.T) {
	ctx := context.Background()

	t.Run("top_k zero returns empty without error", func(t *testing.T) {
		store := scenarioStore()
		engine := NewEngine(store, &fakeEmbedder{embedding: []float32{1}}, testLogger())
		opts := DefaultOptions()
		opts.TopK = 0
		result, err := engine.Search(ctx, "query", opts)
		require.NoError(t, err)
		assert.Empty(t, result.Results)
		// no retrieval issued for an empty page
		assert.Equal(t, 0, store.vecCalls+store.lexCalls)
	})

	t.Run("offset past the end returns empty", func(t *testing.T) {
		engine := NewEngine(scenarioStore(), &fakeEmbedder{embedding: []float32{1}}, testLogger())
		opts := DefaultOptions()
		opts.Offset = 100
		result, err := engine.Search(ctx, "query", opts)
		require.NoError(t, err)
		assert.Empty(t, result.Results)
	})

	t.Run("no candidates is success", func(t *testing.T) {
		store := &fakeStore{papers: map[uuid.UUID]types.Paper{}}
		engine := NewEngine(store, &fakeEmbedder{embedding: []float32{1}}, testLogger())
		result, err := engine.Search(ctx, "query", DefaultOptions())
		require.NoError(t, err)
		assert.Empty(t, result.Results)
	})
}

func TestSearchSameDocumentRepresentative(t *testing.T) {
	weak := uuid.MustParse("20000000-0000-0000-0000-000000000001")
	strong := uuid.MustParse("20000000-0000-0000-0000-000000000002")
	store := &fakeStore{
		vec: []types.ChunkMatch{
			{ChunkID: strong, PaperID: paperA, Index: 3, Content: "strong match", Score: 0.05},
			{ChunkID: weak, PaperID: paperA, Index: 0, Content: "weak match", Score: 0.8},
		},
		papers: map[uuid.UUID]types.Paper{paperA: {ID: paperA, Title: "Paper A"}},
	}
	engine := NewEngine(store, &fakeEmbedder{embedding: []float32{1}}, testLogger())

	result, err := engine.Search(context.Background(), "query", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "strong match", result.Results[0].ChunkText)
}

func TestSearchDropsOrphanChunks(t *testing.T) {
	store := scenarioStore()
	delete(store.papers, paperA)
	engine := NewEngine(store, &fakeEmbedder{embedding: []float32{1}}, testLogger())

	result, err := engine.Search(context.Background(), "query", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, result.Results, 1)
	assert.Equal(t, "Paper B", result.Results[0].Title)
}

func TestTextSearchDoesNotTouchEmbedder(t *testing.T) {
	embedder := &fakeEmbedder{embedding: []float32{1}}
	engine := NewEngine(scenarioStore(), embedder, testLogger())

	_, err := engine.TextSearch(context.Background(), "query", DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, embedder.calls)
}
