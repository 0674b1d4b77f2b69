package search

import (
	"testing"

	"papers/types"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, vectorSimilarity(0))
	assert.InDelta(t, 0.909, vectorSimilarity(0.1), 0.001)
	assert.InDelta(t, 0.769, vectorSimilarity(0.3), 0.001)
	// strictly decreasing in distance
	assert.Greater(t, vectorSimilarity(0.1), vectorSimilarity(0.2))
	// negative distances clamp to the best score
	assert.Equal(t, 1.0, vectorSimilarity(-0.5))
}

func TestNormalizeLexical(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	t.Run("empty set", func(t *testing.T) {
		assert.Empty(t, normalizeLexical(nil))
	})

	t.Run("single candidate gets 1.0", func(t *testing.T) {
		scores := normalizeLexical([]types.ChunkMatch{{ChunkID: a, Score: 0.42}})
		assert.Equal(t, 1.0, scores[a])
	})

	t.Run("all equal scores get 1.0", func(t *testing.T) {
		scores := normalizeLexical([]types.ChunkMatch{
			{ChunkID: a, Score: 0.5},
			{ChunkID: b, Score: 0.5},
		})
		assert.Equal(t, 1.0, scores[a])
		assert.Equal(t, 1.0, scores[b])
	})

	t.Run("min-max spread", func(t *testing.T) {
		scores := normalizeLexical([]types.ChunkMatch{
			{ChunkID: a, Score: 0.2},
			{ChunkID: b, Score: 0.6},
			{ChunkID: c, Score: 1.0},
		})
		assert.Equal(t, 0.0, scores[a])
		assert.InDelta(t, 0.5, scores[b], 1e-9)
		assert.Equal(t, 1.0, scores[c])
	})
}

func TestFuseMissingTermContributesZero(t *testing.T) {
	paperID := uuid.New()
	vecOnly := uuid.New()
	lexOnly := uuid.New()

	fused := fuse(
		[]types.ChunkMatch{{ChunkID: vecOnly, PaperID: paperID, Index: 0, Score: 0}},
		[]types.ChunkMatch{{ChunkID: lexOnly, PaperID: paperID, Index: 1, Score: 0.9}},
		0.7, 0.3,
	)
	require.Len(t, fused, 2)

	byID := map[uuid.UUID]fusedChunk{}
	for _, fc := range fused {
		byID[fc.chunkID] = fc
	}
	assert.InDelta(t, 0.7, byID[vecOnly].fused, 1e-9)
	assert.Equal(t, 0.0, byID[vecOnly].lex)
	assert.InDelta(t, 0.3, byID[lexOnly].fused, 1e-9)
	assert.Equal(t, 0.0, byID[lexOnly].vec)
}

func TestFuseTieBreaks(t *testing.T) {
	paperID := uuid.New()
	idLow := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	idHigh := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	t.Run("equal score orders by sequence index", func(t *testing.T) {
		fused := fuse(
			[]types.ChunkMatch{
				{ChunkID: idHigh, PaperID: paperID, Index: 5, Score: 0.2},
				{ChunkID: idLow, PaperID: paperID, Index: 1, Score: 0.2},
			},
			nil, 1, 0,
		)
		require.Len(t, fused, 2)
		assert.Equal(t, 1, fused[0].index)
		assert.Equal(t, 5, fused[1].index)
	})

	t.Run("equal score and index orders by chunk id", func(t *testing.T) {
		fused := fuse(
			[]types.ChunkMatch{
				{ChunkID: idHigh, PaperID: paperID, Index: 3, Score: 0.2},
				{ChunkID: idLow, PaperID: paperID, Index: 3, Score: 0.2},
			},
			nil, 1, 0,
		)
		require.Len(t, fused, 2)
		assert.Equal(t, idLow, fused[0].chunkID)
		assert.Equal(t, idHigh, fused[1].chunkID)
	})
}

func TestAggregateKeepsMaxNotAverage(t *testing.T) {
	paperID := uuid.New()
	fused := []fusedChunk{
		{chunkID: uuid.New(), paperID: paperID, index: 0, fused: 0.4},
		{chunkID: uuid.New(), paperID: paperID, index: 1, fused: 0.9},
		{chunkID: uuid.New(), paperID: paperID, index: 2, fused: 0.2},
	}

	papers := aggregate(fused)
	require.Len(t, papers, 1)
	assert.Equal(t, 0.9, papers[0].fused)
	assert.Equal(t, 1, papers[0].index)
}

func TestAggregateRepresentativeTieLowestIndex(t *testing.T) {
	paperID := uuid.New()
	fused := []fusedChunk{
		{chunkID: uuid.New(), paperID: paperID, index: 7, fused: 0.5, content: "late"},
		{chunkID: uuid.New(), paperID: paperID, index: 2, fused: 0.5, content: "early"},
	}

	papers := aggregate(fused)
	require.Len(t, papers, 1)
	assert.Equal(t, "early", papers[0].content)
}

func TestAggregatePaperTieBreakByID(t *testing.T) {
	pLow := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	pHigh := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	fused := []fusedChunk{
		{chunkID: uuid.New(), paperID: pHigh, fused: 0.5},
		{chunkID: uuid.New(), paperID: pLow, fused: 0.5},
	}

	papers := aggregate(fused)
	require.Len(t, papers, 2)
	assert.Equal(t, pLow, papers[0].paperID)
	assert.Equal(t, pHigh, papers[1].paperID)
}

func TestPaginate(t *testing.T) {
	papers := []fusedChunk{{index: 0}, {index: 1}, {index: 2}}

	assert.Len(t, paginate(papers, 0, 2), 2)
	assert.Len(t, paginate(papers, 2, 2), 1)
	assert.Empty(t, paginate(papers, 3, 2))
	assert.Empty(t, paginate(papers, 100, 10))
	assert.Empty(t, paginate(papers, 0, 0))
}
