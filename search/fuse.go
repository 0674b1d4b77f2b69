package search

import (
	"bytes"
	"sort"

	"papers/types"

	"github.com/google/uuid"
)

// fusedChunk is one chunk present in at least one candidate set, with
// its normalized sub-scores and the weighted combination of the two.
type fusedChunk struct {
	chunkID uuid.UUID
	paperID uuid.UUID
	index   int
	content string
	fused   float64
	vec     float64
	lex     float64
}

// vectorSimilarity maps a cosine distance onto (0,1]. The mapping is
// strictly decreasing in distance and yields 1 at distance 0.
func vectorSimilarity(distance float64) float64 {
	if distance < 0 {
		distance = 0
	}
	return 1 / (1 + distance)
}

// normalizeLexical min-max rescales native ts_rank relevance onto [0,1]
// across the candidate set. A single candidate, or a set where every
// relevance is equal, normalizes to 1.0.
func normalizeLexical(matches []types.ChunkMatch) map[uuid.UUID]float64 {
	scores := make(map[uuid.UUID]float64, len(matches))
	if len(matches) == 0 {
		return scores
	}

	lo, hi := matches[0].Score, matches[0].Score
	for _, m := range matches[1:] {
		if m.Score < lo {
			lo = m.Score
		}
		if m.Score > hi {
			hi = m.Score
		}
	}

	spread := hi - lo
	for _, m := range matches {
		if spread == 0 {
			scores[m.ChunkID] = 1.0
		} else {
			scores[m.ChunkID] = (m.Score - lo) / spread
		}
	}
	return scores
}

// fuse combines the two candidate sets into one scored list. A chunk
// missing from a set contributes 0 for that set's term; chunks in
// neither set do not appear at all.
func fuse(vecMatches, lexMatches []types.ChunkMatch, wVec, wLex float64) []fusedChunk {
	lexScores := normalizeLexical(lexMatches)

	byID := make(map[uuid.UUID]*fusedChunk, len(vecMatches)+len(lexMatches))
	for _, m := range vecMatches {
		byID[m.ChunkID] = &fusedChunk{
			chunkID: m.ChunkID,
			paperID: m.PaperID,
			index:   m.Index,
			content: m.Content,
			vec:     vectorSimilarity(m.Score),
		}
	}
	for _, m := range lexMatches {
		fc, ok := byID[m.ChunkID]
		if !ok {
			fc = &fusedChunk{
				chunkID: m.ChunkID,
				paperID: m.PaperID,
				index:   m.Index,
				content: m.Content,
			}
			byID[m.ChunkID] = fc
		}
		fc.lex = lexScores[m.ChunkID]
	}

	fused := make([]fusedChunk, 0, len(byID))
	for _, fc := range byID {
		fc.fused = wVec*fc.vec + wLex*fc.lex
		fused = append(fused, *fc)
	}

	sort.Slice(fused, func(i, j int) bool {
		if fused[i].fused != fused[j].fused {
			return fused[i].fused > fused[j].fused
		}
		if fused[i].index != fused[j].index {
			return fused[i].index < fused[j].index
		}
		return bytes.Compare(fused[i].chunkID[:], fused[j].chunkID[:]) < 0
	})
	return fused
}

// aggregate collapses chunk-level scores to one entry per paper. The
// representative chunk is the best-scoring one; on equal scores the
// lowest sequence index wins. Papers are ordered by representative
// score descending, id ascending on ties.
func aggregate(fused []fusedChunk) []fusedChunk {
	best := make(map[uuid.UUID]fusedChunk, len(fused))
	for _, fc := range fused {
		cur, ok := best[fc.paperID]
		if !ok || fc.fused > cur.fused || (fc.fused == cur.fused && fc.index < cur.index) {
			best[fc.paperID] = fc
		}
	}

	papers := make([]fusedChunk, 0, len(best))
	for _, fc := range best {
		papers = append(papers, fc)
	}
	sort.Slice(papers, func(i, j int) bool {
		if papers[i].fused != papers[j].fused {
			return papers[i].fused > papers[j].fused
		}
		return bytes.Compare(papers[i].paperID[:], papers[j].paperID[:]) < 0
	})
	return papers
}

// paginate applies offset/limit; an offset past the end yields an
// empty slice, not an error.
func paginate(papers []fusedChunk, offset, limit int) []fusedChunk {
	if offset >= len(papers) || limit <= 0 {
		return nil
	}
	end := offset + limit
	if end > len(papers) {
		end = len(papers)
	}
	return papers[offset:end]
}
