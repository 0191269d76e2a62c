package retrieval

import (
	"context"
	"fmt"
	"sort"

	"github.com/docent-ai/docent/internal/evidence"
	"github.com/docent-ai/docent/internal/index"
)

// AllChunks is the sentinel query that bypasses similarity ranking and
// returns every chunk in the document scope, ordered by original offset.
// Used when the agent needs full-document coverage rather than a similarity
// cut.
const AllChunks = "retrieve all"

// fetchFactor is how many candidates are fetched per requested result before
// diversity selection runs over them.
const fetchFactor = 2

// Retriever selects chunks from a document shortlist. Selection is
// maximal-marginal-relevance: relevance to the query traded against
// redundancy with chunks already picked, so near-duplicate boilerplate does
// not crowd out distinct evidence.
type Retriever struct {
	index index.Index
}

// NewRetriever creates a Retriever over the given index.
func NewRetriever(idx index.Index) *Retriever {
	return &Retriever{index: idx}
}

// Retrieve returns an evidence set for the query, scoped to the given
// document ids (empty scope searches the whole chunk collection).
//
// lambda in [0,1] is the diversity weight: each step picks the candidate
// maximizing lambda*simToQuery - (1-lambda)*maxSimToPicked. lambda of 1.0
// degrades to plain top-k similarity ranking. Ties go to the higher
// query similarity, then to the lower chunk offset.
//
// The returned set is not merged into any session state; the caller merges.
func (r *Retriever) Retrieve(ctx context.Context, query string, queryVec []float32, scope []string, k int, lambda float64) (evidence.Set, error) {
	if query == AllChunks {
		return r.retrieveAll(ctx, scope)
	}
	if k <= 0 {
		return evidence.New(query, nil), nil
	}

	candidates, err := r.index.SearchChunks(ctx, queryVec, k*fetchFactor, scope)
	if err != nil {
		return evidence.Set{}, fmt.Errorf("searching chunks: %w", err)
	}

	if lambda >= 1.0 || len(candidates) <= k {
		if len(candidates) > k {
			candidates = candidates[:k]
		}
		return evidence.FromScored(query, candidates), nil
	}

	picked := mmrSelect(candidates, k, lambda)
	return evidence.FromScored(query, picked), nil
}

// retrieveAll implements exhaustive mode: every chunk in scope, ordered by
// ascending original offset, score pinned to 1 so sufficiency checks treat
// full coverage as fully relevant.
func (r *Retriever) retrieveAll(ctx context.Context, scope []string) (evidence.Set, error) {
	chunks, err := r.index.ChunksByDocument(ctx, scope)
	if err != nil {
		return evidence.Set{}, fmt.Errorf("loading scoped chunks: %w", err)
	}

	set := evidence.Set{Query: AllChunks, Seq: 1, Chunks: make([]evidence.ScoredChunk, len(chunks))}
	for i, c := range chunks {
		set.Chunks[i] = evidence.ScoredChunk{Chunk: c, Score: 1, Rank: i}
	}
	return set, nil
}

// mmrSelect runs the iterative maximal-marginal-relevance loop over the
// candidate pool, which is already sorted descending by query similarity.
func mmrSelect(candidates []index.ScoredChunk, k int, lambda float64) []index.ScoredChunk {
	picked := make([]index.ScoredChunk, 0, k)
	remaining := make([]index.ScoredChunk, len(candidates))
	copy(remaining, candidates)

	for len(picked) < k && len(remaining) > 0 {
		bestIdx := 0
		bestScore := mmrScore(remaining[0], picked, lambda)
		for i := 1; i < len(remaining); i++ {
			score := mmrScore(remaining[i], picked, lambda)
			if betterMMR(score, remaining[i], bestScore, remaining[bestIdx]) {
				bestIdx = i
				bestScore = score
			}
		}
		picked = append(picked, remaining[bestIdx])
		remaining = append(remaining[:bestIdx], remaining[bestIdx+1:]...)
	}

	// MMR order is a selection order, not a score order; the evidence set
	// re-sorts descending by score on construction.
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Score > picked[j].Score })
	return picked
}

func mmrScore(c index.ScoredChunk, picked []index.ScoredChunk, lambda float64) float64 {
	var maxSim float64
	for _, p := range picked {
		sim := float64(index.Similarity(c.Embedding, p.Embedding))
		if sim > maxSim {
			maxSim = sim
		}
	}
	return lambda*float64(c.Score) - (1-lambda)*maxSim
}

// betterMMR reports whether candidate a (with MMR score sa) beats the
// current best b: higher MMR score, then higher query similarity, then
// lower chunk offset.
func betterMMR(sa float64, a index.ScoredChunk, sb float64, b index.ScoredChunk) bool {
	if sa != sb {
		return sa > sb
	}
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Offset < b.Offset
}
