package retrieval

import (
	"context"
	"fmt"

	"github.com/docent-ai/docent/internal/index"
)

// Selector narrows the corpus to a document shortlist before any chunk
// search runs. Pruning at document granularity cuts the chunk-search space
// by roughly the mean chunks-per-document factor.
type Selector struct {
	index index.Index
}

// NewSelector creates a Selector over the given index.
func NewSelector(idx index.Index) *Selector {
	return &Selector{index: idx}
}

// Select returns the ids of up to maxCount documents whose coarse similarity
// to the query embedding is at least threshold, best first.
//
// Zero survivors yields an empty slice and a nil error: the caller must
// treat that as "insufficient evidence", never as a failure.
func (s *Selector) Select(ctx context.Context, queryVec []float32, threshold float32, maxCount int) ([]string, error) {
	if maxCount <= 0 {
		return nil, nil
	}
	scored, err := s.index.SearchDocuments(ctx, queryVec, maxCount)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}

	var ids []string
	for _, d := range scored {
		if d.Score < threshold {
			// Results are sorted descending; everything after is below too.
			break
		}
		ids = append(ids, d.ID)
	}
	return ids, nil
}
