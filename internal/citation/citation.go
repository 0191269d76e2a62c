// Package citation aligns generated answer fragments with the exact source
// spans inside evidence chunks that support them. Mapping is conservative: a
// fragment that no chunk supports above the similarity floor stays uncited,
// because a false citation is worse than no citation.
package citation

import "sync"

// Citation is a resolved source span: a chunk id, the byte range of the
// minimal supporting substring within that chunk, and the quoted text.
type Citation struct {
	Ref     int    `json:"ref"`
	ChunkID string `json:"chunk_id"`
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Quote   string `json:"quote"`
}

// Fragment is a sentence-like piece of the generated answer with the
// citations that support it. An empty Citations slice means the fragment is
// uncited.
type Fragment struct {
	Text      string     `json:"text"`
	Start     int        `json:"start"`
	End       int        `json:"end"`
	Citations []Citation `json:"citations,omitempty"`
}

type spanKey struct {
	chunkID    string
	start, end int
}

// Ledger assigns reference indices to citation spans. Indices are unique
// within a whole session, not per turn: the same span cited again in a later
// turn gets the same reference number.
type Ledger struct {
	mu   sync.Mutex
	refs map[spanKey]int
	next int
}

// NewLedger creates an empty ledger. Reference numbering starts at 1.
func NewLedger() *Ledger {
	return &Ledger{refs: make(map[spanKey]int), next: 1}
}

// Ref returns the reference index for the given span, assigning the next
// free index on first sight.
func (l *Ledger) Ref(chunkID string, start, end int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := spanKey{chunkID: chunkID, start: start, end: end}
	if ref, ok := l.refs[key]; ok {
		return ref
	}
	ref := l.next
	l.next++
	l.refs[key] = ref
	return ref
}

// Len returns the number of distinct spans the ledger has seen.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.refs)
}
