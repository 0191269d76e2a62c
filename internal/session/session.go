// Package session holds per-conversation state: the turns already
// answered, the evidence gathered so far and the citation ledger that
// keeps reference numbers stable across turns.
package session

import (
	"sync"
	"time"

	"github.com/docent-ai/docent/internal/citation"
	"github.com/docent-ai/docent/internal/evidence"
	"github.com/docent-ai/docent/internal/index"
)

// ContextEntry records one completed turn.
type ContextEntry struct {
	Seq       int          `json:"seq"`
	Query     string       `json:"query"`
	QueryVec  []float32    `json:"-"`
	Evidence  evidence.Set `json:"-"`
	Summary   string       `json:"summary"`
	CreatedAt time.Time    `json:"created_at"`
}

// Session is a single conversation. All methods are safe for
// concurrent use.
type Session struct {
	ID        string
	CreatedAt time.Time

	// turn serializes whole turns: a session answers one question at
	// a time, so a concurrent caller waits rather than clobbering the
	// active evidence set mid-gather.
	turn sync.Mutex

	mu      sync.RWMutex
	entries []ContextEntry
	active  evidence.Set
	refs    *citation.Ledger
}

func newSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		refs:      citation.NewLedger(),
	}
}

// Append records a finished turn. It is the only way session history
// grows; a turn that fails leaves no entry behind. The entry's Seq is
// assigned here, one past the previous entry.
func (s *Session) Append(entry ContextEntry) ContextEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.Seq = len(s.entries) + 1
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.entries = append(s.entries, entry)
	return entry
}

// Entries returns a snapshot of the session history in turn order.
func (s *Session) Entries() []ContextEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ContextEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len reports the number of completed turns.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// FindRelevant returns the prior entry whose query embedding is most
// similar to vec, provided it scores at or above threshold. Ties keep
// the earliest turn. A follow-up close enough to a prior question lets
// the caller reuse that turn's evidence and only fetch the delta.
func (s *Session) FindRelevant(vec []float32, threshold float32) (ContextEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best ContextEntry
	var bestScore float32
	found := false
	for _, e := range s.entries {
		if len(e.QueryVec) == 0 {
			continue
		}
		score := index.Similarity(vec, e.QueryVec)
		if score < threshold {
			continue
		}
		if !found || score > bestScore {
			best = e
			bestScore = score
			found = true
		}
	}
	return best, found
}

// BeginTurn claims the session for one turn and resets the active
// evidence set. It blocks until any in-flight turn calls EndTurn.
// Prior turns' evidence stays reachable through their entries.
func (s *Session) BeginTurn() {
	s.turn.Lock()
	s.mu.Lock()
	s.active = evidence.Set{}
	s.mu.Unlock()
}

// EndTurn releases the session claimed by BeginTurn. Callers pair the
// two whether the turn finished or aborted.
func (s *Session) EndTurn() {
	s.turn.Unlock()
}

// MergeEvidence folds ev into the session's active evidence set and
// returns the merged result.
func (s *Session) MergeEvidence(ev evidence.Set) evidence.Set {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = evidence.Merge(s.active, ev)
	return s.active
}

// Active returns the current merged evidence set.
func (s *Session) Active() evidence.Set {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Ledger returns the session's citation ledger. Reference numbers it
// hands out stay valid for the life of the session.
func (s *Session) Ledger() *citation.Ledger {
	return s.refs
}
