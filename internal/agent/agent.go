// Package agent orchestrates a question-answering turn: embed the
// query, reuse session memory, pick documents, retrieve chunks, judge
// whether the evidence suffices, generate the answer and map its
// claims back to source spans.
package agent

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docent-ai/docent/internal/citation"
	"github.com/docent-ai/docent/internal/evidence"
	"github.com/docent-ai/docent/internal/index"
	"github.com/docent-ai/docent/internal/session"
)

// QueryEmbedder turns a query into its embedding vector.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DocumentSelector picks the document IDs worth searching for a query.
type DocumentSelector interface {
	Select(ctx context.Context, queryVec []float32, threshold float32, maxCount int) ([]string, error)
}

// ChunkRetriever gathers scored chunks for a query within a document
// scope.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string, queryVec []float32, scope []string, k int, lambda float64) (evidence.Set, error)
}

// Config tunes one agent. Values are taken as given, zero included,
// so a caller can ask for a zero lambda or threshold; start from
// DefaultConfig and adjust.
type Config struct {
	// DocThreshold is the minimum document score for the first
	// selection round.
	DocThreshold float32
	// MaxDocs caps how many documents one round searches.
	MaxDocs int
	// TopK is the number of chunks retrieved per document.
	TopK int
	// MMRLambda trades query relevance against diversity; 1 disables
	// the diversity term.
	MMRLambda float64
	// MinChunks and MinScore define sufficiency: the evidence set
	// must hold at least MinChunks chunks at or above MinScore.
	MinChunks int
	MinScore  float32
	// MemoryThreshold gates reuse of prior turns by query similarity.
	MemoryThreshold float32
	// MaxRounds bounds how many times a turn may widen its search
	// after an insufficient round.
	MaxRounds int
	// MaxRetries and RetryBackoff govern retries when the index is
	// unavailable.
	MaxRetries   int
	RetryBackoff time.Duration
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		DocThreshold:    0.6,
		MaxDocs:         5,
		TopK:            8,
		MMRLambda:       0.9,
		MinChunks:       1,
		MinScore:        0.55,
		MemoryThreshold: 0.9,
		MaxRounds:       2,
		MaxRetries:      3,
		RetryBackoff:    200 * time.Millisecond,
	}
}

// Result is the outcome of one turn.
type Result struct {
	Answer       string              `json:"answer"`
	Fragments    []citation.Fragment `json:"fragments"`
	Insufficient bool                `json:"insufficient"`
	Evidence     evidence.Set        `json:"-"`
}

// Agent answers questions over an indexed corpus.
type Agent struct {
	log       *slog.Logger
	embedder  QueryEmbedder
	selector  DocumentSelector
	retriever ChunkRetriever
	gen       Generator
	mapper    *citation.Mapper
	cfg       Config
}

// New assembles an agent from its collaborators.
func New(log *slog.Logger, emb QueryEmbedder, sel DocumentSelector, ret ChunkRetriever, gen Generator, mapper *citation.Mapper, cfg Config) *Agent {
	if log == nil {
		log = slog.Default()
	}
	if mapper == nil {
		mapper = citation.NewMapper(citation.DefaultFloor)
	}
	return &Agent{
		log:       log,
		embedder:  emb,
		selector:  sel,
		retriever: ret,
		gen:       gen,
		mapper:    mapper,
		cfg:       cfg,
	}
}

// Answer runs one turn of sess for query. The session records the turn
// only when it produces an answer; a generation failure rolls the turn
// back completely.
func (a *Agent) Answer(ctx context.Context, sess *session.Session, query string) (Result, error) {
	queryVec, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return Result{}, err
	}

	sess.BeginTurn()
	defer sess.EndTurn()

	// A close-enough prior turn seeds this turn's evidence, so
	// retrieval only has to fetch the delta.
	var prior []session.ContextEntry
	if entry, ok := sess.FindRelevant(queryVec, a.cfg.MemoryThreshold); ok {
		a.log.Debug("reusing session memory", "session", sess.ID, "prior_turn", entry.Seq)
		sess.MergeEvidence(entry.Evidence)
		prior = append(prior, entry)
	}

	ev, err := a.gather(ctx, sess, query, queryVec)
	if err != nil {
		return Result{}, err
	}

	if !evidence.Sufficient(ev, a.cfg.MinChunks, a.cfg.MinScore) {
		a.log.Info("insufficient evidence", "session", sess.ID, "chunks", ev.Len())
		sess.Append(session.ContextEntry{
			Query:    query,
			QueryVec: queryVec,
			Evidence: ev,
			Summary:  CannotAnswer,
		})
		return Result{Answer: CannotAnswer, Insufficient: true, Evidence: ev}, nil
	}

	answer, err := a.gen.Generate(ctx, query, evidenceBlock(ev, prior))
	if err != nil {
		return Result{}, err
	}

	fragments := a.mapper.Map(answer, ev, sess.Ledger())

	sess.Append(session.ContextEntry{
		Query:    query,
		QueryVec: queryVec,
		Evidence: ev,
		Summary:  answer,
	})
	return Result{Answer: answer, Fragments: fragments, Evidence: ev}, nil
}

// gather runs document selection and scoped retrieval, widening the
// search on each insufficient round: a lower document threshold and
// more chunks per document.
func (a *Agent) gather(ctx context.Context, sess *session.Session, query string, queryVec []float32) (evidence.Set, error) {
	threshold := a.cfg.DocThreshold
	k := a.cfg.TopK

	var merged evidence.Set
	for round := 0; round <= a.cfg.MaxRounds; round++ {
		docs, err := withRetry(ctx, a.cfg.MaxRetries, a.cfg.RetryBackoff, func() ([]string, error) {
			return a.selector.Select(ctx, queryVec, threshold, a.cfg.MaxDocs)
		})
		if err != nil {
			return evidence.Set{}, err
		}

		if len(docs) > 0 {
			ev, err := a.retrieveScoped(ctx, query, queryVec, docs, k)
			if err != nil {
				return evidence.Set{}, err
			}
			merged = sess.MergeEvidence(ev)
		} else {
			merged = sess.Active()
		}

		if evidence.Sufficient(merged, a.cfg.MinChunks, a.cfg.MinScore) {
			return merged, nil
		}
		threshold -= 0.1
		if threshold < 0 {
			threshold = 0
		}
		k *= 2
		a.log.Debug("widening search", "session", sess.ID, "round", round+1,
			"doc_threshold", threshold, "top_k", k)
	}
	return merged, nil
}

// retrieveScoped retrieves chunks per document concurrently and merges
// the results.
func (a *Agent) retrieveScoped(ctx context.Context, query string, queryVec []float32, docs []string, k int) (evidence.Set, error) {
	sets := make([]evidence.Set, len(docs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, docID := range docs {
		g.Go(func() error {
			ev, err := a.retrieveOne(ctx, query, queryVec, docID, k)
			if err != nil {
				return err
			}
			sets[i] = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return evidence.Set{}, err
	}
	merged := sets[0]
	for _, s := range sets[1:] {
		merged = evidence.Merge(merged, s)
	}
	return merged, nil
}

// retrieveOne fetches one document's chunks, retrying with backoff and
// a halved k while the index reports itself unavailable.
func (a *Agent) retrieveOne(ctx context.Context, query string, queryVec []float32, docID string, k int) (evidence.Set, error) {
	attempts := max(a.cfg.MaxRetries, 1)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return evidence.Set{}, ctx.Err()
			case <-time.After(a.cfg.RetryBackoff * time.Duration(attempt)):
			}
			if k > 1 {
				k /= 2
			}
		}
		var ev evidence.Set
		ev, err = a.retriever.Retrieve(ctx, query, queryVec, []string{docID}, k, a.cfg.MMRLambda)
		if err == nil {
			return ev, nil
		}
		if !errors.Is(err, index.ErrUnavailable) {
			return evidence.Set{}, err
		}
	}
	return evidence.Set{}, err
}

// withRetry reruns op with backoff while the index reports itself
// unavailable. Other errors pass through immediately.
func withRetry[T any](ctx context.Context, attempts int, backoff time.Duration, op func() (T, error)) (T, error) {
	attempts = max(attempts, 1)
	var zero T
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff * time.Duration(attempt)):
			}
		}
		var out T
		out, err = op()
		if err == nil {
			return out, nil
		}
		if !errors.Is(err, index.ErrUnavailable) {
			return zero, err
		}
	}
	return zero, err
}
