package citation

import (
	"strings"
	"testing"

	"github.com/docent-ai/docent/internal/evidence"
	"github.com/docent-ai/docent/internal/index"
)

func evidenceSet(chunks ...index.Chunk) evidence.Set {
	scored := make([]evidence.ScoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = evidence.ScoredChunk{Chunk: c, Score: 0.9}
	}
	return evidence.New("q", scored)
}

func TestMapResolvesSupportedFragment(t *testing.T) {
	ev := evidenceSet(index.Chunk{
		ID: "c1",
		Text: "The annual deductible for ward class B1 is 2500 dollars. " +
			"Co-insurance of ten percent applies to all claims above the deductible.",
	})

	m := NewMapper(0.6)
	frags := m.Map("The annual deductible for ward class B1 is 2500 dollars.", ev, NewLedger())

	if len(frags) != 1 {
		t.Fatalf("got %d fragments, want 1", len(frags))
	}
	if len(frags[0].Citations) != 1 {
		t.Fatalf("fragment uncited, want one citation")
	}
	c := frags[0].Citations[0]
	if c.ChunkID != "c1" {
		t.Errorf("chunk = %s, want c1", c.ChunkID)
	}
	if !strings.Contains(c.Quote, "deductible") {
		t.Errorf("quote %q does not cover the claim", c.Quote)
	}
	if c.Ref != 1 {
		t.Errorf("ref = %d, want 1", c.Ref)
	}
}

func TestMapQuoteIsExactSubstring(t *testing.T) {
	text := "Premiums are payable yearly in advance. A grace period of thirty days applies."
	ev := evidenceSet(index.Chunk{ID: "c1", Text: text})

	m := NewMapper(0.6)
	frags := m.Map("A grace period of thirty days applies to premium payment.", ev, NewLedger())

	for _, f := range frags {
		for _, c := range f.Citations {
			if text[c.Start:c.End] != c.Quote {
				t.Errorf("quote %q is not text[%d:%d]", c.Quote, c.Start, c.End)
			}
		}
	}
}

func TestMapNeverCitesBelowFloor(t *testing.T) {
	ev := evidenceSet(
		index.Chunk{ID: "c1", Text: "Hospital cash benefit is payable for each day of confinement."},
		index.Chunk{ID: "c2", Text: "The policy excludes cosmetic treatment and dental work."},
	)

	m := NewMapper(0.6)
	answer := "Quantum entanglement allows faster computation in certain regimes."
	frags := m.Map(answer, ev, NewLedger())

	for _, f := range frags {
		if len(f.Citations) != 0 {
			t.Errorf("unsupported fragment %q was cited: %+v", f.Text, f.Citations)
		}
	}
}

func TestMapFloorPropertyHolds(t *testing.T) {
	ev := evidenceSet(index.Chunk{
		ID:   "c1",
		Text: "Claims must be submitted within ninety days of discharge from hospital.",
	})

	m := NewMapper(0.6)
	frags := m.Map("Claims must be submitted within ninety days of discharge.", ev, NewLedger())

	for _, f := range frags {
		for _, c := range f.Citations {
			ratio := lcsRatio(tokenize(f.Text), tokenize(c.Quote))
			if ratio < m.Floor {
				t.Errorf("citation ratio %v below floor %v for quote %q", ratio, m.Floor, c.Quote)
			}
		}
	}
}

func TestLedgerReusesRefAcrossTurns(t *testing.T) {
	ev := evidenceSet(index.Chunk{
		ID:   "C1",
		Text: "The waiting period for pre-existing conditions is twelve months.",
	})

	ledger := NewLedger()
	m := NewMapper(0.6)

	turn1 := m.Map("The waiting period for pre-existing conditions is twelve months.", ev, ledger)
	turn2 := m.Map("The waiting period for pre-existing conditions is twelve months.", ev, ledger)

	if len(turn1) != 1 || len(turn1[0].Citations) != 1 {
		t.Fatalf("turn 1 not cited: %+v", turn1)
	}
	if len(turn2) != 1 || len(turn2[0].Citations) != 1 {
		t.Fatalf("turn 2 not cited: %+v", turn2)
	}
	if turn1[0].Citations[0].Ref != turn2[0].Citations[0].Ref {
		t.Errorf("same span got two refs: %d vs %d",
			turn1[0].Citations[0].Ref, turn2[0].Citations[0].Ref)
	}
	if ledger.Len() != 1 {
		t.Errorf("ledger holds %d spans, want 1", ledger.Len())
	}
}

func TestLedgerDistinctSpansGetDistinctRefs(t *testing.T) {
	l := NewLedger()
	a := l.Ref("c1", 0, 10)
	b := l.Ref("c1", 10, 20)
	c := l.Ref("c2", 0, 10)
	if a == b || b == c || a == c {
		t.Errorf("refs not distinct: %d %d %d", a, b, c)
	}
	if again := l.Ref("c1", 0, 10); again != a {
		t.Errorf("repeat span ref = %d, want %d", again, a)
	}
}

func TestSplitSentences(t *testing.T) {
	frags := splitSentences("First claim. Second claim! Third?\nFourth without terminator")
	want := []string{"First claim.", "Second claim!", "Third?", "Fourth without terminator"}
	if len(frags) != len(want) {
		t.Fatalf("got %d fragments (%v), want %d", len(frags), frags, len(want))
	}
	for i, w := range want {
		if frags[i].Text != w {
			t.Errorf("fragment %d = %q, want %q", i, frags[i].Text, w)
		}
	}
}

func TestLCSRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b []string
		want float64
	}{
		{"identical", []string{"a", "b"}, []string{"a", "b"}, 1},
		{"disjoint", []string{"a"}, []string{"b"}, 0},
		{"half", []string{"a", "b"}, []string{"a", "c"}, 0.5},
		{"empty", nil, []string{"a"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := lcsRatio(tt.a, tt.b); got != tt.want {
				t.Errorf("lcsRatio = %v, want %v", got, tt.want)
			}
		})
	}
}
