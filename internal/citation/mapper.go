package citation

import (
	"strings"
	"unicode"

	"github.com/docent-ai/docent/internal/evidence"
)

// DefaultFloor is the default minimal normalized LCS ratio between a
// fragment and its supporting span.
const DefaultFloor = 0.6

// Mapper locates the source span behind each answer fragment.
type Mapper struct {
	// Floor is the minimal normalized longest-common-subsequence ratio a
	// span must reach to count as support.
	Floor float64
}

// NewMapper creates a Mapper with the given similarity floor; floor <= 0
// selects DefaultFloor.
func NewMapper(floor float64) *Mapper {
	if floor <= 0 {
		floor = DefaultFloor
	}
	return &Mapper{Floor: floor}
}

// Map splits answerText into sentence fragments and resolves each against
// the evidence set. Reference indices come from the ledger, so spans cited
// in earlier turns of the same session keep their numbers.
func (m *Mapper) Map(answerText string, ev evidence.Set, ledger *Ledger) []Fragment {
	fragments := splitSentences(answerText)
	for i := range fragments {
		frag := &fragments[i]
		c, ok := m.resolve(frag.Text, ev)
		if !ok {
			continue // uncited, not an error
		}
		c.Ref = ledger.Ref(c.ChunkID, c.Start, c.End)
		frag.Citations = append(frag.Citations, c)
	}
	return fragments
}

// resolve picks the chunk with the highest lexical overlap, then the minimal
// contiguous word window inside it clearing the floor.
func (m *Mapper) resolve(fragment string, ev evidence.Set) (Citation, bool) {
	fragTokens := tokenize(fragment)
	if len(fragTokens) == 0 {
		return Citation{}, false
	}

	bestIdx := -1
	bestOverlap := 0.0
	for i, c := range ev.Chunks {
		overlap := tokenOverlap(fragTokens, tokenize(c.Chunk.Text))
		if overlap > bestOverlap {
			bestOverlap = overlap
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return Citation{}, false
	}

	chunk := ev.Chunks[bestIdx].Chunk
	start, end, ok := m.minimalSpan(fragTokens, chunk.Text)
	if !ok {
		return Citation{}, false
	}
	return Citation{
		ChunkID: chunk.ID,
		Start:   start,
		End:     end,
		Quote:   chunk.Text[start:end],
	}, true
}

// minimalSpan finds the smallest word window in text whose normalized LCS
// ratio against the fragment tokens reaches the floor. Window widths grow
// from 1 upward, so the first width with a clearing window is minimal.
func (m *Mapper) minimalSpan(fragTokens []string, text string) (int, int, bool) {
	words := wordSpans(text)
	if len(words) == 0 {
		return 0, 0, false
	}

	maxWidth := 3 * len(fragTokens)
	if maxWidth > len(words) {
		maxWidth = len(words)
	}

	for width := 1; width <= maxWidth; width++ {
		bestRatio := 0.0
		bestStart := -1
		for i := 0; i+width <= len(words); i++ {
			window := make([]string, width)
			for j := 0; j < width; j++ {
				window[j] = words[i+j].token
			}
			ratio := lcsRatio(fragTokens, window)
			if ratio > bestRatio {
				bestRatio = ratio
				bestStart = i
			}
		}
		if bestRatio >= m.Floor {
			return words[bestStart].start, words[bestStart+width-1].end, true
		}
	}
	return 0, 0, false
}

// splitSentences cuts text into sentence-like fragments at ./!/? boundaries,
// recording byte offsets into the original text.
func splitSentences(text string) []Fragment {
	var out []Fragment
	start := -1
	for i, r := range text {
		if start < 0 {
			if unicode.IsSpace(r) {
				continue
			}
			start = i
		}
		if r == '.' || r == '!' || r == '?' || r == '\n' {
			end := i
			if r != '\n' {
				end = i + 1 // keep the terminator
			}
			frag := strings.TrimSpace(text[start:end])
			if frag != "" {
				out = append(out, Fragment{Text: frag, Start: start, End: end})
			}
			start = -1
		}
	}
	if start >= 0 {
		frag := strings.TrimSpace(text[start:])
		if frag != "" {
			out = append(out, Fragment{Text: frag, Start: start, End: len(text)})
		}
	}
	return out
}

type wordSpan struct {
	token      string
	start, end int
}

// wordSpans tokenizes text into lowercase words with byte offsets.
func wordSpans(text string) []wordSpan {
	var out []wordSpan
	start := -1
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, wordSpan{token: strings.ToLower(text[start:i]), start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, wordSpan{token: strings.ToLower(text[start:]), start: start, end: len(text)})
	}
	return out
}

func tokenize(text string) []string {
	spans := wordSpans(text)
	tokens := make([]string, len(spans))
	for i, s := range spans {
		tokens[i] = s.token
	}
	return tokens
}

// tokenOverlap is the share of distinct fragment tokens present in the
// chunk. Used only to pick the candidate chunk; span acceptance is LCS.
func tokenOverlap(frag, chunk []string) float64 {
	if len(frag) == 0 {
		return 0
	}
	chunkSet := make(map[string]struct{}, len(chunk))
	for _, t := range chunk {
		chunkSet[t] = struct{}{}
	}
	fragSet := make(map[string]struct{}, len(frag))
	hits := 0
	for _, t := range frag {
		if _, seen := fragSet[t]; seen {
			continue
		}
		fragSet[t] = struct{}{}
		if _, ok := chunkSet[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(fragSet))
}

// lcsRatio is the normalized longest-common-subsequence ratio over word
// sequences: 2*LCS / (len(a)+len(b)).
func lcsRatio(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Two-row dynamic program.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}
	lcs := prev[len(b)]
	return 2 * float64(lcs) / float64(len(a)+len(b))
}
