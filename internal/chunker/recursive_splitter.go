package chunker

import (
	"strconv"
	"strings"

	"certrag/internal/domain"
)

const (
	DefaultMaxChars     = 1500
	DefaultOverlapChars = 200
)

// Boundary levels, most preferred first. Separators within a level compete
// on position; the latest one wins.
var boundaryLevels = [][]string{
	{"\n\n"},
	{"\n"},
	{". ", "! ", "? "},
	{" "},
}

// Splitter cuts text into overlapping chunks of at most maxChars characters,
// preferring paragraph, line, sentence and word boundaries over hard cuts.
// Consecutive chunks share exactly overlapChars characters.
type Splitter struct {
	maxChars     int
	overlapChars int
}

var _ domain.Chunker = (*Splitter)(nil)

// NewSplitter clamps an overlap that is not below maxChars to a quarter of it.
func NewSplitter(maxChars, overlapChars int) *Splitter {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlapChars < 0 {
		overlapChars = 0
	}
	if overlapChars >= maxChars {
		overlapChars = maxChars / 4
	}
	return &Splitter{maxChars: maxChars, overlapChars: overlapChars}
}

func (s *Splitter) MaxChars() int     { return s.maxChars }
func (s *Splitter) OverlapChars() int { return s.overlapChars }

// Split returns the chunk texts for text. Blank input yields no chunks.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	runes := []rune(text)
	n := len(runes)

	var out []string
	start := 0
	for {
		if n-start <= s.maxChars {
			out = append(out, string(runes[start:]))
			return out
		}
		end := s.cutPoint(runes, start)
		out = append(out, string(runes[start:end]))
		start = end - s.overlapChars
	}
}

// cutPoint picks the end (exclusive) of the chunk starting at start.
// The end is kept past start+overlapChars so the next start always advances.
func (s *Splitter) cutPoint(runes []rune, start int) int {
	hi := start + s.maxChars
	lo := start + s.overlapChars + 1
	if half := start + s.maxChars/2; half > lo {
		lo = half
	}
	for _, level := range boundaryLevels {
		best := -1
		for _, sep := range level {
			if end := lastBoundary(runes, lo, hi, []rune(sep)); end > best {
				best = end
			}
		}
		if best >= lo {
			return best
		}
	}
	return hi
}

// lastBoundary returns the largest end in [lo, hi] such that runes[end-len(sep):end]
// equals sep, or -1.
func lastBoundary(runes []rune, lo, hi int, sep []rune) int {
	for end := hi; end >= lo; end-- {
		if end-len(sep) < 0 {
			break
		}
		if runesEqual(runes[end-len(sep):end], sep) {
			return end
		}
	}
	return -1
}

func runesEqual(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ChunkPages splits every page separately and tags each chunk with the document
// metadata plus its page number and a per-document chunk index.
func (s *Splitter) ChunkPages(pages []domain.Page, meta domain.DocumentMetadata) []domain.Chunk {
	base := meta.Metadata()
	var chunks []domain.Chunk
	idx := 0
	for _, page := range pages {
		for _, text := range s.Split(page.Text) {
			md := base.Clone()
			md[domain.MetaPage] = strconv.Itoa(page.Number)
			md[domain.MetaChunkIndex] = strconv.Itoa(idx)
			chunks = append(chunks, domain.Chunk{Text: text, Metadata: md})
			idx++
		}
	}
	return chunks
}
