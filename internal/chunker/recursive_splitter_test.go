package chunker

import (
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certrag/internal/domain"
)

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func lastRunes(s string, n int) string {
	r := []rune(s)
	return string(r[len(r)-n:])
}

func firstRunes(s string, n int) string {
	return string([]rune(s)[:n])
}

// reassemble drops the shared prefix of every chunk after the first.
func reassemble(chunks []string, overlap int) string {
	var b strings.Builder
	for i, c := range chunks {
		if i == 0 {
			b.WriteString(c)
			continue
		}
		b.WriteString(string([]rune(c)[overlap:]))
	}
	return b.String()
}

func TestSplitEmptyText(t *testing.T) {
	s := NewSplitter(1500, 200)
	assert.Empty(t, s.Split(""))
	assert.Empty(t, s.Split(" \n\t "))
}

func TestSplitShortText(t *testing.T) {
	s := NewSplitter(1500, 200)
	text := "Equivalence partitioning divides inputs into partitions."
	assert.Equal(t, []string{text}, s.Split(text))

	exact := strings.Repeat("x", 1500)
	assert.Equal(t, []string{exact}, s.Split(exact))
}

func TestSplitHardCutsWithoutSeparators(t *testing.T) {
	s := NewSplitter(1500, 200)
	text := strings.Repeat("a", 10000)

	chunks := s.Split(text)
	require.Len(t, chunks, 8)
	for i, c := range chunks {
		assert.LessOrEqual(t, runeLen(c), 1500, "chunk %d", i)
	}
	assert.Equal(t, 1500, runeLen(chunks[0]))
	assert.Equal(t, 900, runeLen(chunks[7]))
	assert.Equal(t, text, reassemble(chunks, 200))
}

func TestSplitPrefersParagraphBoundary(t *testing.T) {
	s := NewSplitter(1500, 200)
	text := strings.Repeat("word ", 200) + "\n\n" + strings.Repeat("next ", 200)

	chunks := s.Split(text)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasSuffix(chunks[0], "\n\n"))
	assert.Equal(t, 1002, runeLen(chunks[0]))
	assert.Equal(t, text, reassemble(chunks, 200))
}

func TestSplitPrefersSentenceOverWord(t *testing.T) {
	s := NewSplitter(100, 10)
	text := strings.Repeat("a", 70) + ". " + strings.Repeat("b ", 40)

	chunks := s.Split(text)
	require.GreaterOrEqual(t, len(chunks), 2)
	assert.True(t, strings.HasSuffix(chunks[0], ". "))
}

func TestSplitInvariants(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 120; i++ {
		b.WriteString("Section ")
		b.WriteString(strings.Repeat("K", i%13))
		b.WriteString(" covers test design techniques and their coverage measures. ")
		if i%7 == 0 {
			b.WriteString("\n")
		}
		if i%19 == 0 {
			b.WriteString("\n\n")
		}
	}
	text := b.String()

	for _, tc := range []struct{ max, overlap int }{{1500, 200}, {300, 50}, {120, 0}} {
		s := NewSplitter(tc.max, tc.overlap)
		chunks := s.Split(text)
		require.NotEmpty(t, chunks)

		for i, c := range chunks {
			assert.LessOrEqual(t, runeLen(c), tc.max)
			if i > 0 && tc.overlap > 0 {
				assert.Equal(t, lastRunes(chunks[i-1], tc.overlap), firstRunes(c, tc.overlap))
			}
		}
		assert.Equal(t, text, reassemble(chunks, tc.overlap))
		assert.Equal(t, chunks, s.Split(text), "split must be deterministic")
	}
}

func TestSplitCountsCharactersNotBytes(t *testing.T) {
	s := NewSplitter(100, 20)
	text := strings.Repeat("é", 450)

	chunks := s.Split(text)
	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, runeLen(c), 100)
	}
	assert.Equal(t, text, reassemble(chunks, 20))
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	s := NewSplitter(100, 100)
	assert.Equal(t, 25, s.OverlapChars())

	d := NewSplitter(0, -1)
	assert.Equal(t, DefaultMaxChars, d.MaxChars())
	assert.Equal(t, 0, d.OverlapChars())
}

func TestChunkPagesCarriesMetadata(t *testing.T) {
	s := NewSplitter(50, 10)
	pages := []domain.Page{
		{Number: 1, Text: strings.Repeat("alpha ", 15)},
		{Number: 2, Text: ""},
		{Number: 3, Text: "closing remarks"},
	}
	meta := domain.DocumentMetadata{
		DocumentID:        "doc-7",
		CertificationCode: "CTFL",
		CertificationName: "Foundation Level",
		DocumentType:      domain.DocumentTypeSyllabus,
		Title:             "CTFL Syllabus",
	}

	chunks := s.ChunkPages(pages, meta)
	require.GreaterOrEqual(t, len(chunks), 3)

	for i, c := range chunks {
		assert.Equal(t, "doc-7", c.Metadata[domain.MetaDocumentID])
		assert.Equal(t, "CTFL", c.Metadata[domain.MetaCertificationCode])
		assert.Equal(t, "CTFL Syllabus", c.Metadata[domain.MetaTitle])
		assert.Equal(t, strconv.Itoa(i), c.Metadata[domain.MetaChunkIndex])
	}
	assert.Equal(t, "1", chunks[0].Metadata[domain.MetaPage])
	last := chunks[len(chunks)-1]
	assert.Equal(t, "3", last.Metadata[domain.MetaPage])
	assert.Equal(t, "closing remarks", last.Text)
}
