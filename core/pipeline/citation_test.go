package pipeline

import (
	"testing"

	"github.com/ragengine/corpusqa/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithPositionMapPageCitations(t *testing.T) {
	t.Run("chunk spanning a page boundary yields both pages", func(t *testing.T) {
		// "page 3" occupies [0,23), "page 4" occupies [23,len(text)). A chunk
		// from SentenceChunker that straddles char 23 must cite both pages.
		chunker := SentenceChunker(1)
		text := "Short first page two. Short second page four."
		spans := []model.PositionSpan{
			{StartChar: 0, EndChar: 23, Page: 3},
			{StartChar: 23, EndChar: len(text), Page: 4},
		}

		wrapped := WithPositionMap(chunker, model.MediaTypePDF, spans)
		chunks, err := wrapped(text, "doc.pdf")
		require.NoError(t, err)
		require.NotEmpty(t, chunks)

		sawBothPages := false
		for _, c := range chunks {
			if c.Citation.Kind != model.CitationPage {
				continue
			}
			if len(c.Citation.Pages) == 2 && c.Citation.Pages[0] == 3 && c.Citation.Pages[1] == 4 {
				sawBothPages = true
			}
		}
		assert.True(t, sawBothPages, "expected at least one chunk straddling the page boundary to cite pages=[3,4]")
	})

	t.Run("chunk fully inside one page cites only that page", func(t *testing.T) {
		text := "All of this text is on one page."
		spans := []model.PositionSpan{{StartChar: 0, EndChar: len(text), Page: 1}}

		wrapped := WithPositionMap(SentenceChunker(5), model.MediaTypePDF, spans)
		chunks, err := wrapped(text, "doc.pdf")
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, []int{1}, chunks[0].Citation.Pages)
		assert.Equal(t, "1", chunks[0].Citation.PageRange)
	})

	t.Run("no position map leaves citations empty", func(t *testing.T) {
		chunks, err := SentenceChunker(5)("No positions here.", "doc.plain")
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, model.CitationNone, chunks[0].Citation.Kind)
	})
}

func TestWithPositionMapTimeCitations(t *testing.T) {
	t.Run("chunk overlapping multiple segments spans earliest start to latest end", func(t *testing.T) {
		text := "Hello there. How are you today? I am fine thanks."
		spans := []model.PositionSpan{
			{StartChar: 0, EndChar: 12, StartTime: 0.0, EndTime: 1.5},
			{StartChar: 12, EndChar: 32, StartTime: 1.5, EndTime: 3.0},
			{StartChar: 32, EndChar: len(text), StartTime: 3.0, EndTime: 5.0},
		}

		wrapped := WithPositionMap(SentenceChunker(3), model.MediaTypeAudio, spans)
		chunks, err := wrapped(text, "doc.audio")
		require.NoError(t, err)
		require.Len(t, chunks, 1)

		assert.Equal(t, model.CitationTime, chunks[0].Citation.Kind)
		assert.Equal(t, 0.0, chunks[0].Citation.StartTime)
		assert.Equal(t, 5.0, chunks[0].Citation.EndTime)
	})
}

func TestCitationForRange(t *testing.T) {
	spans := []model.PositionSpan{
		{StartChar: 0, EndChar: 10, Page: 1},
		{StartChar: 10, EndChar: 20, Page: 2},
	}

	t.Run("interval overlapping nothing yields zero citation", func(t *testing.T) {
		c := CitationForRange(model.MediaTypePDF, spans, 100, 110)
		assert.Equal(t, model.CitationNone, c.Kind)
	})

	t.Run("interval exactly on a page boundary cites both adjacent pages", func(t *testing.T) {
		c := CitationForRange(model.MediaTypePDF, spans, 9, 11)
		assert.Equal(t, []int{1, 2}, c.Pages)
	})
}
