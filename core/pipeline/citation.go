package pipeline

import (
	"sort"

	"github.com/ragengine/corpusqa/model"
)

// WithPositionMap wraps a ChunkFunc so every chunk it produces also carries a
// Citation, computed by intersecting the chunk's character interval
// ([StartPos, EndPos)) with the given position map. mediaType selects page
// intersection (pdf, docx, image) or time intersection (audio); spans of the
// wrong shape for mediaType are ignored. A chunk whose interval overlaps no
// span gets the zero Citation, same as an unwrapped chunker.
func WithPositionMap(chunker ChunkFunc, mediaType model.MediaType, spans []model.PositionSpan) ChunkFunc {
	return func(text string, basePath string) ([]ChunkWithPath, error) {
		chunks, err := chunker(text, basePath)
		if err != nil {
			return nil, err
		}
		if len(spans) == 0 {
			return chunks, nil
		}
		for i := range chunks {
			start, end := chunkInterval(chunks[i])
			chunks[i].Citation = CitationForRange(mediaType, spans, start, end)
		}
		return chunks, nil
	}
}

func chunkInterval(c ChunkWithPath) (start, end int) {
	if c.StartPos != nil {
		start = *c.StartPos
	}
	if c.EndPos != nil {
		end = *c.EndPos
	} else {
		end = start + len(c.Content)
	}
	return start, end
}

// CitationForRange computes the Citation for a chunk's [start, end) character
// interval given the document's position map. For paginated media it
// collects every page the interval overlaps, e.g. a chunk spanning the
// page-3/page-4 boundary yields pages=[3,4]. For audio it takes the earliest
// start time and latest end time among every segment the interval overlaps,
// fully or partially. An interval that overlaps nothing yields a zero
// Citation.
func CitationForRange(mediaType model.MediaType, spans []model.PositionSpan, start, end int) model.Citation {
	if mediaType == model.MediaTypeAudio {
		return timeCitation(spans, start, end)
	}
	return pageCitation(spans, start, end)
}

func pageCitation(spans []model.PositionSpan, start, end int) model.Citation {
	seen := make(map[int]bool)
	var pages []int
	for _, s := range spans {
		if !intervalsOverlap(start, end, s.StartChar, s.EndChar) {
			continue
		}
		if !seen[s.Page] {
			seen[s.Page] = true
			pages = append(pages, s.Page)
		}
	}
	if len(pages) == 0 {
		return model.Citation{}
	}
	sort.Ints(pages)
	return model.NewPageCitation(pages)
}

func timeCitation(spans []model.PositionSpan, start, end int) model.Citation {
	var startTime, endTime float64
	found := false
	for _, s := range spans {
		if !intervalsOverlap(start, end, s.StartChar, s.EndChar) {
			continue
		}
		if !found || s.StartTime < startTime {
			startTime = s.StartTime
		}
		if !found || s.EndTime > endTime {
			endTime = s.EndTime
		}
		found = true
	}
	if !found {
		return model.Citation{}
	}
	return model.NewTimeCitation(startTime, endTime, "")
}

// intervalsOverlap reports whether two half-open character intervals share
// any position.
func intervalsOverlap(aStart, aEnd, bStart, bEnd int) bool {
	return aStart < bEnd && bStart < aEnd
}
