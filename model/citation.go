package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Value implements driver.Valuer so a Citation can be stored as a JSONB column.
func (c Citation) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for reading a Citation back from JSONB.
func (c *Citation) Scan(value interface{}) error {
	if value == nil {
		*c = Citation{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("citation scan: expected []byte, got %T", value)
	}
	return json.Unmarshal(b, c)
}

// CitationKind discriminates the shape of a Citation.
type CitationKind int

const (
	CitationNone CitationKind = iota
	CitationPage
	CitationTime
)

// Citation pins a chunk back to its position in the source document, either
// as a page span (PDF/docx/image) or a time span (audio). Exactly one of
// the Page* or Time* field groups is populated, selected by Kind.
type Citation struct {
	Kind CitationKind `json:"kind"`

	Pages     []int  `json:"pages,omitempty"`
	PageRange string `json:"page_range,omitempty"`

	StartTime float64 `json:"start_time,omitempty"`
	EndTime   float64 `json:"end_time,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
	TimeRange string  `json:"time_range,omitempty"`
	Label     string  `json:"label,omitempty"`
}

// NewPageCitation builds a page citation from an ordered, non-empty set of
// page numbers, formatting PageRange as "first-last" (or just "first" when
// there is only one page).
func NewPageCitation(pages []int) Citation {
	c := Citation{Kind: CitationPage, Pages: append([]int(nil), pages...)}
	if len(pages) == 0 {
		return c
	}
	first, last := pages[0], pages[len(pages)-1]
	if first == last {
		c.PageRange = fmt.Sprintf("%d", first)
	} else {
		c.PageRange = fmt.Sprintf("%d-%d", first, last)
	}
	return c
}

// NewTimeCitation builds a time citation from a start/end offset in seconds.
func NewTimeCitation(start, end float64, label string) Citation {
	return Citation{
		Kind:      CitationTime,
		StartTime: start,
		EndTime:   end,
		Timestamp: formatTimestamp(start),
		TimeRange: fmt.Sprintf("%s-%s", formatTimestamp(start), formatTimestamp(end)),
		Label:     label,
	}
}

func formatTimestamp(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// String renders the citation in the short form used in LLM-facing prompts,
// e.g. "p. 3-4" or "12:05-12:40".
func (c Citation) String() string {
	switch c.Kind {
	case CitationPage:
		if c.PageRange == "" {
			return ""
		}
		return "p. " + c.PageRange
	case CitationTime:
		return c.TimeRange
	default:
		return ""
	}
}
