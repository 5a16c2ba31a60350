package model

import (
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// MediaType is the closed set of source formats the ingestion pipeline
// accepts. Parsing each format to plain text is external to this engine;
// MediaType only records which parser the caller already ran.
type MediaType string

const (
	MediaTypePDF   MediaType = "pdf"
	MediaTypeDocx  MediaType = "docx"
	MediaTypeImage MediaType = "image"
	MediaTypeAudio MediaType = "audio"
)

// Document represents a source document.
type Document struct {
	ID        int64     `json:"id"`
	RID       uuid.UUID `json:"rid"`
	Title     string    `json:"title"`
	Source    string    `json:"source,omitempty"`
	MediaType MediaType `json:"media_type,omitempty"`
	Content   string    `json:"content,omitempty" db:"-"` // Temporary field for processing, not stored in DB
	// Positions is the position map (page spans or audio segment spans) the
	// external parser extracted alongside Content, used to compute each
	// chunk's Citation by character-interval intersection. Not stored in DB.
	Positions []PositionSpan `json:"-" db:"-"`
	Metadata  Metadata       `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDocumentFromFile reads a file and creates a Document with the file content.
// The title defaults to the filename, and source to the file path.
func NewDocumentFromFile(filePath string, mediaType MediaType, metadata Metadata) (*Document, error) {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	filename := filepath.Base(filePath)
	title := filename[:len(filename)-len(filepath.Ext(filename))]
	if title == "" {
		title = filename
	}

	return &Document{
		Title:     title,
		Source:    filePath,
		MediaType: mediaType,
		Content:   string(content),
		Metadata:  metadata,
	}, nil
}
