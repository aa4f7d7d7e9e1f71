package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/suggest"
)

// TextBlock represents one recognized word on a page for data transfer between layers.
type TextBlock struct {
	ID           uuid.UUID              `json:"id"`
	PageID       uuid.UUID              `json:"page_id"`
	ExtractionID string                 `json:"extraction_id"`
	Text         string                 `json:"text"`
	TextType     constants.TextType     `json:"text_type"`
	Line         int                    `json:"line"`
	Number       int                    `json:"number"`
	Confidence   float64                `json:"confidence"`
	PrintControl constants.PrintControl `json:"print_control"`
	GeoX0        float64                `json:"geo_x_0"`
	GeoY0        float64                `json:"geo_y_0"`
	GeoX1        float64                `json:"geo_x_1"`
	GeoY1        float64                `json:"geo_y_1"`
	Suggestions  []suggest.Suggestion   `json:"suggestions"`
	Review       bool                   `json:"review"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// ConfidenceLevel buckets the confidence score.
func (b *TextBlock) ConfidenceLevel() string {
	return constants.ConfidenceLevel(b.Confidence)
}

// Included reports whether the block appears in exports.
func (b *TextBlock) Included() bool {
	return b.PrintControl == constants.PrintInclude
}

// Before orders blocks by (line, number).
func (b *TextBlock) Before(o *TextBlock) bool {
	if b.Line != o.Line {
		return b.Line < o.Line
	}
	return b.Number < o.Number
}

// BlockView is the canonical shape returned by curation operations.
type BlockView struct {
	ID                  uuid.UUID            `json:"id"`
	Text                string               `json:"text"`
	Line                int                  `json:"line"`
	Number              int                  `json:"number"`
	Confidence          float64              `json:"confidence"`
	ConfidenceLevel     string               `json:"confidence_level"`
	Suggestions         []suggest.Suggestion `json:"suggestions"`
	TextType            string               `json:"text_type"`
	TextTypeDisplay     string               `json:"text_type_display"`
	PrintControl        string               `json:"print_control"`
	PrintControlDisplay string               `json:"print_control_display"`
	Review              bool                 `json:"review"`
}

// View converts the block for callers.
func (b *TextBlock) View() BlockView {
	sugg := b.Suggestions
	if sugg == nil {
		sugg = []suggest.Suggestion{}
	}
	return BlockView{
		ID:                  b.ID,
		Text:                b.Text,
		Line:                b.Line,
		Number:              b.Number,
		Confidence:          b.Confidence,
		ConfidenceLevel:     b.ConfidenceLevel(),
		Suggestions:         sugg,
		TextType:            string(b.TextType),
		TextTypeDisplay:     b.TextType.Display(),
		PrintControl:        string(b.PrintControl),
		PrintControlDisplay: b.PrintControl.Display(),
		Review:              b.Review,
	}
}

// HistoryType marks what a history row recorded.
type HistoryType string

const (
	HistoryCreated HistoryType = "+"
	HistoryChanged HistoryType = "~"
	HistoryDeleted HistoryType = "-"
)

// Display returns the human-readable change type.
func (t HistoryType) Display() string {
	switch t {
	case HistoryCreated:
		return "Created"
	case HistoryChanged:
		return "Changed"
	case HistoryDeleted:
		return "Deleted"
	}
	return string(t)
}

// HistoryRecord is one snapshot of a text block, written on every save.
type HistoryRecord struct {
	HistoryID    int64       `json:"history_id"`
	BlockID      uuid.UUID   `json:"block_id"`
	Date         time.Time   `json:"date"`
	Type         HistoryType `json:"type"`
	Actor        string      `json:"user"`
	ChangeReason string      `json:"change_reason,omitempty"`
	Snapshot     TextBlock   `json:"snapshot"`
}
