package extract

import (
	"math"

	"github.com/google/uuid"

	"github.com/libriscan/libriscan/constants"
	"github.com/libriscan/libriscan/internal/entity"
	"github.com/libriscan/libriscan/internal/suggest"
)

// GeoEpsilon is how far boundary coordinates are moved inside (0, 1).
const GeoEpsilon = 1e-9

// ClampConfidence bounds a provider score to [0, ConfAccepted].
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	return math.Min(c, constants.ConfAccepted)
}

// NudgeCoordinate keeps a normalized coordinate strictly inside (0, 1).
func NudgeCoordinate(v float64) float64 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return GeoEpsilon
	case v >= 1:
		return 1 - GeoEpsilon
	}
	return v
}

// MapTextType translates the provider classification. Anything not handwriting is printed.
func MapTextType(providerType string) constants.TextType {
	if providerType == TypeHandwriting {
		return constants.TextHandwriting
	}
	return constants.TextPrinted
}

// ToTextBlock maps a placed word onto an unsaved text block.
func ToTextBlock(pageID uuid.UUID, p Placement, suggestions []suggest.Suggestion) *entity.TextBlock {
	lo, hi := p.Word.Bounds()
	if suggestions == nil {
		suggestions = []suggest.Suggestion{}
	}
	return &entity.TextBlock{
		PageID:       pageID,
		ExtractionID: p.Word.ID,
		Text:         p.Word.Text,
		TextType:     MapTextType(p.Word.TextType),
		Line:         p.Line,
		Number:       p.Number,
		Confidence:   ClampConfidence(p.Word.Confidence),
		PrintControl: constants.PrintInclude,
		GeoX0:        NudgeCoordinate(lo.X),
		GeoY0:        NudgeCoordinate(lo.Y),
		GeoX1:        NudgeCoordinate(hi.X),
		GeoY1:        NudgeCoordinate(hi.Y),
		Suggestions:  suggestions,
	}
}
