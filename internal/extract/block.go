package extract

import "math"

type BlockType string

const (
	BlockPage BlockType = "PAGE"
	BlockLine BlockType = "LINE"
	BlockWord BlockType = "WORD"
)

// Provider text classifications.
const (
	TypePrinted     = "PRINTED"
	TypeHandwriting = "HANDWRITING"
)

const relationChild = "CHILD"

type Point struct {
	X float64 `json:"X"`
	Y float64 `json:"Y"`
}

type Geometry struct {
	Polygon []Point `json:"Polygon"`
}

type Relationship struct {
	Type string   `json:"Type"`
	IDs  []string `json:"Ids"`
}

// Block is one entry of a backend's response, in Textract's shape. Every backend
// reports pages as a flat list of these.
type Block struct {
	ID            string         `json:"Id"`
	Type          BlockType      `json:"BlockType"`
	Text          string         `json:"Text,omitempty"`
	TextType      string         `json:"TextType,omitempty"`
	Confidence    float64        `json:"Confidence"`
	Geometry      Geometry       `json:"Geometry"`
	Relationships []Relationship `json:"Relationships,omitempty"`
}

// Children returns the ids of the block's CHILD relationships in order.
func (b Block) Children() []string {
	var ids []string
	for _, r := range b.Relationships {
		if r.Type == relationChild {
			ids = append(ids, r.IDs...)
		}
	}
	return ids
}

// Bounds returns the top-left and bottom-right corners of the polygon's bounding box.
func (b Block) Bounds() (Point, Point) {
	if len(b.Geometry.Polygon) == 0 {
		return Point{}, Point{}
	}
	lo := Point{X: math.Inf(1), Y: math.Inf(1)}
	hi := Point{X: math.Inf(-1), Y: math.Inf(-1)}
	for _, p := range b.Geometry.Polygon {
		lo.X, lo.Y = math.Min(lo.X, p.X), math.Min(lo.Y, p.Y)
		hi.X, hi.Y = math.Max(hi.X, p.X), math.Max(hi.Y, p.Y)
	}
	return lo, hi
}

// Rect builds a clockwise four-point polygon from its corners.
func Rect(x0, y0, x1, y1 float64) Geometry {
	return Geometry{Polygon: []Point{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}}
}
