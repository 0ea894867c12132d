package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Diagram is one row of the `diagrams` table.  Shapes are stored as a JSON
// document in the `shapes` column, so the tags below define both the column
// format and the API payload.
//
// Fields:
//  ID        – primary key identifier.
//  Name      – display name, e.g. "Untitled Diagram".
//  Shapes    – everything drawn on the canvas, in draw order.
//  CreatedAt – timestamp of creation.
//  UpdatedAt – timestamp of last update.
type Diagram struct {
	ID        uint64    // diagrams.id
	Name      string    // diagrams.name
	Shapes    []Shape   // diagrams.shapes (JSON)
	CreatedAt time.Time // diagrams.created_at
	UpdatedAt time.Time // diagrams.updated_at
}

// DiagramSummary is a Diagram without its shapes, used for listings.
type DiagramSummary struct {
	ID         uint64
	Name       string
	ShapeCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Shape is a single canvas element.  Lines use X/Y as the start point and
// X2/Y2 as the end point; every other type is a box at X/Y of Width×Height.
type Shape struct {
	ID          ShapeID `json:"id"`
	Type        string  `json:"type"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width,omitempty"`
	Height      float64 `json:"height,omitempty"`
	X2          float64 `json:"x2,omitempty"`
	Y2          float64 `json:"y2,omitempty"`
	FillColor   string  `json:"fillColor,omitempty"`
	StrokeColor string  `json:"strokeColor,omitempty"`
	Text        string  `json:"text,omitempty"`
}

// ShapeID accepts either a JSON string or a JSON number, since canvas clients
// commonly use timestamps as ids.  It is always written back as a string.
type ShapeID string

func (id *ShapeID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ShapeID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("shape id must be a string or number: %w", err)
	}
	*id = ShapeID(n.String())
	return nil
}
