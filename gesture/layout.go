package gesture

// Rect is an on-screen box.
type Rect struct {
	X, Y, W, H float64
}

// Contains reports whether the point lies inside r. The right and bottom
// edges are exclusive.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x < r.X+r.W && y >= r.Y && y < r.Y+r.H
}

func (r Rect) midX() float64 { return r.X + r.W/2 }
func (r Rect) midY() float64 { return r.Y + r.H/2 }

// Sibling is one rendered element of a collection.
type Sibling struct {
	ID   string
	Rect Rect
}

// Collection is a drop target: a section for tasks, a board for sections.
type Collection struct {
	ID      string
	BoardID string
}

// Layout answers hit-testing questions about the rendered board. Siblings
// returns elements in visual order.
type Layout interface {
	CollectionAt(kind Kind, x, y float64) (Collection, bool)
	Siblings(collectionID string) []Sibling
}

// InsertionIndex returns where the dragged element lands among siblings.
// Tasks compare against vertical midpoints and sections against horizontal
// ones. The dragged element itself is skipped, so the result counts
// positions after it has been removed.
func InsertionIndex(kind Kind, siblings []Sibling, draggedID string, x, y float64) int {
	idx := 0
	for _, s := range siblings {
		if s.ID == draggedID {
			continue
		}
		var before bool
		if kind == KindSection {
			before = x < s.Rect.midX()
		} else {
			before = y < s.Rect.midY()
		}
		if before {
			return idx
		}
		idx++
	}
	return idx
}

// StaticLayout is a Layout over fixed rectangles, for renderers that
// compute geometry up front.
type StaticLayout struct {
	Sections []CollectionArea
	Boards   []CollectionArea
}

// CollectionArea is the bounds and children of one collection.
type CollectionArea struct {
	Collection
	Bounds   Rect
	Children []Sibling
}

// CollectionAt implements Layout.
func (l StaticLayout) CollectionAt(kind Kind, x, y float64) (Collection, bool) {
	areas := l.Sections
	if kind == KindSection {
		areas = l.Boards
	}
	for _, a := range areas {
		if a.Bounds.Contains(x, y) {
			return a.Collection, true
		}
	}
	return Collection{}, false
}

// Siblings implements Layout.
func (l StaticLayout) Siblings(collectionID string) []Sibling {
	for _, areas := range [][]CollectionArea{l.Sections, l.Boards} {
		for _, a := range areas {
			if a.ID == collectionID {
				return a.Children
			}
		}
	}
	return nil
}
