package gesture

import (
	"math"

	tea "github.com/charmbracelet/bubbletea"
)

// DefaultTouchThreshold is how far a finger must travel, in pixels, before a
// touch becomes a drag.
const DefaultTouchThreshold = 8

// PointerSignal is a native drag-and-drop event.
type PointerSignal struct {
	Type string // dragstart, dragover, drop or dragend
	X, Y float64
}

// PointerAdapter translates native drag-and-drop signals. A dragend that
// follows a drop is swallowed; a dragend without one cancels.
type PointerAdapter struct {
	active bool
}

// Translate returns the events produced by sig.
func (a *PointerAdapter) Translate(sig PointerSignal) []Event {
	ev := Event{X: sig.X, Y: sig.Y, Source: SourcePointer}
	switch sig.Type {
	case "dragstart":
		a.active = true
		ev.Phase = PhaseStart
	case "dragover":
		if !a.active {
			return nil
		}
		ev.Phase = PhaseMove
	case "drop":
		if !a.active {
			return nil
		}
		a.active = false
		ev.Phase = PhaseEnd
	case "dragend":
		if !a.active {
			return nil
		}
		a.active = false
		ev.Phase = PhaseCancel
	default:
		return nil
	}
	return []Event{ev}
}

// TouchSignal is a raw touch event for the first touch point.
type TouchSignal struct {
	Type string // touchstart, touchmove, touchend or touchcancel
	X, Y float64
}

// TouchAdapter synthesizes the drag sequence from touch signals. Nothing is
// emitted until the finger has moved Threshold pixels, so taps and short
// jitters never start a drag.
type TouchAdapter struct {
	Threshold float64

	touching bool
	dragging bool
	originX  float64
	originY  float64
}

// NewTouchAdapter returns an adapter with DefaultTouchThreshold.
func NewTouchAdapter() *TouchAdapter {
	return &TouchAdapter{Threshold: DefaultTouchThreshold}
}

// Translate returns the events produced by sig.
func (a *TouchAdapter) Translate(sig TouchSignal) []Event {
	switch sig.Type {
	case "touchstart":
		a.touching, a.dragging = true, false
		a.originX, a.originY = sig.X, sig.Y
		return nil
	case "touchmove":
		if !a.touching {
			return nil
		}
		move := Event{Phase: PhaseMove, X: sig.X, Y: sig.Y, Source: SourceTouch}
		if a.dragging {
			return []Event{move}
		}
		if math.Hypot(sig.X-a.originX, sig.Y-a.originY) < a.Threshold {
			return nil
		}
		a.dragging = true
		start := Event{Phase: PhaseStart, X: a.originX, Y: a.originY, Source: SourceTouch}
		return []Event{start, move}
	case "touchend", "touchcancel":
		wasDragging := a.dragging
		a.touching, a.dragging = false, false
		if !wasDragging {
			return nil
		}
		phase := PhaseEnd
		if sig.Type == "touchcancel" {
			phase = PhaseCancel
		}
		return []Event{{Phase: phase, X: sig.X, Y: sig.Y, Source: SourceTouch}}
	default:
		return nil
	}
}

// MouseAdapter translates terminal mouse messages. Cell coordinates are
// reported as-is. Left press starts, motion moves, and any release ends.
type MouseAdapter struct {
	active bool
}

// Translate returns the events produced by msg.
func (a *MouseAdapter) Translate(msg tea.MouseMsg) []Event {
	ev := Event{X: float64(msg.X), Y: float64(msg.Y), Source: SourceMouse}
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return nil
		}
		a.active = true
		ev.Phase = PhaseStart
	case tea.MouseActionMotion:
		if !a.active {
			return nil
		}
		ev.Phase = PhaseMove
	case tea.MouseActionRelease:
		if !a.active {
			return nil
		}
		a.active = false
		ev.Phase = PhaseEnd
	default:
		return nil
	}
	return []Event{ev}
}

// Cancel aborts an active mouse drag, for example on Esc.
func (a *MouseAdapter) Cancel() []Event {
	if !a.active {
		return nil
	}
	a.active = false
	return []Event{{Phase: PhaseCancel, Source: SourceMouse}}
}
