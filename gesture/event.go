// Package gesture turns raw drag input into move intents. Input adapters
// normalize pointer, touch and terminal mouse signals into one Event stream;
// the Controller consumes that stream without knowing where it came from.
package gesture

// Phase of a normalized gesture event.
type Phase int

const (
	PhaseStart Phase = iota
	PhaseMove
	PhaseEnd
	PhaseCancel
)

func (p Phase) String() string {
	switch p {
	case PhaseStart:
		return "start"
	case PhaseMove:
		return "move"
	case PhaseEnd:
		return "end"
	case PhaseCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Source identifies the input modality an event was synthesized from.
type Source int

const (
	SourcePointer Source = iota
	SourceTouch
	SourceMouse
)

func (s Source) String() string {
	switch s {
	case SourcePointer:
		return "pointer"
	case SourceTouch:
		return "touch"
	case SourceMouse:
		return "mouse"
	default:
		return "unknown"
	}
}

// Event is one step of a drag in screen coordinates.
type Event struct {
	Phase  Phase
	X, Y   float64
	Source Source
}

// Kind discriminates what is being dragged.
type Kind string

const (
	KindTask    Kind = "task"
	KindSection Kind = "section"
)

// Payload is captured when a drag begins. From is the owning section for a
// task and the owning board for a section.
type Payload struct {
	Kind     Kind
	EntityID string
	From     string
	BoardID  string
}

// Intent is a completed drop, ready to be sent to the server. For sections
// From and To are both the board id.
type Intent struct {
	Kind     Kind
	BoardID  string
	EntityID string
	From     string
	To       string
	Index    int
}
