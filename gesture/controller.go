package gesture

import (
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

// State of the Controller.
type State int

const (
	StateIdle State = iota
	StateDragging
	StateDropped
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDragging:
		return "dragging"
	case StateDropped:
		return "dropped"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ErrBusy is returned by Begin while another drag is in progress.
var ErrBusy = errors.New("gesture: drag already in progress")

// IntentSink receives completed drops.
type IntentSink interface {
	Submit(Intent) error
}

// Target is a candidate drop position.
type Target struct {
	CollectionID string
	Index        int
}

type transition struct {
	from  State
	phase Phase
}

// Controller is the drag state machine. Dropped and Cancelled are terminal
// for one gesture; the controller returns to Idle before Handle returns.
type Controller struct {
	layout Layout
	sink   IntentSink
	logger *log.Logger

	mu         sync.Mutex
	state      State
	payload    Payload
	preview    Target
	hasPreview bool
}

// NewController creates an idle controller.
func NewController(layout Layout, sink IntentSink, logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Controller{layout: layout, sink: sink, logger: logger}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Begin captures what is being dragged.
func (c *Controller) Begin(p Payload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrBusy
	}
	c.state = StateDragging
	c.payload = p
	c.hasPreview = false
	return nil
}

// Preview returns the live insertion point, if the pointer is over a valid
// target.
func (c *Controller) Preview() (Target, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.preview, c.hasPreview
}

// Handle advances the machine and returns the state this event produced.
// Events that do not apply to the current state are ignored.
func (c *Controller) Handle(ev Event) State {
	c.mu.Lock()
	switch (transition{c.state, ev.Phase}) {
	case transition{StateDragging, PhaseStart}, transition{StateDragging, PhaseMove}:
		c.preview, c.hasPreview = c.targetAt(ev.X, ev.Y)
		c.mu.Unlock()
		return StateDragging
	case transition{StateDragging, PhaseEnd}:
		target, ok := c.targetAt(ev.X, ev.Y)
		p := c.payload
		c.reset()
		c.mu.Unlock()
		if !ok {
			c.logger.WithFields(log.Fields{"kind": p.Kind, "id": p.EntityID, "source": ev.Source.String()}).
				Debug("drop outside any target")
			return StateCancelled
		}
		c.emit(p, target)
		return StateDropped
	case transition{StateDragging, PhaseCancel}:
		c.reset()
		c.mu.Unlock()
		return StateCancelled
	}
	state := c.state
	c.mu.Unlock()
	return state
}

// targetAt resolves a point to a drop target. Tasks and sections may only
// land on their own board.
func (c *Controller) targetAt(x, y float64) (Target, bool) {
	col, ok := c.layout.CollectionAt(c.payload.Kind, x, y)
	if !ok || col.BoardID != c.payload.BoardID {
		return Target{}, false
	}
	idx := InsertionIndex(c.payload.Kind, c.layout.Siblings(col.ID), c.payload.EntityID, x, y)
	return Target{CollectionID: col.ID, Index: idx}, true
}

func (c *Controller) reset() {
	c.state = StateIdle
	c.payload = Payload{}
	c.preview = Target{}
	c.hasPreview = false
}

func (c *Controller) emit(p Payload, t Target) {
	intent := Intent{
		Kind:     p.Kind,
		BoardID:  p.BoardID,
		EntityID: p.EntityID,
		From:     p.From,
		To:       t.CollectionID,
		Index:    t.Index,
	}
	if p.Kind == KindSection {
		intent.From, intent.To = p.BoardID, p.BoardID
	}
	if err := c.sink.Submit(intent); err != nil {
		c.logger.WithError(err).WithFields(log.Fields{"kind": p.Kind, "id": p.EntityID}).
			Warn("move intent rejected")
	}
}
