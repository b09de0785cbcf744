package domain

import "time"

// Board is the top-level container. SectionOrder is the only source of
// section position.
type Board struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	SectionOrder []string `json:"sectionOrder"`
}

// Section is a column of a board. TaskIDs is the only source of task position.
type Section struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	BoardID string   `json:"boardId"`
	TaskIDs []string `json:"taskIds"`
}

// Priority of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Task is a single work item owned by exactly one section.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    Priority   `json:"priority"`
	DueDate     *time.Time `json:"dueDate,omitempty"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	SectionID   string     `json:"sectionId"`
	BoardID     string     `json:"boardId"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Snapshot is the whole persisted document.
type Snapshot struct {
	Boards      map[string]Board   `json:"boards"`
	Sections    map[string]Section `json:"sections"`
	Tasks       map[string]Task    `json:"tasks"`
	ActiveBoard *string            `json:"activeBoard"`
}

// DefaultSectionNames are created with every new board, in this order.
var DefaultSectionNames = []string{"To Do", "Doing", "Done"}

// NewSnapshot returns an empty document.
func NewSnapshot() Snapshot {
	return Snapshot{
		Boards:   map[string]Board{},
		Sections: map[string]Section{},
		Tasks:    map[string]Task{},
	}
}

// Normalize replaces nil collections with empty ones and points a missing or
// dangling activeBoard at the first board. Decoded documents may omit them.
func (s *Snapshot) Normalize() {
	if s.Boards == nil {
		s.Boards = map[string]Board{}
	}
	if s.Sections == nil {
		s.Sections = map[string]Section{}
	}
	if s.Tasks == nil {
		s.Tasks = map[string]Task{}
	}
	for id, b := range s.Boards {
		if b.SectionOrder == nil {
			b.SectionOrder = []string{}
			s.Boards[id] = b
		}
	}
	for id, sec := range s.Sections {
		if sec.TaskIDs == nil {
			sec.TaskIDs = []string{}
			s.Sections[id] = sec
		}
	}
	if s.ActiveBoard != nil {
		if _, ok := s.Boards[*s.ActiveBoard]; ok {
			return
		}
	}
	s.ActiveBoard = s.firstBoardID()
}

// Clone returns a deep copy that shares no slices, maps or pointers with s.
func (s Snapshot) Clone() Snapshot {
	out := Snapshot{
		Boards:   make(map[string]Board, len(s.Boards)),
		Sections: make(map[string]Section, len(s.Sections)),
		Tasks:    make(map[string]Task, len(s.Tasks)),
	}
	for id, b := range s.Boards {
		out.Boards[id] = b.clone()
	}
	for id, sec := range s.Sections {
		out.Sections[id] = sec.clone()
	}
	for id, t := range s.Tasks {
		out.Tasks[id] = t.clone()
	}
	if s.ActiveBoard != nil {
		active := *s.ActiveBoard
		out.ActiveBoard = &active
	}
	return out
}

func (b Board) clone() Board {
	b.SectionOrder = append([]string{}, b.SectionOrder...)
	return b
}

func (s Section) clone() Section {
	s.TaskIDs = append([]string{}, s.TaskIDs...)
	return s
}

func (t Task) clone() Task {
	if t.DueDate != nil {
		d := *t.DueDate
		t.DueDate = &d
	}
	if t.StartDate != nil {
		d := *t.StartDate
		t.StartDate = &d
	}
	return t
}
