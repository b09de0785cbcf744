package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SnapshotStorage loads and atomically rewrites the whole document.
// Update runs fn against a private copy of the latest snapshot and persists
// the result only when fn returns nil; fn may run more than once.
type SnapshotStorage interface {
	Read(ctx context.Context) (Snapshot, error)
	Update(ctx context.Context, fn func(*Snapshot) error) (Snapshot, error)
}

// Change describes one committed mutation.
type Change struct {
	Version     string    `json:"version"`
	CommittedAt time.Time `json:"committedAt"`
}

// TaskInput is the body of a task creation.
type TaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      string `json:"status,omitempty"`
	Priority    string `json:"priority,omitempty"`
	DueDate     string `json:"dueDate,omitempty"`
	StartDate   string `json:"startDate,omitempty"`
}

// TaskPatch edits a task. Nil fields stay unchanged; an empty date clears it.
type TaskPatch struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty"`
	Priority    *string `json:"priority,omitempty"`
	DueDate     *string `json:"dueDate,omitempty"`
	StartDate   *string `json:"startDate,omitempty"`
}

// MoveTaskInput names the task and both sections of a move. A nil NewIndex
// appends.
type MoveTaskInput struct {
	TaskID        string `json:"-"`
	FromSectionID string `json:"fromSectionId"`
	ToSectionID   string `json:"toSectionId"`
	NewIndex      *int   `json:"newIndex,omitempty"`
}

// MoveTaskResult carries everything a client needs to patch its cache.
type MoveTaskResult struct {
	Task     Task               `json:"task"`
	Sections map[string]Section `json:"sections"`
}

// BoardService implements board, section and task operations, including the
// two move operations, on top of a SnapshotStorage.
type BoardService struct {
	store SnapshotStorage
	newID func() string
	now   func() time.Time
}

// NewBoardService creates a service using random UUIDs and a monotonic clock.
func NewBoardService(store SnapshotStorage) *BoardService {
	return &BoardService{store: store, newID: uuid.NewString, now: MonotonicClock()}
}

// Snapshot returns the full document.
func (s *BoardService) Snapshot(ctx context.Context) (Snapshot, error) {
	return s.store.Read(ctx)
}

// CreateBoard creates a board with the default sections.
func (s *BoardService) CreateBoard(ctx context.Context, name string) (Board, error) {
	name, err := requireName("name", name)
	if err != nil {
		return Board{}, err
	}
	board := Board{ID: s.newID(), Name: name}
	sections := make([]Section, len(DefaultSectionNames))
	for i, n := range DefaultSectionNames {
		sections[i] = Section{ID: s.newID(), Name: n}
	}
	var out Board
	_, err = s.store.Update(ctx, func(snap *Snapshot) error {
		out = snap.InsertBoard(board, sections)
		return nil
	})
	return out, err
}

func (s *BoardService) RenameBoard(ctx context.Context, boardID, name string) (Board, error) {
	name, err := requireName("name", name)
	if err != nil {
		return Board{}, err
	}
	var out Board
	_, err = s.store.Update(ctx, func(snap *Snapshot) error {
		b, err := snap.RenameBoard(boardID, name)
		out = b
		return err
	})
	return out, err
}

func (s *BoardService) DeleteBoard(ctx context.Context, boardID string) error {
	_, err := s.store.Update(ctx, func(snap *Snapshot) error {
		return snap.RemoveBoard(boardID)
	})
	return err
}

// SetActiveBoard returns the new active board id.
func (s *BoardService) SetActiveBoard(ctx context.Context, boardID string) (string, error) {
	if err := requireID("boardId", boardID); err != nil {
		return "", err
	}
	_, err := s.store.Update(ctx, func(snap *Snapshot) error {
		return snap.SetActiveBoard(boardID)
	})
	if err != nil {
		return "", err
	}
	return boardID, nil
}

func (s *BoardService) CreateSection(ctx context.Context, boardID, name string) (Section, error) {
	name, err := requireName("name", name)
	if err != nil {
		return Section{}, err
	}
	sec := Section{ID: s.newID(), Name: name, BoardID: boardID}
	var out Section
	_, err = s.store.Update(ctx, func(snap *Snapshot) error {
		created, err := snap.InsertSection(sec)
		out = created
		return err
	})
	return out, err
}

func (s *BoardService) RenameSection(ctx context.Context, boardID, sectionID, name string) (Section, error) {
	name, err := requireName("name", name)
	if err != nil {
		return Section{}, err
	}
	var out Section
	_, err = s.store.Update(ctx, func(snap *Snapshot) error {
		sec, err := snap.RenameSection(boardID, sectionID, name)
		out = sec
		return err
	})
	return out, err
}

func (s *BoardService) DeleteSection(ctx context.Context, boardID, sectionID string) error {
	_, err := s.store.Update(ctx, func(snap *Snapshot) error {
		return snap.RemoveSection(boardID, sectionID)
	})
	return err
}

// CreateTask appends a new task to the section. Status defaults to the
// section name and priority to medium.
func (s *BoardService) CreateTask(ctx context.Context, boardID, sectionID string, in TaskInput) (Task, error) {
	title, err := requireName("title", in.Title)
	if err != nil {
		return Task{}, err
	}
	priority, err := ParsePriority(in.Priority)
	if err != nil {
		return Task{}, err
	}
	due, err := ParseDate("dueDate", in.DueDate)
	if err != nil {
		return Task{}, err
	}
	start, err := ParseDate("startDate", in.StartDate)
	if err != nil {
		return Task{}, err
	}
	id := s.newID()
	var out Task
	_, err = s.store.Update(ctx, func(snap *Snapshot) error {
		sec, err := snap.SectionOf(boardID, sectionID)
		if err != nil {
			return err
		}
		status := strings.TrimSpace(in.Status)
		if status == "" {
			status = sec.Name
		}
		now := s.now()
		created, err := snap.InsertTask(Task{
			ID:          id,
			Title:       title,
			Description: in.Description,
			Status:      status,
			Priority:    priority,
			DueDate:     due,
			StartDate:   start,
			SectionID:   sectionID,
			BoardID:     boardID,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
		out = created
		return err
	})
	return out, err
}

// UpdateTask applies a patch. Position is never changed here.
func (s *BoardService) UpdateTask(ctx context.Context, boardID, taskID string, p TaskPatch) (Task, error) {
	var (
		title    string
		priority Priority
		due      *time.Time
		start    *time.Time
		err      error
	)
	if p.Title != nil {
		if title, err = requireName("title", *p.Title); err != nil {
			return Task{}, err
		}
	}
	if p.Priority != nil {
		if priority, err = ParsePriority(*p.Priority); err != nil {
			return Task{}, err
		}
	}
	if p.DueDate != nil {
		if due, err = ParseDate("dueDate", *p.DueDate); err != nil {
			return Task{}, err
		}
	}
	if p.StartDate != nil {
		if start, err = ParseDate("startDate", *p.StartDate); err != nil {
			return Task{}, err
		}
	}

	var out Task
	_, err = s.store.Update(ctx, func(snap *Snapshot) error {
		t, err := snap.TaskOf(boardID, taskID)
		if err != nil {
			return err
		}
		t = t.clone()
		if p.Title != nil {
			t.Title = title
		}
		if p.Description != nil {
			t.Description = *p.Description
		}
		if p.Status != nil {
			t.Status = strings.TrimSpace(*p.Status)
		}
		if p.Priority != nil {
			t.Priority = priority
		}
		if p.DueDate != nil {
			t.DueDate = due
		}
		if p.StartDate != nil {
			t.StartDate = start
		}
		t.UpdatedAt = s.now()
		updated, err := snap.ReplaceTask(boardID, t)
		out = updated
		return err
	})
	return out, err
}

func (s *BoardService) DeleteTask(ctx context.Context, boardID, taskID string) error {
	_, err := s.store.Update(ctx, func(snap *Snapshot) error {
		return snap.RemoveTask(boardID, taskID)
	})
	return err
}

// MoveTask relocates a task inside one load/mutate/persist cycle and returns
// the task with both affected sections.
func (s *BoardService) MoveTask(ctx context.Context, boardID string, in MoveTaskInput) (MoveTaskResult, error) {
	for _, f := range [...]struct{ name, v string }{
		{"taskId", in.TaskID},
		{"fromSectionId", in.FromSectionID},
		{"toSectionId", in.ToSectionID},
	} {
		if err := requireID(f.name, f.v); err != nil {
			return MoveTaskResult{}, err
		}
	}
	var out MoveTaskResult
	_, err := s.store.Update(ctx, func(snap *Snapshot) error {
		t, sections, err := snap.MoveTask(boardID, in.TaskID, in.FromSectionID, in.ToSectionID, in.NewIndex, s.now())
		out = MoveTaskResult{Task: t, Sections: sections}
		return err
	})
	if err != nil {
		return MoveTaskResult{}, err
	}
	return out, nil
}

// MoveSection repositions a section within its board and returns the board.
func (s *BoardService) MoveSection(ctx context.Context, boardID, sectionID string, newIndex int) (Board, error) {
	var out Board
	_, err := s.store.Update(ctx, func(snap *Snapshot) error {
		b, err := snap.MoveSection(boardID, sectionID, newIndex)
		out = b
		return err
	})
	if err != nil {
		return Board{}, err
	}
	return out, nil
}
