// Package client keeps a local copy of the board document, applies drag
// results optimistically and reconciles them with the server.
package client

import (
	"sync"
	"time"

	"prism-board/domain"
	"prism-board/gesture"
)

// State is the client's belief about the current snapshot. Pass it by
// pointer; there is no package-level instance.
type State struct {
	mu   sync.RWMutex
	snap domain.Snapshot
}

// NewState returns an empty state.
func NewState() *State {
	return &State{snap: domain.NewSnapshot()}
}

// Replace swaps in a freshly loaded snapshot.
func (s *State) Replace(snap domain.Snapshot) {
	snap = snap.Clone()
	snap.Normalize()
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

// Snapshot returns a copy of the current snapshot.
func (s *State) Snapshot() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// MergeMoveTask writes the authoritative task and sections returned by a
// task move over whatever is cached.
func (s *State) MergeMoveTask(res domain.MoveTaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Tasks[res.Task.ID] = res.Task
	for id, sec := range res.Sections {
		s.snap.Sections[id] = sec
	}
}

// MergeSectionOrder writes the authoritative order of a board's sections.
// Unknown boards are ignored.
func (s *State) MergeSectionOrder(boardID string, order []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.snap.Boards[boardID]
	if !ok {
		return
	}
	b.SectionOrder = append([]string(nil), order...)
	s.snap.Boards[boardID] = b
}

// ApplyTaskMove moves a task locally ahead of the server response and
// returns the ids of the sections it touched.
func (s *State) ApplyTaskMove(in gesture.Intent, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.snap.Clone()
	index := in.Index
	_, affected, err := next.MoveTask(in.BoardID, in.EntityID, in.From, in.To, &index, now)
	if err != nil {
		return nil, err
	}
	s.snap = next
	ids := make([]string, 0, len(affected))
	for _, id := range []string{in.From, in.To} {
		if _, ok := affected[id]; ok && !contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ApplySectionMove reorders a board's sections locally.
func (s *State) ApplySectionMove(in gesture.Intent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.snap.Clone()
	if _, err := next.MoveSection(in.BoardID, in.EntityID, in.Index); err != nil {
		return err
	}
	s.snap = next
	return nil
}

// ActiveBoard returns the active board, if it is present.
func (s *State) ActiveBoard() (domain.Board, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap.ActiveBoard == nil {
		return domain.Board{}, false
	}
	b, ok := s.snap.Boards[*s.snap.ActiveBoard]
	return b, ok
}

// ActiveBoardName returns the active board's name or "" when it is missing.
func (s *State) ActiveBoardName() string {
	b, ok := s.ActiveBoard()
	if !ok {
		return ""
	}
	return b.Name
}

// SectionsForBoard lists a board's sections in display order. Ids in the
// order that do not resolve are skipped.
func (s *State) SectionsForBoard(boardID string) []domain.Section {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.snap.Boards[boardID]
	if !ok {
		return nil
	}
	out := make([]domain.Section, 0, len(b.SectionOrder))
	for _, id := range b.SectionOrder {
		if sec, ok := s.snap.Sections[id]; ok {
			out = append(out, sec)
		}
	}
	return out
}

// TasksForSection lists a section's tasks in display order, skipping ids
// that do not resolve.
func (s *State) TasksForSection(sectionID string) []domain.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sec, ok := s.snap.Sections[sectionID]
	if !ok {
		return nil
	}
	out := make([]domain.Task, 0, len(sec.TaskIDs))
	for _, id := range sec.TaskIDs {
		if t, ok := s.snap.Tasks[id]; ok {
			out = append(out, t)
		}
	}
	return out
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
