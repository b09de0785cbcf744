package domain

import (
	"sort"
	"time"
)

// The methods below mutate a snapshot in place. They are used by the server
// inside one load/mutate/persist cycle and by the client for optimistic
// patches, so both sides share one ordering semantics.

func (s *Snapshot) firstBoardID() *string {
	if len(s.Boards) == 0 {
		return nil
	}
	ids := make([]string, 0, len(s.Boards))
	for id := range s.Boards {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &ids[0]
}

// InsertBoard adds b together with its initial sections, appended to
// b.SectionOrder in the given order. The board becomes active when no board
// is active yet.
func (s *Snapshot) InsertBoard(b Board, sections []Section) Board {
	b.SectionOrder = make([]string, 0, len(sections))
	for _, sec := range sections {
		sec.BoardID = b.ID
		sec.TaskIDs = []string{}
		s.Sections[sec.ID] = sec
		b.SectionOrder = append(b.SectionOrder, sec.ID)
	}
	s.Boards[b.ID] = b
	if s.ActiveBoard == nil {
		id := b.ID
		s.ActiveBoard = &id
	}
	return b.clone()
}

// RenameBoard sets the board name.
func (s *Snapshot) RenameBoard(id, name string) (Board, error) {
	b, ok := s.Boards[id]
	if !ok {
		return Board{}, notFound("board", id)
	}
	b.Name = name
	s.Boards[id] = b
	return b.clone(), nil
}

// RemoveBoard deletes a board with its sections and their tasks. When it was
// the active board, the first remaining board by id becomes active.
func (s *Snapshot) RemoveBoard(id string) error {
	b, ok := s.Boards[id]
	if !ok {
		return notFound("board", id)
	}
	for _, sid := range b.SectionOrder {
		s.dropSection(sid)
	}
	// Sections that claim the board without being ordered are removed too.
	for sid, sec := range s.Sections {
		if sec.BoardID == id {
			s.dropSection(sid)
		}
	}
	delete(s.Boards, id)
	if s.ActiveBoard != nil && *s.ActiveBoard == id {
		s.ActiveBoard = s.firstBoardID()
	}
	return nil
}

// SetActiveBoard points activeBoard at an existing board.
func (s *Snapshot) SetActiveBoard(id string) error {
	if _, ok := s.Boards[id]; !ok {
		return notFound("board", id)
	}
	active := id
	s.ActiveBoard = &active
	return nil
}

// InsertSection appends sec to its board's sectionOrder.
func (s *Snapshot) InsertSection(sec Section) (Section, error) {
	b, ok := s.Boards[sec.BoardID]
	if !ok {
		return Section{}, notFound("board", sec.BoardID)
	}
	sec.TaskIDs = []string{}
	s.Sections[sec.ID] = sec
	b.SectionOrder = insertAt(b.SectionOrder, sec.ID, len(b.SectionOrder))
	s.Boards[b.ID] = b
	return sec.clone(), nil
}

// SectionOf returns the section when it exists and belongs to boardID.
func (s *Snapshot) SectionOf(boardID, sectionID string) (Section, error) {
	if _, ok := s.Boards[boardID]; !ok {
		return Section{}, notFound("board", boardID)
	}
	sec, ok := s.Sections[sectionID]
	if !ok {
		return Section{}, notFound("section", sectionID)
	}
	if sec.BoardID != boardID {
		return Section{}, notIn("section", sectionID, "board", boardID)
	}
	return sec, nil
}

// RenameSection sets the section name.
func (s *Snapshot) RenameSection(boardID, sectionID, name string) (Section, error) {
	sec, err := s.SectionOf(boardID, sectionID)
	if err != nil {
		return Section{}, err
	}
	sec.Name = name
	s.Sections[sectionID] = sec
	return sec.clone(), nil
}

// RemoveSection deletes a section and every task it owns.
func (s *Snapshot) RemoveSection(boardID, sectionID string) error {
	if _, err := s.SectionOf(boardID, sectionID); err != nil {
		return err
	}
	b := s.Boards[boardID]
	b.SectionOrder, _ = removeID(b.SectionOrder, sectionID)
	s.Boards[boardID] = b
	s.dropSection(sectionID)
	return nil
}

func (s *Snapshot) dropSection(sectionID string) {
	sec, ok := s.Sections[sectionID]
	if !ok {
		return
	}
	for _, tid := range sec.TaskIDs {
		delete(s.Tasks, tid)
	}
	for tid, t := range s.Tasks {
		if t.SectionID == sectionID {
			delete(s.Tasks, tid)
		}
	}
	delete(s.Sections, sectionID)
}

// InsertTask appends t to the taskIds of t.SectionID, which must belong to
// t.BoardID.
func (s *Snapshot) InsertTask(t Task) (Task, error) {
	sec, err := s.SectionOf(t.BoardID, t.SectionID)
	if err != nil {
		return Task{}, err
	}
	sec.TaskIDs = insertAt(sec.TaskIDs, t.ID, len(sec.TaskIDs))
	s.Sections[sec.ID] = sec
	s.Tasks[t.ID] = t
	return t.clone(), nil
}

// TaskOf returns the task when it exists and belongs to boardID.
func (s *Snapshot) TaskOf(boardID, taskID string) (Task, error) {
	if _, ok := s.Boards[boardID]; !ok {
		return Task{}, notFound("board", boardID)
	}
	t, ok := s.Tasks[taskID]
	if !ok {
		return Task{}, notFound("task", taskID)
	}
	if t.BoardID != boardID {
		return Task{}, notIn("task", taskID, "board", boardID)
	}
	return t, nil
}

// ReplaceTask stores an edited task. Ownership fields are kept from the
// stored copy: position only changes through MoveTask.
func (s *Snapshot) ReplaceTask(boardID string, t Task) (Task, error) {
	cur, err := s.TaskOf(boardID, t.ID)
	if err != nil {
		return Task{}, err
	}
	t.SectionID = cur.SectionID
	t.BoardID = cur.BoardID
	t.CreatedAt = cur.CreatedAt
	s.Tasks[t.ID] = t
	return t.clone(), nil
}

// RemoveTask deletes a task and its position.
func (s *Snapshot) RemoveTask(boardID, taskID string) error {
	t, err := s.TaskOf(boardID, taskID)
	if err != nil {
		return err
	}
	if sec, ok := s.Sections[t.SectionID]; ok {
		sec.TaskIDs, _ = removeID(sec.TaskIDs, taskID)
		s.Sections[sec.ID] = sec
	}
	delete(s.Tasks, taskID)
	return nil
}

// MoveTask removes taskID from the taskIds of from and inserts it into to at
// the clamped index, or appends when index is nil. When from and to are the
// same section the index applies to the sequence after removal. The task's
// sectionId and updatedAt change even when the position does not.
func (s *Snapshot) MoveTask(boardID, taskID, from, to string, index *int, now time.Time) (Task, map[string]Section, error) {
	src, err := s.SectionOf(boardID, from)
	if err != nil {
		return Task{}, nil, err
	}
	dst, err := s.SectionOf(boardID, to)
	if err != nil {
		return Task{}, nil, err
	}
	t, ok := s.Tasks[taskID]
	if !ok {
		return Task{}, nil, notFound("task", taskID)
	}
	remaining, ok := removeID(src.TaskIDs, taskID)
	if !ok {
		return Task{}, nil, notIn("task", taskID, "section", from)
	}
	src.TaskIDs = remaining
	if from == to {
		dst = src
	}
	at := len(dst.TaskIDs)
	if index != nil {
		at = *index
	}
	dst.TaskIDs = insertAt(dst.TaskIDs, taskID, at)

	s.Sections[src.ID] = src
	s.Sections[dst.ID] = dst
	t.SectionID = to
	t.BoardID = dst.BoardID
	t.UpdatedAt = now
	s.Tasks[taskID] = t

	affected := map[string]Section{dst.ID: dst.clone()}
	if from != to {
		affected[src.ID] = src.clone()
	}
	return t.clone(), affected, nil
}

// MoveSection repositions sectionID inside its board's sectionOrder at the
// clamped index, interpreted after removal.
func (s *Snapshot) MoveSection(boardID, sectionID string, index int) (Board, error) {
	b, ok := s.Boards[boardID]
	if !ok {
		return Board{}, notFound("board", boardID)
	}
	if sec, ok := s.Sections[sectionID]; !ok || sec.BoardID != boardID {
		return Board{}, notIn("section", sectionID, "board", boardID)
	}
	order, ok := Reposition(b.SectionOrder, sectionID, &index)
	if !ok {
		return Board{}, notIn("section", sectionID, "board", boardID)
	}
	b.SectionOrder = order
	s.Boards[boardID] = b
	return b.clone(), nil
}
